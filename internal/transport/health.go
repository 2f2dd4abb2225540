package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HealthTimeout bounds a health check.
const HealthTimeout = 3 * time.Second

var ErrNotServing = errors.New("service not serving")

// Check runs the standard gRPC health check against the server.
func (c *Client) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(c.outgoing(ctx), HealthTimeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotServing, resp.GetStatus())
	}
	return nil
}

// HealthProblem names the likely cause of a failed health check.
type HealthProblem int

const (
	HealthOK HealthProblem = iota
	HealthUnauthenticated
	HealthTLSHandshake
	HealthConnection
	HealthCreditsExpired
	HealthDNS
	HealthNotServing
	HealthUnknown
)

func (p HealthProblem) String() string {
	switch p {
	case HealthOK:
		return "ok"
	case HealthUnauthenticated:
		return "unauthenticated: check the API key"
	case HealthTLSHandshake:
		return "TLS handshake failed: check http:// vs https://"
	case HealthConnection:
		return "connection failed: check the host, port and network"
	case HealthCreditsExpired:
		return "account credits expired"
	case HealthDNS:
		return "DNS resolution failed"
	case HealthNotServing:
		return "service is not serving"
	default:
		return "unknown error"
	}
}

// DiagnoseHealth maps a Check error to its likely cause. Status codes alone
// are not reliable here, so the message text is inspected as well.
func DiagnoseHealth(err error) HealthProblem {
	if err == nil {
		return HealthOK
	}
	if errors.Is(err, ErrNotServing) {
		return HealthNotServing
	}
	st, _ := status.FromError(err)
	msg := err.Error()
	switch {
	case st.Code() == codes.Unauthenticated,
		strings.Contains(msg, "Unauthenticated"),
		strings.Contains(msg, "no authorization was passed"):
		return HealthUnauthenticated
	case strings.Contains(msg, "tls:"), strings.Contains(msg, "handshake"):
		return HealthTLSHandshake
	case strings.Contains(msg, "credits expired"):
		return HealthCreditsExpired
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "DNS resolution failed"):
		return HealthDNS
	case st.Code() == codes.DeadlineExceeded,
		st.Code() == codes.Unavailable,
		errors.Is(err, context.DeadlineExceeded),
		strings.Contains(msg, "connection refused"):
		return HealthConnection
	}
	return HealthUnknown
}
