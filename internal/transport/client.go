// Package transport carries wire messages over a bidirectional gRPC stream.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/RenatoCabral2022/facestream/internal/wire"
)

// DefaultMaxRecvMsgSize bounds a single received message.
const DefaultMaxRecvMsgSize = 10 * 1024 * 1024

var ErrInvalidURL = errors.New("invalid server url")

// Config describes how to reach the animation service.
type Config struct {
	// URL is http://host:port, https://host:port or a bare host:port.
	URL string
	// APIKey is sent as a bearer token. A leading "$" names an environment
	// variable holding the key.
	APIKey     string
	FunctionID string

	MaxRecvMsgSize int
}

// Stream is one open duplex call.
type Stream interface {
	Send(wire.Message) error
	CloseSend() error
	Recv() (wire.Raw, error)
}

// Conn opens animation streams. *Client implements it.
type Conn interface {
	Open(ctx context.Context) (Stream, error)
	Check(ctx context.Context) error
	Close() error
}

// Client is a connection to the animation service.
type Client struct {
	conn   *grpc.ClientConn
	md     metadata.MD
	target string
}

// ParseURL returns the dial target for rawURL and whether it needs TLS.
func ParseURL(rawURL string) (target string, secure bool, err error) {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return "", false, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if scheme, rest, ok := strings.Cut(u, "://"); ok {
		switch strings.ToLower(scheme) {
		case "http":
		case "https":
			secure = true
		default:
			return "", false, fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidURL, rawURL)
		}
		u = rest
	}
	u, _, _ = strings.Cut(u, "/")
	if u == "" {
		return "", false, fmt.Errorf("%w: %q has no host", ErrInvalidURL, rawURL)
	}
	if secure && !strings.Contains(u, ":") {
		u += ":443"
	}
	return u, secure, nil
}

// ResolveAPIKey expands a "$NAME" key from the environment.
func ResolveAPIKey(key string) string {
	if name, ok := strings.CutPrefix(key, "$"); ok {
		return os.Getenv(name)
	}
	return key
}

// Dial creates a client for cfg. Extra options are appended after the
// defaults, so tests can supply their own dialer and credentials.
func Dial(cfg Config, opts ...grpc.DialOption) (*Client, error) {
	target, secure, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	creds := insecure.NewCredentials()
	if secure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	maxRecv := cfg.MaxRecvMsgSize
	if maxRecv <= 0 {
		maxRecv = DefaultMaxRecvMsgSize
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecv)),
	}, opts...)

	// passthrough resolves the host at dial time, as grpc.Dial did.
	conn, err := grpc.NewClient("passthrough:///"+target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create grpc client: %w", err)
	}

	md := metadata.MD{}
	if key := ResolveAPIKey(cfg.APIKey); key != "" {
		md.Set("authorization", "Bearer "+key)
	}
	if cfg.FunctionID != "" {
		md.Set("function-id", cfg.FunctionID)
	}

	return &Client{conn: conn, md: md, target: target}, nil
}

// Target returns the dial target.
func (c *Client) Target() string { return c.target }

func (c *Client) outgoing(ctx context.Context) context.Context {
	if len(c.md) == 0 {
		return ctx
	}
	return metadata.NewOutgoingContext(ctx, metadata.Join(c.md, outgoingMD(ctx)))
}

func outgoingMD(ctx context.Context) metadata.MD {
	md, _ := metadata.FromOutgoingContext(ctx)
	return md
}

// Open starts a ProcessAudioStream call. Cancelling ctx aborts both
// directions of the stream.
func (c *Client) Open(ctx context.Context) (Stream, error) {
	cs, err := c.conn.NewStream(c.outgoing(ctx), &processAudioStreamDesc, ProcessAudioStreamMethod,
		grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	return &clientStream{cs: cs}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

type clientStream struct {
	cs grpc.ClientStream
}

func (s *clientStream) Send(m wire.Message) error {
	return s.cs.SendMsg(m)
}

func (s *clientStream) CloseSend() error {
	return s.cs.CloseSend()
}

func (s *clientStream) Recv() (wire.Raw, error) {
	var raw wire.Raw
	if err := s.cs.RecvMsg(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
