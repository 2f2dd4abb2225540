package testutil

import (
	"context"
	"net"
	"testing"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/RenatoCabral2022/facestream/internal/mockserver"
	"github.com/RenatoCabral2022/facestream/internal/transport"
)

const bufSize = 1 << 20

// StartMock serves a mock animation service over an in-memory listener and
// returns a client dialed to it. Both are torn down with the test.
func StartMock(t *testing.T, opts mockserver.Options) (*transport.Client, *mockserver.Server) {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	srv := mockserver.New(opts, zaptest.NewLogger(t))
	go srv.Serve(lis)

	client, err := transport.Dial(transport.Config{URL: "http://bufnet:1"},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("dial mock: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})
	return client, srv
}
