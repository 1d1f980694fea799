package embedclient

import (
	"context"

	"github.com/coretask-core/coretask/pkg/coreerr"
	embedv1 "github.com/coretask-core/coretask/proto/embed/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPCClient implements Client by calling an external embedding service
// over gRPC, insecure/plaintext since the service runs as a local
// sidecar (same deployment assumption as llmclient.GRPCClient).
type GRPCClient struct {
	conn   *grpc.ClientConn
	client embedv1.EmbedServiceClient
}

// NewGRPCClient dials addr and returns a Client backed by it.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, coreerr.TransportErrorf(err, "dialing embed service at %s", addr)
	}
	return &GRPCClient{
		conn:   conn,
		client: embedv1.NewEmbedServiceClient(conn),
	}, nil
}

// Embed sends text and waits for its embedding vector.
func (c *GRPCClient) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := c.client.Embed(ctx, &embedv1.EmbedRequest{Text: text})
	if err != nil {
		if ctx.Err() != nil {
			return Vector{}, coreerr.Timeoutf(err, "embedding text")
		}
		return Vector{}, coreerr.TransportErrorf(err, "embedding text")
	}
	if len(resp.Values) != Dimension {
		return Vector{}, coreerr.ValidationErrorf("embed service returned %d dimensions, want %d", len(resp.Values), Dimension)
	}
	return FromFloat32Slice(resp.Values), nil
}

// Close releases the gRPC connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}
