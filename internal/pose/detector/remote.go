package detector

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
)

// Remote calls a pose-estimation service over gRPC. Requests and responses
// are google.protobuf.Struct messages so no generated stubs are needed.
type Remote struct {
	conn  grpc.ClientConnInterface
	close func() error
}

var _ l1landmarks.Detector = (*Remote)(nil)

// DialRemote connects to target. Without options the connection uses
// plaintext credentials, which suits a detector on the same host. Setup
// failures wrap l1landmarks.ErrDetectorInit.
func DialRemote(target string, opts ...grpc.DialOption) (*Remote, error) {
	if target == "" {
		return nil, l1landmarks.InitError("remote", errors.New("no target address"))
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, l1landmarks.InitError("remote", err)
	}
	return &Remote{conn: conn, close: conn.Close}, nil
}

// NewRemote wraps an existing connection. Close does not close it.
func NewRemote(conn grpc.ClientConnInterface) *Remote {
	return &Remote{conn: conn}
}

// Detect sends one frame handle to the service.
func (r *Remote) Detect(ctx context.Context, handle l1landmarks.FrameHandle, timestampMs float64) (l1landmarks.Frame, error) {
	req, err := NewRequest(handle, timestampMs)
	if err != nil {
		return l1landmarks.Frame{}, err
	}
	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, DetectMethod, req, resp); err != nil {
		return l1landmarks.Frame{}, fmt.Errorf("remote detect: %w", err)
	}
	frame, err := FrameFromStruct(resp)
	if err != nil {
		return l1landmarks.Frame{}, err
	}
	frame.TimestampMs = timestampMs
	return frame, nil
}

// Close releases the connection if Remote owns it.
func (r *Remote) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}
