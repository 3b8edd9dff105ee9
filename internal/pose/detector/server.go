package detector

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/abduction.report/internal/monitoring"
	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
)

var logf = monitoring.Component("detector")

// DetectMethod is the full gRPC method name of the detector service.
const DetectMethod = "/pose.v1.PoseDetector/Detect"

// PoseDetectorServer is the server side of the detector service.
type PoseDetectorServer interface {
	Detect(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes pose.v1.PoseDetector for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "pose.v1.PoseDetector",
	HandlerType: (*PoseDetectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Detect", Handler: detectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pose/v1/detector.proto",
}

func detectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PoseDetectorServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DetectMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PoseDetectorServer).Detect(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server exposes any l1landmarks.Detector over gRPC.
type Server struct {
	det l1landmarks.Detector
}

var _ PoseDetectorServer = (*Server)(nil)

// NewServer wraps det.
func NewServer(det l1landmarks.Detector) *Server {
	return &Server{det: det}
}

// Register adds the service to s.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&ServiceDesc, s)
}

// Detect implements PoseDetectorServer.
func (s *Server) Detect(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	handle, ts := ParseRequest(req)
	frame, err := s.det.Detect(ctx, handle, ts)
	if err != nil {
		logf("Detect at %.1fms failed: %v", ts, err)
		return nil, status.Errorf(codes.Internal, "detect: %v", err)
	}
	resp, err := FrameToStruct(frame)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode frame: %v", err)
	}
	return resp, nil
}
