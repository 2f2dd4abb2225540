package transport

import (
	"google.golang.org/grpc"

	"github.com/RenatoCabral2022/facestream/internal/wire"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "facestream.animation.v1.AnimationService"
	// ProcessAudioStreamMethod is the full method name of the duplex call.
	ProcessAudioStreamMethod = "/" + ServiceName + "/ProcessAudioStream"
)

var processAudioStreamDesc = grpc.StreamDesc{
	StreamName:    "ProcessAudioStream",
	ServerStreams: true,
	ClientStreams: true,
}

// AnimationServer is implemented by services that turn uploaded audio into
// animation frames.
type AnimationServer interface {
	ProcessAudioStream(*ServerStream) error
}

// ServerStream is the server side of one ProcessAudioStream call.
type ServerStream struct {
	grpc.ServerStream
}

// Send writes a download message.
func (s *ServerStream) Send(m wire.Message) error {
	return s.SendMsg(m)
}

// SendRaw writes pre-encoded bytes as-is.
func (s *ServerStream) SendRaw(b wire.Raw) error {
	return s.SendMsg(b)
}

// Recv reads and decodes the next upload message. Decoding errors wrap
// wire.ErrMalformed.
func (s *ServerStream) Recv() (wire.Message, error) {
	var raw wire.Raw
	if err := s.RecvMsg(&raw); err != nil {
		return nil, err
	}
	return wire.Decode(raw)
}

// ServiceDesc describes the animation service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnimationServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    processAudioStreamDesc.StreamName,
		Handler:       processAudioStreamHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "facestream/animation/v1/animation.proto",
}

// RegisterAnimationServer registers srv on s.
func RegisterAnimationServer(s grpc.ServiceRegistrar, srv AnimationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func processAudioStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(AnimationServer).ProcessAudioStream(&ServerStream{ServerStream: stream})
}
