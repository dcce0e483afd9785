package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "affectgate.v1.GateService"

const (
	scoreMethod = "/" + ServiceName + "/Score"
	turnMethod  = "/" + ServiceName + "/Turn"
)

// GateServiceServer is the server side of affectgate.v1.GateService.
// Requests and responses are free-form structs so the feature set can
// grow without regenerating stubs.
type GateServiceServer interface {
	Score(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Turn(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// RegisterGateServiceServer registers srv on s.
func RegisterGateServiceServer(s grpc.ServiceRegistrar, srv GateServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func scoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GateServiceServer).Score(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: scoreMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GateServiceServer).Score(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func turnHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(GateServiceServer).Turn(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc describes affectgate.v1.GateService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GateServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Score", Handler: scoreHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Turn", Handler: turnHandler, ServerStreams: true},
	},
	Metadata: "affectgate/v1/gate.proto",
}

// Client is the client side of affectgate.v1.GateService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Score calls the unary Score RPC.
func (c *Client) Score(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, scoreMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Turn opens the Turn stream. Receive until io.EOF.
func (c *Client) Turn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], turnMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
