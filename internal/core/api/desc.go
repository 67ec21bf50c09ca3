package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
 * Service descriptor for bmad.sensor.v1.SensorService.
 *
 * Requests and responses are google.protobuf.Struct, so the service needs no
 * generated message types; the descriptor below is what protoc-gen-go-grpc
 * would emit for:
 *
 *   service SensorService {
 *     rpc ListSensors(google.protobuf.Struct) returns (google.protobuf.Struct);
 *     rpc WatchEvents(google.protobuf.Struct) returns (stream google.protobuf.Struct);
 *   }
 */

const (
	ServiceName           = "bmad.sensor.v1.SensorService"
	ListSensorsFullMethod = "/" + ServiceName + "/ListSensors"
	WatchEventsFullMethod = "/" + ServiceName + "/WatchEvents"
)

// SensorServiceServer is the server API for SensorService.
type SensorServiceServer interface {
	ListSensors(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, SensorService_WatchEventsServer) error
}

// SensorService_WatchEventsServer is the server side of a WatchEvents stream.
type SensorService_WatchEventsServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchEventsServer struct {
	grpc.ServerStream
}

func (x *watchEventsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// ServiceDesc is the grpc.ServiceDesc for SensorService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SensorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSensors", Handler: listSensorsHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchEvents", Handler: watchEventsHandler, ServerStreams: true},
	},
	Metadata: "bmad/sensor/v1/sensor.proto",
}

// RegisterSensorServiceServer registers srv with s.
func RegisterSensorServiceServer(s grpc.ServiceRegistrar, srv SensorServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func listSensorsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SensorServiceServer).ListSensors(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListSensorsFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SensorServiceServer).ListSensors(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func watchEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SensorServiceServer).WatchEvents(in, &watchEventsServer{stream})
}

// SensorServiceClient is the client API for SensorService.
type SensorServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSensorServiceClient wraps a client connection.
func NewSensorServiceClient(cc grpc.ClientConnInterface) *SensorServiceClient {
	return &SensorServiceClient{cc: cc}
}

// ListSensors returns the snapshot of every matching sensor instance.
func (c *SensorServiceClient) ListSensors(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListSensorsFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchEvents opens an event stream. Header() returns once the server has
// subscribed, so events dispatched after it are delivered.
func (c *SensorServiceClient) WatchEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchEventsFullMethod, opts...)
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
