package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "airflow.v1.AirflowService"

const (
	recordMeasurementMethod = "/" + ServiceName + "/RecordMeasurement"
	calculateAirflowMethod  = "/" + ServiceName + "/CalculateAirflow"
)

// AirflowServer is the server API of airflow.v1.AirflowService. Messages are
// protobuf well-known types so no generated code is required.
type AirflowServer interface {
	RecordMeasurement(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	CalculateAirflow(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// ServiceDesc describes airflow.v1.AirflowService for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AirflowServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RecordMeasurement", Handler: recordMeasurementHandler},
		{MethodName: "CalculateAirflow", Handler: calculateAirflowHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "airflow/v1/airflow.proto",
}

func RegisterAirflowServer(s grpc.ServiceRegistrar, srv AirflowServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func recordMeasurementHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AirflowServer).RecordMeasurement(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: recordMeasurementMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AirflowServer).RecordMeasurement(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func calculateAirflowHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AirflowServer).CalculateAirflow(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: calculateAirflowMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AirflowServer).CalculateAirflow(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// AirflowClient is the client API of airflow.v1.AirflowService.
type AirflowClient struct {
	cc grpc.ClientConnInterface
}

func NewAirflowClient(cc grpc.ClientConnInterface) *AirflowClient {
	return &AirflowClient{cc: cc}
}

func (c *AirflowClient) RecordMeasurement(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, recordMeasurementMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AirflowClient) CalculateAirflow(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, calculateAirflowMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
