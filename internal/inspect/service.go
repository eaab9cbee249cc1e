// Package inspect exposes a Supervisor over gRPC with mutual TLS so that jobs
// can be started and listed from outside the host process.
//
// The service uses protobuf well-known types for its messages:
//
//	StartCommand(Struct{cmdline, skip_errors}) returns (StringValue)
//	ListJobs(Empty) returns (ListValue)
//	HasActiveOperations(Empty) returns (BoolValue)
package inspect

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "bgjobs.v1.JobService"

// Full method names, as seen by interceptors.
const (
	MethodStartCommand        = "/" + ServiceName + "/StartCommand"
	MethodListJobs            = "/" + ServiceName + "/ListJobs"
	MethodHasActiveOperations = "/" + ServiceName + "/HasActiveOperations"
)

// JobServiceServer is the server API for the job service.
type JobServiceServer interface {
	StartCommand(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	ListJobs(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	HasActiveOperations(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
}

// JobServiceDesc describes the job service for grpc.Server.RegisterService.
var JobServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*JobServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartCommand",
			Handler: unaryHandler(
				MethodStartCommand,
				func() *structpb.Struct { return &structpb.Struct{} },
				func(s JobServiceServer, ctx context.Context, req *structpb.Struct) (any, error) {
					return s.StartCommand(ctx, req)
				},
			),
		},
		{
			MethodName: "ListJobs",
			Handler: unaryHandler(
				MethodListJobs,
				func() *emptypb.Empty { return &emptypb.Empty{} },
				func(s JobServiceServer, ctx context.Context, req *emptypb.Empty) (any, error) {
					return s.ListJobs(ctx, req)
				},
			),
		},
		{
			MethodName: "HasActiveOperations",
			Handler: unaryHandler(
				MethodHasActiveOperations,
				func() *emptypb.Empty { return &emptypb.Empty{} },
				func(s JobServiceServer, ctx context.Context, req *emptypb.Empty) (any, error) {
					return s.HasActiveOperations(ctx, req)
				},
			),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bgjobs/v1/job.proto",
}

// RegisterJobServiceServer registers srv on s.
func RegisterJobServiceServer(s grpc.ServiceRegistrar, srv JobServiceServer) {
	s.RegisterService(&JobServiceDesc, srv)
}

func unaryHandler[Req proto.Message](
	fullMethod string,
	newReq func() Req,
	call func(JobServiceServer, context.Context, Req) (any, error),
) grpc.MethodHandler {
	return func(
		srv any,
		ctx context.Context,
		dec func(any) error,
		interceptor grpc.UnaryServerInterceptor,
	) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(JobServiceServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}

		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(JobServiceServer), ctx, req.(Req))
		}

		return interceptor(ctx, in, info, handler)
	}
}
