package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "halo.v1.Dispatch"

const (
	methodInvoke         = "/halo.v1.Dispatch/Invoke"
	methodBegin          = "/halo.v1.Dispatch/Begin"
	methodResult         = "/halo.v1.Dispatch/Result"
	methodListOperations = "/halo.v1.Dispatch/ListOperations"
)

// DispatchServer is the server API for the dispatch service.
type DispatchServer interface {
	Invoke(context.Context, *InvokeRequest) (*InvokeReply, error)
	Begin(context.Context, *BeginRequest) (*BeginReply, error)
	Result(context.Context, *ResultRequest) (*ResultReply, error)
	ListOperations(context.Context, *ListOperationsRequest) (*ListOperationsReply, error)
}

// RegisterDispatchServer registers the dispatch service on a gRPC server.
func RegisterDispatchServer(s *grpc.Server, srv DispatchServer) {
	s.RegisterService(&dispatchServiceDesc, srv)
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InvokeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DispatchServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodInvoke}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DispatchServer).Invoke(ctx, req.(*InvokeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func beginHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BeginRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DispatchServer).Begin(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodBegin}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DispatchServer).Begin(ctx, req.(*BeginRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func resultHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResultRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DispatchServer).Result(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodResult}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DispatchServer).Result(ctx, req.(*ResultRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listOperationsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListOperationsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DispatchServer).ListOperations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListOperations}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DispatchServer).ListOperations(ctx, req.(*ListOperationsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var dispatchServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DispatchServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
		{MethodName: "Begin", Handler: beginHandler},
		{MethodName: "Result", Handler: resultHandler},
		{MethodName: "ListOperations", Handler: listOperationsHandler},
	},
	Streams: []grpc.StreamDesc{},
}
