package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service exchanges structpb.Struct messages so it needs no generated
// stubs; the payload fields are documented on the server methods.
const (
	ServiceName      = "backfill.v1.BackfillService"
	triggerRunMethod = "/" + ServiceName + "/TriggerRun"
	getRunMethod     = "/" + ServiceName + "/GetRun"
	listRunsMethod   = "/" + ServiceName + "/ListRuns"
	protoFile        = "backfill/v1/backfill.proto"
)

type BackfillServiceServer interface {
	TriggerRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterBackfillServiceServer(s grpc.ServiceRegistrar, srv BackfillServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BackfillServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "TriggerRun", Handler: unaryHandler(triggerRunMethod, BackfillServiceServer.TriggerRun)},
		{MethodName: "GetRun", Handler: unaryHandler(getRunMethod, BackfillServiceServer.GetRun)},
		{MethodName: "ListRuns", Handler: unaryHandler(listRunsMethod, BackfillServiceServer.ListRuns)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: protoFile,
}

type unaryMethod func(BackfillServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BackfillServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BackfillServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls a BackfillService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) TriggerRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, triggerRunMethod, in, opts...)
}

func (c *Client) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, getRunMethod, in, opts...)
}

func (c *Client) ListRuns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, listRunsMethod, in, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
