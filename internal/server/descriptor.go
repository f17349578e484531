package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rules.v1.RuleTestService"

// Method names of RuleTestService.
const (
	MethodPreviewExtraction = "PreviewExtraction"
	MethodSubmitTest        = "SubmitTest"
	MethodGetTest           = "GetTest"
	MethodCancelTest        = "CancelTest"
	MethodListTestDetails   = "ListTestDetails"
	MethodGetRecommendation = "GetRecommendation"
	MethodExportTest        = "ExportTest"
)

// RuleTestServer is the server API. Payloads are google.protobuf.Struct with camelCase keys
// matching the JSON form of the entity types.
type RuleTestServer interface {
	PreviewExtraction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitTest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelTest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTestDetails(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRecommendation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportTest(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(RuleTestServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RuleTestServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RuleTestServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// RuleTestServiceDesc is registered with grpc.Server.RegisterService.
var RuleTestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RuleTestServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPreviewExtraction, RuleTestServer.PreviewExtraction),
		unary(MethodSubmitTest, RuleTestServer.SubmitTest),
		unary(MethodGetTest, RuleTestServer.GetTest),
		unary(MethodCancelTest, RuleTestServer.CancelTest),
		unary(MethodListTestDetails, RuleTestServer.ListTestDetails),
		unary(MethodGetRecommendation, RuleTestServer.GetRecommendation),
		unary(MethodExportTest, RuleTestServer.ExportTest),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rules/v1/rule_test.proto",
}

func RegisterRuleTestServer(s grpc.ServiceRegistrar, srv RuleTestServer) {
	s.RegisterService(&RuleTestServiceDesc, srv)
}

// Client calls RuleTestService over any connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with in and returns the response struct.
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
