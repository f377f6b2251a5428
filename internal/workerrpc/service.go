package workerrpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	// ServiceName is the fully qualified Generator service name.
	ServiceName = "taskgateway.worker.v1.Generator"

	generateMethod = "/" + ServiceName + "/Generate"
)

// GeneratorServer is implemented by model workers.
type GeneratorServer interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// RegisterGeneratorServer registers srv on s.
func RegisterGeneratorServer(s grpc.ServiceRegistrar, srv GeneratorServer) {
	s.RegisterService(&generatorServiceDesc, srv)
}

var generatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GeneratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Generate",
			Handler:    generateHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taskgateway/worker/v1/generator",
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GenerateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GeneratorServer).Generate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: generateMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GeneratorServer).Generate(ctx, req.(*GenerateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// GeneratorClient calls the Generator service over an established connection.
type GeneratorClient struct {
	cc grpc.ClientConnInterface
}

// NewGeneratorClient wraps a client connection.
func NewGeneratorClient(cc grpc.ClientConnInterface) *GeneratorClient {
	return &GeneratorClient{cc: cc}
}

// Generate issues one Generate call.
func (c *GeneratorClient) Generate(ctx context.Context, req *GenerateRequest, opts ...grpc.CallOption) (*GenerateResponse, error) {
	out := new(GenerateResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, generateMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
