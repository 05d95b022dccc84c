package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// WhoAmIFullMethod is the full gRPC method name served by RegisterMembersServer
const WhoAmIFullMethod = "/memberauth.v1.Members/WhoAmI"

// MembersServer answers WhoAmI with the email the auth interceptor put in the
// context. It must run behind UnaryAuthInterceptor.
type MembersServer interface {
	WhoAmI(ctx context.Context, in *emptypb.Empty) (*wrapperspb.StringValue, error)
}

type membersServer struct{}

func (membersServer) WhoAmI(ctx context.Context, in *emptypb.Empty) (*wrapperspb.StringValue, error) {
	email := SubjectFromContext(ctx)
	if email == "" {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return wrapperspb.String(email), nil
}

var membersServiceDesc = grpc.ServiceDesc{
	ServiceName: "memberauth.v1.Members",
	HandlerType: (*MembersServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func whoAmIHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MembersServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoAmIFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MembersServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterMembersServer adds the Members service to s
func RegisterMembersServer(s grpc.ServiceRegistrar) {
	s.RegisterService(&membersServiceDesc, membersServer{})
}

// WhoAmI calls the Members service and returns the authenticated email
func WhoAmI(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := cc.Invoke(ctx, WhoAmIFullMethod, new(emptypb.Empty), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}
