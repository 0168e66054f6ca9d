package user

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// The directory speaks plain gRPC with google.protobuf.Struct messages, so
// no generated stubs are needed on either side.
const ServiceName = "storefront.user.Directory"

type DirectoryServer interface {
	CreateUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ValidateUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Authenticate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(DirectoryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(DirectoryServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*structpb.Struct))
		})
	}
}

var DirectoryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DirectoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateUser", Handler: unary("CreateUser", DirectoryServer.CreateUser)},
		{MethodName: "GetUser", Handler: unary("GetUser", DirectoryServer.GetUser)},
		{MethodName: "ValidateUser", Handler: unary("ValidateUser", DirectoryServer.ValidateUser)},
		{MethodName: "Authenticate", Handler: unary("Authenticate", DirectoryServer.Authenticate)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/user/directory",
}

func RegisterDirectoryServer(s grpc.ServiceRegistrar, srv DirectoryServer) {
	s.RegisterService(&DirectoryServiceDesc, srv)
}

// DirectoryClient is the caller side used by the order service and the
// checkout CLI.
type DirectoryClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

func DialDirectory(addr string, opts ...grpc.DialOption) (*DirectoryClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &DirectoryClient{conn: conn, timeout: 3 * time.Second}, nil
}

func (c *DirectoryClient) Close() error { return c.conn.Close() }

func (c *DirectoryClient) call(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, grpc.WaitForReady(true)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DirectoryClient) ValidateUser(ctx context.Context, id string) (bool, error) {
	out, err := c.call(ctx, "ValidateUser", map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	return out.GetFields()["ok"].GetBoolValue(), nil
}

func (c *DirectoryClient) GetUser(ctx context.Context, id string) (*User, error) {
	out, err := c.call(ctx, "GetUser", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return userFromStruct(out)
}

func (c *DirectoryClient) CreateUser(ctx context.Context, name, email, password, role string) (*User, error) {
	out, err := c.call(ctx, "CreateUser", map[string]any{
		"name": name, "email": email, "password": password, "role": role,
	})
	if err != nil {
		return nil, err
	}
	return userFromStruct(out)
}

type Session struct {
	UserID string
	Role   string
	Token  string
}

// Authenticate returns ErrInvalidCredentials when the directory rejects the
// email and password.
func (c *DirectoryClient) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	out, err := c.call(ctx, "Authenticate", map[string]any{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	f := out.GetFields()
	if !f["ok"].GetBoolValue() {
		return nil, ErrInvalidCredentials
	}
	return &Session{
		UserID: f["user_id"].GetStringValue(),
		Role:   f["role"].GetStringValue(),
		Token:  f["token"].GetStringValue(),
	}, nil
}

func userToStruct(u *User) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"role":       u.Role,
		"created_at": u.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func userFromStruct(s *structpb.Struct) (*User, error) {
	f := s.GetFields()
	u := &User{
		ID:    f["id"].GetStringValue(),
		Name:  f["name"].GetStringValue(),
		Email: f["email"].GetStringValue(),
		Role:  f["role"].GetStringValue(),
	}
	if u.ID == "" {
		return nil, fmt.Errorf("directory returned a user without id")
	}
	if ts := f["created_at"].GetStringValue(); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			u.CreatedAt = t
		}
	}
	return u, nil
}
