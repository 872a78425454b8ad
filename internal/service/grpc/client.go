package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client — тонкий клиент grocery.v1.OrderService поверх structpb.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient оборачивает соединение.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Invoke вызывает метод сервиса с готовым Struct.
func (c *Client) Invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Call собирает запрос из map. Значения должны поддерживаться structpb.NewStruct.
func (c *Client) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out, err := c.Invoke(ctx, method, in, opts...)
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// AsUser добавляет x-user-id в исходящие metadata.
func AsUser(ctx context.Context, userID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, UserIDHeader, userID)
}

// WithIdempotencyKey добавляет ключ идемпотентности в исходящие metadata.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, IdempotencyKeyHeader, key)
}
