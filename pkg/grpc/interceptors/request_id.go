package interceptors

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDKey is the metadata key for request ID. It matches the HTTP
// X-Request-ID header lowercased.
const RequestIDKey = "x-request-id"

const maxRequestIDLength = 128

// RequestIDUnaryInterceptor generates or propagates request ID and echoes
// it in the response header.
func RequestIDUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := extractOrGenerateRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, requestID))
		return handler(withRequestID(ctx, requestID), req)
	}
}

// RequestIDStreamInterceptor generates or propagates request ID for streams.
func RequestIDStreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		requestID := extractOrGenerateRequestID(ss.Context())
		_ = ss.SetHeader(metadata.Pairs(RequestIDKey, requestID))
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: withRequestID(ss.Context(), requestID)})
	}
}

func extractOrGenerateRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDKey); len(ids) > 0 && ids[0] != "" && len(ids[0]) <= maxRequestIDLength {
			return ids[0]
		}
	}
	return uuid.New().String()
}

// wrappedStream replaces the stream context.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
