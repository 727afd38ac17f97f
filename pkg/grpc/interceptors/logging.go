package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/goclaw/mnemo/pkg/logger"
)

// LoggingUnaryInterceptor logs every unary call. Health probes log at
// debug.
func LoggingUnaryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, log, info.FullMethod, "unary", time.Since(start), err)
		return resp, err
	}
}

// LoggingStreamInterceptor logs every stream when it ends.
func LoggingStreamInterceptor(log logger.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(ss.Context(), log, info.FullMethod, "stream", time.Since(start), err)
		return err
	}
}

func logCall(ctx context.Context, log logger.Logger, method, kind string, d time.Duration, err error) {
	code := status.Code(err)
	requestID, ok := RequestIDFromContext(ctx)
	if !ok {
		requestID = "unknown"
	}
	args := []any{
		"request_id", requestID,
		"method", method,
		"kind", kind,
		"code", code.String(),
		"duration_ms", d.Milliseconds(),
	}

	switch code {
	case codes.OK:
		if isHealthMethod(method) {
			log.DebugContext(ctx, "gRPC call", args...)
			return
		}
		log.InfoContext(ctx, "gRPC call", args...)
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		log.ErrorContext(ctx, "gRPC call failed", append(args, "error", err)...)
	default:
		log.WarnContext(ctx, "gRPC call failed", append(args, "error", err)...)
	}
}

func isHealthMethod(method string) bool {
	return method == "/grpc.health.v1.Health/Check" || method == "/grpc.health.v1.Health/Watch"
}
