package grpc

import (
	"context"
	"time"

	"github.com/oriys/halo/internal/logging"
	"github.com/oriys/halo/internal/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// loggingInterceptor logs every unary request with its duration.
func loggingInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	start := time.Now()

	resp, err := handler(ctx, req)

	duration := time.Since(start)
	if err != nil {
		logging.Op().Warn("grpc request failed",
			"method", info.FullMethod,
			"duration", duration,
			"error", err,
		)
	} else {
		logging.Op().Debug("grpc request completed",
			"method", info.FullMethod,
			"duration", duration,
		)
	}

	return resp, err
}

// recoveryInterceptor turns handler panics into Internal status errors so
// one bad request cannot take the server down.
func recoveryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Op().Error("grpc handler panicked",
				"method", info.FullMethod,
				"panic", r,
			)
			err = status.Errorf(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}

// metricsInterceptor tracks in-flight unary requests.
func metricsInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	metrics.IncActiveRequests()
	defer metrics.DecActiveRequests()
	return handler(ctx, req)
}

// statusInterceptor normalizes errors: status errors pass through, anything
// else becomes Internal.
func statusInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}
	if _, ok := status.FromError(err); ok {
		return nil, err
	}
	return nil, status.Error(codes.Internal, err.Error())
}
