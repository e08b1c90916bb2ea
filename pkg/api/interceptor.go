package api

import (
	"context"

	"github.com/cuemby/burrow/pkg/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// grpcMethodLabel is the method label recorded for every gRPC call
const grpcMethodLabel = "GRPC"

// MetricsInterceptor creates a gRPC unary interceptor that records each call
// in the API request metrics, labelled by full method name and status code.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		timer := metrics.NewTimer()

		resp, err := handler(ctx, req)

		timer.ObserveDurationVec(metrics.APIRequestDuration, grpcMethodLabel, info.FullMethod)
		metrics.APIRequestsTotal.WithLabelValues(grpcMethodLabel, info.FullMethod, status.Code(err).String()).Inc()
		return resp, err
	}
}
