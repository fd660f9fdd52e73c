package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const requestIDHeader = "x-request-id"

type requestIDKey struct{}

// RequestIDFromContext returns the id attached by the logging interceptors.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func LoggingUnaryInterceptor() gogrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		requestID := incomingRequestID(ctx)
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)

		start := time.Now()
		res, err := handler(ctx, req)
		logCall(info.FullMethod, requestID, start, err)
		return res, err
	}
}

func LoggingStreamInterceptor() gogrpc.StreamServerInterceptor {
	return func(srv any, ss gogrpc.ServerStream, info *gogrpc.StreamServerInfo, handler gogrpc.StreamHandler) error {
		requestID := incomingRequestID(ss.Context())
		ctx := context.WithValue(ss.Context(), requestIDKey{}, requestID)

		start := time.Now()
		err := handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
		logCall(info.FullMethod, requestID, start, err)
		return err
	}
}

// RecoveryUnaryInterceptor turns handler panics into codes.Internal.
func RecoveryUnaryInterceptor() gogrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (res any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"method": info.FullMethod,
					"panic":  r,
				}).Error("grpc handler panicked")
				res, err = nil, status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func logCall(method, requestID string, start time.Time, err error) {
	code := status.Code(err)
	entry := logrus.WithFields(logrus.Fields{
		"method":     method,
		"request_id": requestID,
		"code":       code.String(),
		"latency":    time.Since(start).String(),
	})
	if err != nil && code != codes.NotFound {
		entry.WithError(err).Warn("grpc_request")
		return
	}
	entry.Debug("grpc_request")
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(requestIDHeader); len(values) > 0 {
			if id := strings.TrimSpace(values[0]); id != "" {
				return id
			}
		}
	}
	return uuid.NewString()
}

type wrappedServerStream struct {
	gogrpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
