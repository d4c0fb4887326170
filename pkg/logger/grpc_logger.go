package logger

import (
	"context"
	"path"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewGrpcUnaryServerInterceptor logs every unary call with its status and duration.
func NewGrpcUnaryServerInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		startTime := time.Now()
		service, method := splitMethod(info.FullMethod)

		resp, err := handler(ctx, req)

		code := statusCode(err)
		fields := []zap.Field{
			zap.String("grpc.service", service),
			zap.String("grpc.method", method),
			zap.String("grpc.code", code.String()),
			zap.Duration("grpc.duration", time.Since(startTime)),
		}
		logByCode(logger, code, err, "gRPC request", fields)

		return resp, err
	}
}

// NewGrpcStreamServerInterceptor logs every stream with message counts.
func NewGrpcStreamServerInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		startTime := time.Now()
		service, method := splitMethod(info.FullMethod)

		logger.Debug("gRPC stream started",
			zap.String("grpc.service", service),
			zap.String("grpc.method", method),
			zap.Bool("grpc.is_client_stream", info.IsClientStream),
			zap.Bool("grpc.is_server_stream", info.IsServerStream),
		)

		wrapped := &wrappedServerStream{ServerStream: ss}
		err := handler(srv, wrapped)

		code := statusCode(err)
		fields := []zap.Field{
			zap.String("grpc.service", service),
			zap.String("grpc.method", method),
			zap.String("grpc.code", code.String()),
			zap.Int("grpc.recv_count", wrapped.recvCount),
			zap.Int("grpc.send_count", wrapped.sendCount),
			zap.Duration("grpc.duration", time.Since(startTime)),
		}
		logByCode(logger, code, err, "gRPC stream", fields)

		return err
	}
}

func splitMethod(fullMethod string) (string, string) {
	service := path.Dir(fullMethod)
	if len(service) > 0 && service[0] == '/' {
		service = service[1:]
	}
	return service, path.Base(fullMethod)
}

func statusCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

func logByCode(logger *zap.Logger, code codes.Code, err error, msg string, fields []zap.Field) {
	switch code {
	case codes.OK:
		logger.Info(msg+" completed", fields...)
	case codes.Canceled, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Aborted, codes.Unavailable, codes.DataLoss:
		logger.Warn(msg+" failed", append(fields, zap.Error(err))...)
	default:
		logger.Error(msg+" error", append(fields, zap.Error(err))...)
	}
}

type wrappedServerStream struct {
	grpc.ServerStream
	recvCount int
	sendCount int
}

func (w *wrappedServerStream) RecvMsg(m interface{}) error {
	err := w.ServerStream.RecvMsg(m)
	if err == nil {
		w.recvCount++
	}
	return err
}

func (w *wrappedServerStream) SendMsg(m interface{}) error {
	err := w.ServerStream.SendMsg(m)
	if err == nil {
		w.sendCount++
	}
	return err
}
