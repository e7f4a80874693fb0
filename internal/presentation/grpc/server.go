// Package grpc exposes the execution core over gRPC.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	grpc_logging "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/automation-platform/execution-core/internal/application/services"
	"github.com/automation-platform/execution-core/internal/infrastructure/config"
)

// Server is the gRPC server carrying the limits and health surfaces.
type Server struct {
	server        *grpc.Server
	listener      net.Listener
	config        *config.ServerConfig
	logger        *slog.Logger
	tracer        trace.Tracer
	limitsService *services.LimitsService
	healthService *services.HealthService
}

// NewServer creates a gRPC server with the interceptor chain.
func NewServer(
	cfg *config.ServerConfig,
	logger *slog.Logger,
	tracer trace.Tracer,
	limitsService *services.LimitsService,
	healthService *services.HealthService,
) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	loggingOpts := []grpc_logging.Option{
		grpc_logging.WithLogOnEvents(grpc_logging.StartCall, grpc_logging.FinishCall),
	}

	recoveryOpts := []grpc_recovery.Option{
		grpc_recovery.WithRecoveryHandler(func(p any) (err error) {
			logger.Error("gRPC panic recovered", slog.Any("panic", p))
			return status.Errorf(codes.Internal, "internal server error")
		}),
	}

	unaryInterceptors := []grpc.UnaryServerInterceptor{
		grpc_recovery.UnaryServerInterceptor(recoveryOpts...),
		grpc_logging.UnaryServerInterceptor(InterceptorLogger(logger), loggingOpts...),
		TracingUnaryInterceptor(tracer),
		MetricsUnaryInterceptor(logger),
	}

	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
		grpc.ChainUnaryInterceptor(unaryInterceptors...),
		grpc.ForceServerCodec(hybridCodec{}),
	}

	server := grpc.NewServer(opts...)

	grpc_health_v1.RegisterHealthServer(server, NewHealthServer(healthService))
	RegisterLimitsHandler(server, NewLimitsHandler(limitsService, logger))

	reflection.Register(server)

	return &Server{
		server:        server,
		listener:      listener,
		config:        cfg,
		logger:        logger,
		tracer:        tracer,
		limitsService: limitsService,
		healthService: healthService,
	}, nil
}

// Start starts serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("starting gRPC server",
		slog.String("address", s.listener.Addr().String()),
		slog.Int("max_recv_msg_size", s.config.MaxRecvMsgSize),
		slog.Int("max_send_msg_size", s.config.MaxSendMsgSize))

	return s.server.Serve(s.listener)
}

// Stop gracefully stops the server, forcing a stop when ctx expires first.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping gRPC server")

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("gRPC server graceful stop timeout, forcing stop")
		s.server.Stop()
		return ctx.Err()
	}
}

// RegisterWithFx ties the server to the fx lifecycle.
func RegisterWithFx(lc fx.Lifecycle, server *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.Start(); err != nil {
					server.logger.Error("gRPC server error", slog.String("error", err.Error()))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Stop(ctx)
		},
	})
}

// InterceptorLogger adapts slog.Logger to the grpc_logging.Logger interface.
func InterceptorLogger(l *slog.Logger) grpc_logging.Logger {
	return grpc_logging.LoggerFunc(func(ctx context.Context, lvl grpc_logging.Level, msg string, fields ...any) {
		switch lvl {
		case grpc_logging.LevelDebug:
			l.DebugContext(ctx, msg, fields...)
		case grpc_logging.LevelInfo:
			l.InfoContext(ctx, msg, fields...)
		case grpc_logging.LevelWarn:
			l.WarnContext(ctx, msg, fields...)
		case grpc_logging.LevelError:
			l.ErrorContext(ctx, msg, fields...)
		default:
			l.InfoContext(ctx, msg, fields...)
		}
	})
}

// TracingUnaryInterceptor adds distributed tracing to unary RPCs.
func TracingUnaryInterceptor(tracer trace.Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, span := tracer.Start(ctx, info.FullMethod)
		defer span.End()

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		return resp, err
	}
}

// MetricsUnaryInterceptor logs per-call timing for unary RPCs.
func MetricsUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logger.DebugContext(ctx, "gRPC unary call completed",
			slog.String("method", info.FullMethod),
			slog.Duration("duration", time.Since(start)),
			slog.Bool("success", err == nil))

		return resp, err
	}
}
