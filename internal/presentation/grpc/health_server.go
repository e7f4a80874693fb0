package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/automation-platform/execution-core/internal/application/services"
)

// HealthServer implements the standard gRPC health checking protocol.
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	healthService *services.HealthService
}

// NewHealthServer creates a health check server.
func NewHealthServer(healthService *services.HealthService) *HealthServer {
	return &HealthServer{healthService: healthService}
}

// Check performs a health check.
func (h *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	result := h.healthService.Check(ctx)
	return &grpc_health_v1.HealthCheckResponse{
		Status: convertHealthState(result.State),
	}, nil
}

// Watch streams the health status, re-checking periodically.
func (h *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	resp, err := h.Check(stream.Context(), req)
	if err != nil {
		return err
	}
	if err := stream.Send(resp); err != nil {
		return err
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-ticker.C:
			resp, err := h.Check(stream.Context(), req)
			if err != nil {
				return status.Errorf(codes.Internal, "health check failed: %v", err)
			}
			if err := stream.Send(resp); err != nil {
				return err
			}
		}
	}
}

func convertHealthState(state services.HealthState) grpc_health_v1.HealthCheckResponse_ServingStatus {
	switch state {
	case services.HealthHealthy, services.HealthDegraded:
		return grpc_health_v1.HealthCheckResponse_SERVING
	case services.HealthUnhealthy:
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	default:
		return grpc_health_v1.HealthCheckResponse_UNKNOWN
	}
}
