package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/automation-platform/execution-core/internal/application/services"
	"github.com/automation-platform/execution-core/internal/domain"
)

// LimitsHandler implements the ExecutionCore.Limits gRPC surface.
type LimitsHandler struct {
	limitsService *services.LimitsService
	logger        *slog.Logger
}

// NewLimitsHandler creates a limits handler.
func NewLimitsHandler(limitsService *services.LimitsService, logger *slog.Logger) *LimitsHandler {
	return &LimitsHandler{limitsService: limitsService, logger: logger}
}

// ConfigureLimit installs or replaces the rule for a pattern.
func (h *LimitsHandler) ConfigureLimit(ctx context.Context, req *ConfigureLimitRequest) (*ConfigureLimitResponse, error) {
	if req.Pattern == "" {
		return nil, status.Error(codes.InvalidArgument, "pattern is required")
	}
	if req.Rule == nil {
		return nil, status.Error(codes.InvalidArgument, "rule is required")
	}

	rule := ruleFromProto(req.Rule)
	if err := h.limitsService.ConfigureLimit(ctx, req.Pattern, rule); err != nil {
		return nil, mapErrorToStatus(err)
	}

	return &ConfigureLimitResponse{Pattern: req.Pattern, Rule: ruleToProto(rule)}, nil
}

// GetLimit retrieves the rule configured for an exact pattern.
func (h *LimitsHandler) GetLimit(ctx context.Context, req *GetLimitRequest) (*GetLimitResponse, error) {
	if req.Pattern == "" {
		return nil, status.Error(codes.InvalidArgument, "pattern is required")
	}

	rule, ok := h.limitsService.GetLimit(ctx, req.Pattern)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no rule configured for pattern %q", req.Pattern)
	}
	return &GetLimitResponse{Pattern: req.Pattern, Rule: ruleToProto(rule)}, nil
}

// ListLimits returns all configured rules.
func (h *LimitsHandler) ListLimits(ctx context.Context, req *ListLimitsRequest) (*ListLimitsResponse, error) {
	rules := h.limitsService.ListLimits(ctx)

	entries := make([]*LimitEntry, 0, len(rules))
	for pattern, rule := range rules {
		entries = append(entries, &LimitEntry{Pattern: pattern, Rule: ruleToProto(rule)})
	}
	return &ListLimitsResponse{Limits: entries}, nil
}

// RemoveLimit removes the rule for a pattern.
func (h *LimitsHandler) RemoveLimit(ctx context.Context, req *RemoveLimitRequest) (*RemoveLimitResponse, error) {
	if req.Pattern == "" {
		return nil, status.Error(codes.InvalidArgument, "pattern is required")
	}
	if err := h.limitsService.RemoveLimit(ctx, req.Pattern); err != nil {
		return nil, mapErrorToStatus(err)
	}
	return &RemoveLimitResponse{Removed: true}, nil
}

// AdjustLimit temporarily scales a pattern's capacity.
func (h *LimitsHandler) AdjustLimit(ctx context.Context, req *AdjustLimitRequest) (*AdjustLimitResponse, error) {
	if req.Pattern == "" {
		return nil, status.Error(codes.InvalidArgument, "pattern is required")
	}
	if req.Duration == nil {
		return nil, status.Error(codes.InvalidArgument, "duration is required")
	}

	duration := req.Duration.AsDuration()
	if err := h.limitsService.AdjustLimit(ctx, req.Pattern, req.Multiplier, duration); err != nil {
		return nil, mapErrorToStatus(err)
	}

	return &AdjustLimitResponse{
		Pattern:   req.Pattern,
		RevertsAt: timestamppb.New(time.Now().Add(duration)),
	}, nil
}

// CheckLimit evaluates admission without recording usage.
func (h *LimitsHandler) CheckLimit(ctx context.Context, req *CheckLimitRequest) (*CheckLimitResponse, error) {
	if req.Operation == "" {
		return nil, status.Error(codes.InvalidArgument, "operation is required")
	}

	decision := h.limitsService.CheckLimit(ctx, req.Operation, int(req.Weight))
	return &CheckLimitResponse{Decision: decisionToProto(decision)}, nil
}

// ResetLimits discards window state for the matching operation, or for all
// patterns when the operation is empty.
func (h *LimitsHandler) ResetLimits(ctx context.Context, req *ResetLimitsRequest) (*ResetLimitsResponse, error) {
	h.limitsService.ResetLimits(ctx, req.Operation)
	return &ResetLimitsResponse{}, nil
}

// GetStats returns aggregated admission statistics.
func (h *LimitsHandler) GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	stats := h.limitsService.Stats(ctx)

	perOp := make(map[string]*OperationStats, len(stats.PerOperation))
	for name, op := range stats.PerOperation {
		perOp[name] = &OperationStats{
			Checked:   op.Checked,
			Allowed:   op.Allowed,
			Denied:    op.Denied,
			Peak:      int32(op.Peak),
			AllowRate: op.AllowRate,
		}
	}

	return &GetStatsResponse{
		TotalChecked:        stats.TotalChecked,
		Allowed:             stats.Allowed,
		Denied:              stats.Denied,
		AllowRate:           stats.AllowRate,
		OperationsPerSecond: stats.OperationsPerSecond,
		PeakOperations:      int32(stats.PeakOperations),
		PerOperation:        perOp,
		MemoryUsageKb:       stats.MemoryUsageKB,
	}, nil
}

func ruleFromProto(rule *RateLimitRule) domain.RateLimitRule {
	return domain.RateLimitRule{
		MaxOperations: int(rule.MaxOperations),
		Window:        rule.Window.AsDuration(),
		Algorithm:     domain.Algorithm(rule.Algorithm),
		BurstSize:     int(rule.BurstSize),
		RuleID:        rule.RuleID,
	}
}

func ruleToProto(rule domain.RateLimitRule) *RateLimitRule {
	return &RateLimitRule{
		MaxOperations: int32(rule.MaxOperations),
		Window:        durationpb.New(rule.Window),
		Algorithm:     string(rule.Algorithm),
		BurstSize:     int32(rule.BurstSize),
		RuleID:        rule.RuleID,
	}
}

func decisionToProto(d domain.RateLimitDecision) *RateLimitDecision {
	out := &RateLimitDecision{
		Allowed:   d.Allowed,
		Remaining: int32(d.Remaining),
		Pattern:   d.Pattern,
	}
	if !d.ResetAt.IsZero() {
		out.ResetAt = timestamppb.New(d.ResetAt)
	}
	if d.RetryAfter > 0 {
		out.RetryAfter = durationpb.New(d.RetryAfter)
	}
	if d.Pattern != "" {
		out.Rule = ruleToProto(d.Rule)
	}
	return out
}

// mapErrorToStatus maps operation errors to gRPC status codes using their
// error code band.
func mapErrorToStatus(err error) error {
	var opErr *domain.OperationError
	if !errors.As(err, &opErr) {
		return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
	}

	switch {
	case opErr.Code.IsInput():
		return status.Error(codes.InvalidArgument, opErr.Error())
	case opErr.Code.IsPermission():
		return status.Error(codes.PermissionDenied, opErr.Error())
	case opErr.Code.IsTarget():
		return status.Error(codes.NotFound, opErr.Error())
	case opErr.Code.IsTimeout():
		return status.Error(codes.DeadlineExceeded, opErr.Error())
	case opErr.Code.IsRateLimited():
		return status.Error(codes.ResourceExhausted, opErr.Error())
	default:
		return status.Error(codes.Internal, opErr.Error())
	}
}

// RegisterLimitsHandler registers the limits surface on a gRPC server using
// a hand-written service descriptor, matching the hand-rolled message types.
func RegisterLimitsHandler(s *grpc.Server, h *LimitsHandler) {
	s.RegisterService(&limitsServiceDesc, h)
}

var limitsServiceDesc = grpc.ServiceDesc{
	ServiceName: "executioncore.v1.LimitsService",
	HandlerType: (*limitsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ConfigureLimit", Handler: configureLimitHandler},
		{MethodName: "GetLimit", Handler: getLimitHandler},
		{MethodName: "ListLimits", Handler: listLimitsHandler},
		{MethodName: "RemoveLimit", Handler: removeLimitHandler},
		{MethodName: "AdjustLimit", Handler: adjustLimitHandler},
		{MethodName: "CheckLimit", Handler: checkLimitHandler},
		{MethodName: "ResetLimits", Handler: resetLimitsHandler},
		{MethodName: "GetStats", Handler: getStatsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "executioncore/v1/limits.proto",
}

// limitsServer is the interface the service descriptor is typed against.
type limitsServer interface {
	ConfigureLimit(context.Context, *ConfigureLimitRequest) (*ConfigureLimitResponse, error)
	GetLimit(context.Context, *GetLimitRequest) (*GetLimitResponse, error)
	ListLimits(context.Context, *ListLimitsRequest) (*ListLimitsResponse, error)
	RemoveLimit(context.Context, *RemoveLimitRequest) (*RemoveLimitResponse, error)
	AdjustLimit(context.Context, *AdjustLimitRequest) (*AdjustLimitResponse, error)
	CheckLimit(context.Context, *CheckLimitRequest) (*CheckLimitResponse, error)
	ResetLimits(context.Context, *ResetLimitsRequest) (*ResetLimitsResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*GetStatsResponse, error)
}

func configureLimitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ConfigureLimitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(limitsServer).ConfigureLimit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/executioncore.v1.LimitsService/ConfigureLimit"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(limitsServer).ConfigureLimit(ctx, req.(*ConfigureLimitRequest))
	})
}

func getLimitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetLimitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(limitsServer).GetLimit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/executioncore.v1.LimitsService/GetLimit"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(limitsServer).GetLimit(ctx, req.(*GetLimitRequest))
	})
}

func listLimitsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListLimitsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(limitsServer).ListLimits(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/executioncore.v1.LimitsService/ListLimits"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(limitsServer).ListLimits(ctx, req.(*ListLimitsRequest))
	})
}

func removeLimitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RemoveLimitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(limitsServer).RemoveLimit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/executioncore.v1.LimitsService/RemoveLimit"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(limitsServer).RemoveLimit(ctx, req.(*RemoveLimitRequest))
	})
}

func adjustLimitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AdjustLimitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(limitsServer).AdjustLimit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/executioncore.v1.LimitsService/AdjustLimit"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(limitsServer).AdjustLimit(ctx, req.(*AdjustLimitRequest))
	})
}

func checkLimitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckLimitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(limitsServer).CheckLimit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/executioncore.v1.LimitsService/CheckLimit"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(limitsServer).CheckLimit(ctx, req.(*CheckLimitRequest))
	})
}

func resetLimitsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResetLimitsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(limitsServer).ResetLimits(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/executioncore.v1.LimitsService/ResetLimits"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(limitsServer).ResetLimits(ctx, req.(*ResetLimitsRequest))
	})
}

func getStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(limitsServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/executioncore.v1.LimitsService/GetStats"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(limitsServer).GetStats(ctx, req.(*GetStatsRequest))
	})
}
