package server

import (
	"context"
	"encoding/json"
	"errors"

	"LaunchLedger/internal/core"
	"LaunchLedger/internal/curve"
	"LaunchLedger/internal/ingestion"
	"LaunchLedger/internal/oracle"
	"LaunchLedger/internal/persistence"
	"LaunchLedger/internal/query"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	QueryServiceName = "launchledger.query.v1.LaunchQuery"
	AdminServiceName = "launchledger.admin.v1.Admin"
)

// ============================================================================
// Messages
// ============================================================================

type QuoteBuyRequest struct {
	Launch string `json:"launch"`
	Sol    uint64 `json:"sol,omitempty"`
	Shares uint64 `json:"shares,omitempty"`
}

type QuoteSellRequest struct {
	Launch string `json:"launch"`
	User   string `json:"user"`
	Shares uint64 `json:"shares"`
}

type LaunchRequest struct {
	Launch string `json:"launch"`
}

type PositionRequest struct {
	Launch string `json:"launch"`
	User   string `json:"user"`
}

type SellWarningRequest struct {
	Launch string `json:"launch"`
	User   string `json:"user"`
	Shares uint64 `json:"shares"`
}

type InjectEventRequest struct {
	Event json.RawMessage `json:"event,omitempty"`
}

type InjectEventResponse struct {
	Key       string `json:"key"`
	Applied   bool   `json:"applied"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored"`
	RecordID  string `json:"record_id,omitempty"`
}

// ============================================================================
// Service interfaces
// ============================================================================

// LaunchQueryServer is the read API.
type LaunchQueryServer interface {
	QuoteBuy(context.Context, *QuoteBuyRequest) (*query.BuyQuote, error)
	QuoteSell(context.Context, *QuoteSellRequest) (*query.SellQuote, error)
	GetLaunch(context.Context, *LaunchRequest) (*query.LaunchView, error)
	SharePrice(context.Context, *LaunchRequest) (*query.PriceView, error)
	GraduationGates(context.Context, *LaunchRequest) (*query.GatesView, error)
	GetPosition(context.Context, *PositionRequest) (*query.PositionView, error)
	PositionValue(context.Context, *PositionRequest) (*query.Valuation, error)
	SellWarning(context.Context, *SellWarningRequest) (*query.SellWarningView, error)
}

// AdminServer injects events and checks audit integrity.
type AdminServer interface {
	InjectEvent(context.Context, *InjectEventRequest) (*InjectEventResponse, error)
	VerifyIntegrity(context.Context, *LaunchRequest) (*query.IntegrityReport, error)
}

var queryServiceDesc = grpc.ServiceDesc{
	ServiceName: QueryServiceName,
	HandlerType: (*LaunchQueryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(QueryServiceName, "QuoteBuy", LaunchQueryServer.QuoteBuy),
		unary(QueryServiceName, "QuoteSell", LaunchQueryServer.QuoteSell),
		unary(QueryServiceName, "GetLaunch", LaunchQueryServer.GetLaunch),
		unary(QueryServiceName, "SharePrice", LaunchQueryServer.SharePrice),
		unary(QueryServiceName, "GraduationGates", LaunchQueryServer.GraduationGates),
		unary(QueryServiceName, "GetPosition", LaunchQueryServer.GetPosition),
		unary(QueryServiceName, "PositionValue", LaunchQueryServer.PositionValue),
		unary(QueryServiceName, "SellWarning", LaunchQueryServer.SellWarning),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "launchledger/query/v1/query.proto",
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(AdminServiceName, "InjectEvent", AdminServer.InjectEvent),
		unary(AdminServiceName, "VerifyIntegrity", AdminServer.VerifyIntegrity),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "launchledger/admin/v1/admin.proto",
}

// unary adapts a typed method to a grpc.MethodDesc, decoding the request
// through whichever codec the call negotiated.
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, r any) (any, error) {
				return call(srv.(S), ctx, r.(*Req))
			}
			if interceptor == nil {
				return handler(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, req, info, handler)
		},
	}
}

// ============================================================================
// Implementation
// ============================================================================

type launchQueryImpl struct {
	qs    *query.QueryService
	admin *ingestion.AdminIngestService
}

func (s *launchQueryImpl) QuoteBuy(ctx context.Context, req *QuoteBuyRequest) (*query.BuyQuote, error) {
	switch {
	case req.Sol > 0 && req.Shares > 0:
		return nil, status.Error(codes.InvalidArgument, "set one of sol or shares")
	case req.Sol > 0:
		q, err := s.qs.QuoteBuyBySol(ctx, req.Launch, req.Sol)
		return q, toStatus(err)
	case req.Shares > 0:
		q, err := s.qs.QuoteBuyByShares(ctx, req.Launch, req.Shares)
		return q, toStatus(err)
	default:
		return nil, status.Error(codes.InvalidArgument, "sol or shares is required")
	}
}

func (s *launchQueryImpl) QuoteSell(ctx context.Context, req *QuoteSellRequest) (*query.SellQuote, error) {
	q, err := s.qs.QuoteSell(ctx, req.Launch, req.User, req.Shares)
	return q, toStatus(err)
}

func (s *launchQueryImpl) GetLaunch(ctx context.Context, req *LaunchRequest) (*query.LaunchView, error) {
	v, err := s.qs.GetLaunch(ctx, req.Launch)
	return v, toStatus(err)
}

func (s *launchQueryImpl) SharePrice(ctx context.Context, req *LaunchRequest) (*query.PriceView, error) {
	v, err := s.qs.SharePrice(ctx, req.Launch)
	return v, toStatus(err)
}

func (s *launchQueryImpl) GraduationGates(ctx context.Context, req *LaunchRequest) (*query.GatesView, error) {
	v, err := s.qs.GraduationGates(ctx, req.Launch)
	return v, toStatus(err)
}

func (s *launchQueryImpl) GetPosition(ctx context.Context, req *PositionRequest) (*query.PositionView, error) {
	v, err := s.qs.GetPosition(ctx, req.Launch, req.User)
	return v, toStatus(err)
}

func (s *launchQueryImpl) PositionValue(ctx context.Context, req *PositionRequest) (*query.Valuation, error) {
	v, err := s.qs.PositionValue(ctx, req.Launch, req.User)
	return v, toStatus(err)
}

func (s *launchQueryImpl) SellWarning(ctx context.Context, req *SellWarningRequest) (*query.SellWarningView, error) {
	v, err := s.qs.SellWarning(ctx, req.Launch, req.User, req.Shares)
	return v, toStatus(err)
}

func (s *launchQueryImpl) InjectEvent(ctx context.Context, req *InjectEventRequest) (*InjectEventResponse, error) {
	if s.admin == nil {
		return nil, status.Error(codes.Unimplemented, "admin inject is disabled")
	}
	if len(req.Event) == 0 || string(req.Event) == "null" {
		return nil, status.Error(codes.InvalidArgument, "event is required")
	}

	res, err := s.admin.Inject(ctx, req.Event)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &InjectEventResponse{
		Key:       res.Key,
		Applied:   res.Record != nil,
		Duplicate: res.Duplicate,
		Ignored:   res.Ignored,
	}
	if res.Record != nil {
		resp.RecordID = res.Record.ID.String()
	}
	return resp, nil
}

func (s *launchQueryImpl) VerifyIntegrity(ctx context.Context, req *LaunchRequest) (*query.IntegrityReport, error) {
	r, err := s.qs.VerifyIntegrity(ctx, req.Launch)
	return r, toStatus(err)
}

// toStatus maps domain errors onto gRPC codes. The gateway turns those into
// HTTP statuses.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, query.ErrInvalidArgument),
		errors.Is(err, ingestion.ErrMalformed),
		errors.Is(err, curve.ErrInvalidSellAmount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, persistence.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, query.ErrLaunchNotActive):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, oracle.ErrPriceUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, curve.ErrArithmeticOverflow):
		return status.Error(codes.OutOfRange, err.Error())
	}

	var ie *core.IngestError
	if errors.As(err, &ie) {
		switch ie.Kind {
		case core.KindValidation:
			return status.Error(codes.InvalidArgument, err.Error())
		case core.KindStorage:
			return status.Error(codes.Unavailable, err.Error())
		case core.KindLaunchNotFound:
			return status.Error(codes.NotFound, err.Error())
		case core.KindArithmeticOverflow:
			return status.Error(codes.OutOfRange, err.Error())
		default:
			return status.Error(codes.FailedPrecondition, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}
