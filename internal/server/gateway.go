package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"LaunchLedger/internal/observability"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxInjectBody = 64 << 10

// route is one HTTP binding onto the services. call returns the response
// message or a status error.
type route struct {
	method   string
	pattern  string
	endpoint string
	call     func(ctx context.Context, r *http.Request, params map[string]string) (any, error)
}

func routes(impl *launchQueryImpl) []route {
	return []route{
		{"GET", "/v1/quote/buy", "quote_buy", func(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
			q := r.URL.Query()
			sol, err := uintParam(q.Get("sol"))
			if err != nil {
				return nil, err
			}
			shares, err := uintParam(q.Get("shares"))
			if err != nil {
				return nil, err
			}
			return impl.QuoteBuy(ctx, &QuoteBuyRequest{Launch: q.Get("launch"), Sol: sol, Shares: shares})
		}},
		{"GET", "/v1/quote/sell", "quote_sell", func(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
			q := r.URL.Query()
			shares, err := uintParam(q.Get("shares"))
			if err != nil {
				return nil, err
			}
			return impl.QuoteSell(ctx, &QuoteSellRequest{Launch: q.Get("launch"), User: q.Get("user"), Shares: shares})
		}},
		{"GET", "/v1/launches/{launch}", "get_launch", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return impl.GetLaunch(ctx, &LaunchRequest{Launch: p["launch"]})
		}},
		{"GET", "/v1/launches/{launch}/price", "share_price", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return impl.SharePrice(ctx, &LaunchRequest{Launch: p["launch"]})
		}},
		{"GET", "/v1/launches/{launch}/gates", "graduation_gates", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return impl.GraduationGates(ctx, &LaunchRequest{Launch: p["launch"]})
		}},
		{"GET", "/v1/launches/{launch}/integrity", "verify_integrity", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return impl.VerifyIntegrity(ctx, &LaunchRequest{Launch: p["launch"]})
		}},
		{"GET", "/v1/launches/{launch}/positions/{user}", "get_position", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return impl.GetPosition(ctx, &PositionRequest{Launch: p["launch"], User: p["user"]})
		}},
		{"GET", "/v1/launches/{launch}/positions/{user}/value", "position_value", func(ctx context.Context, _ *http.Request, p map[string]string) (any, error) {
			return impl.PositionValue(ctx, &PositionRequest{Launch: p["launch"], User: p["user"]})
		}},
		{"GET", "/v1/launches/{launch}/positions/{user}/sell-warning", "sell_warning", func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			shares, err := uintParam(r.URL.Query().Get("shares"))
			if err != nil {
				return nil, err
			}
			return impl.SellWarning(ctx, &SellWarningRequest{Launch: p["launch"], User: p["user"], Shares: shares})
		}},
		{"POST", "/v1/admin/events", "inject_event", func(ctx context.Context, r *http.Request, _ map[string]string) (any, error) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxInjectBody))
			if err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "read body: %v", err)
			}
			return impl.InjectEvent(ctx, &InjectEventRequest{Event: body})
		}},
	}
}

// registerRoutes binds every route on mux. Handlers call the service
// implementation in process rather than dialing the gRPC port.
func registerRoutes(mux *runtime.ServeMux, impl *launchQueryImpl, metrics *observability.Metrics) error {
	marshaler := &runtime.JSONPb{}

	for _, rt := range routes(impl) {
		err := mux.HandlePath(rt.method, rt.pattern, func(w http.ResponseWriter, r *http.Request, params map[string]string) {
			start := time.Now()
			resp, err := rt.call(r.Context(), r, params)

			if metrics != nil {
				metrics.QueryRequests.WithLabelValues(rt.endpoint).Inc()
				metrics.QueryDuration.WithLabelValues(rt.endpoint).Observe(time.Since(start).Seconds())
				if err != nil {
					metrics.QueryErrors.WithLabelValues(rt.endpoint, status.Code(err).String()).Inc()
				}
			}

			if err != nil {
				runtime.HTTPError(r.Context(), mux, marshaler, w, r, err)
				return
			}
			writeJSON(w, resp)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// uintParam parses an optional unsigned query parameter; empty is zero.
func uintParam(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "invalid integer %q", s)
	}
	return v, nil
}
