package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/openadsales/gateway/internal/audit"
)

type requestInfoKey struct{}

// RequestInfo is what the middleware learned about the caller. It rides
// the request context and ends up in audit detail maps.
type RequestInfo struct {
	RequestID string
	RemoteIP  string
	UserAgent string
	Browser   string
	Device    string
	OS        string
	Country   string
	City      string
}

func withRequestInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the enrichment the middleware attached, if any.
func RequestInfoFrom(ctx context.Context) (*RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info, ok
}

// Details renders the info as an audit detail map. Empty fields are
// omitted so sparse deployments (no GeoIP database) stay clean.
func (ri *RequestInfo) Details() map[string]any {
	if ri == nil {
		return nil
	}
	out := map[string]any{
		"request_id": ri.RequestID,
		"remote_ip":  ri.RemoteIP,
	}
	if ri.Browser != "" {
		out["browser"] = ri.Browser
	}
	if ri.Device != "" {
		out["device"] = ri.Device
	}
	if ri.OS != "" {
		out["os"] = ri.OS
	}
	if ri.Country != "" {
		out["country"] = ri.Country
	}
	if ri.City != "" {
		out["city"] = ri.City
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// requestLogger enriches the context with caller info, logs one line per
// request and feeds the request metrics. The trace ID is included when a
// span is active so log lines can be joined with traces.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := s.enrich(r)
		ctx := withRequestInfo(r.Context(), info)
		ctx = audit.WithCallerDetails(ctx, info.Details())
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		s.metrics.IncrementRequests(r.URL.Path, r.Method, strconv.Itoa(rec.status))
		s.metrics.RecordRequestLatency(r.URL.Path, r.Method, elapsed)

		fields := []zap.Field{
			zap.String("request_id", info.RequestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed),
			zap.String("remote_ip", info.RemoteIP),
		}
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
		}
		s.logger.Info("request", fields...)
	})
}

// enrich parses the user agent and, when a GeoIP database is mounted,
// resolves the caller's location.
func (s *Server) enrich(r *http.Request) *RequestInfo {
	info := &RequestInfo{
		RequestID: uuid.NewString(),
		RemoteIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if info.UserAgent != "" {
		ua := uasurfer.Parse(info.UserAgent)
		info.Browser = ua.Browser.Name.StringTrimPrefix()
		info.Device = ua.DeviceType.StringTrimPrefix()
		info.OS = ua.OS.Name.StringTrimPrefix()
	}
	if s.geoip != nil {
		if ip := net.ParseIP(info.RemoteIP); ip != nil {
			if rec, err := s.geoip.City(ip); err == nil {
				info.Country = rec.Country.IsoCode
				info.City = rec.City.Names["en"]
			}
		}
	}
	return info
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
