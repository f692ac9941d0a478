package logging

import (
	"context"
	"log/slog"
)

// SecurityEvent tags WARN records that an operator may want to alert on.
type SecurityEvent string

const (
	SecurityEventMissingAuth       SecurityEvent = "missing_auth"
	SecurityEventInvalidAuthFmt    SecurityEvent = "invalid_auth_format"
	SecurityEventInvalidJWT        SecurityEvent = "invalid_jwt"
	SecurityEventNonAdminAccess    SecurityEvent = "non_admin_access"
	SecurityEventRateLimited       SecurityEvent = "rate_limited"
	SecurityEventBadAdminCreds     SecurityEvent = "bad_admin_credentials"
	SecurityEventStreamCapacityHit SecurityEvent = "stream_capacity_exceeded"
)

// RequestAttrs is the per-request logging context. It never holds
// credentials or request bodies.
type RequestAttrs struct {
	Method    string
	Path      string
	IP        string
	RequestID string
	Admin     string
}

type requestAttrsKey struct{}

func WithRequestAttrs(ctx context.Context, attrs *RequestAttrs) context.Context {
	return context.WithValue(ctx, requestAttrsKey{}, attrs)
}

// RequestAttrsFrom returns the attributes stored in ctx, or nil.
func RequestAttrsFrom(ctx context.Context) *RequestAttrs {
	attrs, _ := ctx.Value(requestAttrsKey{}).(*RequestAttrs)
	return attrs
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	if attrs := RequestAttrsFrom(ctx); attrs != nil {
		return attrs.RequestID
	}
	return ""
}

// WithAdmin returns a context whose attributes also name the authenticated
// admin. The parent's attributes are copied, not mutated.
func WithAdmin(ctx context.Context, username string) context.Context {
	next := RequestAttrs{}
	if attrs := RequestAttrsFrom(ctx); attrs != nil {
		next = *attrs
	}
	next.Admin = username
	return WithRequestAttrs(ctx, &next)
}

func (a *RequestAttrs) logAttrs() []slog.Attr {
	out := []slog.Attr{
		slog.String("method", a.Method),
		slog.String("path", a.Path),
		slog.String("ip", a.IP),
	}
	if a.RequestID != "" {
		out = append(out, slog.String("request_id", a.RequestID))
	}
	if a.Admin != "" {
		out = append(out, slog.String("admin", a.Admin))
	}
	return out
}

// contextHandler appends the request attributes found in the record's
// context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := RequestAttrsFrom(ctx); attrs != nil {
		r.AddAttrs(attrs.logAttrs()...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}

// LogSecurityEvent logs a WARN record tagged with event.
func LogSecurityEvent(ctx context.Context, event SecurityEvent, msg string) {
	slog.WarnContext(ctx, msg, slog.String("security_event", string(event)))
}

// LogErrorWithStatus logs an ERROR record for a failed response.
func LogErrorWithStatus(ctx context.Context, status int, msg string, err error) {
	args := []any{slog.Int("status", status)}
	if err != nil {
		args = append(args, slog.Any("error", err))
	}
	slog.ErrorContext(ctx, msg, args...)
}
