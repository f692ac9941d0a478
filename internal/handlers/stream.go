package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nowplaying/backend/internal/apperror"
	"github.com/nowplaying/backend/internal/broker"
	"github.com/nowplaying/backend/internal/logging"
)

// ErrorReporter sends errors to the external error channel.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// StreamOptions configures the now-playing stream endpoint.
type StreamOptions struct {
	Production        bool
	AllowedOrigin     string
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	FetchTimeout      time.Duration
	Buffer            int
}

// StreamHandler serves the now-playing Server-Sent Events stream.
type StreamHandler struct {
	responder
	hub      *broker.Hub
	fetcher  broker.Fetcher
	reporter ErrorReporter
	opts     StreamOptions
}

// NewStreamHandler creates a StreamHandler. Zero options fall back to
// 15s heartbeats, 10s write and fetch timeouts and an 8-frame buffer.
func NewStreamHandler(hub *broker.Hub, fetcher broker.Fetcher, reporter ErrorReporter, opts StreamOptions) *StreamHandler {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 8
	}
	return &StreamHandler{
		responder: responder{production: opts.Production},
		hub:       hub,
		fetcher:   fetcher,
		reporter:  reporter,
		opts:      opts,
	}
}

// Stream admits the client, writes the current snapshot immediately and then
// forwards hub broadcasts and heartbeats until the connection ends.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registry := h.hub.Registry()

	// Cheap pre-check; TryAdmit below is authoritative.
	if size := registry.Size(); size >= registry.Cap() {
		h.reject(w, r, apperror.CapacityExceeded(registry.Cap(), size))
		return
	}

	ip := logging.ExtractClientIP(r)
	conn := broker.NewConn(ip+"-"+strconv.FormatInt(time.Now().UnixMilli(), 10), h.opts.Buffer)
	entry := broker.Entry{
		ConnectionID: conn.ID(),
		RemoteAddr:   ip,
		UserAgent:    r.UserAgent(),
	}
	if err := registry.TryAdmit(conn, entry); err != nil {
		h.reject(w, r, err)
		return
	}

	heartbeat := time.NewTicker(h.opts.HeartbeatInterval)
	start := time.Now()
	defer func() {
		heartbeat.Stop()
		registry.Remove(conn)
		conn.Close()
		slog.InfoContext(ctx, "SSE client disconnected",
			slog.String("connection_id", conn.ID()),
			slog.Duration("connection_duration", time.Since(start)),
			slog.Int("active_clients", registry.Size()),
		)
	}()

	h.writeHeaders(w)
	rc := http.NewResponseController(w)
	write := func(frame []byte) error {
		if err := rc.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.lifecycleError(ctx, conn, "failed to flush stream headers", err)
		return
	}

	slog.InfoContext(ctx, "SSE client connected",
		slog.String("connection_id", conn.ID()),
		slog.Int("active_clients", registry.Size()),
	)

	if err := write(h.initialFrame(ctx)); err != nil && ctx.Err() == nil {
		slog.WarnContext(ctx, "failed to send initial now-playing data",
			slog.String("connection_id", conn.ID()),
			slog.Any("error", err),
		)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			// Closed by the hub, the sweeper or shutdown.
			if frame, err := broker.EncodeFrame(h.hub.StreamError(
				apperror.New(apperror.KindLifecycle, "Connection closed by server"),
				"Connection closed by server", 0)); err == nil {
				_ = write(frame)
			}
			return
		case frame := <-conn.Frames():
			if err := write(frame); err != nil {
				h.lifecycleError(ctx, conn, "failed to write stream frame", err)
				return
			}
		case <-heartbeat.C:
			if conn.Closed() {
				return
			}
			if err := write([]byte(broker.KeepAliveFrame)); err != nil {
				h.lifecycleError(ctx, conn, "heartbeat failed", err)
				return
			}
			registry.Touch(conn)
		}
	}
}

func (h *StreamHandler) reject(w http.ResponseWriter, r *http.Request, err error) {
	if apperror.Is(err, apperror.KindCapacityExceeded) {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventStreamCapacityHit, "SSE connection limit reached")
	}
	h.writeError(w, r, err)
}

func (h *StreamHandler) writeHeaders(w http.ResponseWriter) {
	origin := "*"
	if h.opts.Production && h.opts.AllowedOrigin != "" {
		origin = h.opts.AllowedOrigin
	}
	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	hdr.Set("Access-Control-Allow-Origin", origin)
	hdr.Set("Access-Control-Allow-Headers", "Cache-Control, Content-Type")
	hdr.Del("Access-Control-Allow-Credentials")
}

// initialFrame fetches the current snapshot, or an error payload when the
// upstream is unavailable.
func (h *StreamHandler) initialFrame(ctx context.Context) []byte {
	fetchCtx, cancel := context.WithTimeout(ctx, h.opts.FetchTimeout)
	defer cancel()

	var payload any
	snapshot, err := h.fetcher.FetchCurrentTrack(fetchCtx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch initial now-playing data", slog.Any("error", err))
		payload = h.hub.StreamError(err, "Service initializing", 0)
	} else {
		payload = snapshot
	}

	frame, err := broker.EncodeFrame(payload)
	if err != nil {
		return []byte(broker.KeepAliveFrame)
	}
	return frame
}

// lifecycleError reports a failure on an established stream. Errors caused
// by the client going away are not reported.
func (h *StreamHandler) lifecycleError(ctx context.Context, conn *broker.Conn, msg string, cause error) {
	if ctx.Err() != nil {
		return
	}
	err := apperror.Wrap(apperror.KindLifecycle, msg, cause)
	fields := []any{
		slog.String("code", string(err.Kind)),
		slog.String("connection_id", conn.ID()),
	}
	if !h.production {
		fields = append(fields, slog.Any("error", logging.WithStack(err)))
	}
	slog.WarnContext(ctx, msg, fields...)
	if h.reporter != nil {
		h.reporter.Report(ctx, err, map[string]string{"connection_id": conn.ID()})
	}
}
