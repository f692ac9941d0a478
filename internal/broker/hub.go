package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"github.com/nowplaying/backend/internal/apperror"
	"github.com/nowplaying/backend/internal/models"
)

// Fetcher produces the current upstream snapshot.
type Fetcher interface {
	FetchCurrentTrack(ctx context.Context) (models.TrackSnapshot, error)
}

// Options tunes a Hub. Zero durations fall back to the defaults below.
type Options struct {
	PollInterval   time.Duration
	FetchTimeout   time.Duration
	SweepInterval  time.Duration
	StaleThreshold time.Duration
	Production     bool
	Clock          clock.Clock
}

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultFetchTimeout   = 10 * time.Second
	DefaultSweepInterval  = 5 * time.Minute
	DefaultStaleThreshold = 10 * time.Minute
)

// Hub polls the upstream while clients are attached and pushes changed
// snapshots to every registered connection.
type Hub struct {
	registry *Registry
	fetcher  Fetcher
	detector *Detector
	clock    clock.Clock
	opts     Options
}

// NewHub wires a Hub over registry and fetcher.
func NewHub(registry *Registry, fetcher Fetcher, opts Options) *Hub {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = DefaultStaleThreshold
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	return &Hub{
		registry: registry,
		fetcher:  fetcher,
		detector: NewDetector(),
		clock:    opts.Clock,
		opts:     opts,
	}
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Run drives the poll-and-broadcast cycle until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	next := h.clock.After(h.opts.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-next:
			next = h.clock.After(h.opts.PollInterval)
			h.Tick(ctx)
		}
	}
}

// Tick runs one broadcast cycle. It does nothing while no client is attached.
func (h *Hub) Tick(ctx context.Context) {
	if h.registry.Size() == 0 {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, h.opts.FetchTimeout)
	snapshot, err := h.fetcher.FetchCurrentTrack(fetchCtx)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("error during periodic now-playing check", slog.Any("error", err))
		h.Broadcast(h.StreamError(err, "Service temporarily unavailable", h.opts.PollInterval))
		return
	}

	if !h.detector.Observe(snapshot) {
		return
	}
	h.Broadcast(snapshot)
}

// StreamError builds the degraded payload for err. In production the
// message is replaced by generic; retryIn is omitted when zero.
func (h *Hub) StreamError(err error, generic string, retryIn time.Duration) models.StreamError {
	msg := generic
	if !h.opts.Production && err != nil {
		msg = err.Error()
	}
	return models.StreamError{
		Error:     msg,
		Code:      string(apperror.KindOf(err)),
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339Nano),
		RetryIn:   int(retryIn / time.Second),
	}
}

// Broadcast pushes payload to every member present when the call starts and
// returns how many accepted it. A failing member never affects the others;
// failed members are removed in one batch and closed.
func (h *Hub) Broadcast(payload any) int {
	frame, err := EncodeFrame(payload)
	if err != nil {
		slog.Error("failed to encode broadcast payload", slog.Any("error", err))
		return 0
	}

	members := h.registry.Snapshot()
	if len(members) == 0 {
		return 0
	}

	var dead []*Conn
	delivered := 0
	for _, m := range members {
		if err := m.Conn.Send(frame); err != nil {
			dead = append(dead, m.Conn)
			h.logWriteFailure(m, err, len(members)-len(dead))
			continue
		}
		h.registry.Touch(m.Conn)
		delivered++
	}

	if len(dead) > 0 {
		h.registry.RemoveAll(dead)
		for _, c := range dead {
			c.Close()
		}
	}

	fields := []any{
		slog.Int("delivered", delivered),
		slog.Int("dropped", len(dead)),
	}
	if se, ok := payload.(models.StreamError); ok {
		slog.Warn("broadcast stream error", append(fields, slog.String("code", se.Code))...)
		return delivered
	}
	slog.Info("broadcast now-playing update", fields...)
	return delivered
}

func (h *Hub) logWriteFailure(m Member, cause error, remaining int) {
	failure := apperror.Wrap(apperror.KindBroadcastWriteFailure, "failed to broadcast to SSE client", cause)
	fields := []any{
		slog.String("code", string(failure.Kind)),
		slog.String("connection_id", m.Entry.ConnectionID),
		slog.String("ip", m.Entry.RemoteAddr),
		slog.Duration("connection_duration", h.clock.Now().Sub(m.Entry.ConnectedAt)),
		slog.Int("active_clients", remaining),
	}
	if h.opts.Production {
		slog.Warn("broadcast failed", fields...)
		return
	}
	fields = append(fields, slog.Any("error", failure))
	slog.Warn(failure.Message, fields...)
}

// RunSweeper evicts idle connections every sweep interval until ctx is
// cancelled.
func (h *Hub) RunSweeper(ctx context.Context) {
	next := h.clock.After(h.opts.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-next:
			next = h.clock.After(h.opts.SweepInterval)
			h.Sweep()
		}
	}
}

// Sweep removes and closes every connection idle beyond the stale
// threshold, returning how many were evicted.
func (h *Hub) Sweep() int {
	stale := h.registry.SweepStale(h.opts.StaleThreshold)
	for _, c := range stale {
		c.Close()
		slog.Info("cleaning up stale SSE connection", slog.String("connection_id", c.ID()))
	}
	return len(stale)
}

// Shutdown closes every registered connection and empties the registry.
func (h *Hub) Shutdown() int {
	all := h.registry.Drain()
	for _, c := range all {
		c.Close()
	}
	return len(all)
}
