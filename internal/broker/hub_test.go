package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/nowplaying/backend/internal/apperror"
	"github.com/nowplaying/backend/internal/models"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	results []fetchResult
}

type fetchResult struct {
	snapshot models.TrackSnapshot
	err      error
}

// FetchCurrentTrack returns queued results in order, repeating the last one.
func (f *fakeFetcher) FetchCurrentTrack(ctx context.Context) (models.TrackSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return models.NotPlaying(), nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.snapshot, r.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestHub(fetcher Fetcher, production bool) (*Hub, *testclock.Clock) {
	clk := testclock.NewClock(epoch)
	reg := NewRegistry(300, clk)
	h := NewHub(reg, fetcher, Options{
		PollInterval:   30 * time.Second,
		SweepInterval:  5 * time.Minute,
		StaleThreshold: 10 * time.Minute,
		Production:     production,
		Clock:          clk,
	})
	return h, clk
}

func admit(t *testing.T, h *Hub, n int) []*Conn {
	t.Helper()
	conns := make([]*Conn, n)
	for i := range conns {
		conns[i] = NewConn(fmt.Sprintf("conn-%d", i), 8)
		if err := h.Registry().TryAdmit(conns[i], Entry{ConnectionID: conns[i].ID()}); err != nil {
			t.Fatalf("TryAdmit() error = %v", err)
		}
	}
	return conns
}

// drain returns every frame currently queued on c.
func drain(c *Conn) [][]byte {
	var frames [][]byte
	for {
		select {
		case f := <-c.Frames():
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func decodeFrame(t *testing.T, frame []byte, v any) {
	t.Helper()
	if !bytes.HasPrefix(frame, []byte("data: ")) || !bytes.HasSuffix(frame, []byte("\n\n")) {
		t.Fatalf("malformed frame %q", frame)
	}
	body := bytes.TrimSuffix(bytes.TrimPrefix(frame, []byte("data: ")), []byte("\n\n"))
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("failed to decode frame %q: %v", frame, err)
	}
}

func TestTickSkipsFetchWhenRegistryEmpty(t *testing.T) {
	fetcher := &fakeFetcher{}
	h, _ := newTestHub(fetcher, false)

	for i := 0; i < 3; i++ {
		h.Tick(context.Background())
	}

	if fetcher.Calls() != 0 {
		t.Errorf("fetch calls = %d, want 0 while no client is attached", fetcher.Calls())
	}
}

func TestRunDoesNotFetchWhileIdle(t *testing.T) {
	fetcher := &fakeFetcher{}
	h, clk := newTestHub(fetcher, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		if err := clk.WaitAdvance(30*time.Second, time.Second, 1); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	// The loop re-arms its timer before ticking; wait for the last re-arm.
	if err := clk.WaitAdvance(0, time.Second, 1); err != nil {
		t.Fatal(err)
	}

	cancel()
	<-done

	if fetcher.Calls() != 0 {
		t.Errorf("fetch calls = %d across idle ticks, want 0", fetcher.Calls())
	}
}

func TestRunBroadcastsOnTick(t *testing.T) {
	song := models.TrackSnapshot{IsPlaying: true, Title: "Song A", Artist: "Artist X"}
	fetcher := &fakeFetcher{results: []fetchResult{{snapshot: song}}}
	h, clk := newTestHub(fetcher, false)
	conns := admit(t, h, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	if err := clk.WaitAdvance(30*time.Second, time.Second, 1); err != nil {
		t.Fatal(err)
	}

	select {
	case frame := <-conns[0].Frames():
		var got models.TrackSnapshot
		decodeFrame(t, frame, &got)
		if got != song {
			t.Errorf("broadcast = %+v, want %+v", got, song)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame after tick")
	}
}

func TestTickSuppressesUnchangedSnapshots(t *testing.T) {
	songA := models.TrackSnapshot{IsPlaying: true, Title: "A"}
	fetcher := &fakeFetcher{results: []fetchResult{
		{snapshot: models.NotPlaying()},
		{snapshot: models.NotPlaying()},
		{snapshot: songA},
		{snapshot: songA},
	}}
	h, _ := newTestHub(fetcher, false)
	conns := admit(t, h, 2)
	ctx := context.Background()

	h.Tick(ctx)
	if got := len(drain(conns[0])); got != 1 {
		t.Fatalf("first observation frames = %d, want 1", got)
	}
	drain(conns[1])

	h.Tick(ctx)
	if got := len(drain(conns[0])); got != 0 {
		t.Errorf("identical snapshot produced %d frames, want 0", got)
	}

	h.Tick(ctx)
	frames := drain(conns[0])
	if len(frames) != 1 {
		t.Fatalf("changed snapshot produced %d frames, want 1", len(frames))
	}
	var got models.TrackSnapshot
	decodeFrame(t, frames[0], &got)
	if got != songA {
		t.Errorf("broadcast = %+v, want %+v", got, songA)
	}

	h.Tick(ctx)
	if got := len(drain(conns[0])); got != 0 {
		t.Errorf("repeat of A produced %d frames, want 0", got)
	}
	if fetcher.Calls() != 4 {
		t.Errorf("fetch calls = %d, want 4", fetcher.Calls())
	}
}

func TestBroadcastIsolatesFailingClient(t *testing.T) {
	h, _ := newTestHub(&fakeFetcher{}, false)
	conns := admit(t, h, 5)

	// conn 2 is already closed; slow has a full buffer.
	conns[2].Close()
	slow := NewConn("slow", 1)
	_ = slow.Send([]byte("pending"))
	if err := h.Registry().TryAdmit(slow, Entry{ConnectionID: "slow"}); err != nil {
		t.Fatal(err)
	}

	delivered := h.Broadcast(models.TrackSnapshot{IsPlaying: true, Title: "B"})

	if delivered != 4 {
		t.Errorf("delivered = %d, want 4", delivered)
	}
	for i, c := range conns {
		frames := drain(c)
		if i == 2 {
			if len(frames) != 0 {
				t.Errorf("closed conn received %d frames", len(frames))
			}
			continue
		}
		if len(frames) != 1 {
			t.Errorf("conn %d received %d frames, want 1", i, len(frames))
		}
	}
	if _, ok := h.Registry().Lookup(conns[2]); ok {
		t.Error("closed conn should be removed after the cycle")
	}
	if _, ok := h.Registry().Lookup(slow); ok {
		t.Error("slow conn should be removed after the cycle")
	}
	if !slow.Closed() {
		t.Error("slow conn should be closed so its writer exits")
	}
	if h.Registry().Size() != 4 {
		t.Errorf("Size() = %d, want 4", h.Registry().Size())
	}
}

func TestBroadcastTouchesDeliveredClients(t *testing.T) {
	h, clk := newTestHub(&fakeFetcher{}, false)
	conns := admit(t, h, 1)

	clk.Advance(time.Minute)
	h.Broadcast(models.NotPlaying())

	e, _ := h.Registry().Lookup(conns[0])
	if !e.LastActivityAt.Equal(epoch.Add(time.Minute)) {
		t.Errorf("LastActivityAt = %v, want %v", e.LastActivityAt, epoch.Add(time.Minute))
	}
}

func TestBroadcastLogNamesPayload(t *testing.T) {
	tests := []struct {
		name      string
		payload   any
		wantLevel string
		wantMsg   string
		wantCode  string
	}{
		{"snapshot", models.NotPlaying(), "INFO", "broadcast now-playing update", ""},
		{"stream error", models.StreamError{Error: "down", Code: string(apperror.KindUpstreamUnavailable)}, "WARN", "broadcast stream error", string(apperror.KindUpstreamUnavailable)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
			t.Cleanup(func() { slog.SetDefault(prev) })

			h, _ := newTestHub(&fakeFetcher{}, false)
			admit(t, h, 1)
			h.Broadcast(tt.payload)

			var rec map[string]any
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("decode %q: %v", buf.String(), err)
			}
			if rec["level"] != tt.wantLevel || rec["msg"] != tt.wantMsg {
				t.Errorf("logged %v %q, want %s %q", rec["level"], rec["msg"], tt.wantLevel, tt.wantMsg)
			}
			if code, _ := rec["code"].(string); code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestTickBroadcastsErrorOnUpstreamFailure(t *testing.T) {
	upstreamErr := apperror.Upstream("Failed to fetch currently playing track", errors.New("status 502: bad gateway"))

	tests := []struct {
		name       string
		production bool
		wantError  string
	}{
		{"development shows detail", false, upstreamErr.Error()},
		{"production hides detail", true, "Service temporarily unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{results: []fetchResult{{err: upstreamErr}}}
			h, _ := newTestHub(fetcher, tt.production)
			conns := admit(t, h, 3)

			h.Tick(context.Background())

			for i, c := range conns {
				frames := drain(c)
				if len(frames) != 1 {
					t.Fatalf("conn %d got %d frames, want 1", i, len(frames))
				}
				var raw map[string]any
				decodeFrame(t, frames[0], &raw)
				if raw["error"] != tt.wantError {
					t.Errorf("error = %v, want %q", raw["error"], tt.wantError)
				}
				if raw["retryIn"] != float64(30) {
					t.Errorf("retryIn = %v, want 30", raw["retryIn"])
				}
				if raw["code"] != string(apperror.KindUpstreamUnavailable) {
					t.Errorf("code = %v", raw["code"])
				}
				if _, err := time.Parse(time.RFC3339Nano, fmt.Sprint(raw["timestamp"])); err != nil {
					t.Errorf("timestamp %v: %v", raw["timestamp"], err)
				}
			}
			if h.Registry().Size() != 3 {
				t.Errorf("Size() = %d, upstream failure must not change membership", h.Registry().Size())
			}
		})
	}
}

func TestUpstreamFailureDoesNotResetDetector(t *testing.T) {
	song := models.TrackSnapshot{IsPlaying: true, Title: "A"}
	fetcher := &fakeFetcher{results: []fetchResult{
		{snapshot: song},
		{err: apperror.Upstream("down", errors.New("timeout"))},
		{snapshot: song},
	}}
	h, _ := newTestHub(fetcher, false)
	conns := admit(t, h, 1)
	ctx := context.Background()

	h.Tick(ctx)
	h.Tick(ctx)
	drain(conns[0])

	h.Tick(ctx)
	if got := len(drain(conns[0])); got != 0 {
		t.Errorf("same snapshot after an error produced %d frames, want 0", got)
	}
}

func TestSweepEvictsStaleConnections(t *testing.T) {
	h, clk := newTestHub(&fakeFetcher{}, true)
	conns := admit(t, h, 2)

	clk.Advance(9 * time.Minute)
	h.Registry().Touch(conns[1])
	clk.Advance(2 * time.Minute)

	if got := h.Sweep(); got != 1 {
		t.Fatalf("Sweep() = %d, want 1", got)
	}
	if !conns[0].Closed() {
		t.Error("stale conn should be closed")
	}
	if conns[1].Closed() {
		t.Error("active conn should stay open")
	}
	if h.Registry().Size() != 1 {
		t.Errorf("Size() = %d, want 1", h.Registry().Size())
	}
}

func TestRunSweeperOnInterval(t *testing.T) {
	h, clk := newTestHub(&fakeFetcher{}, true)
	conns := admit(t, h, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.RunSweeper(ctx)

	clk.Advance(6 * time.Minute) // not yet stale
	if err := clk.WaitAdvance(5*time.Minute, time.Second, 1); err != nil {
		t.Fatal(err)
	}

	select {
	case <-conns[0].Done():
	case <-time.After(time.Second):
		t.Fatal("stale connection was not closed by the sweeper")
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	h, _ := newTestHub(&fakeFetcher{}, false)
	conns := admit(t, h, 3)

	if got := h.Shutdown(); got != 3 {
		t.Errorf("Shutdown() = %d, want 3", got)
	}
	for i, c := range conns {
		if !c.Closed() {
			t.Errorf("conn %d not closed", i)
		}
	}
	if h.Registry().Size() != 0 {
		t.Errorf("Size() = %d after shutdown", h.Registry().Size())
	}
}
