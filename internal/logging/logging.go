// Package logging configures the process-wide slog logger. Error attributes
// are expanded with go-xerrors stack traces, and request attributes stored in
// the context are appended to every record logged with that context.
package logging

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mdobak/go-xerrors"
)

// Initialize installs the default logger. format is "json" or "text";
// anything else falls back to JSON. Unknown levels fall back to info.
func Initialize(level, format string) {
	slog.SetDefault(slog.New(NewHandler(os.Stdout, level, format)))
}

// NewHandler builds the handler Initialize installs, writing to w.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: replaceAttr,
	}
	var base slog.Handler
	if strings.EqualFold(format, "text") {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	return contextHandler{Handler: base}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// replaceAttr renders error values as {msg, trace}.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	if err, ok := a.Value.Any().(error); ok {
		a.Value = errorValue(err)
	}
	return a
}

type frame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

func (f frame) String() string {
	return f.Func + " (" + f.Source + ":" + strconv.Itoa(f.Line) + ")"
}

func framesOf(err error) []frame {
	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		return nil
	}
	raw := trace.Frames()
	out := make([]frame, 0, len(raw))
	for _, f := range raw {
		out = append(out, frame{
			Func:   filepath.Base(f.Function),
			Source: filepath.Join(filepath.Base(filepath.Dir(f.File)), filepath.Base(f.File)),
			Line:   f.Line,
		})
	}
	return out
}

func errorValue(err error) slog.Value {
	attrs := []slog.Attr{slog.String("msg", err.Error())}
	if frames := framesOf(err); frames != nil {
		attrs = append(attrs, slog.Any("trace", frames))
	}
	return slog.GroupValue(attrs...)
}

// StackFrames returns err's stack trace as "func (dir/file.go:line)" strings,
// or nil when err carries none.
func StackFrames(err error) []string {
	frames := framesOf(err)
	if frames == nil {
		return nil
	}
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.String()
	}
	return out
}

// WrapError prefixes err with msg and records the caller's stack.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return xerrors.Newf("%s: %v", msg, xerrors.WithStackTrace(err, 1))
}

// WithStack records the caller's stack on err, keeping its message.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return xerrors.WithStackTrace(err, 1)
}

// ExtractClientIP returns X-Real-IP when the real-IP middleware set it,
// otherwise the peer address without its port.
func ExtractClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = strings.Trim(r.RemoteAddr, "[]")
	}
	if host == "" {
		return "unknown"
	}
	return host
}
