package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"pickline/internal/config"
)

// Options describes logger construction parameters. Outputs accepts "stdout",
// "stderr" or file paths; duplicates are written once.
type Options struct {
	Level   string
	Format  string
	Outputs []string
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))

	w, err := openOutputs(opts.Outputs)
	if err != nil {
		return nil, err
	}
	addSource := level.Level() <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(&consoleHandler{shared: &consoleOutput{w: w}, level: level, addSource: addSource}), nil
	case "json":
		return slog.New(newJSONHandler(w, level, addSource)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig creates the daemon logger: stdout plus an append-only
// pickline.log in the configured log directory.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Outputs: []string{"stdout"}})
	}
	outputs := []string{"stdout"}
	if dir := strings.TrimSpace(cfg.Server.LogDir); dir != "" {
		outputs = append(outputs, filepath.Join(dir, "pickline.log"))
	}
	return New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Outputs: outputs})
}

// NewCLI builds the logger used by the pickline command: stderr only, so
// table and JSON output on stdout stays clean.
func NewCLI(cfg *config.Config, verbose bool) (*slog.Logger, error) {
	opts := Options{Level: "warn", Outputs: []string{"stderr"}}
	if cfg != nil {
		opts.Format = cfg.Logging.Format
	}
	if verbose {
		opts.Level = "debug"
	}
	return New(opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutputs(outputs []string) (io.Writer, error) {
	seen := map[string]bool{}
	var writers []io.Writer
	for _, out := range outputs {
		out = strings.TrimSpace(out)
		if out == "" || seen[out] {
			continue
		}
		seen[out] = true
		switch out {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return nil, fmt.Errorf("ensure log directory: %w", err)
			}
			file, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", out, err)
			}
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func newJSONHandler(w io.Writer, level *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	})
}

// consoleOutput is shared by every handler derived from one logger so lines
// never interleave.
type consoleOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// consoleHandler renders one line per record:
//
//	2026-04-02T08:30:00Z INFO engine [s=sess-1 p=picker-1 item=9] action registered kind=picked
//
// The bracket holds whichever of the session, picker and product ids are set.
type consoleHandler struct {
	shared    *consoleOutput
	level     *slog.LevelVar
	attrs     []slog.Attr
	group     string
	addSource bool
}

var consoleTags = []struct{ key, tag string }{
	{FieldSessionID, "s"},
	{FieldPickerID, "p"},
	{FieldProductID, "item"},
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	fields = append(fields, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = append(fields, h.qualify(attr))
		return true
	})

	var component string
	tagged := map[string]string{}
	rest := fields[:0]
	for _, attr := range fields {
		switch attr.Key {
		case FieldComponent:
			component = attr.Value.Resolve().String()
			continue
		case FieldSessionID, FieldPickerID, FieldProductID:
			tagged[attr.Key] = attr.Value.Resolve().String()
			continue
		}
		rest = append(rest, attr)
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var buf bytes.Buffer
	buf.WriteString(ts.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if component != "" {
		buf.WriteByte(' ')
		buf.WriteString(component)
	}
	if len(tagged) > 0 {
		buf.WriteString(" [")
		first := true
		for _, t := range consoleTags {
			value, ok := tagged[t.key]
			if !ok {
				continue
			}
			if !first {
				buf.WriteByte(' ')
			}
			first = false
			buf.WriteString(t.tag)
			buf.WriteByte('=')
			buf.WriteString(value)
		}
		buf.WriteByte(']')
	}
	buf.WriteByte(' ')
	if msg := strings.TrimSpace(record.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}
	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&buf, " (%s:%d)", filepath.Base(src.File), src.Line)
		}
	}
	for _, attr := range rest {
		writeAttr(&buf, "", attr)
	}
	buf.WriteByte('\n')

	h.shared.mu.Lock()
	defer h.shared.mu.Unlock()
	_, err := h.shared.w.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, attr := range attrs {
		clone.attrs = append(clone.attrs, h.qualify(attr))
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		name = clone.group + "." + name
	}
	clone.group = name
	return &clone
}

func (h *consoleHandler) qualify(attr slog.Attr) slog.Attr {
	if h.group != "" && attr.Key != "" {
		attr.Key = h.group + "." + attr.Key
	}
	return attr
}

func writeAttr(buf *bytes.Buffer, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	key := attr.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if attr.Value.Kind() == slog.KindGroup {
		for _, member := range attr.Value.Group() {
			writeAttr(buf, key, member)
		}
		return
	}
	if key == "" {
		return
	}
	buf.WriteByte(' ')
	buf.WriteString(key)
	buf.WriteByte('=')
	buf.WriteString(formatValue(attr.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " =\"\t\n") {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
