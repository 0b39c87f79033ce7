package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// maxInfoCacheKeys bounds the per-job repeat cache for long-running workers.
const maxInfoCacheKeys = 512

// consoleState is shared by every handler derived through WithAttrs/WithGroup.
type consoleState struct {
	mu     sync.Mutex
	writer io.Writer
	// seen holds the last value printed per label, keyed by job or component.
	seen map[string]map[string]string
}

// consoleHandler renders human-oriented lines: a header naming the component,
// kind and job, then one indented line per field. Info lines show a curated
// subset and drop fields whose value has not changed since the last line for
// the same job.
type consoleHandler struct {
	state     *consoleState
	level     *slog.LevelVar
	addSource bool
	attrs     []slog.Attr
	groups    []string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{
		state:     &consoleState{writer: w, seen: make(map[string]map[string]string)},
		level:     lvl,
		addSource: addSource,
	}
}

// subject identifies what a line is about; it is lifted out of the fields.
type subject struct {
	component string
	kind      string
	jobID     string
}

func (s subject) String() string {
	parts := make([]string, 0, 2)
	if kind := strings.TrimSpace(s.kind); kind != "" {
		parts = append(parts, titleWord(kind))
	}
	if id := strings.TrimSpace(s.jobID); id != "" {
		parts = append(parts, "Job #"+id)
	}
	return strings.Join(parts, " · ")
}

// cacheKey scopes the repeated-field cache to a job, or to the component for
// lines not tied to one.
func (s subject) cacheKey() string {
	if id := strings.TrimSpace(s.jobID); id != "" {
		return "job:" + id
	}
	return s.component
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var fields []kv
	for _, attr := range h.attrs {
		flattenAttr(&fields, h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&fields, h.groups, attr)
		return true
	})
	fields = dedupeKVsByKey(fields)
	subj, rest := extractSubject(fields)

	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var buf bytes.Buffer
	buf.Grow(256 + len(fields)*32)
	h.writeHeader(&buf, ts, record.Level, subj, message, record.Source())

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	if record.Level < slog.LevelInfo {
		writeDebugFields(&buf, fields)
	} else {
		h.writeInfoFields(&buf, subj, record.Level, rest)
	}
	_, err := h.state.writer.Write(buf.Bytes())
	return err
}

// extractSubject pulls the header fields out. The component is removed from
// the returned fields; kind and job id stay so skipInfoKey can decide.
func extractSubject(fields []kv) (subject, []kv) {
	var subj subject
	rest := make([]kv, 0, len(fields))
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			subj.component = plainValue(f.value)
			continue
		case FieldJobID:
			subj.jobID = plainValue(f.value)
		case FieldKind:
			subj.kind = plainValue(f.value)
		}
		rest = append(rest, f)
	}
	return subj, rest
}

func (h *consoleHandler) writeHeader(buf *bytes.Buffer, ts time.Time, level slog.Level, subj subject, message string, src *slog.Source) {
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(level))
	if subj.component != "" {
		buf.WriteString(" [" + subj.component + "]")
	}
	if s := subj.String(); s != "" {
		buf.WriteString(" " + s)
	}
	buf.WriteString(" – " + message)
	if h.addSource && src != nil {
		buf.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
	}
	buf.WriteByte('\n')
}

func writeDebugFields(buf *bytes.Buffer, fields []kv) {
	for _, f := range fields {
		if f.key == FieldComponent {
			continue
		}
		buf.WriteString("    " + f.key + ": " + formatValue(f.value) + "\n")
	}
}

func (h *consoleHandler) writeInfoFields(buf *bytes.Buffer, subj subject, level slog.Level, fields []kv) {
	shown, hidden := selectInfoFields(fields, infoAttrLimit)
	shown = h.dropRepeated(subj.cacheKey(), shown, level)
	for _, field := range shown {
		buf.WriteString("    - " + field.label + ": " + field.value + "\n")
	}
	switch {
	case hidden == 1:
		buf.WriteString("    + 1 more field hidden\n")
	case hidden > 1:
		buf.WriteString("    + " + strconv.Itoa(hidden) + " more fields hidden\n")
	}
}

// dropRepeated filters info fields already printed with the same value for
// key. Warnings and errors always print in full but still refresh the cache.
func (h *consoleHandler) dropRepeated(key string, fields []infoField, level slog.Level) []infoField {
	if key == "" || len(fields) == 0 {
		return fields
	}
	seen, ok := h.state.seen[key]
	if !ok {
		if len(h.state.seen) >= maxInfoCacheKeys {
			clear(h.state.seen)
		}
		seen = make(map[string]string)
		h.state.seen[key] = seen
	}
	kept := fields[:0:0]
	for _, field := range fields {
		prev, printed := seen[field.label]
		seen[field.label] = field.value
		if level <= slog.LevelInfo && printed && prev == field.value {
			continue
		}
		kept = append(kept, field)
	}
	return kept
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

type kv struct {
	key   string
	value slog.Value
}

// dedupeKVsByKey keeps the first position of each key with its last value.
func dedupeKVsByKey(attrs []kv) []kv {
	index := make(map[string]int, len(attrs))
	out := make([]kv, 0, len(attrs))
	for _, attr := range attrs {
		if attr.key == "" {
			continue
		}
		if pos, ok := index[attr.key]; ok {
			out[pos].value = attr.value
			continue
		}
		index[attr.key] = len(out)
		out = append(out, attr)
	}
	return out
}

func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	path := prefix
	if attr.Key != "" {
		path = append(append([]string(nil), prefix...), attr.Key)
	}
	if attr.Value.Kind() == slog.KindGroup {
		for _, child := range attr.Value.Group() {
			flattenAttr(dst, path, child)
		}
		return
	}
	*dst = append(*dst, kv{key: strings.Join(path, "."), value: attr.Value})
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
