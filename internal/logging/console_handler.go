package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// infoFieldLimit caps how many attributes an INFO line expands into.
const infoFieldLimit = 6

// Keys listed here are shown first, in this order, on INFO and above.
var infoHighlightKeys = []string{
	FieldAlert,
	"error",
	FieldErrorHint,
	FieldImpact,
	"input",
	"output",
	"method",
	"size",
	"duration",
	"frames",
	"prediction_id",
	"status",
	FieldProgressPercent,
	FieldProgressMessage,
}

// Keys dropped from INFO output; DEBUG output shows everything.
var infoNoiseKeys = map[string]struct{}{
	FieldEventType:     {},
	FieldCorrelationID: {},
}

type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     slog.Leveler
	attrs     []slog.Attr
	groups    []string
	addSource bool
}

func newPrettyHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&kvs, h.groups, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})
	kvs = dedupeKVsByKey(kvs)

	var component, jobID, stage string
	rest := make([]kv, 0, len(kvs))
	for _, item := range kvs {
		switch item.key {
		case FieldComponent:
			component = attrString(item.value)
			continue
		case FieldJobID:
			jobID = attrString(item.value)
			continue
		case FieldStage:
			stage = attrString(item.value)
			continue
		}
		rest = append(rest, item)
	}

	var buf bytes.Buffer
	buf.Grow(160 + len(rest)*32)
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if component != "" {
		buf.WriteString(" [")
		buf.WriteString(component)
		buf.WriteByte(']')
	}
	if subject := FormatSubject(jobID, stage); subject != "" {
		buf.WriteByte(' ')
		buf.WriteString(subject)
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}
	buf.WriteString(" – ")
	buf.WriteString(message)
	if h.addSource {
		if src := record.Source(); src != nil {
			buf.WriteString(" [")
			buf.WriteString(filepath.Base(src.File))
			buf.WriteByte(':')
			buf.WriteString(strconv.Itoa(src.Line))
			buf.WriteByte(']')
		}
	}
	buf.WriteByte('\n')

	if record.Level < slog.LevelInfo {
		for _, item := range rest {
			writeField(&buf, "    ", item.key, formatValue(item.value))
		}
	} else {
		shown, hidden := selectInfoFields(rest)
		for _, item := range shown {
			writeField(&buf, "    - ", item.key, formatValue(item.value))
		}
		if hidden > 0 {
			buf.WriteString("    + ")
			buf.WriteString(strconv.Itoa(hidden))
			buf.WriteString(" more field")
			if hidden != 1 {
				buf.WriteByte('s')
			}
			buf.WriteString(" hidden\n")
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func writeField(buf *bytes.Buffer, indent, key, value string) {
	buf.WriteString(indent)
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteByte('\n')
}

func selectInfoFields(attrs []kv) ([]kv, int) {
	candidates := make([]kv, 0, len(attrs))
	for _, item := range attrs {
		if _, noisy := infoNoiseKeys[item.key]; noisy {
			continue
		}
		candidates = append(candidates, item)
	}
	rank := func(key string) int {
		if idx := slices.Index(infoHighlightKeys, key); idx >= 0 {
			return idx
		}
		return len(infoHighlightKeys)
	}
	slices.SortStableFunc(candidates, func(a, b kv) int {
		return rank(a.key) - rank(b.key)
	})
	if len(candidates) <= infoFieldLimit {
		return candidates, 0
	}
	return candidates[:infoFieldLimit], len(candidates) - infoFieldLimit
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *prettyHandler) clone() *prettyHandler {
	return &prettyHandler{
		mu:        h.mu,
		writer:    h.writer,
		level:     h.level,
		addSource: h.addSource,
		attrs:     slices.Clone(h.attrs),
		groups:    slices.Clone(h.groups),
	}
}

type kv struct {
	key   string
	value slog.Value
}

// dedupeKVsByKey keeps the first position of each key with its last value.
func dedupeKVsByKey(attrs []kv) []kv {
	if len(attrs) < 2 {
		return attrs
	}
	positions := make(map[string]int, len(attrs))
	deduped := make([]kv, 0, len(attrs))
	for _, attr := range attrs {
		if attr.key == "" {
			continue
		}
		if pos, ok := positions[attr.key]; ok {
			deduped[pos].value = attr.value
			continue
		}
		positions[attr.key] = len(deduped)
		deduped = append(deduped, attr)
	}
	return deduped
}

func flattenAttrs(dst *[]kv, prefix []string, attrs []slog.Attr) {
	for _, attr := range attrs {
		flattenAttr(dst, prefix, attr)
	}
}

func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(slices.Clone(prefix), attr.Key)
		}
		flattenAttrs(dst, next, attr.Value.Group())
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(append(slices.Clone(prefix), key), ".")
	}
	*dst = append(*dst, kv{key: key, value: attr.Value})
}
