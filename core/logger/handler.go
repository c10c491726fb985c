package logger

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

type logFormat int

const (
	formatJSON logFormat = iota
	formatKV
)

// defaultKeyOrder fixes the position of well-known keys so log lines stay
// scannable regardless of the order attributes were attached in.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "update_id", "chat_id", "user_id", "handler",
}

type handlerConfig struct {
	level    slog.Leveler
	writer   *lineWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders records as single KV or JSON lines with a fixed
// key order and context-derived correlation attributes.
type structuredHandler struct {
	cfg   handlerConfig
	attrs []slog.Attr
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if len(cfg.keyOrder) == 0 {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

// Enabled reports whether records at the given level should be handled.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.cfg.level != nil {
		min = h.cfg.level.Level()
	}
	return level >= min
}

// WithAttrs returns a handler that always emits the provided attributes.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup is accepted for interface compatibility; groups are flattened.
func (h *structuredHandler) WithGroup(string) slog.Handler {
	return h
}

type field struct {
	key string
	val slog.Value
}

// Handle renders the record into a single line and enqueues it for output.
func (h *structuredHandler) Handle(ctx context.Context, rec slog.Record) error {
	fields := make([]field, 0, rec.NumAttrs()+len(h.attrs)+8)
	seen := make(map[string]struct{}, rec.NumAttrs()+len(h.attrs)+8)
	add := func(key string, val slog.Value) {
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		fields = append(fields, field{key: key, val: val})
	}

	for _, a := range h.attrs {
		add(a.Key, a.Value)
	}
	rec.Attrs(func(a slog.Attr) bool {
		add(a.Key, a.Value)
		return true
	})

	ridRaw := ""
	if _, ok := seen["rid"]; !ok {
		if rid := RIDFrom(ctx); rid != "" {
			ridRaw = rid
			add("rid", slog.StringValue(CompactRID(rid)))
		}
	}
	if _, ok := seen["update_id"]; !ok {
		if id := UpdateIDFrom(ctx); id != 0 {
			add("update_id", slog.IntValue(id))
		}
	}
	if _, ok := seen["chat_id"]; !ok {
		if id := ChatIDFrom(ctx); id != 0 {
			add("chat_id", slog.Int64Value(id))
		}
	}
	if _, ok := seen["user_id"]; !ok {
		if id := UserIDFrom(ctx); id != 0 {
			add("user_id", slog.Int64Value(id))
		}
	}
	if _, ok := seen["handler"]; !ok {
		if hd := HandlerFrom(ctx); hd != "" {
			add("handler", slog.StringValue(hd))
		}
	}
	if rec.Message != "" {
		if _, ok := seen["msg"]; !ok {
			if _, ok := seen["event"]; !ok {
				add("event", slog.StringValue(rec.Message))
			} else {
				add("msg", slog.StringValue(rec.Message))
			}
		}
	}

	ordered := orderFields(fields, h.cfg.keyOrder)

	var line []byte
	switch h.cfg.format {
	case formatKV:
		line = renderKV(rec, ordered)
	default:
		line = renderJSON(rec, ordered, ridRaw)
	}
	if h.cfg.writer == nil {
		return nil
	}
	return h.cfg.writer.Write(line)
}

func orderFields(fields []field, keyOrder []string) []field {
	out := make([]field, 0, len(fields))
	used := make(map[string]struct{}, len(fields))
	for _, key := range keyOrder {
		for _, f := range fields {
			if f.key == key {
				out = append(out, f)
				used[key] = struct{}{}
				break
			}
		}
	}
	for _, f := range fields {
		if _, ok := used[f.key]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

func renderKV(rec slog.Record, fields []field) []byte {
	b := strings.Builder{}
	b.Grow(128)
	b.WriteString("ts=")
	b.WriteString(rec.Time.UTC().Format(time.RFC3339Nano))
	b.WriteString(" level=")
	b.WriteString(rec.Level.String())
	for _, f := range fields {
		b.WriteByte(' ')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(kvValue(f.val))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func kvValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t\"=") || s == "" {
			return strconv.Quote(s)
		}
		return s
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	default:
		s := v.String()
		if strings.ContainsAny(s, " \t\"=") {
			return strconv.Quote(s)
		}
		return s
	}
}

func renderJSON(rec slog.Record, fields []field, ridRaw string) []byte {
	b := strings.Builder{}
	b.Grow(192)
	b.WriteString(`{"ts":`)
	b.WriteString(strconv.Quote(rec.Time.UTC().Format(time.RFC3339Nano)))
	b.WriteString(`,"level":`)
	b.WriteString(strconv.Quote(rec.Level.String()))
	for _, f := range fields {
		b.WriteByte(',')
		b.WriteString(strconv.Quote(f.key))
		b.WriteByte(':')
		b.WriteString(jsonValue(f.val))
		if f.key == "rid" && ridRaw != "" {
			b.WriteString(`,"rid_full":`)
			b.WriteString(strconv.Quote(ridRaw))
		}
	}
	b.WriteString(`,"ts_unix_nano":`)
	b.WriteString(strconv.FormatInt(rec.Time.UnixNano(), 10))
	b.WriteString("}\n")
	return []byte(b.String())
}

func jsonValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return mustJSON(v.String())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindFloat64:
		return mustJSON(v.Float64())
	case slog.KindDuration:
		return mustJSON(v.Duration().String())
	case slog.KindTime:
		return mustJSON(v.Time().UTC().Format(time.RFC3339Nano))
	default:
		return mustJSON(v.Any())
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return strconv.Quote("unserializable")
	}
	return string(data)
}
