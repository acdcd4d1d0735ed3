package logbus

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

type Message struct {
	Type string `json:"type"`
	Time int64  `json:"time"`
	Data any    `json:"data"`
}

type LogData struct {
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

var levelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// Rank orders levels; unknown levels sort with info.
func Rank(level string) int {
	if r, ok := levelRank[strings.ToLower(strings.TrimSpace(level))]; ok {
		return r
	}
	return levelRank["info"]
}

type Bus struct {
	mu     sync.RWMutex
	buf    []Message
	cap    int
	subs   map[chan Message]struct{}
	closed bool

	sink     io.Writer
	minLevel int
	service  string
}

type Option func(*Bus)

// WithSink writes every log entry at or above level as one JSON line.
func WithSink(w io.Writer, level string) Option {
	return func(b *Bus) {
		b.sink = w
		b.minLevel = Rank(level)
	}
}

func WithService(name string) Option {
	return func(b *Bus) { b.service = name }
}

func New(capacity int, opts ...Option) *Bus {
	if capacity <= 0 {
		capacity = 200
	}
	b := &Bus{
		cap:  capacity,
		buf:  make([]Message, 0, capacity),
		subs: make(map[chan Message]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.buf = nil
}

func (b *Bus) Snapshot() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Message, len(b.buf))
	copy(out, b.buf)
	return out
}

func (b *Bus) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Message, buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if b.subs != nil {
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) Publish(typ string, data any) {
	msg := Message{
		Type: typ,
		Time: time.Now().UnixMilli(),
		Data: data,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.buf) < b.cap {
		b.buf = append(b.buf, msg)
	} else if b.cap > 0 {
		copy(b.buf, b.buf[1:])
		b.buf[b.cap-1] = msg
	}
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *Bus) Log(level, message string, fields map[string]any) {
	if b == nil {
		return
	}
	level = strings.ToLower(strings.TrimSpace(level))
	fields = normalize(fields)
	b.Publish("log", LogData{Level: level, Msg: message, Fields: fields})
	b.writeSink(level, message, fields)
}

// With returns a Logger that adds fields to every entry.
func (b *Bus) With(fields map[string]any) *Logger {
	return &Logger{bus: b, fields: fields}
}

func (b *Bus) writeSink(level, message string, fields map[string]any) {
	if b.sink == nil || Rank(level) < b.minLevel {
		return
	}
	entry := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["msg"] = message
	if b.service != "" {
		entry["service"] = b.service
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line = append(line, '\n')

	b.mu.Lock()
	_, _ = b.sink.Write(line)
	b.mu.Unlock()
}

// normalize copies fields, replacing error values with their message so they
// survive JSON encoding.
func normalize(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return fields
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		out[k] = v
	}
	return out
}

type Logger struct {
	bus    *Bus
	fields map[string]any
}

func (l *Logger) With(fields map[string]any) *Logger {
	if l == nil {
		return &Logger{fields: fields}
	}
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{bus: l.bus, fields: merged}
}

func (l *Logger) Log(level, message string, fields map[string]any) {
	if l == nil || l.bus == nil {
		return
	}
	l.bus.Log(level, message, l.With(fields).fields)
}

func (l *Logger) Debug(message string, fields map[string]any) { l.Log("debug", message, fields) }
func (l *Logger) Info(message string, fields map[string]any)  { l.Log("info", message, fields) }
func (l *Logger) Warn(message string, fields map[string]any)  { l.Log("warn", message, fields) }
func (l *Logger) Error(message string, fields map[string]any) { l.Log("error", message, fields) }
