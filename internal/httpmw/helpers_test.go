package httpmw

import (
	"context"
	"sync"

	"github.com/keithlinneman/edgesite/internal/log"
)

type captured struct {
	level  string
	msg    string
	err    error
	fields []any
}

// spyLogger records every call. With returns the same spy with the fields
// appended so enrichment is visible on later entries.
type spyLogger struct {
	mu      *sync.Mutex
	base    []any
	entries *[]captured
}

func newSpyLogger() *spyLogger {
	return &spyLogger{mu: &sync.Mutex{}, entries: &[]captured{}}
}

func (s *spyLogger) With(kv ...any) log.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := append(append([]any{}, s.base...), kv...)
	return &spyLogger{mu: s.mu, base: base, entries: s.entries}
}

func (s *spyLogger) record(level string, err error, msg string, kv []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields := append(append([]any{}, s.base...), kv...)
	*s.entries = append(*s.entries, captured{level: level, msg: msg, err: err, fields: fields})
}

func (s *spyLogger) Debug(_ context.Context, msg string, kv ...any) { s.record("debug", nil, msg, kv) }
func (s *spyLogger) Info(_ context.Context, msg string, kv ...any)  { s.record("info", nil, msg, kv) }
func (s *spyLogger) Warn(_ context.Context, msg string, kv ...any)  { s.record("warn", nil, msg, kv) }
func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.record("error", err, msg, kv)
}
func (s *spyLogger) Sync() error { return nil }

func (s *spyLogger) all() []captured {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]captured{}, *s.entries...)
}

func field(fields []any, key string) (any, bool) {
	for i := 0; i+1 < len(fields); i += 2 {
		if k, _ := fields[i].(string); k == key {
			return fields[i+1], true
		}
	}
	return nil, false
}
