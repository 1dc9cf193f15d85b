package logging

import (
	"context"
	"sync"
	"time"
)

const (
	defaultRemoteQueueSize = 256
	remoteSendTimeout      = 5 * time.Second
)

// RemoteEntry is one log line forwarded to a RemoteSink.
type RemoteEntry struct {
	Service string
	Level   Level
	Message string
	Extra   map[string]any
}

// RemoteSink receives forwarded log entries. Errors are dropped.
type RemoteSink interface {
	Log(ctx context.Context, entry RemoteEntry) error
}

type remoteQueue struct {
	sink    RemoteSink
	entries chan RemoteEntry
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
}

// RemoteLogger forwards entries to a RemoteSink from a single background
// goroutine. Logging never blocks: entries are dropped when the queue is
// full or after Close.
type RemoteLogger struct {
	queue   *remoteQueue
	service string
	level   Level
	fields  []Field
}

func NewRemote(sink RemoteSink, service string, level Level) *RemoteLogger {
	queue := &remoteQueue{
		sink:    sink,
		entries: make(chan RemoteEntry, defaultRemoteQueueSize),
		done:    make(chan struct{}),
	}
	go queue.run()
	return &RemoteLogger{queue: queue, service: service, level: level}
}

func (q *remoteQueue) run() {
	defer close(q.done)
	for entry := range q.entries {
		if q.sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), remoteSendTimeout)
		_ = q.sink.Log(ctx, entry)
		cancel()
	}
}

func (q *remoteQueue) enqueue(entry RemoteEntry) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.entries <- entry:
	default:
	}
}

// Close stops accepting entries and waits for queued ones to be sent or
// for ctx to end.
func (l *RemoteLogger) Close(ctx context.Context) error {
	if l == nil || l.queue == nil {
		return nil
	}
	q := l.queue
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.entries)
	}
	q.mu.Unlock()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *RemoteLogger) Enabled(level Level) bool {
	return l != nil && level >= l.level
}

func (l *RemoteLogger) With(fields ...Field) Logger {
	if l == nil {
		return Nop()
	}
	return &RemoteLogger{
		queue:   l.queue,
		service: l.service,
		level:   l.level,
		fields:  append(append([]Field{}, l.fields...), fields...),
	}
}

func (l *RemoteLogger) Debug(msg string, fields ...Field) { l.log(Debug, msg, fields...) }
func (l *RemoteLogger) Info(msg string, fields ...Field)  { l.log(Info, msg, fields...) }
func (l *RemoteLogger) Warn(msg string, fields ...Field)  { l.log(Warn, msg, fields...) }
func (l *RemoteLogger) Error(msg string, fields ...Field) { l.log(Error, msg, fields...) }

func (l *RemoteLogger) log(level Level, msg string, fields ...Field) {
	if !l.Enabled(level) {
		return
	}
	var extra map[string]any
	if total := len(l.fields) + len(fields); total > 0 {
		extra = make(map[string]any, total)
		for _, field := range l.fields {
			extra[field.Key] = remoteValue(field.Value)
		}
		for _, field := range fields {
			extra[field.Key] = remoteValue(field.Value)
		}
	}
	l.queue.enqueue(RemoteEntry{
		Service: l.service,
		Level:   level,
		Message: msg,
		Extra:   extra,
	})
}

func remoteValue(value any) any {
	switch v := value.(type) {
	case error:
		return v.Error()
	case time.Duration:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
