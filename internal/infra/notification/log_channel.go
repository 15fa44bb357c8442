package notification

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// LogChannel writes one line per notification to a writer.
type LogChannel struct {
	name string
	mu   sync.Mutex
	out  io.Writer
}

// NewLogChannel creates a LogChannel writing to out.
func NewLogChannel(name string, out io.Writer) *LogChannel {
	return &LogChannel{name: name, out: out}
}

func (l *LogChannel) Name() string { return l.name }

// Send writes "[timestamp] [PRIORITY] title: body".
func (l *LogChannel) Send(_ context.Context, n Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(l.out, "[%s] [%s] %s: %s\n", n.CreatedAt.UTC().Format(time.RFC3339), n.Priority, n.Title, n.Body)
	return err
}

func (l *LogChannel) Supports(NotificationPriority) bool { return true }
