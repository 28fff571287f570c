package automation

import (
	"context"
	"testing"
)

func TestProcessPushed_BeforeDatabaseConnects(t *testing.T) {
	// Pushes can land during the listen-first startup window. They must
	// be a no-op, not a panic; the poll loop covers the entry later.
	d := &QueueDispatcher{Logger: quietLogger()}
	if err := d.ProcessPushed(context.Background(), "ws-1", 7); err != nil {
		t.Fatalf("push before DB connect must be dropped quietly, got %v", err)
	}
}
