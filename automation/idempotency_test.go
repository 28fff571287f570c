package automation

import (
	"errors"
	"testing"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

func TestEventKey_Deterministic(t *testing.T) {
	a := EventKey("ws-1", "deal", "42", 1700000000123456)
	b := EventKey("ws-1", "deal", "42", 1700000000123456)
	if a != b {
		t.Fatalf("identical tuples must produce identical keys")
	}
	if a != "ws-1:deal:42:1700000000123456" {
		t.Fatalf("unexpected key format: %s", a)
	}
	if EventKey("ws-2", "deal", "42", 1700000000123456) == a {
		t.Fatalf("different workspaces must not collide")
	}
}

func TestEventKeyRecord_MicroFallback(t *testing.T) {
	meta := &WebhookMeta{Object: "deal", Id: "42", Timestamp: 1700000000}
	rec := EventKeyRecord("ws-1", meta)
	if rec.TimestampMicro != 1700000000*1_000_000 {
		t.Fatalf("expected second-resolution timestamp widened, got %d", rec.TimestampMicro)
	}

	meta.TimestampMicro = 1700000000123456
	rec = EventKeyRecord("ws-1", meta)
	if rec.TimestampMicro != 1700000000123456 {
		t.Fatalf("expected explicit micro timestamp preserved, got %d", rec.TimestampMicro)
	}
	if rec.ObjectId != "42" {
		t.Fatalf("unexpected object id %q", rec.ObjectId)
	}
}

func TestEventKeyRecord_NumericId(t *testing.T) {
	// Senders encode ids as JSON numbers or strings interchangeably; both
	// must claim the same identity.
	asNumber := EventKeyRecord("ws-1", &WebhookMeta{Object: "deal", Id: float64(42), Timestamp: 1})
	asString := EventKeyRecord("ws-1", &WebhookMeta{Object: "deal", Id: "42", Timestamp: 1})
	if asNumber.ObjectId != asString.ObjectId {
		t.Fatalf("id encodings diverge: %q vs %q", asNumber.ObjectId, asString.ObjectId)
	}
}

func TestIsStale(t *testing.T) {
	now := time.Unix(1700000000, 0)

	fresh := &WebhookMeta{Timestamp: now.Add(-time.Hour).Unix()}
	if IsStale(fresh, 24*time.Hour, now) {
		t.Fatalf("hour-old event must not be stale under a 24h window")
	}

	old := &WebhookMeta{Timestamp: now.Add(-25 * time.Hour).Unix()}
	if !IsStale(old, 24*time.Hour, now) {
		t.Fatalf("25h-old event must be stale under a 24h window")
	}

	// Zero maxAge falls back to the default window.
	if IsStale(fresh, 0, now) {
		t.Fatalf("default window should keep fresh events")
	}
}

func TestClaimDurably_InsertFailureLeavesNoCacheEntry(t *testing.T) {
	// A transient insert error must not poison the duplicate cache:
	// the sender's redelivery has to get a clean attempt, not a drop.
	marked := false
	fail := errors.New("connection reset")

	won, err := claimDurably(
		func() bool { return marked },
		func() error { return fail },
		func() { marked = true },
	)
	if err == nil || won {
		t.Fatalf("expected insert error to surface, got won=%v err=%v", won, err)
	}
	if marked {
		t.Fatalf("cache must not be marked when the insert failed")
	}

	won, err = claimDurably(
		func() bool { return marked },
		func() error { return nil },
		func() { marked = true },
	)
	if err != nil || !won {
		t.Fatalf("redelivery after transient failure must claim, got won=%v err=%v", won, err)
	}
	if !marked {
		t.Fatalf("cache must be marked once the row is durable")
	}
}

func TestClaimDurably_DuplicateBackfillsCache(t *testing.T) {
	marked := false
	dup := &mysqlDriver.MySQLError{Number: 1062}

	won, err := claimDurably(
		func() bool { return marked },
		func() error { return dup },
		func() { marked = true },
	)
	if err != nil || won {
		t.Fatalf("unique-index rejection is a duplicate, got won=%v err=%v", won, err)
	}
	if !marked {
		t.Fatalf("known duplicate should backfill the cache")
	}

	calls := 0
	won, _ = claimDurably(
		func() bool { return marked },
		func() error { calls++; return nil },
		func() {},
	)
	if won || calls != 0 {
		t.Fatalf("cached duplicate must short-circuit before the insert, won=%v calls=%d", won, calls)
	}
}
