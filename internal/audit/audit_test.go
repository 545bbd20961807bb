package audit

import (
	"testing"
	"time"
)

func TestLoggerRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 4, 10, 59, 0, 0, time.UTC)
	l := NewLogger(dir, "audit", func() time.Time { return now })

	if err := l.Record(Entry{Time: now, Op: "init_army", Owner: "aa"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := l.Record(Entry{Time: now, Op: "battle", Owner: "aa", Outcome: "won"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	first := now
	now = now.Add(2 * time.Minute)
	if err := l.Record(Entry{Time: now, Op: "remove_zombie", Owner: "aa"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := ReadFile(l.PathForHour(first))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(entries) != 2 || entries[1].Outcome != "won" {
		t.Fatalf("unexpected first hour entries: %+v", entries)
	}

	entries, err = ReadFile(l.PathForHour(now))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Op != "remove_zombie" {
		t.Fatalf("unexpected second hour entries: %+v", entries)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	if err := l.Record(Entry{Op: "battle"}); err != nil {
		t.Fatalf("nil logger Record returned %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("nil logger Close returned %v", err)
	}
}

func TestEntriesReadableBeforeClose(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 4, 12, 5, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	l := NewLogger(dir, "audit", clock)

	if err := l.Record(Entry{Time: now, Op: "init_army", Owner: "bb"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := l.Record(Entry{Time: now, Op: "battle", Owner: "bb", Outcome: "lost"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := ReadFile(l.PathForHour(now))
	if err != nil {
		t.Fatalf("ReadFile on an open log failed: %v", err)
	}
	if len(entries) != 2 || entries[1].Outcome != "lost" {
		t.Fatalf("unexpected entries before close: %+v", entries)
	}

	// A restarted process appends to the same hour without closing the first logger.
	restarted := NewLogger(dir, "audit", clock)
	defer restarted.Close()
	if err := restarted.Record(Entry{Time: now, Op: "remove_zombie", Owner: "bb"}); err != nil {
		t.Fatalf("Record after restart failed: %v", err)
	}

	entries, err = ReadFile(l.PathForHour(now))
	if err != nil {
		t.Fatalf("ReadFile after restart failed: %v", err)
	}
	if len(entries) != 3 || entries[2].Op != "remove_zombie" {
		t.Fatalf("unexpected entries after restart: %+v", entries)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
