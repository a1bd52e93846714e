package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := openTemp(t)
	if err := l.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	id, err := l.BeginBatch(ctx, Batch{Source: "swarm.txt", Jobs: 2, Workers: 2, Shell: "bash"})
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	if len(id) != 36 {
		t.Fatalf("expected uuid batch id, got %q", id)
	}

	runs := []JobRun{
		{BatchID: id, Index: 0, Name: "1", Command: "echo a", OK: true, Elapsed: 1500 * time.Millisecond, PID: 10},
		{BatchID: id, Index: 1, Name: "2", Command: "exit 3", ExitCode: 3, Error: "exit status 3", WorkDir: "/tmp"},
	}
	for _, r := range runs {
		if err := l.RecordJob(ctx, r); err != nil {
			t.Fatalf("RecordJob: %v", err)
		}
	}
	if err := l.FinishBatch(ctx, id, 1); err != nil {
		t.Fatalf("FinishBatch: %v", err)
	}

	b, err := l.Batch(ctx, id)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if b.Source != "swarm.txt" || b.Jobs != 2 || b.Failed != 1 || b.FinishedAt.IsZero() || b.StartedAt.IsZero() {
		t.Fatalf("unexpected batch: %+v", b)
	}

	got, err := l.Runs(ctx, id)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(got))
	}
	if !got[0].OK || got[0].Elapsed != 1500*time.Millisecond || got[0].PID != 10 {
		t.Fatalf("runs[0] = %+v", got[0])
	}
	if got[1].OK || got[1].ExitCode != 3 || got[1].Error != "exit status 3" || got[1].WorkDir != "/tmp" {
		t.Fatalf("runs[1] = %+v", got[1])
	}
}

func TestLedgerSucceeded(t *testing.T) {
	ctx := context.Background()
	l := openTemp(t)

	first, _ := l.BeginBatch(ctx, Batch{Jobs: 2, Workers: 1})
	_ = l.RecordJob(ctx, JobRun{BatchID: first, Index: 0, Command: "step a", OK: true})
	_ = l.RecordJob(ctx, JobRun{BatchID: first, Index: 1, Command: "step b", ExitCode: 1})

	second, _ := l.BeginBatch(ctx, Batch{Jobs: 1, Workers: 1})
	_ = l.RecordJob(ctx, JobRun{BatchID: second, Index: 0, Command: "step c", ExitCode: 2})

	done, err := l.Succeeded(ctx, []string{"step a", "step b", "step c", "step d"})
	if err != nil {
		t.Fatalf("Succeeded: %v", err)
	}
	if len(done) != 1 || !done["step a"] {
		t.Fatalf("Succeeded = %v, want only step a", done)
	}

	empty, err := l.Succeeded(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("Succeeded(nil) = %v, %v", empty, err)
	}
}

func TestLedgerReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, _ := l.BeginBatch(ctx, Batch{Jobs: 1, Workers: 1})
	_ = l.RecordJob(ctx, JobRun{BatchID: id, Command: "persisted", OK: true})
	_ = l.Close()

	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()
	done, err := l.Succeeded(ctx, []string{"persisted"})
	if err != nil || !done["persisted"] {
		t.Fatalf("Succeeded after reopen = %v, %v", done, err)
	}
}

func TestFinishBatchUnknown(t *testing.T) {
	l := openTemp(t)
	if err := l.FinishBatch(context.Background(), "missing", 0); err == nil {
		t.Fatalf("expected error for unknown batch")
	}
}

func TestCommandHash(t *testing.T) {
	if CommandHash("a") == CommandHash("b") {
		t.Fatalf("different commands should hash differently")
	}
	if got := CommandHash(""); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("CommandHash(\"\") = %s", got)
	}
}
