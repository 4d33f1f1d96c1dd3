package transition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/trailhq/jobtrail/internal/application"
	"github.com/trailhq/jobtrail/internal/workflow"
)

func testEngine(t *testing.T, cfg Config) (*Engine, *application.BoltStore, *workflow.Manager) {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	if err != nil {
		t.Fatalf("bolt.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	wf, err := workflow.NewManager(db, nil, logger)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	store, err := application.NewBoltStore(db, wf)
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}

	return New(store, wf, cfg, logger), store, wf
}

func TestTransitionAppendsAuditEntry(t *testing.T) {
	engine, store, _ := testEngine(t, Config{})
	ctx := context.Background()

	app, _ := store.Add(ctx, application.Draft{Company: "Initech", Stage: "Applied"})

	updated, err := engine.Transition(ctx, app.ID, "Interview", application.SourceManual, nil)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	if updated.Stage != "Interview" {
		t.Errorf("Stage = %q, want Interview", updated.Stage)
	}
	if len(updated.Logs) != 2 {
		t.Fatalf("len(Logs) = %d, want 2", len(updated.Logs))
	}

	entry := updated.Logs[1]
	if entry.FromStage == nil || *entry.FromStage != "Applied" {
		t.Errorf("entry.FromStage = %v, want Applied", entry.FromStage)
	}
	if entry.ToStage != "Interview" {
		t.Errorf("entry.ToStage = %q, want Interview", entry.ToStage)
	}
	if entry.Source != application.SourceManual {
		t.Errorf("entry.Source = %q, want manual", entry.Source)
	}
	if !updated.LastUpdated.Equal(entry.Date) {
		t.Errorf("LastUpdated = %v, want entry date %v", updated.LastUpdated, entry.Date)
	}

	// Committed, not just returned
	fresh, _ := store.Get(ctx, app.ID)
	if fresh.Stage != "Interview" || len(fresh.Logs) != 2 {
		t.Errorf("stored state = %q/%d logs, want Interview/2", fresh.Stage, len(fresh.Logs))
	}
}

func TestTransitionNotFound(t *testing.T) {
	engine, _, _ := testEngine(t, Config{})

	_, err := engine.Transition(context.Background(), "nonexistent", "Interview", application.SourceManual, nil)
	if !errors.Is(err, application.ErrNotFound) {
		t.Errorf("Transition() error = %v, want ErrNotFound", err)
	}
}

func TestTransitionInvalidStageLeavesStateUntouched(t *testing.T) {
	engine, store, _ := testEngine(t, Config{})
	ctx := context.Background()

	app, _ := store.Add(ctx, application.Draft{Company: "Initech", Stage: "Applied"})

	_, err := engine.Transition(ctx, app.ID, "Ghosted", application.SourceManual, nil)
	if !errors.Is(err, workflow.ErrInvalidStage) {
		t.Fatalf("Transition() error = %v, want ErrInvalidStage", err)
	}

	fresh, _ := store.Get(ctx, app.ID)
	if fresh.Stage != "Applied" || len(fresh.Logs) != 1 {
		t.Errorf("failed transition mutated state: %q/%d logs", fresh.Stage, len(fresh.Logs))
	}
}

func TestTransitionIdempotent(t *testing.T) {
	engine, store, _ := testEngine(t, Config{})
	ctx := context.Background()

	app, _ := store.Add(ctx, application.Draft{Company: "Initech", Stage: "Applied"})

	first, err := engine.Transition(ctx, app.ID, "Interview", application.SourceManual, nil)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	second, err := engine.Transition(ctx, app.ID, "Interview", application.SourceManual, nil)
	if err != nil {
		t.Fatalf("Transition() repeat error = %v", err)
	}

	if len(first.Logs) != 2 {
		t.Errorf("len(Logs) after first = %d, want 2", len(first.Logs))
	}
	if len(second.Logs) != 2 {
		t.Errorf("len(Logs) after repeat = %d, want 2 (one append, not two)", len(second.Logs))
	}
	if second.Stage != "Interview" {
		t.Errorf("Stage after repeat = %q, want Interview", second.Stage)
	}
}

func TestTransitionBackward(t *testing.T) {
	engine, store, _ := testEngine(t, Config{})
	ctx := context.Background()

	app, _ := store.Add(ctx, application.Draft{Company: "Initech", Stage: "Applied"})

	// Any stage can move to any other stage, including backward
	if _, err := engine.Transition(ctx, app.ID, "Offer", application.SourceManual, nil); err != nil {
		t.Fatalf("Transition(Offer) error = %v", err)
	}
	updated, err := engine.Transition(ctx, app.ID, "Applied", application.SourceManual, nil)
	if err != nil {
		t.Fatalf("Transition(Applied) error = %v", err)
	}
	if updated.Stage != "Applied" {
		t.Errorf("Stage = %q, want Applied", updated.Stage)
	}
	if len(updated.Logs) != 3 {
		t.Errorf("len(Logs) = %d, want 3", len(updated.Logs))
	}
}

func TestSameStageWithNewEmailEvidence(t *testing.T) {
	engine, store, _ := testEngine(t, Config{})
	ctx := context.Background()

	app, _ := store.Add(ctx, application.Draft{Company: "Initech", Stage: "Applied"})

	meta := &Meta{EmailID: "email-1", EmailTitle: "Interview invitation"}
	updated, err := engine.Transition(ctx, app.ID, "Interview", application.SourceImport, meta)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if len(updated.Logs) != 2 {
		t.Fatalf("len(Logs) = %d, want 2", len(updated.Logs))
	}

	// Re-importing the same email is a no-op
	repeat, err := engine.Transition(ctx, app.ID, "Interview", application.SourceImport, meta)
	if err != nil {
		t.Fatalf("Transition() repeat error = %v", err)
	}
	if len(repeat.Logs) != 2 {
		t.Errorf("len(Logs) after re-import = %d, want 2", len(repeat.Logs))
	}

	// A different email in the same stage is new evidence
	other := &Meta{EmailID: "email-2", EmailTitle: "Schedule confirmation"}
	evidence, err := engine.Transition(ctx, app.ID, "Interview", application.SourceImport, other)
	if err != nil {
		t.Fatalf("Transition() evidence error = %v", err)
	}
	if len(evidence.Logs) != 3 {
		t.Fatalf("len(Logs) with new evidence = %d, want 3", len(evidence.Logs))
	}
	entry := evidence.Logs[2]
	if entry.FromStage == nil || *entry.FromStage != "Interview" {
		t.Errorf("evidence entry FromStage = %v, want Interview", entry.FromStage)
	}
	if entry.EmailID != "email-2" {
		t.Errorf("evidence entry EmailID = %q, want email-2", entry.EmailID)
	}
}

func TestSameStageManualIsNoop(t *testing.T) {
	engine, store, _ := testEngine(t, Config{})
	ctx := context.Background()

	app, _ := store.Add(ctx, application.Draft{Company: "Initech", Stage: "Applied"})

	updated, err := engine.Transition(ctx, app.ID, "Applied", application.SourceManual, nil)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if len(updated.Logs) != 1 {
		t.Errorf("len(Logs) = %d, want 1 (no append without new evidence)", len(updated.Logs))
	}
}

func TestMetaOverridesDateAndMessage(t *testing.T) {
	engine, store, _ := testEngine(t, Config{})
	ctx := context.Background()

	app, _ := store.Add(ctx, application.Draft{Company: "Initech", Stage: "Applied"})

	date := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	meta := &Meta{Message: "Recruiter call", Date: date}
	updated, err := engine.Transition(ctx, app.ID, "Interview", application.SourceManual, meta)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	entry := updated.Logs[1]
	if entry.Message != "Recruiter call" {
		t.Errorf("entry.Message = %q, want Recruiter call", entry.Message)
	}
	if !entry.Date.Equal(date) {
		t.Errorf("entry.Date = %v, want %v", entry.Date, date)
	}
	if !updated.LastUpdated.Equal(date) {
		t.Errorf("LastUpdated = %v, want %v", updated.LastUpdated, date)
	}
}

func TestRemoveStageBlocked(t *testing.T) {
	engine, store, wf := testEngine(t, Config{RemovalPolicy: RemovalBlock})
	ctx := context.Background()

	store.Add(ctx, application.Draft{Company: "Initech", Stage: "Interview"})

	s, _ := wf.StageByName("Interview")
	err := engine.RemoveStage(ctx, s.ID)
	if !errors.Is(err, workflow.ErrStageInUse) {
		t.Fatalf("RemoveStage() error = %v, want ErrStageInUse", err)
	}
	if _, err := wf.StageByName("Interview"); err != nil {
		t.Errorf("blocked removal still removed the stage: %v", err)
	}
}

func TestRemoveStageUnreferenced(t *testing.T) {
	engine, _, wf := testEngine(t, Config{RemovalPolicy: RemovalBlock})

	s, _ := wf.StageByName("Rejected")
	if err := engine.RemoveStage(context.Background(), s.ID); err != nil {
		t.Fatalf("RemoveStage() error = %v", err)
	}
	if _, err := wf.StageByName("Rejected"); !errors.Is(err, workflow.ErrInvalidStage) {
		t.Errorf("stage still present after removal: %v", err)
	}
}

func TestRemoveStageReassigns(t *testing.T) {
	engine, store, wf := testEngine(t, Config{
		RemovalPolicy: RemovalReassign,
		FallbackStage: "Applied",
	})
	ctx := context.Background()

	app, _ := store.Add(ctx, application.Draft{Company: "Initech", Stage: "Interview"})

	s, _ := wf.StageByName("Interview")
	if err := engine.RemoveStage(ctx, s.ID); err != nil {
		t.Fatalf("RemoveStage() error = %v", err)
	}

	if _, err := wf.StageByName("Interview"); !errors.Is(err, workflow.ErrInvalidStage) {
		t.Error("stage still present after reassigning removal")
	}

	fresh, _ := store.Get(ctx, app.ID)
	if fresh.Stage != "Applied" {
		t.Errorf("Stage = %q, want fallback Applied", fresh.Stage)
	}
	if len(fresh.Logs) != 2 {
		t.Fatalf("len(Logs) = %d, want 2 (reassignment audited)", len(fresh.Logs))
	}
	if fresh.Logs[1].Source != application.SourceSystem {
		t.Errorf("reassignment entry Source = %q, want system", fresh.Logs[1].Source)
	}
}

func TestRenameStageCascades(t *testing.T) {
	engine, store, wf := testEngine(t, Config{})
	ctx := context.Background()

	app, _ := store.Add(ctx, application.Draft{Company: "Initech", Stage: "Interview"})

	s, _ := wf.StageByName("Interview")
	if err := engine.RenameStage(ctx, s.ID, "Phone Screen"); err != nil {
		t.Fatalf("RenameStage() error = %v", err)
	}

	fresh, _ := store.Get(ctx, app.ID)
	if fresh.Stage != "Phone Screen" {
		t.Errorf("Stage = %q, want Phone Screen", fresh.Stage)
	}
	// Audit entries keep the historical name
	if fresh.Logs[0].ToStage != "Interview" {
		t.Errorf("audit entry rewritten: ToStage = %q, want Interview", fresh.Logs[0].ToStage)
	}
}
