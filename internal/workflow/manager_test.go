package workflow

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func testManager(t *testing.T) *Manager {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		t.Fatalf("bolt.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := NewManager(db, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func assertTotalOrder(t *testing.T, stages []Stage) {
	t.Helper()
	for i, s := range stages {
		if s.Order != i {
			t.Errorf("stages[%d].Order = %d, want %d", i, s.Order, i)
		}
	}
}

func TestNewManagerSeedsDefaults(t *testing.T) {
	m := testManager(t)

	stages := m.Stages()
	if len(stages) != len(DefaultStages) {
		t.Fatalf("len(Stages()) = %d, want %d", len(stages), len(DefaultStages))
	}
	for i, s := range stages {
		if s.Name != DefaultStages[i].Name {
			t.Errorf("Stages()[%d].Name = %q, want %q", i, s.Name, DefaultStages[i].Name)
		}
		if s.ID == "" {
			t.Errorf("Stages()[%d].ID is empty", i)
		}
	}
	assertTotalOrder(t, stages)
}

func TestManagerPersistsAcrossReload(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		t.Fatalf("bolt.Open() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m, err := NewManager(db, nil, logger)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := m.Add("Phone Screen", "#8884D8"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	db.Close()

	db, err = bolt.Open(dbPath, 0600, nil)
	if err != nil {
		t.Fatalf("bolt.Open() reopen error = %v", err)
	}
	defer db.Close()

	m2, err := NewManager(db, nil, logger)
	if err != nil {
		t.Fatalf("NewManager() reload error = %v", err)
	}
	if _, err := m2.StageByName("Phone Screen"); err != nil {
		t.Errorf("StageByName() after reload error = %v", err)
	}
	if len(m2.Stages()) != len(DefaultStages)+1 {
		t.Errorf("len(Stages()) after reload = %d, want %d", len(m2.Stages()), len(DefaultStages)+1)
	}
}

func TestStageByName(t *testing.T) {
	m := testManager(t)

	s, err := m.StageByName("Interview")
	if err != nil {
		t.Fatalf("StageByName() error = %v", err)
	}
	if s.Name != "Interview" {
		t.Errorf("StageByName().Name = %q, want Interview", s.Name)
	}

	_, err = m.StageByName("Ghosted")
	if !errors.Is(err, ErrInvalidStage) {
		t.Errorf("StageByName() error = %v, want ErrInvalidStage", err)
	}
}

func TestAddDuplicate(t *testing.T) {
	m := testManager(t)

	_, err := m.Add("Interview", "")
	if !errors.Is(err, ErrDuplicateStage) {
		t.Errorf("Add() error = %v, want ErrDuplicateStage", err)
	}
}

func TestRename(t *testing.T) {
	m := testManager(t)

	s, _ := m.StageByName("Offer")
	old, err := m.Rename(s.ID, "Offer Received")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if old != "Offer" {
		t.Errorf("Rename() old = %q, want Offer", old)
	}
	if _, err := m.StageByName("Offer Received"); err != nil {
		t.Errorf("StageByName() after rename error = %v", err)
	}

	// Renaming onto an existing name is rejected
	s2, _ := m.StageByName("Applied")
	if _, err := m.Rename(s2.ID, "Interview"); !errors.Is(err, ErrDuplicateStage) {
		t.Errorf("Rename() error = %v, want ErrDuplicateStage", err)
	}

	// Unknown id
	if _, err := m.Rename("nope", "X"); !errors.Is(err, ErrInvalidStage) {
		t.Errorf("Rename() error = %v, want ErrInvalidStage", err)
	}
}

func TestReorderToFront(t *testing.T) {
	m := testManager(t)

	s, _ := m.StageByName("Offer")
	if err := m.Reorder(s.ID, 0); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}

	stages := m.Stages()
	if stages[0].Name != "Offer" {
		t.Errorf("Stages()[0].Name = %q, want Offer", stages[0].Name)
	}
	wantOrder := []string{"Offer", "Applied", "Interview", "Rejected"}
	for i, name := range wantOrder {
		if stages[i].Name != name {
			t.Errorf("Stages()[%d].Name = %q, want %q", i, stages[i].Name, name)
		}
	}
	assertTotalOrder(t, stages)
}

func TestReorderClampsOutOfRange(t *testing.T) {
	m := testManager(t)

	s, _ := m.StageByName("Applied")
	if err := m.Reorder(s.ID, 99); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}

	stages := m.Stages()
	if stages[len(stages)-1].Name != "Applied" {
		t.Errorf("last stage = %q, want Applied", stages[len(stages)-1].Name)
	}
	assertTotalOrder(t, stages)

	if err := m.Reorder("nope", 0); !errors.Is(err, ErrInvalidStage) {
		t.Errorf("Reorder() error = %v, want ErrInvalidStage", err)
	}
}

func TestSetVisibility(t *testing.T) {
	m := testManager(t)

	s, _ := m.StageByName("Rejected")
	if err := m.SetVisibility(s.ID, false); err != nil {
		t.Fatalf("SetVisibility() error = %v", err)
	}

	for _, v := range m.VisibleStages() {
		if v.Name == "Rejected" {
			t.Error("VisibleStages() still contains hidden stage")
		}
	}

	// Hidden stages remain valid transition targets
	if _, err := m.StageByName("Rejected"); err != nil {
		t.Errorf("StageByName() for hidden stage error = %v", err)
	}
}

func TestRemove(t *testing.T) {
	m := testManager(t)

	s, _ := m.StageByName("Rejected")
	removed, err := m.Remove(s.ID)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if removed.Name != "Rejected" {
		t.Errorf("Remove().Name = %q, want Rejected", removed.Name)
	}

	if _, err := m.StageByName("Rejected"); !errors.Is(err, ErrInvalidStage) {
		t.Errorf("StageByName() after remove error = %v, want ErrInvalidStage", err)
	}
	assertTotalOrder(t, m.Stages())
}

func TestVersionBumpsOnMutation(t *testing.T) {
	m := testManager(t)

	v := m.Version()
	if _, err := m.Add("Phone Screen", ""); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if m.Version() != v+1 {
		t.Errorf("Version() = %d, want %d", m.Version(), v+1)
	}
}
