package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketWorkflow = []byte("workflow")
	keyStages      = []byte("stages")
)

// Manager owns the ordered set of stages. All mutations write through to
// the database inside the manager lock, so the in-memory slice and the
// persisted definition never diverge.
type Manager struct {
	mu      sync.RWMutex
	db      *bolt.DB
	stages  []Stage
	version uint64
	logger  *slog.Logger
}

// NewManager loads the workflow definition from the database, seeding it
// with the given stages on first run. Seed stages only need Name, Color
// and Visible; ids and order are assigned here.
func NewManager(db *bolt.DB, seed []Stage, logger *slog.Logger) (*Manager, error) {
	m := &Manager{db: db, logger: logger}

	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketWorkflow)
		if err != nil {
			return fmt.Errorf("failed to create workflow bucket: %w", err)
		}

		data := b.Get(keyStages)
		if data != nil {
			if err := json.Unmarshal(data, &m.stages); err != nil {
				return fmt.Errorf("failed to parse stored workflow: %w", err)
			}
			sortStages(m.stages)
			return nil
		}

		// First run: seed the default workflow
		if len(seed) == 0 {
			seed = DefaultStages
		}
		for i, s := range seed {
			m.stages = append(m.stages, Stage{
				ID:      uuid.New().String(),
				Name:    s.Name,
				Order:   i,
				Color:   s.Color,
				Visible: s.Visible,
			})
		}

		data, err = json.Marshal(m.stages)
		if err != nil {
			return fmt.Errorf("failed to marshal workflow: %w", err)
		}
		return b.Put(keyStages, data)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("workflow loaded", "stages", len(m.stages))
	return m, nil
}

// Stages returns all stages ordered by Order ascending. The returned
// slice is a copy; callers cannot mutate manager state through it.
func (m *Manager) Stages() []Stage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Stage(nil), m.stages...)
}

// VisibleStages returns the stages shown as Kanban columns. Hidden
// stages stay out of the result but remain valid transition targets.
func (m *Manager) VisibleStages() []Stage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	visible := make([]Stage, 0, len(m.stages))
	for _, s := range m.stages {
		if s.Visible {
			visible = append(visible, s)
		}
	}
	return visible
}

// StageByName looks a stage up by its unique name.
func (m *Manager) StageByName(name string) (Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.stages {
		if s.Name == name {
			return s, nil
		}
	}
	return Stage{}, fmt.Errorf("%w: unknown stage %q", ErrInvalidStage, name)
}

// StageByID looks a stage up by id.
func (m *Manager) StageByID(id string) (Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.stages {
		if s.ID == id {
			return s, nil
		}
	}
	return Stage{}, fmt.Errorf("%w: unknown stage id %q", ErrInvalidStage, id)
}

// Version is incremented on every workflow mutation. Used together with
// the application store version as the analytics cache key.
func (m *Manager) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Add appends a new visible stage at the end of the pipeline.
func (m *Manager) Add(name, color string) (Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.stages {
		if s.Name == name {
			return Stage{}, fmt.Errorf("%w: %q", ErrDuplicateStage, name)
		}
	}

	stage := Stage{
		ID:      uuid.New().String(),
		Name:    name,
		Order:   len(m.stages),
		Color:   color,
		Visible: true,
	}
	m.stages = append(m.stages, stage)

	if err := m.persistLocked(); err != nil {
		m.stages = m.stages[:len(m.stages)-1]
		return Stage{}, err
	}

	m.logger.Info("stage added", "stage", name, "order", stage.Order)
	return stage, nil
}

// Rename changes a stage name. It returns the old name so the caller can
// cascade the rename to applications referencing the stage.
func (m *Manager) Rename(id, newName string) (oldName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexByIDLocked(id)
	if idx < 0 {
		return "", fmt.Errorf("%w: unknown stage id %q", ErrInvalidStage, id)
	}
	for _, s := range m.stages {
		if s.Name == newName && s.ID != id {
			return "", fmt.Errorf("%w: %q", ErrDuplicateStage, newName)
		}
	}

	oldName = m.stages[idx].Name
	m.stages[idx].Name = newName

	if err := m.persistLocked(); err != nil {
		m.stages[idx].Name = oldName
		return "", err
	}

	m.logger.Info("stage renamed", "from", oldName, "to", newName)
	return oldName, nil
}

// Reorder moves a stage to the requested position and renormalizes all
// Order values to a dense 0..n-1 sequence. newOrder is clamped to the
// valid index range.
func (m *Manager) Reorder(id string, newOrder int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexByIDLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: unknown stage id %q", ErrInvalidStage, id)
	}

	if newOrder < 0 {
		newOrder = 0
	}
	if newOrder > len(m.stages)-1 {
		newOrder = len(m.stages) - 1
	}

	prev := append([]Stage(nil), m.stages...)

	moved := m.stages[idx]
	rest := append(m.stages[:idx:idx], m.stages[idx+1:]...)
	m.stages = append(rest[:newOrder:newOrder], append([]Stage{moved}, rest[newOrder:]...)...)
	for i := range m.stages {
		m.stages[i].Order = i
	}

	if err := m.persistLocked(); err != nil {
		m.stages = prev
		return err
	}

	m.logger.Info("stage reordered", "stage", moved.Name, "order", newOrder)
	return nil
}

// SetVisibility toggles whether a stage is shown as a Kanban column.
func (m *Manager) SetVisibility(id string, visible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexByIDLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: unknown stage id %q", ErrInvalidStage, id)
	}

	prev := m.stages[idx].Visible
	m.stages[idx].Visible = visible

	if err := m.persistLocked(); err != nil {
		m.stages[idx].Visible = prev
		return err
	}
	return nil
}

// Remove deletes a stage and renormalizes the remaining Order values.
// Reference policy (block vs reassign) is enforced by the transition
// engine, which owns both stores; the workflow manager itself has no
// knowledge of applications.
func (m *Manager) Remove(id string) (Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexByIDLocked(id)
	if idx < 0 {
		return Stage{}, fmt.Errorf("%w: unknown stage id %q", ErrInvalidStage, id)
	}

	prev := append([]Stage(nil), m.stages...)
	removed := m.stages[idx]

	m.stages = append(m.stages[:idx:idx], m.stages[idx+1:]...)
	for i := range m.stages {
		m.stages[i].Order = i
	}

	if err := m.persistLocked(); err != nil {
		m.stages = prev
		return Stage{}, err
	}

	m.logger.Info("stage removed", "stage", removed.Name)
	return removed, nil
}

func (m *Manager) indexByIDLocked(id string) int {
	for i, s := range m.stages {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) persistLocked() error {
	data, err := json.Marshal(m.stages)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	err = m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkflow).Put(keyStages, data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist workflow: %w", err)
	}

	m.version++
	return nil
}

func sortStages(stages []Stage) {
	sort.Slice(stages, func(i, j int) bool {
		return stages[i].Order < stages[j].Order
	})
}
