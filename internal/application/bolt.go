package application

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketApplications = []byte("applications")

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db      *bolt.DB
	stages  StageResolver
	version atomic.Uint64
	now     func() time.Time
}

// OpenDB opens (or creates) the shared database file. The application
// store, workflow manager and import ledger all keep their buckets in
// this one database.
func OpenDB(path string) (*bolt.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// NewBoltStore wraps an open database, creating the applications bucket
// if needed. The stage resolver validates draft stage names on Add;
// pass the workflow manager.
func NewBoltStore(db *bolt.DB, stages StageResolver) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketApplications)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create applications bucket: %w", err)
	}
	return &BoltStore{db: db, stages: stages, now: time.Now}, nil
}

// List returns all applications ordered by DateApplied ascending
func (s *BoltStore) List(ctx context.Context) ([]*Application, error) {
	var apps []*Application

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketApplications).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var app Application
			if err := json.Unmarshal(v, &app); err != nil {
				return fmt.Errorf("failed to unmarshal application %s: %w", k, err)
			}
			apps = append(apps, &app)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(apps, func(i, j int) bool {
		if apps[i].DateApplied.Equal(apps[j].DateApplied) {
			return apps[i].ID < apps[j].ID
		}
		return apps[i].DateApplied.Before(apps[j].DateApplied)
	})
	return apps, nil
}

// Get retrieves an application by id
func (s *BoltStore) Get(ctx context.Context, id string) (*Application, error) {
	var app *Application

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketApplications).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		app = &Application{}
		return json.Unmarshal(data, app)
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Add creates a new application from a draft. The audit log is seeded
// with the creation entry (FromStage nil, source manual).
func (s *BoltStore) Add(ctx context.Context, draft Draft) (*Application, error) {
	if _, err := s.stages.StageByName(draft.Stage); err != nil {
		return nil, err
	}

	now := s.now()
	dateApplied := draft.DateApplied
	if dateApplied.IsZero() {
		dateApplied = now
	}

	app := &Application{
		ID:          uuid.New().String(),
		Company:     draft.Company,
		Position:    draft.Position,
		DateApplied: dateApplied,
		Stage:       draft.Stage,
		Type:        draft.Type,
		Tags:        append([]string(nil), draft.Tags...),
		LastUpdated: now,
		Description: draft.Description,
		Salary:      draft.Salary,
		Location:    draft.Location,
		Notes:       draft.Notes,
		Logs: []AuditEntry{{
			ID:      uuid.New().String(),
			Date:    now,
			ToStage: draft.Stage,
			Message: fmt.Sprintf("Application created in stage %s", draft.Stage),
			Source:  SourceManual,
		}},
	}

	if err := s.put(app); err != nil {
		return nil, err
	}
	s.version.Add(1)
	return app.Clone(), nil
}

// UpdateFields merges non-stage fields into an application. No audit
// entry is appended; LastUpdated is left alone so it keeps tracking the
// most recent log entry.
func (s *BoltStore) UpdateFields(ctx context.Context, id string, patch FieldPatch) (*Application, error) {
	return s.Mutate(ctx, id, func(app *Application) error {
		patch.apply(app)
		return nil
	})
}

// Delete removes an application and its logs permanently
func (s *BoltStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketApplications)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return err
	}
	s.version.Add(1)
	return nil
}

// Mutate runs fn against the stored application inside one write
// transaction. Either the whole mutation commits or none of it does;
// bbolt allows a single writer at a time, so read-modify-write
// sequences for the same application can never interleave.
func (s *BoltStore) Mutate(ctx context.Context, id string, fn func(*Application) error) (*Application, error) {
	var app *Application
	changed := true

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketApplications)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		app = &Application{}
		if err := json.Unmarshal(data, app); err != nil {
			return fmt.Errorf("failed to unmarshal application %s: %w", id, err)
		}

		if err := fn(app); err != nil {
			if err == ErrUnchanged {
				changed = false
				return nil
			}
			return err
		}

		data, err := json.Marshal(app)
		if err != nil {
			return fmt.Errorf("failed to marshal application %s: %w", id, err)
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.version.Add(1)
	}
	return app, nil
}

// CountByStage returns how many applications currently sit in a stage
func (s *BoltStore) CountByStage(ctx context.Context, stage string) (int, error) {
	count := 0

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketApplications).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var app Application
			if err := json.Unmarshal(v, &app); err != nil {
				continue
			}
			if app.Stage == stage {
				count++
			}
		}
		return nil
	})
	return count, err
}

// StageCounts returns current application counts grouped by stage
func (s *BoltStore) StageCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketApplications).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var app Application
			if err := json.Unmarshal(v, &app); err != nil {
				continue
			}
			counts[app.Stage]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// RewriteStage renames current stage references in one transaction.
// Audit logs are untouched: historical entries keep the name the stage
// had when the transition happened.
func (s *BoltStore) RewriteStage(ctx context.Context, from, to string) (int, error) {
	touched := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketApplications)
		c := b.Cursor()

		type pending struct {
			key  []byte
			data []byte
		}
		var updates []pending

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var app Application
			if err := json.Unmarshal(v, &app); err != nil {
				continue
			}
			if app.Stage != from {
				continue
			}
			app.Stage = to
			data, err := json.Marshal(&app)
			if err != nil {
				return fmt.Errorf("failed to marshal application %s: %w", k, err)
			}
			updates = append(updates, pending{key: append([]byte{}, k...), data: data})
		}

		for _, u := range updates {
			if err := b.Put(u.key, u.data); err != nil {
				return err
			}
			touched++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if touched > 0 {
		s.version.Add(1)
	}
	return touched, nil
}

// Version returns the mutation counter
func (s *BoltStore) Version() uint64 {
	return s.version.Load()
}

// Close closes the database connection
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying bolt.DB instance
func (s *BoltStore) DB() *bolt.DB {
	return s.db
}

func (s *BoltStore) put(app *Application) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(app)
		if err != nil {
			return fmt.Errorf("failed to marshal application: %w", err)
		}
		return tx.Bucket(bucketApplications).Put([]byte(app.ID), data)
	})
}
