package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/trailhq/jobtrail/internal/application"
	"github.com/trailhq/jobtrail/internal/metrics"
	"github.com/trailhq/jobtrail/internal/transition"
	"github.com/trailhq/jobtrail/internal/workflow"
)

var bucketImports = []byte("imports")

// Email is one already-parsed, already-classified message handed to the
// importer by the email collaborator. Parsing and stage classification
// heuristics happen upstream; the importer only turns the result into
// store operations.
type Email struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Sender   string    `json:"sender"`
	Date     time.Time `json:"date"`
	Company  string    `json:"company"`
	Position string    `json:"position"`
	Stage    string    `json:"stage"` // Empty = first workflow stage
}

// Action describes what the importer did with one email
type Action string

const (
	ActionCreated      Action = "created"
	ActionTransitioned Action = "transitioned"
	ActionSkipped      Action = "skipped"
	ActionFailed       Action = "failed"
)

// Result is the per-email outcome of a Process call
type Result struct {
	EmailID       string `json:"email_id"`
	Action        Action `json:"action"`
	ApplicationID string `json:"application_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Importer turns imported emails into application creations and stage
// transitions. Processed email ids are remembered in an imports bucket
// so re-running a batch over the same mailbox is cheap; the transition
// engine's idempotence guard backstops anything that slips through.
type Importer struct {
	apps     application.Store
	engine   *transition.Engine
	workflow *workflow.Manager
	db       *bolt.DB
	logger   *slog.Logger
}

// New creates an importer, creating its ledger bucket if needed
func New(apps application.Store, engine *transition.Engine, wf *workflow.Manager, db *bolt.DB, logger *slog.Logger) (*Importer, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketImports)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create imports bucket: %w", err)
	}
	return &Importer{
		apps:     apps,
		engine:   engine,
		workflow: wf,
		db:       db,
		logger:   logger,
	}, nil
}

// Process handles a batch of emails and returns one result per email.
// A failed email never aborts the batch.
func (i *Importer) Process(ctx context.Context, emails []Email) ([]Result, error) {
	results := make([]Result, 0, len(emails))
	for _, email := range emails {
		result := i.processOne(ctx, email)
		metrics.IncImports(string(result.Action))
		results = append(results, result)
	}
	return results, nil
}

func (i *Importer) processOne(ctx context.Context, email Email) Result {
	result := Result{EmailID: email.ID}

	if email.ID == "" {
		result.Action = ActionFailed
		result.Error = "email id is required"
		return result
	}

	seen, err := i.alreadyProcessed(email.ID)
	if err != nil {
		result.Action = ActionFailed
		result.Error = err.Error()
		return result
	}
	if seen {
		result.Action = ActionSkipped
		return result
	}

	stageName := email.Stage
	if stageName == "" {
		stages := i.workflow.Stages()
		if len(stages) == 0 {
			result.Action = ActionFailed
			result.Error = "workflow has no stages"
			return result
		}
		stageName = stages[0].Name
	}
	if _, err := i.workflow.StageByName(stageName); err != nil {
		result.Action = ActionFailed
		result.Error = err.Error()
		return result
	}

	meta := &transition.Meta{
		Message:    fmt.Sprintf("Imported from email: %s", email.Title),
		Date:       email.Date,
		EmailID:    email.ID,
		EmailTitle: email.Title,
		EmailBody:  email.Body,
	}

	existing, err := i.match(ctx, email)
	if err != nil {
		result.Action = ActionFailed
		result.Error = err.Error()
		return result
	}

	if existing == nil {
		app, err := i.apps.Add(ctx, application.Draft{
			Company:     email.Company,
			Position:    email.Position,
			DateApplied: email.Date,
			Stage:       stageName,
		})
		if err != nil {
			result.Action = ActionFailed
			result.Error = err.Error()
			return result
		}
		// Record the email itself as evidence on the fresh application
		if _, err := i.engine.Transition(ctx, app.ID, stageName, application.SourceImport, meta); err != nil {
			result.Action = ActionFailed
			result.Error = err.Error()
			return result
		}

		result.Action = ActionCreated
		result.ApplicationID = app.ID
		i.logger.Info("application imported",
			"company", email.Company,
			"position", email.Position,
			"stage", stageName,
		)
	} else {
		before := len(existing.Logs)
		updated, err := i.engine.Transition(ctx, existing.ID, stageName, application.SourceImport, meta)
		if err != nil {
			result.Action = ActionFailed
			result.Error = err.Error()
			return result
		}

		result.ApplicationID = existing.ID
		if len(updated.Logs) > before {
			result.Action = ActionTransitioned
		} else {
			result.Action = ActionSkipped
		}
	}

	if err := i.markProcessed(email.ID); err != nil {
		i.logger.Warn("failed to record processed email", "email_id", email.ID, "error", err)
	}
	return result
}

// match finds an existing application for the email's company and
// position, case-insensitively
func (i *Importer) match(ctx context.Context, email Email) (*application.Application, error) {
	apps, err := i.apps.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, app := range apps {
		if strings.EqualFold(app.Company, email.Company) && strings.EqualFold(app.Position, email.Position) {
			return app, nil
		}
	}
	return nil, nil
}

func (i *Importer) alreadyProcessed(emailID string) (bool, error) {
	var seen bool
	err := i.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket(bucketImports).Get([]byte(emailID)) != nil
		return nil
	})
	return seen, err
}

func (i *Importer) markProcessed(emailID string) error {
	return i.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(time.Now())
		if err != nil {
			return err
		}
		return tx.Bucket(bucketImports).Put([]byte(emailID), data)
	})
}
