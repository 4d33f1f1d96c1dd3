package transition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trailhq/jobtrail/internal/application"
	"github.com/trailhq/jobtrail/internal/metrics"
	"github.com/trailhq/jobtrail/internal/workflow"
)

// RemovalPolicy decides what happens when a stage that applications
// still reference is removed
type RemovalPolicy string

const (
	// RemovalBlock rejects the removal with ErrStageInUse
	RemovalBlock RemovalPolicy = "block"

	// RemovalReassign transitions affected applications to the
	// fallback stage (source "system"), then removes the stage
	RemovalReassign RemovalPolicy = "reassign"
)

// Config holds engine policy settings
type Config struct {
	RemovalPolicy RemovalPolicy
	FallbackStage string
}

// Meta carries optional evidence attached to a transition, typically
// the email that triggered an imported stage change.
type Meta struct {
	Message    string    `json:"message,omitempty"`
	Date       time.Time `json:"date,omitempty"`
	EmailID    string    `json:"email_id,omitempty"`
	EmailTitle string    `json:"email_title,omitempty"`
	EmailBody  string    `json:"email_body,omitempty"`
}

// Engine applies validated stage transitions. It is the only writer of
// an application's Stage field and audit log; the whole
// read-validate-append sequence runs inside one store transaction, so
// either the full update (stage + last-updated + log entry) commits or
// none of it does.
type Engine struct {
	apps     application.Store
	workflow *workflow.Manager
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a transition engine
func New(apps application.Store, wf *workflow.Manager, cfg Config, logger *slog.Logger) *Engine {
	if cfg.RemovalPolicy == "" {
		cfg.RemovalPolicy = RemovalBlock
	}
	return &Engine{
		apps:     apps,
		workflow: wf,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Transition moves an application to toStage and appends an audit
// entry. Repeating a transition with the same (toStage, source, email
// id) is an idempotent no-op: the application is returned unchanged and
// nothing is appended. A same-stage request only appends when meta
// carries email evidence not already recorded by the last entry.
func (e *Engine) Transition(ctx context.Context, id, toStage string, source application.Source, meta *Meta) (*application.Application, error) {
	stage, err := e.workflow.StageByName(toStage)
	if err != nil {
		return nil, err
	}

	duplicate := false
	app, err := e.apps.Mutate(ctx, id, func(app *application.Application) error {
		emailID := ""
		if meta != nil {
			emailID = meta.EmailID
		}

		last := app.LastLog()
		if last != nil && last.ToStage == stage.Name && last.Source == source && last.EmailID == emailID {
			duplicate = true
			return application.ErrUnchanged
		}

		if app.Stage == stage.Name && emailID == "" {
			// Same stage, no new evidence: nothing to record
			duplicate = true
			return application.ErrUnchanged
		}

		entry := e.buildEntry(app, stage.Name, source, meta)
		app.Logs = append(app.Logs, entry)
		app.Stage = stage.Name
		app.LastUpdated = entry.Date
		return nil
	})
	if err != nil {
		return nil, err
	}

	if duplicate {
		metrics.IncTransitionsDuplicate()
		e.logger.Debug("duplicate transition skipped",
			"application", id,
			"stage", stage.Name,
			"source", source,
		)
		return app, nil
	}

	metrics.IncTransitions(derefFrom(app), stage.Name, string(source))
	e.logger.Info("application transitioned",
		"application", id,
		"company", app.Company,
		"to", stage.Name,
		"source", source,
	)
	return app, nil
}

// RemoveStage removes a stage from the workflow, applying the
// configured reference policy first.
func (e *Engine) RemoveStage(ctx context.Context, stageID string) error {
	stage, err := e.workflow.StageByID(stageID)
	if err != nil {
		return err
	}

	count, err := e.apps.CountByStage(ctx, stage.Name)
	if err != nil {
		return fmt.Errorf("failed to count stage references: %w", err)
	}

	if count > 0 {
		switch e.cfg.RemovalPolicy {
		case RemovalReassign:
			if err := e.reassign(ctx, stage.Name); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %q is referenced by %d application(s)",
				workflow.ErrStageInUse, stage.Name, count)
		}
	}

	if _, err := e.workflow.Remove(stageID); err != nil {
		return err
	}
	return nil
}

// RenameStage renames a stage and rewrites current references on
// applications. Audit log entries are immutable and keep the
// historical name.
func (e *Engine) RenameStage(ctx context.Context, stageID, newName string) error {
	oldName, err := e.workflow.Rename(stageID, newName)
	if err != nil {
		return err
	}

	touched, err := e.apps.RewriteStage(ctx, oldName, newName)
	if err != nil {
		return fmt.Errorf("failed to cascade stage rename: %w", err)
	}
	if touched > 0 {
		e.logger.Info("stage rename cascaded", "from", oldName, "to", newName, "applications", touched)
	}
	return nil
}

func (e *Engine) reassign(ctx context.Context, fromStage string) error {
	fallback := e.cfg.FallbackStage
	if fallback == "" || fallback == fromStage {
		return fmt.Errorf("%w: no usable fallback stage for reassignment", workflow.ErrStageInUse)
	}
	if _, err := e.workflow.StageByName(fallback); err != nil {
		return err
	}

	apps, err := e.apps.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list applications: %w", err)
	}

	msg := fmt.Sprintf("Stage %s removed, moved to %s", fromStage, fallback)
	for _, app := range apps {
		if app.Stage != fromStage {
			continue
		}
		if _, err := e.Transition(ctx, app.ID, fallback, application.SourceSystem, &Meta{Message: msg}); err != nil {
			return fmt.Errorf("failed to reassign application %s: %w", app.ID, err)
		}
	}
	return nil
}

func (e *Engine) buildEntry(app *application.Application, toStage string, source application.Source, meta *Meta) application.AuditEntry {
	from := app.Stage
	entry := application.AuditEntry{
		ID:        uuid.New().String(),
		Date:      e.now(),
		FromStage: &from,
		ToStage:   toStage,
		Message:   fmt.Sprintf("Status updated from %s to %s", from, toStage),
		Source:    source,
	}
	if meta != nil {
		if meta.Message != "" {
			entry.Message = meta.Message
		}
		if !meta.Date.IsZero() {
			entry.Date = meta.Date
		}
		entry.EmailID = meta.EmailID
		entry.EmailTitle = meta.EmailTitle
		entry.EmailBody = meta.EmailBody
	}
	return entry
}

func derefFrom(app *application.Application) string {
	last := app.LastLog()
	if last == nil || last.FromStage == nil {
		return ""
	}
	return *last.FromStage
}
