package application

import (
	"errors"
	"time"
)

// Source identifies what drove a stage transition
type Source string

const (
	SourceManual Source = "manual"
	SourceImport Source = "import"
	SourceSystem Source = "system"
)

var (
	// ErrNotFound is returned when an application id does not exist
	ErrNotFound = errors.New("application not found")

	// ErrUnchanged is returned by a Mutate callback to signal that
	// nothing should be written. Mutate swallows it and returns the
	// application as-is.
	ErrUnchanged = errors.New("application unchanged")
)

// AuditEntry is an immutable record of one stage transition. Entries are
// only ever appended to an application's log; no operation rewrites or
// removes one.
type AuditEntry struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	FromStage  *string   `json:"from_stage"` // nil only for the creation entry
	ToStage    string    `json:"to_stage"`
	Message    string    `json:"message"`
	Source     Source    `json:"source"`
	EmailID    string    `json:"email_id,omitempty"`
	EmailTitle string    `json:"email_title,omitempty"`
	EmailBody  string    `json:"email_body,omitempty"`
}

// Application is one tracked job application with its audit log.
type Application struct {
	ID          string       `json:"id"`
	Company     string       `json:"company"`
	Position    string       `json:"position"`
	DateApplied time.Time    `json:"date_applied"`
	Stage       string       `json:"stage"`
	Type        string       `json:"type"`
	Tags        []string     `json:"tags"`
	LastUpdated time.Time    `json:"last_updated"`
	Description string       `json:"description,omitempty"`
	Salary      string       `json:"salary,omitempty"`
	Location    string       `json:"location,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Logs        []AuditEntry `json:"logs"`
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate stored state or existing audit entries.
func (a *Application) Clone() *Application {
	c := *a
	c.Tags = append([]string(nil), a.Tags...)
	c.Logs = make([]AuditEntry, len(a.Logs))
	for i, e := range a.Logs {
		c.Logs[i] = e
		if e.FromStage != nil {
			from := *e.FromStage
			c.Logs[i].FromStage = &from
		}
	}
	return &c
}

// LastLog returns the most recent audit entry, or nil for an empty log.
func (a *Application) LastLog() *AuditEntry {
	if len(a.Logs) == 0 {
		return nil
	}
	return &a.Logs[len(a.Logs)-1]
}

// Draft is the caller-supplied part of a new application.
type Draft struct {
	Company     string    `json:"company"`
	Position    string    `json:"position"`
	DateApplied time.Time `json:"date_applied"`
	Stage       string    `json:"stage"`
	Type        string    `json:"type"`
	Tags        []string  `json:"tags"`
	Description string    `json:"description"`
	Salary      string    `json:"salary"`
	Location    string    `json:"location"`
	Notes       string    `json:"notes"`
}

// FieldPatch is a partial update over the closed set of non-stage
// fields. Stage changes go through the transition engine only, so a
// field edit can never bypass the audit log.
type FieldPatch struct {
	Company     *string    `json:"company,omitempty"`
	Position    *string    `json:"position,omitempty"`
	Type        *string    `json:"type,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
	Description *string    `json:"description,omitempty"`
	Salary      *string    `json:"salary,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	DateApplied *time.Time `json:"date_applied,omitempty"`
}

func (p *FieldPatch) apply(a *Application) {
	if p.Company != nil {
		a.Company = *p.Company
	}
	if p.Position != nil {
		a.Position = *p.Position
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Tags != nil {
		a.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Salary != nil {
		a.Salary = *p.Salary
	}
	if p.Location != nil {
		a.Location = *p.Location
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	if p.DateApplied != nil {
		a.DateApplied = *p.DateApplied
	}
}
