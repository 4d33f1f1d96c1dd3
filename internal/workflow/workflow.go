package workflow

import (
	"errors"
)

// Stage is one named phase in the application pipeline
type Stage struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Order   int    `json:"order"`
	Color   string `json:"color,omitempty"`
	Visible bool   `json:"visible"`
}

var (
	// ErrInvalidStage is returned when a stage id or name does not exist
	// in the current workflow
	ErrInvalidStage = errors.New("invalid stage")

	// ErrStageInUse is returned when removing a stage that applications
	// still reference and the removal policy is "block"
	ErrStageInUse = errors.New("stage is still in use")

	// ErrDuplicateStage is returned when adding or renaming a stage to a
	// name that already exists
	ErrDuplicateStage = errors.New("stage name already exists")
)

// DefaultStages is the workflow seeded on first run when the config does
// not define one
var DefaultStages = []Stage{
	{Name: "Applied", Color: "#0088FE", Visible: true},
	{Name: "Interview", Color: "#00C49F", Visible: true},
	{Name: "Offer", Color: "#FFBB28", Visible: true},
	{Name: "Rejected", Color: "#FF8042", Visible: true},
}
