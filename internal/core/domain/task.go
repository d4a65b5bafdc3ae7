package domain

import (
	"time"
)

type Urgency string

const (
	UrgencyCritical Urgency = "CRITICAL"
	UrgencyUrgent   Urgency = "URGENT"
	UrgencyStandard Urgency = "STANDARD"
	UrgencyFlexible Urgency = "FLEXIBLE"
)

type Complexity string

const (
	ComplexitySimple       Complexity = "SIMPLE"
	ComplexityIntermediate Complexity = "INTERMEDIATE"
	ComplexityAdvanced     Complexity = "ADVANCED"
	ComplexityExpert       Complexity = "EXPERT"
)

// Task carries the attributes the engine needs to match a design task.
// It is supplied by the task data collaborator; the engine never mutates it.
type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Category       string     `json:"category"`   // e.g. "logo", "illustration"
	Complexity     Complexity `json:"complexity"` // drives the experience matrix lookup
	Urgency        Urgency    `json:"urgency"`    // drives the acceptance window
	RequiredSkills []string   `json:"required_skills"`
	CreatedAt      time.Time  `json:"created_at"`
}

// IsTimeSensitive reports whether night-hour exclusion applies to this task.
func (t *Task) IsTimeSensitive() bool {
	return t.Urgency == UrgencyCritical || t.Urgency == UrgencyUrgent
}
