package domain

import "time"

type EscalationStatus string

const (
	StatusLevel1Active    EscalationStatus = "LEVEL1_ACTIVE"
	StatusLevel2Active    EscalationStatus = "LEVEL2_ACTIVE"
	StatusLevel3Broadcast EscalationStatus = "LEVEL3_BROADCAST"
	StatusAssigned        EscalationStatus = "ASSIGNED"
	StatusAdminEscalated  EscalationStatus = "ADMIN_ESCALATED"
	StatusCancelled       EscalationStatus = "CANCELLED"
)

// Terminal reports whether the status is absorbing.
func (s EscalationStatus) Terminal() bool {
	switch s {
	case StatusAssigned, StatusAdminEscalated, StatusCancelled:
		return true
	default:
		return false
	}
}

// StatusForTier maps an active tier to its machine status.
func StatusForTier(t Tier) EscalationStatus {
	switch t {
	case TierLevel1:
		return StatusLevel1Active
	case TierLevel2:
		return StatusLevel2Active
	default:
		return StatusLevel3Broadcast
	}
}

// EscalationState is the per-task lifecycle record. The state machine owns it;
// repositories only persist what the machine decides. The task attributes are
// carried along so a restarted process can rebuild the machine without asking
// the task collaborator again.
type EscalationState struct {
	TaskID        string           `json:"task_id"`
	Task          *Task            `json:"task,omitempty"`
	Status        EscalationStatus `json:"status"`
	CurrentTier   Tier             `json:"current_tier"`
	OffersTried   map[Tier]int     `json:"offers_tried"`
	ConfigVersion int64            `json:"config_version"` // version pinned when the task entered the pipeline

	AssignedArtistID string    `json:"assigned_artist_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewEscalationState starts a task at Level1 under the given config version.
func NewEscalationState(task *Task, configVersion int64, now time.Time) *EscalationState {
	return &EscalationState{
		TaskID:        task.ID,
		Task:          task,
		Status:        StatusLevel1Active,
		CurrentTier:   TierLevel1,
		OffersTried:   make(map[Tier]int),
		ConfigVersion: configVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
