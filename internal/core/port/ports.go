// Package port provides behavior interfaces that connect services, storage and
// external collaborators.
package port

import (
	"context"

	"github.com/inklane/artist-match-engine/internal/core/domain"
)

// ConfigRepository persists versioned algorithm config snapshots. Historical
// versions are append-only; only the active flag ever changes after publish.
type ConfigRepository interface {
	SaveDraft(ctx context.Context, cfg *domain.AlgorithmConfig) error
	GetByID(ctx context.Context, id string) (*domain.AlgorithmConfig, error)
	GetActive(ctx context.Context) (*domain.AlgorithmConfig, error)
	ListVersions(ctx context.Context) ([]*domain.AlgorithmConfig, error)
	// Activate flips the currently active version to inactive and marks the
	// draft active with the given version number, atomically.
	Activate(ctx context.Context, id string, version int64) (*domain.AlgorithmConfig, error)
}

// OfferRepository persists the full offer history per task (audit trail) and
// exposes the pending set for crash recovery.
type OfferRepository interface {
	Save(ctx context.Context, offer *domain.TaskOffer) error
	UpdateOutcome(ctx context.Context, offerID string, outcome domain.OfferOutcome, artistID string) error
	GetByID(ctx context.Context, offerID string) (*domain.TaskOffer, error)
	ListByTask(ctx context.Context, taskID string) ([]*domain.TaskOffer, error)
	ListPending(ctx context.Context) ([]*domain.TaskOffer, error)
}

// EscalationRepository persists per-task escalation state.
type EscalationRepository interface {
	Upsert(ctx context.Context, state *domain.EscalationState) error
	GetByTask(ctx context.Context, taskID string) (*domain.EscalationState, error)
	ListActive(ctx context.Context) ([]*domain.EscalationState, error)
}

// ArtistDirectory supplies read-only artist snapshots resolved against a task
// (skill match, bonuses and favorite status are per-task inputs).
type ArtistDirectory interface {
	ListAvailable(ctx context.Context, task *domain.Task) ([]*domain.ArtistSnapshot, error)
}

// EventPublisher emits assignment events for downstream messaging.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.AssignmentEvent) error
}

// TaskConsumer feeds newly created tasks into the engine.
type TaskConsumer interface {
	ConsumeTasks(ctx context.Context, handler func(task *domain.Task) error) error
}
