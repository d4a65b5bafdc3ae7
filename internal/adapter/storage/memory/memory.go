// Package memory provides in-memory implementations of the engine's storage
// and collaborator ports. They back the test suites and the simulation
// binary; production wiring uses the postgres/redis/rabbitmq adapters.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/inklane/artist-match-engine/internal/core/domain"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// ConfigRepository keeps config versions in memory.
type ConfigRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.AlgorithmConfig
	ordered []string
}

func NewConfigRepository() *ConfigRepository {
	return &ConfigRepository{byID: make(map[string]*domain.AlgorithmConfig)}
}

func (r *ConfigRepository) SaveDraft(_ context.Context, cfg *domain.AlgorithmConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *cfg
	r.byID[c.ID] = &c
	r.ordered = append(r.ordered, c.ID)
	return nil
}

func (r *ConfigRepository) GetByID(_ context.Context, id string) (*domain.AlgorithmConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("config %s not found", id)
	}
	c := *cfg
	return &c, nil
}

func (r *ConfigRepository) GetActive(_ context.Context) (*domain.AlgorithmConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range r.byID {
		if cfg.IsActive {
			c := *cfg
			return &c, nil
		}
	}
	return nil, domain.ErrNoActiveConfig
}

func (r *ConfigRepository) ListVersions(_ context.Context) ([]*domain.AlgorithmConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AlgorithmConfig, 0, len(r.ordered))
	for _, id := range r.ordered {
		c := *r.byID[id]
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (r *ConfigRepository) Activate(_ context.Context, id string, version int64) (*domain.AlgorithmConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("config %s not found", id)
	}
	for _, cfg := range r.byID {
		if cfg.IsActive {
			cfg.IsActive = false
		}
	}
	now := nowUTC()
	draft.IsActive = true
	draft.Version = version
	draft.PublishedAt = &now
	draft.UpdatedAt = now
	c := *draft
	return &c, nil
}

// OfferRepository keeps the offer audit trail in memory.
type OfferRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.TaskOffer
	ordered []string
}

func NewOfferRepository() *OfferRepository {
	return &OfferRepository{byID: make(map[string]*domain.TaskOffer)}
}

func (r *OfferRepository) Save(_ context.Context, offer *domain.TaskOffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := *offer
	r.byID[o.ID] = &o
	r.ordered = append(r.ordered, o.ID)
	return nil
}

func (r *OfferRepository) UpdateOutcome(_ context.Context, offerID string, outcome domain.OfferOutcome, artistID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	offer, ok := r.byID[offerID]
	if !ok {
		return domain.ErrOfferNotFound
	}
	offer.Outcome = outcome
	if artistID != "" {
		offer.ArtistID = artistID
	}
	return nil
}

func (r *OfferRepository) GetByID(_ context.Context, offerID string) (*domain.TaskOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	offer, ok := r.byID[offerID]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	o := *offer
	return &o, nil
}

func (r *OfferRepository) ListByTask(_ context.Context, taskID string) ([]*domain.TaskOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TaskOffer
	for _, id := range r.ordered {
		if r.byID[id].TaskID == taskID {
			o := *r.byID[id]
			out = append(out, &o)
		}
	}
	return out, nil
}

func (r *OfferRepository) ListPending(_ context.Context) ([]*domain.TaskOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TaskOffer
	for _, id := range r.ordered {
		if r.byID[id].Outcome == domain.OfferPending {
			o := *r.byID[id]
			out = append(out, &o)
		}
	}
	return out, nil
}

// EscalationRepository keeps per-task escalation records in memory.
type EscalationRepository struct {
	mu     sync.Mutex
	byTask map[string]*domain.EscalationState
}

func NewEscalationRepository() *EscalationRepository {
	return &EscalationRepository{byTask: make(map[string]*domain.EscalationState)}
}

func (r *EscalationRepository) Upsert(_ context.Context, state *domain.EscalationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *state
	if state.Task != nil {
		task := *state.Task
		s.Task = &task
	}
	s.OffersTried = make(map[domain.Tier]int, len(state.OffersTried))
	for k, v := range state.OffersTried {
		s.OffersTried[k] = v
	}
	r.byTask[s.TaskID] = &s
	return nil
}

func (r *EscalationRepository) GetByTask(_ context.Context, taskID string) (*domain.EscalationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.byTask[taskID]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	s := *state
	return &s, nil
}

func (r *EscalationRepository) ListActive(_ context.Context) ([]*domain.EscalationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.EscalationState
	for _, state := range r.byTask {
		if !state.Status.Terminal() {
			s := *state
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

// Directory serves a fixed artist roster.
type Directory struct {
	mu      sync.Mutex
	artists []*domain.ArtistSnapshot
}

func NewDirectory(artists ...*domain.ArtistSnapshot) *Directory {
	return &Directory{artists: artists}
}

// SetArtists replaces the roster; simulations mutate availability between
// rounds.
func (d *Directory) SetArtists(artists ...*domain.ArtistSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.artists = artists
}

func (d *Directory) ListAvailable(_ context.Context, _ *domain.Task) ([]*domain.ArtistSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*domain.ArtistSnapshot, 0, len(d.artists))
	for _, a := range d.artists {
		c := *a
		out = append(out, &c)
	}
	return out, nil
}

// Publisher records emitted events.
type Publisher struct {
	mu     sync.Mutex
	events []domain.AssignmentEvent
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(_ context.Context, event domain.AssignmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []domain.AssignmentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.AssignmentEvent, len(p.events))
	copy(out, p.events)
	return out
}
