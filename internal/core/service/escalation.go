package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/core/domain"
	"github.com/inklane/artist-match-engine/internal/core/port"
	"github.com/inklane/artist-match-engine/internal/metrics"
)

// _actorDrainPeriod is how long a finished task actor keeps answering
// stragglers before its goroutine exits.
// _actorMailboxSize bounds how many transition requests can queue per task.
// _expiryDispatchTimeout bounds the delivery of a timer expiry into an actor.
const (
	_actorDrainPeriod      = 30 * time.Second
	_actorMailboxSize      = 32
	_expiryDispatchTimeout = 30 * time.Second
)

type requestKind int

const (
	reqAccept requestKind = iota
	reqDecline
	reqExpire
	reqCancel
)

type actorRequest struct {
	kind     requestKind
	offerID  string
	artistID string
	reply    chan error
}

// Engine is the escalation state machine. Each task in the pipeline is owned
// by exactly one actor goroutine; accepts, declines, timer expiries and
// cancellations are funneled through the actor's mailbox, so a task's state
// is mutated by at most one transition at a time. Different tasks never block
// each other.
type Engine struct {
	configs   *ConfigService
	pool      *PoolBuilder
	offers    port.OfferRepository
	states    port.EscalationRepository
	events    port.EventPublisher
	scheduler *OfferScheduler
	log       *zap.Logger

	mu     sync.RWMutex
	actors map[string]*taskActor
	quit   chan struct{}
	wg     sync.WaitGroup
}

func NewEngine(
	configs *ConfigService,
	pool *PoolBuilder,
	offers port.OfferRepository,
	states port.EscalationRepository,
	events port.EventPublisher,
	scheduler *OfferScheduler,
	log *zap.Logger,
) *Engine {
	e := &Engine{
		configs:   configs,
		pool:      pool,
		offers:    offers,
		states:    states,
		events:    events,
		scheduler: scheduler,
		log:       log,
		actors:    make(map[string]*taskActor),
		quit:      make(chan struct{}),
	}
	scheduler.OnExpire(e.handleExpiry)
	return e
}

// Submit enters a newly created task into the assignment pipeline. The active
// config is pinned at this moment; a later publish never switches rules on a
// task mid-flight.
func (e *Engine) Submit(ctx context.Context, task *domain.Task) error {
	cfg, err := e.configs.GetActive()
	if err != nil {
		return err
	}

	state := domain.NewEscalationState(task, cfg.Version, time.Now().UTC())

	e.mu.Lock()
	if _, exists := e.actors[task.ID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("task %s already in the assignment pipeline", task.ID)
	}
	actor := newTaskActor(e, task, cfg, state)
	e.actors[task.ID] = actor
	e.mu.Unlock()

	if err := e.states.Upsert(ctx, state); err != nil {
		e.removeActor(task.ID)
		return err
	}

	metrics.ActiveEscalations.Inc()
	e.wg.Add(1)
	go actor.run()

	e.log.Info("Task entered assignment pipeline",
		zap.String("task_id", task.ID),
		zap.String("urgency", string(task.Urgency)),
		zap.Int64("config_version", cfg.Version))
	return nil
}

// Resume rebuilds the actor for every task that was mid-escalation when the
// previous process stopped. Must run before the scheduler's Recover so that
// re-armed (or immediately fired) timers find a live actor to dispatch into.
func (e *Engine) Resume(ctx context.Context) error {
	active, err := e.states.ListActive(ctx)
	if err != nil {
		return err
	}

	resumed := 0
	for _, state := range active {
		if state.Task == nil {
			e.log.Error("Cannot resume state without task attributes",
				zap.String("task_id", state.TaskID))
			continue
		}

		cfg, err := e.pinnedConfig(ctx, state.ConfigVersion)
		if err != nil {
			return err
		}

		history, err := e.offers.ListByTask(ctx, state.TaskID)
		if err != nil {
			return err
		}

		e.mu.Lock()
		if _, exists := e.actors[state.TaskID]; exists {
			e.mu.Unlock()
			continue
		}
		actor := newTaskActor(e, state.Task, cfg, state)
		for _, offer := range history {
			switch offer.Outcome {
			case domain.OfferDeclined:
				actor.declined[offer.ArtistID] = true
			case domain.OfferExpired:
				if offer.ArtistID != "" {
					actor.expired[offer.ArtistID] = true
				}
			case domain.OfferPending:
				actor.pending = offer
			}
		}
		e.actors[state.TaskID] = actor
		e.mu.Unlock()

		if actor.pending != nil {
			// The pool snapshot did not survive the restart; rebuild it so
			// claim validation and tier continuation keep working. The pending
			// artist lands in the declined/expired sets on resolution, so
			// offerNext never re-targets them.
			pool, err := e.pool.BuildPool(ctx, state.Task, state.CurrentTier, cfg, OfferHistory{
				Declined: actor.declined,
				Expired:  actor.expired,
			})
			if err != nil {
				e.log.Error("Failed to rebuild candidate pool on resume",
					zap.String("task_id", state.TaskID), zap.Error(err))
			}
			if state.CurrentTier == domain.TierLevel3 {
				actor.claimers = make(map[string]bool, len(pool))
				for _, c := range pool {
					actor.claimers[c.ArtistID] = true
				}
			} else {
				actor.pool = pool
			}
		}

		metrics.ActiveEscalations.Inc()
		e.wg.Add(1)
		go actor.resume()
		resumed++

		e.log.Info("Resumed mid-flight task",
			zap.String("task_id", state.TaskID),
			zap.String("status", string(state.Status)),
			zap.Bool("pending_offer", actor.pending != nil))
	}

	e.log.Info("Restart recovery complete", zap.Int("resumed", resumed))
	return nil
}

// pinnedConfig resolves the config version a task entered the pipeline under.
// A version pruned from history falls back to the active config.
func (e *Engine) pinnedConfig(ctx context.Context, version int64) (*domain.AlgorithmConfig, error) {
	versions, err := e.configs.ListVersions(ctx)
	if err == nil {
		for _, v := range versions {
			if v.Version == version {
				return v, nil
			}
		}
	}
	return e.configs.GetActive()
}

// Accept resolves an offer in the artist's favor. Exactly one accept wins per
// task; every concurrent or later accept gets domain.ErrAlreadyAssigned.
func (e *Engine) Accept(ctx context.Context, taskID, offerID, artistID string) error {
	err := e.dispatch(ctx, taskID, actorRequest{kind: reqAccept, offerID: offerID, artistID: artistID})
	if err == domain.ErrAlreadyAssigned {
		metrics.AcceptConflictsTotal.Inc()
	}
	return err
}

// Decline resolves an offer against the artist and moves to the next
// candidate or tier.
func (e *Engine) Decline(ctx context.Context, taskID, offerID, artistID string) error {
	return e.dispatch(ctx, taskID, actorRequest{kind: reqDecline, offerID: offerID, artistID: artistID})
}

// Cancel withdraws a task from the pipeline, cancelling any pending offer and
// timer. Idempotent.
func (e *Engine) Cancel(ctx context.Context, taskID string) error {
	return e.dispatch(ctx, taskID, actorRequest{kind: reqCancel})
}

// OfferHistory returns the full audit trail of offers for a task.
func (e *Engine) OfferHistory(ctx context.Context, taskID string) ([]*domain.TaskOffer, error) {
	return e.offers.ListByTask(ctx, taskID)
}

// State returns the current escalation record for a task.
func (e *Engine) State(ctx context.Context, taskID string) (*domain.EscalationState, error) {
	return e.states.GetByTask(ctx, taskID)
}

// Shutdown stops all timers and actor goroutines.
func (e *Engine) Shutdown() {
	e.scheduler.Stop()
	close(e.quit)
	e.wg.Wait()
}

func (e *Engine) handleExpiry(offerID, taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), _expiryDispatchTimeout)
	defer cancel()
	if err := e.dispatch(ctx, taskID, actorRequest{kind: reqExpire, offerID: offerID}); err != nil {
		e.log.Warn("Expiry dispatch dropped",
			zap.String("task_id", taskID),
			zap.String("offer_id", offerID),
			zap.Error(err))
	}
}

func (e *Engine) dispatch(ctx context.Context, taskID string, req actorRequest) error {
	e.mu.RLock()
	actor, ok := e.actors[taskID]
	e.mu.RUnlock()
	if !ok {
		return e.resolveWithoutActor(ctx, taskID, req)
	}

	req.reply = make(chan error, 1)
	select {
	case actor.mailbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.quit:
		return fmt.Errorf("engine shutting down")
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveWithoutActor answers requests for tasks whose actor already finished
// (or never existed) from the persisted state.
func (e *Engine) resolveWithoutActor(ctx context.Context, taskID string, req actorRequest) error {
	state, err := e.states.GetByTask(ctx, taskID)
	if err != nil {
		return err
	}
	switch req.kind {
	case reqAccept:
		if state.Status == domain.StatusAssigned {
			return domain.ErrAlreadyAssigned
		}
		return domain.ErrTaskTerminal
	case reqDecline:
		return domain.ErrTaskTerminal
	default:
		if req.kind == reqExpire && !state.Status.Terminal() {
			// A mid-flight task must always have an actor; Resume restores
			// them after a restart.
			return fmt.Errorf("no live actor for mid-flight task %s", taskID)
		}
		// Late timer fire or repeated cancel against a settled task is a no-op.
		return nil
	}
}

func (e *Engine) removeActor(taskID string) {
	e.mu.Lock()
	delete(e.actors, taskID)
	e.mu.Unlock()
}

// taskActor owns one task's escalation lifecycle.
type taskActor struct {
	engine  *Engine
	task    *domain.Task
	cfg     *domain.AlgorithmConfig // pinned snapshot for this task
	state   *domain.EscalationState
	mailbox chan actorRequest
	log     *zap.Logger

	pool     []Candidate
	cursor   int
	claimers map[string]bool // Level3 broadcast pool membership
	pending  *domain.TaskOffer
	declined map[string]bool
	expired  map[string]bool
}

func newTaskActor(e *Engine, task *domain.Task, cfg *domain.AlgorithmConfig, state *domain.EscalationState) *taskActor {
	return &taskActor{
		engine:   e,
		task:     task,
		cfg:      cfg,
		state:    state,
		mailbox:  make(chan actorRequest, _actorMailboxSize),
		log:      e.log.With(zap.String("task_id", task.ID)),
		declined: make(map[string]bool),
		expired:  make(map[string]bool),
	}
}

func (a *taskActor) run() {
	defer a.engine.wg.Done()
	a.enterTier(domain.TierLevel1)
	a.loop()
}

// resume picks a restored task back up. With a pending offer the actor only
// waits for its resolution (the scheduler re-arms the timer); without one the
// process died between resolving an offer and issuing the next, so the current
// tier is re-entered with a fresh pool.
func (a *taskActor) resume() {
	defer a.engine.wg.Done()
	if !a.state.Status.Terminal() && a.pending == nil {
		tier := a.state.CurrentTier
		if tier != domain.TierLevel3 && a.state.OffersTried[tier] >= a.cfg.MaxOffersFor(tier) {
			a.advanceTier()
		} else {
			a.enterTier(tier)
		}
	}
	a.loop()
}

func (a *taskActor) loop() {
	for !a.state.Status.Terminal() {
		select {
		case req := <-a.mailbox:
			a.handle(req)
		case <-a.engine.quit:
			return
		}
	}

	a.engine.removeActor(a.task.ID)
	metrics.ActiveEscalations.Dec()

	// Keep answering callers that grabbed this actor just before removal.
	drain := time.NewTimer(_actorDrainPeriod)
	defer drain.Stop()
	for {
		select {
		case req := <-a.mailbox:
			req.reply <- a.terminalAnswer(req.kind)
		case <-drain.C:
			return
		case <-a.engine.quit:
			return
		}
	}
}

func (a *taskActor) handle(req actorRequest) {
	switch req.kind {
	case reqAccept:
		req.reply <- a.accept(req.offerID, req.artistID)
	case reqDecline:
		req.reply <- a.decline(req.offerID, req.artistID)
	case reqExpire:
		a.expire(req.offerID)
		req.reply <- nil
	case reqCancel:
		req.reply <- a.cancel()
	}
}

func (a *taskActor) terminalAnswer(kind requestKind) error {
	switch kind {
	case reqAccept:
		if a.state.Status == domain.StatusAssigned {
			return domain.ErrAlreadyAssigned
		}
		return domain.ErrTaskTerminal
	case reqDecline:
		return domain.ErrTaskTerminal
	default:
		return nil
	}
}

func (a *taskActor) accept(offerID, artistID string) error {
	if a.state.Status.Terminal() {
		return a.terminalAnswer(reqAccept)
	}
	offer := a.pending
	if offer == nil || offer.ID != offerID {
		return domain.ErrOfferNotFound
	}
	if a.state.CurrentTier == domain.TierLevel3 {
		if !a.claimers[artistID] {
			return domain.ErrOfferNotFound
		}
	} else if offer.ArtistID != artistID {
		return domain.ErrOfferNotFound
	}

	a.engine.scheduler.Cancel(offer.ID)
	offer.Outcome = domain.OfferAccepted
	offer.ArtistID = artistID
	a.persistOutcome(offer.ID, domain.OfferAccepted, artistID)
	a.pending = nil

	now := time.Now().UTC()
	a.state.Status = domain.StatusAssigned
	a.state.AssignedArtistID = artistID
	a.state.UpdatedAt = now
	a.persistState()

	a.publish(domain.EventTaskAssigned, offer.ID, artistID)
	metrics.TasksAssignedTotal.WithLabelValues(string(a.state.CurrentTier)).Inc()
	metrics.AssignmentDurationSeconds.Observe(now.Sub(a.state.CreatedAt).Seconds())

	a.log.Info("Task assigned",
		zap.String("artist_id", artistID),
		zap.String("tier", string(a.state.CurrentTier)),
		zap.Int("score", offer.Score))
	return nil
}

func (a *taskActor) decline(offerID, artistID string) error {
	if a.state.Status.Terminal() {
		return domain.ErrTaskTerminal
	}
	offer := a.pending
	if offer == nil || offer.ID != offerID {
		return domain.ErrOfferNotFound
	}
	if a.state.CurrentTier == domain.TierLevel3 {
		// A broadcast is claimable, not declinable; not claiming is enough.
		return nil
	}
	if offer.ArtistID != artistID {
		return domain.ErrOfferNotFound
	}

	a.engine.scheduler.Cancel(offer.ID)
	offer.Outcome = domain.OfferDeclined
	a.persistOutcome(offer.ID, domain.OfferDeclined, artistID)
	a.pending = nil
	a.declined[artistID] = true
	a.state.OffersTried[a.state.CurrentTier]++
	a.persistState()

	a.publish(domain.EventOfferDeclined, offer.ID, artistID)
	metrics.OffersDeclinedTotal.WithLabelValues(string(a.state.CurrentTier)).Inc()

	a.log.Info("Offer declined",
		zap.String("artist_id", artistID),
		zap.String("tier", string(a.state.CurrentTier)),
		zap.Int("tried_at_tier", a.state.OffersTried[a.state.CurrentTier]))
	a.continueTier()
	return nil
}

// expire handles an acceptance-window timeout. A stale fire (offer already
// resolved or task settled) is a no-op.
func (a *taskActor) expire(offerID string) {
	if a.state.Status.Terminal() {
		return
	}
	offer := a.pending
	if offer == nil || offer.ID != offerID {
		return
	}

	offer.Outcome = domain.OfferExpired
	a.persistOutcome(offer.ID, domain.OfferExpired, offer.ArtistID)
	a.pending = nil
	a.publish(domain.EventOfferExpired, offer.ID, offer.ArtistID)
	metrics.OffersExpiredTotal.WithLabelValues(string(a.state.CurrentTier)).Inc()

	if a.state.CurrentTier == domain.TierLevel3 {
		// Broadcast window closed with no claim: a human takes over.
		a.adminEscalate()
		return
	}

	a.expired[offer.ArtistID] = true
	a.state.OffersTried[a.state.CurrentTier]++
	a.persistState()

	a.log.Info("Offer expired",
		zap.String("artist_id", offer.ArtistID),
		zap.String("tier", string(a.state.CurrentTier)),
		zap.Int("tried_at_tier", a.state.OffersTried[a.state.CurrentTier]))
	a.continueTier()
}

func (a *taskActor) cancel() error {
	if a.state.Status.Terminal() {
		return nil
	}
	if a.pending != nil {
		a.engine.scheduler.Cancel(a.pending.ID)
		a.pending.Outcome = domain.OfferExpired
		a.persistOutcome(a.pending.ID, domain.OfferExpired, a.pending.ArtistID)
		a.pending = nil
	}
	a.state.Status = domain.StatusCancelled
	a.state.UpdatedAt = time.Now().UTC()
	a.persistState()
	metrics.TasksCancelledTotal.Inc()
	a.log.Info("Task cancelled by client")
	return nil
}

// continueTier offers the next candidate at the current tier, or advances the
// tier when the per-tier offer budget or the pool is exhausted.
func (a *taskActor) continueTier() {
	tier := a.state.CurrentTier
	if a.state.OffersTried[tier] >= a.cfg.MaxOffersFor(tier) {
		a.advanceTier()
		return
	}
	if !a.offerNext() {
		a.advanceTier()
	}
}

func (a *taskActor) advanceTier() {
	next, ok := a.state.CurrentTier.Next()
	if !ok {
		a.adminEscalate()
		return
	}
	a.enterTier(next)
}

func (a *taskActor) enterTier(tier domain.Tier) {
	a.state.CurrentTier = tier
	a.state.Status = domain.StatusForTier(tier)
	a.state.UpdatedAt = time.Now().UTC()
	a.persistState()
	a.log.Info("Entering escalation tier", zap.String("tier", string(tier)))

	pool, err := a.engine.pool.BuildPool(context.Background(), a.task, tier, a.cfg, OfferHistory{
		Declined: a.declined,
		Expired:  a.expired,
	})
	if err != nil {
		// Treated like an empty pool: the task must keep moving.
		a.log.Error("Failed to build candidate pool", zap.String("tier", string(tier)), zap.Error(err))
		pool = nil
	}
	a.pool = pool
	a.cursor = 0

	if tier == domain.TierLevel3 {
		if len(pool) == 0 {
			// A broadcast nobody can claim would park the task for the whole
			// window; hand it to a human right away.
			a.adminEscalate()
			return
		}
		a.claimers = make(map[string]bool, len(pool))
		for _, c := range pool {
			a.claimers[c.ArtistID] = true
		}
		a.openBroadcast()
		return
	}

	if !a.offerNext() {
		a.advanceTier()
	}
}

// offerNext emits the offer for the next remaining candidate at the current
// tier. Returns false when the pool is exhausted.
func (a *taskActor) offerNext() bool {
	for a.cursor < len(a.pool) {
		candidate := a.pool[a.cursor]
		a.cursor++
		if a.declined[candidate.ArtistID] || a.expired[candidate.ArtistID] {
			continue
		}

		now := time.Now().UTC()
		offer := &domain.TaskOffer{
			ID:        uuid.NewString(),
			TaskID:    a.task.ID,
			ArtistID:  candidate.ArtistID,
			Tier:      a.state.CurrentTier,
			Score:     candidate.Score,
			OfferedAt: now,
			ExpiresAt: now.Add(a.cfg.WindowFor(a.task.Urgency)),
			Outcome:   domain.OfferPending,
		}
		if err := a.engine.offers.Save(context.Background(), offer); err != nil {
			a.log.Error("Failed to persist offer, trying next candidate",
				zap.String("artist_id", candidate.ArtistID),
				zap.Error(err))
			continue
		}

		a.pending = offer
		a.engine.scheduler.Schedule(offer)
		a.publish(domain.EventOfferCreated, offer.ID, offer.ArtistID)
		metrics.OffersCreatedTotal.WithLabelValues(string(a.state.CurrentTier)).Inc()

		a.log.Info("Offer created",
			zap.String("offer_id", offer.ID),
			zap.String("artist_id", candidate.ArtistID),
			zap.String("tier", string(a.state.CurrentTier)),
			zap.Int("score", candidate.Score),
			zap.Time("expires_at", offer.ExpiresAt))
		return true
	}
	return false
}

// openBroadcast exposes the task to the whole Level3 pool for the configured
// window; the first accept wins.
func (a *taskActor) openBroadcast() {
	now := time.Now().UTC()
	offer := &domain.TaskOffer{
		ID:        uuid.NewString(),
		TaskID:    a.task.ID,
		Tier:      domain.TierLevel3,
		OfferedAt: now,
		ExpiresAt: now.Add(time.Duration(a.cfg.EscalationSettings.Level3BroadcastMinutes) * time.Minute),
		Outcome:   domain.OfferPending,
	}
	if err := a.engine.offers.Save(context.Background(), offer); err != nil {
		a.log.Error("Failed to persist broadcast window", zap.Error(err))
		a.adminEscalate()
		return
	}

	a.pending = offer
	a.engine.scheduler.Schedule(offer)
	a.publish(domain.EventOfferCreated, offer.ID, "")
	metrics.OffersCreatedTotal.WithLabelValues(string(domain.TierLevel3)).Inc()

	a.log.Info("Broadcast window opened",
		zap.String("offer_id", offer.ID),
		zap.Int("pool_size", len(a.claimers)),
		zap.Time("expires_at", offer.ExpiresAt))
}

func (a *taskActor) adminEscalate() {
	a.state.Status = domain.StatusAdminEscalated
	a.state.UpdatedAt = time.Now().UTC()
	a.persistState()
	a.publish(domain.EventTaskAdminEscalated, "", "")
	metrics.TasksAdminEscalatedTotal.Inc()
	a.log.Warn("Task escalated to admin after exhausting all tiers")
}

// persistState and persistOutcome log failures instead of propagating them:
// the in-memory machine is the source of truth mid-flight and must not stall
// on a storage hiccup.
func (a *taskActor) persistState() {
	if err := a.engine.states.Upsert(context.Background(), a.state); err != nil {
		a.log.Error("Failed to persist escalation state", zap.Error(err))
	}
}

func (a *taskActor) persistOutcome(offerID string, outcome domain.OfferOutcome, artistID string) {
	if err := a.engine.offers.UpdateOutcome(context.Background(), offerID, outcome, artistID); err != nil {
		a.log.Error("Failed to persist offer outcome",
			zap.String("offer_id", offerID),
			zap.Error(err))
	}
}

func (a *taskActor) publish(evType domain.EventType, offerID, artistID string) {
	event := domain.AssignmentEvent{
		Type:     evType,
		TaskID:   a.task.ID,
		OfferID:  offerID,
		ArtistID: artistID,
		Tier:     a.state.CurrentTier,
		Urgency:  a.task.Urgency,
		At:       time.Now().UTC(),
	}
	if err := a.engine.events.Publish(context.Background(), event); err != nil {
		// Notification delivery never rolls back engine state.
		a.log.Warn("Failed to publish assignment event",
			zap.String("type", string(evType)),
			zap.Error(err))
	}
}
