package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/adapter/storage/memory"
	"github.com/inklane/artist-match-engine/internal/core/domain"
)

type engineFixture struct {
	engine    *Engine
	offers    *memory.OfferRepository
	states    *memory.EscalationRepository
	publisher *memory.Publisher
	scheduler *OfferScheduler
}

func newEngineFixture(t *testing.T, cfg domain.AlgorithmConfig, artists ...*domain.ArtistSnapshot) *engineFixture {
	t.Helper()
	ctx := context.Background()

	configService := NewConfigService(memory.NewConfigRepository(), zap.NewNop())
	draftID, err := configService.CreateVersion(ctx, cfg)
	require.NoError(t, err)
	_, err = configService.Publish(ctx, draftID)
	require.NoError(t, err)

	offers := memory.NewOfferRepository()
	states := memory.NewEscalationRepository()
	publisher := memory.NewPublisher()
	scheduler := NewOfferScheduler(offers, zap.NewNop())
	builder := NewPoolBuilder(memory.NewDirectory(artists...), zap.NewNop())

	engine := NewEngine(configService, builder, offers, states, publisher, scheduler, zap.NewNop())
	t.Cleanup(engine.Shutdown)

	return &engineFixture{
		engine:    engine,
		offers:    offers,
		states:    states,
		publisher: publisher,
		scheduler: scheduler,
	}
}

func engineConfig() domain.AlgorithmConfig {
	cfg := domain.DefaultConfig()
	cfg.Weights = domain.Weights{SkillMatch: 100}
	cfg.ExclusionRules.ExcludeNightHoursForUrgent = false
	cfg.ExclusionRules.MinSkillScoreToInclude = 0
	cfg.BonusModifiers = domain.BonusModifiers{}
	cfg.EscalationSettings.Level1MaxOffers = 2
	cfg.EscalationSettings.Level2MaxOffers = 2
	return cfg
}

// waitPendingOffer polls for the task's pending offer, skipping ones already
// seen.
func (f *engineFixture) waitPendingOffer(t *testing.T, taskID string, seen map[string]bool) *domain.TaskOffer {
	t.Helper()
	var found *domain.TaskOffer
	require.Eventually(t, func() bool {
		pending, err := f.offers.ListPending(context.Background())
		if err != nil {
			return false
		}
		for _, offer := range pending {
			if offer.TaskID == taskID && !seen[offer.ID] {
				found = offer
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return found
}

func (f *engineFixture) waitStatus(t *testing.T, taskID string, want domain.EscalationStatus) *domain.EscalationState {
	t.Helper()
	var state *domain.EscalationState
	require.Eventually(t, func() bool {
		s, err := f.states.GetByTask(context.Background(), taskID)
		if err != nil {
			return false
		}
		state = s
		return s.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return state
}

func submitTask(t *testing.T, f *engineFixture, id string) *domain.Task {
	t.Helper()
	task := &domain.Task{
		ID:         id,
		Category:   "logo",
		Complexity: domain.ComplexityIntermediate,
		Urgency:    domain.UrgencyUrgent,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.engine.Submit(context.Background(), task))
	return task
}

func TestEngineOffersTopCandidateAndAssignsOnAccept(t *testing.T) {
	f := newEngineFixture(t, engineConfig(),
		poolArtist("runner-up", 85),
		poolArtist("best", 95),
	)
	submitTask(t, f, "task-1")

	offer := f.waitPendingOffer(t, "task-1", nil)
	require.Equal(t, "best", offer.ArtistID)
	require.Equal(t, domain.TierLevel1, offer.Tier)

	require.NoError(t, f.engine.Accept(context.Background(), "task-1", offer.ID, "best"))

	state := f.waitStatus(t, "task-1", domain.StatusAssigned)
	require.Equal(t, "best", state.AssignedArtistID)

	stored, err := f.offers.GetByID(context.Background(), offer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OfferAccepted, stored.Outcome)

	var assigned bool
	for _, ev := range f.publisher.Events() {
		if ev.Type == domain.EventTaskAssigned && ev.TaskID == "task-1" {
			assigned = true
		}
	}
	require.True(t, assigned)
}

func TestEngineAcceptByWrongArtistIsRejected(t *testing.T) {
	f := newEngineFixture(t, engineConfig(), poolArtist("best", 95))
	submitTask(t, f, "task-1")

	offer := f.waitPendingOffer(t, "task-1", nil)
	err := f.engine.Accept(context.Background(), "task-1", offer.ID, "impostor")
	require.ErrorIs(t, err, domain.ErrOfferNotFound)

	// The rightful artist can still accept.
	require.NoError(t, f.engine.Accept(context.Background(), "task-1", offer.ID, "best"))
}

func TestEngineDeclinesExhaustLevel1AndEscalate(t *testing.T) {
	f := newEngineFixture(t, engineConfig(),
		poolArtist("first", 95),
		poolArtist("second", 90),
		poolArtist("third", 85),
	)
	submitTask(t, f, "task-1")

	seen := map[string]bool{}
	ctx := context.Background()

	// Level1MaxOffers is 2: two declines exhaust the tier.
	offer1 := f.waitPendingOffer(t, "task-1", seen)
	require.Equal(t, "first", offer1.ArtistID)
	seen[offer1.ID] = true
	require.NoError(t, f.engine.Decline(ctx, "task-1", offer1.ID, offer1.ArtistID))

	offer2 := f.waitPendingOffer(t, "task-1", seen)
	require.Equal(t, "second", offer2.ArtistID)
	require.Equal(t, domain.TierLevel1, offer2.Tier)
	seen[offer2.ID] = true
	require.NoError(t, f.engine.Decline(ctx, "task-1", offer2.ID, offer2.ArtistID))

	f.waitStatus(t, "task-1", domain.StatusLevel2Active)

	// The Level2 pool excludes both decliners.
	offer3 := f.waitPendingOffer(t, "task-1", seen)
	require.Equal(t, "third", offer3.ArtistID)
	require.Equal(t, domain.TierLevel2, offer3.Tier)
}

func TestEngineExpiryMovesToNextCandidate(t *testing.T) {
	f := newEngineFixture(t, engineConfig(),
		poolArtist("slow", 95),
		poolArtist("next", 90),
	)
	submitTask(t, f, "task-1")

	seen := map[string]bool{}
	offer1 := f.waitPendingOffer(t, "task-1", seen)
	require.Equal(t, "slow", offer1.ArtistID)
	seen[offer1.ID] = true

	// Drive the acceptance-window timeout directly instead of waiting it out.
	f.engine.handleExpiry(offer1.ID, "task-1")

	offer2 := f.waitPendingOffer(t, "task-1", seen)
	require.Equal(t, "next", offer2.ArtistID)

	stored, err := f.offers.GetByID(context.Background(), offer1.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OfferExpired, stored.Outcome)
}

func TestEngineStaleExpiryIsNoOp(t *testing.T) {
	f := newEngineFixture(t, engineConfig(), poolArtist("best", 95))
	submitTask(t, f, "task-1")

	offer := f.waitPendingOffer(t, "task-1", nil)
	require.NoError(t, f.engine.Accept(context.Background(), "task-1", offer.ID, "best"))
	f.waitStatus(t, "task-1", domain.StatusAssigned)

	// A timer that fires after resolution must change nothing.
	f.engine.handleExpiry(offer.ID, "task-1")

	state, err := f.states.GetByTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusAssigned, state.Status)
}

func TestEngineEmptyTiersFastForwardToBroadcast(t *testing.T) {
	// Nobody clears the Level1/Level2 skill thresholds.
	f := newEngineFixture(t, engineConfig(),
		poolArtist("novice-a", 10),
		poolArtist("novice-b", 20),
	)
	submitTask(t, f, "task-1")

	f.waitStatus(t, "task-1", domain.StatusLevel3Broadcast)

	offer := f.waitPendingOffer(t, "task-1", nil)
	require.Equal(t, domain.TierLevel3, offer.Tier)
	require.Empty(t, offer.ArtistID)
}

func TestEngineBroadcastFirstAcceptWins(t *testing.T) {
	f := newEngineFixture(t, engineConfig(),
		poolArtist("novice-a", 10),
		poolArtist("novice-b", 20),
		poolArtist("novice-c", 30),
	)
	submitTask(t, f, "task-1")
	f.waitStatus(t, "task-1", domain.StatusLevel3Broadcast)
	offer := f.waitPendingOffer(t, "task-1", nil)

	claimants := []string{"novice-a", "novice-b", "novice-c"}
	results := make([]error, len(claimants))
	var wg sync.WaitGroup
	for i, artist := range claimants {
		wg.Add(1)
		go func(i int, artist string) {
			defer wg.Done()
			results[i] = f.engine.Accept(context.Background(), "task-1", offer.ID, artist)
		}(i, artist)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch err {
		case nil:
			wins++
		case domain.ErrAlreadyAssigned:
			conflicts++
		default:
			t.Fatalf("unexpected accept result: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 2, conflicts)

	state := f.waitStatus(t, "task-1", domain.StatusAssigned)
	require.Contains(t, claimants, state.AssignedArtistID)
}

func TestEngineBroadcastRejectsNonPoolClaimant(t *testing.T) {
	away := poolArtist("away", 50)
	away.OnVacation = true
	f := newEngineFixture(t, engineConfig(), poolArtist("novice", 10), away)
	submitTask(t, f, "task-1")
	f.waitStatus(t, "task-1", domain.StatusLevel3Broadcast)
	offer := f.waitPendingOffer(t, "task-1", nil)

	err := f.engine.Accept(context.Background(), "task-1", offer.ID, "away")
	require.ErrorIs(t, err, domain.ErrOfferNotFound)
}

func TestEngineBroadcastExpiryEscalatesToAdmin(t *testing.T) {
	f := newEngineFixture(t, engineConfig(), poolArtist("novice", 10))
	submitTask(t, f, "task-1")
	f.waitStatus(t, "task-1", domain.StatusLevel3Broadcast)
	offer := f.waitPendingOffer(t, "task-1", nil)

	f.engine.handleExpiry(offer.ID, "task-1")
	f.waitStatus(t, "task-1", domain.StatusAdminEscalated)

	var escalated bool
	for _, ev := range f.publisher.Events() {
		if ev.Type == domain.EventTaskAdminEscalated && ev.TaskID == "task-1" {
			escalated = true
		}
	}
	require.True(t, escalated)
}

func TestEngineNoCandidatesAtAllEscalatesToAdmin(t *testing.T) {
	f := newEngineFixture(t, engineConfig()) // empty roster
	submitTask(t, f, "task-1")

	// All three tiers produce empty pools; a broadcast nobody can claim is
	// never opened, the task goes straight to a human.
	f.waitStatus(t, "task-1", domain.StatusAdminEscalated)

	pending, err := f.offers.ListPending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestEngineCancelWithdrawsPendingOffer(t *testing.T) {
	f := newEngineFixture(t, engineConfig(), poolArtist("best", 95))
	submitTask(t, f, "task-1")

	offer := f.waitPendingOffer(t, "task-1", nil)
	require.NoError(t, f.engine.Cancel(context.Background(), "task-1"))

	f.waitStatus(t, "task-1", domain.StatusCancelled)
	stored, err := f.offers.GetByID(context.Background(), offer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OfferExpired, stored.Outcome)

	// Cancel is idempotent; accepting a cancelled task fails.
	require.NoError(t, f.engine.Cancel(context.Background(), "task-1"))
	err = f.engine.Accept(context.Background(), "task-1", offer.ID, "best")
	require.ErrorIs(t, err, domain.ErrTaskTerminal)
}

func TestEngineAtMostOnePendingOfferPerTask(t *testing.T) {
	f := newEngineFixture(t, engineConfig(),
		poolArtist("first", 95),
		poolArtist("second", 90),
		poolArtist("third", 85),
	)
	submitTask(t, f, "task-1")

	seen := map[string]bool{}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		offer := f.waitPendingOffer(t, "task-1", seen)
		seen[offer.ID] = true

		pending, err := f.offers.ListPending(ctx)
		require.NoError(t, err)
		count := 0
		for _, o := range pending {
			if o.TaskID == "task-1" {
				count++
			}
		}
		require.Equal(t, 1, count)

		require.NoError(t, f.engine.Decline(ctx, "task-1", offer.ID, offer.ArtistID))
	}
}

func TestEngineSubmitRequiresActiveConfig(t *testing.T) {
	configService := NewConfigService(memory.NewConfigRepository(), zap.NewNop())
	offers := memory.NewOfferRepository()
	scheduler := NewOfferScheduler(offers, zap.NewNop())
	engine := NewEngine(
		configService,
		NewPoolBuilder(memory.NewDirectory(), zap.NewNop()),
		offers,
		memory.NewEscalationRepository(),
		memory.NewPublisher(),
		scheduler,
		zap.NewNop(),
	)
	t.Cleanup(engine.Shutdown)

	err := engine.Submit(context.Background(), &domain.Task{ID: "task-1", Urgency: domain.UrgencyStandard})
	require.ErrorIs(t, err, domain.ErrNoActiveConfig)
}

func TestEngineSubmitRejectsDuplicateTask(t *testing.T) {
	f := newEngineFixture(t, engineConfig(), poolArtist("best", 95))
	task := submitTask(t, f, "task-1")
	require.Error(t, f.engine.Submit(context.Background(), task))
}

func TestEngineConfigPinnedAtSubmit(t *testing.T) {
	f := newEngineFixture(t, engineConfig(), poolArtist("best", 95))
	submitTask(t, f, "task-1")

	state, err := f.states.GetByTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), state.ConfigVersion)
}

// restartFixture builds an engine over pre-seeded repositories, modelling a
// process that comes back up with tasks still mid-escalation.
func restartFixture(t *testing.T, offers *memory.OfferRepository, states *memory.EscalationRepository, artists ...*domain.ArtistSnapshot) *engineFixture {
	t.Helper()
	ctx := context.Background()

	configService := NewConfigService(memory.NewConfigRepository(), zap.NewNop())
	draftID, err := configService.CreateVersion(ctx, engineConfig())
	require.NoError(t, err)
	_, err = configService.Publish(ctx, draftID)
	require.NoError(t, err)

	publisher := memory.NewPublisher()
	scheduler := NewOfferScheduler(offers, zap.NewNop())
	builder := NewPoolBuilder(memory.NewDirectory(artists...), zap.NewNop())
	engine := NewEngine(configService, builder, offers, states, publisher, scheduler, zap.NewNop())
	t.Cleanup(engine.Shutdown)

	return &engineFixture{
		engine:    engine,
		offers:    offers,
		states:    states,
		publisher: publisher,
		scheduler: scheduler,
	}
}

func restartTask(id string) *domain.Task {
	return &domain.Task{
		ID:         id,
		Category:   "logo",
		Complexity: domain.ComplexityIntermediate,
		Urgency:    domain.UrgencyUrgent,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	}
}

func TestEngineResumeExpiresLapsedOfferAfterRestart(t *testing.T) {
	ctx := context.Background()
	offers := memory.NewOfferRepository()
	states := memory.NewEscalationRepository()

	// Persisted remains of the previous process: a Level1 task whose offer's
	// acceptance window lapsed while nothing was running.
	task := restartTask("task-1")
	state := domain.NewEscalationState(task, 1, task.CreatedAt)
	require.NoError(t, states.Upsert(ctx, state))

	lapsed := &domain.TaskOffer{
		ID:        "offer-1",
		TaskID:    "task-1",
		ArtistID:  "first",
		Tier:      domain.TierLevel1,
		OfferedAt: task.CreatedAt,
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
		Outcome:   domain.OfferPending,
	}
	require.NoError(t, offers.Save(ctx, lapsed))

	f := restartFixture(t, offers, states, poolArtist("first", 95), poolArtist("second", 90))
	require.NoError(t, f.engine.Resume(ctx))
	require.NoError(t, f.scheduler.Recover(ctx))

	// The lapsed offer expires and escalation continues with the next
	// candidate instead of the task sitting in LEVEL1_ACTIVE forever.
	require.Eventually(t, func() bool {
		stored, err := f.offers.GetByID(ctx, "offer-1")
		return err == nil && stored.Outcome == domain.OfferExpired
	}, 2*time.Second, 5*time.Millisecond)

	next := f.waitPendingOffer(t, "task-1", map[string]bool{"offer-1": true})
	require.Equal(t, "second", next.ArtistID)
	require.Equal(t, domain.TierLevel1, next.Tier)
}

func TestEngineResumeReentersTierWhenNoOfferWasPending(t *testing.T) {
	ctx := context.Background()
	offers := memory.NewOfferRepository()
	states := memory.NewEscalationRepository()

	// The previous process died between resolving one offer and issuing the
	// next: the decline is persisted, no offer is pending.
	task := restartTask("task-1")
	state := domain.NewEscalationState(task, 1, task.CreatedAt)
	state.OffersTried[domain.TierLevel1] = 1
	require.NoError(t, states.Upsert(ctx, state))

	declined := &domain.TaskOffer{
		ID:        "offer-1",
		TaskID:    "task-1",
		ArtistID:  "first",
		Tier:      domain.TierLevel1,
		OfferedAt: task.CreatedAt,
		ExpiresAt: task.CreatedAt.Add(time.Hour),
		Outcome:   domain.OfferDeclined,
	}
	require.NoError(t, offers.Save(ctx, declined))

	f := restartFixture(t, offers, states, poolArtist("first", 95), poolArtist("second", 90))
	require.NoError(t, f.engine.Resume(ctx))
	require.NoError(t, f.scheduler.Recover(ctx))

	// The tier is re-entered with a fresh pool excluding the decliner.
	next := f.waitPendingOffer(t, "task-1", map[string]bool{"offer-1": true})
	require.Equal(t, "second", next.ArtistID)
	require.Equal(t, domain.TierLevel1, next.Tier)
}

func TestEngineResumeRestoresBroadcastClaimValidation(t *testing.T) {
	ctx := context.Background()
	offers := memory.NewOfferRepository()
	states := memory.NewEscalationRepository()

	task := restartTask("task-1")
	state := domain.NewEscalationState(task, 1, task.CreatedAt)
	state.Status = domain.StatusLevel3Broadcast
	state.CurrentTier = domain.TierLevel3
	require.NoError(t, states.Upsert(ctx, state))

	window := &domain.TaskOffer{
		ID:        "offer-1",
		TaskID:    "task-1",
		Tier:      domain.TierLevel3,
		OfferedAt: task.CreatedAt,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
		Outcome:   domain.OfferPending,
	}
	require.NoError(t, offers.Save(ctx, window))

	away := poolArtist("away", 50)
	away.OnVacation = true
	f := restartFixture(t, offers, states, poolArtist("novice", 10), away)
	require.NoError(t, f.engine.Resume(ctx))
	require.NoError(t, f.scheduler.Recover(ctx))

	// The rebuilt broadcast pool still rejects non-members and accepts a
	// member's claim.
	err := f.engine.Accept(ctx, "task-1", "offer-1", "away")
	require.ErrorIs(t, err, domain.ErrOfferNotFound)
	require.NoError(t, f.engine.Accept(ctx, "task-1", "offer-1", "novice"))

	assigned := f.waitStatus(t, "task-1", domain.StatusAssigned)
	require.Equal(t, "novice", assigned.AssignedArtistID)
}

func TestEngineResumeIgnoresSettledTasks(t *testing.T) {
	ctx := context.Background()
	offers := memory.NewOfferRepository()
	states := memory.NewEscalationRepository()

	task := restartTask("task-1")
	state := domain.NewEscalationState(task, 1, task.CreatedAt)
	state.Status = domain.StatusAssigned
	state.AssignedArtistID = "winner"
	require.NoError(t, states.Upsert(ctx, state))

	f := restartFixture(t, offers, states, poolArtist("first", 95))
	require.NoError(t, f.engine.Resume(ctx))
	require.NoError(t, f.scheduler.Recover(ctx))

	// No actor is rebuilt; the persisted state answers for the task.
	err := f.engine.Accept(ctx, "task-1", "offer-x", "first")
	require.ErrorIs(t, err, domain.ErrAlreadyAssigned)

	pending, err := f.offers.ListPending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}
