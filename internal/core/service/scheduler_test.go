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

type expiryRecorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *expiryRecorder) record(offerID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, offerID)
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func pendingOffer(id string, expiresIn time.Duration) *domain.TaskOffer {
	now := time.Now().UTC()
	return &domain.TaskOffer{
		ID:        id,
		TaskID:    "task-" + id,
		ArtistID:  "artist-1",
		Tier:      domain.TierLevel1,
		OfferedAt: now,
		ExpiresAt: now.Add(expiresIn),
		Outcome:   domain.OfferPending,
	}
}

func TestSchedulerFiresOnExpiry(t *testing.T) {
	rec := &expiryRecorder{}
	s := NewOfferScheduler(memory.NewOfferRepository(), zap.NewNop())
	s.OnExpire(rec.record)
	defer s.Stop()

	s.Schedule(pendingOffer("offer-1", 10*time.Millisecond))

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerCancelPreventsFire(t *testing.T) {
	rec := &expiryRecorder{}
	s := NewOfferScheduler(memory.NewOfferRepository(), zap.NewNop())
	s.OnExpire(rec.record)
	defer s.Stop()

	s.Schedule(pendingOffer("offer-1", 50*time.Millisecond))
	s.Cancel("offer-1")

	time.Sleep(100 * time.Millisecond)
	require.Zero(t, rec.count())
}

func TestSchedulerCancelIsIdempotent(t *testing.T) {
	s := NewOfferScheduler(memory.NewOfferRepository(), zap.NewNop())
	s.OnExpire(func(string, string) {})
	defer s.Stop()

	// Unknown and repeated cancels are no-ops.
	s.Cancel("never-scheduled")
	s.Schedule(pendingOffer("offer-1", time.Minute))
	s.Cancel("offer-1")
	s.Cancel("offer-1")
}

func TestSchedulerLapsedOfferFiresImmediately(t *testing.T) {
	rec := &expiryRecorder{}
	s := NewOfferScheduler(memory.NewOfferRepository(), zap.NewNop())
	s.OnExpire(rec.record)
	defer s.Stop()

	s.Schedule(pendingOffer("offer-1", -time.Minute))

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerRecover(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOfferRepository()

	lapsed := pendingOffer("lapsed", -time.Hour)
	soon := pendingOffer("soon", 20*time.Millisecond)
	resolved := pendingOffer("resolved", -time.Hour)
	resolved.Outcome = domain.OfferDeclined

	require.NoError(t, repo.Save(ctx, lapsed))
	require.NoError(t, repo.Save(ctx, soon))
	require.NoError(t, repo.Save(ctx, resolved))

	rec := &expiryRecorder{}
	s := NewOfferScheduler(repo, zap.NewNop())
	s.OnExpire(rec.record)
	defer s.Stop()

	require.NoError(t, s.Recover(ctx))

	// The lapsed offer expires right away, the near-future one after its
	// remaining window; the already-resolved one never fires.
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 2, rec.count())
}

func TestSchedulerStopDisarmsAll(t *testing.T) {
	rec := &expiryRecorder{}
	s := NewOfferScheduler(memory.NewOfferRepository(), zap.NewNop())
	s.OnExpire(rec.record)

	s.Schedule(pendingOffer("offer-1", 30*time.Millisecond))
	s.Schedule(pendingOffer("offer-2", 30*time.Millisecond))
	s.Stop()

	time.Sleep(80 * time.Millisecond)
	require.Zero(t, rec.count())
}
