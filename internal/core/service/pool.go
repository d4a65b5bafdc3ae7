package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/core/domain"
	"github.com/inklane/artist-match-engine/internal/core/port"
)

// Candidate is one ranked pool entry.
type Candidate struct {
	ArtistID    string
	Score       int
	ActiveTasks int
	CreatedAt   time.Time
}

// OfferHistory is what a task already tried: artists who declined are never
// re-offered within the same task; expired artists only when the config
// allows a retry at a lower tier.
type OfferHistory struct {
	Declined map[string]bool
	Expired  map[string]bool
}

// PoolBuilder queries available artists and produces the ranked candidate
// list for a tier. Pools are rebuilt fresh on every tier entry because
// availability changes while a task escalates.
type PoolBuilder struct {
	directory port.ArtistDirectory
	log       *zap.Logger
}

func NewPoolBuilder(directory port.ArtistDirectory, log *zap.Logger) *PoolBuilder {
	return &PoolBuilder{
		directory: directory,
		log:       log,
	}
}

// BuildPool returns candidates for the tier, best first. Ties break by fewer
// current active tasks, then earliest account creation, then ID, keeping the
// ordering fully deterministic. A candidate whose data cannot be scored is
// skipped and logged, never fatal to the task.
func (b *PoolBuilder) BuildPool(ctx context.Context, task *domain.Task, tier domain.Tier, cfg *domain.AlgorithmConfig, history OfferHistory) ([]Candidate, error) {
	artists, err := b.directory.ListAvailable(ctx, task)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var pool []Candidate
	for _, artist := range artists {
		if history.Declined[artist.ID] {
			continue
		}
		if history.Expired[artist.ID] && !cfg.EscalationSettings.AllowExpiredRetryAtLowerTier {
			continue
		}

		if tier == domain.TierLevel3 {
			// Broadcast tier: everyone active and not on vacation is
			// claimable, regardless of skill score or workload.
			if artist.OnVacation {
				continue
			}
			pool = append(pool, Candidate{
				ArtistID:    artist.ID,
				ActiveTasks: artist.ActiveTasks,
				CreatedAt:   artist.CreatedAt,
			})
			continue
		}

		if artist.SkillMatch < cfg.SkillThresholdFor(tier) {
			continue
		}

		result, err := Score(artist, task, cfg, tier, now)
		if err != nil {
			skip := &domain.CandidateSkippedError{ArtistID: artist.ID, Err: err}
			b.log.Warn("Skipping candidate with incomplete data",
				zap.String("task_id", task.ID),
				zap.String("artist_id", artist.ID),
				zap.Error(skip))
			continue
		}
		if result.Excluded {
			b.log.Debug("Candidate excluded",
				zap.String("task_id", task.ID),
				zap.String("artist_id", artist.ID),
				zap.String("reason", result.Reason))
			continue
		}

		pool = append(pool, Candidate{
			ArtistID:    artist.ID,
			Score:       result.Score,
			ActiveTasks: artist.ActiveTasks,
			CreatedAt:   artist.CreatedAt,
		})
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].Score != pool[j].Score {
			return pool[i].Score > pool[j].Score
		}
		if pool[i].ActiveTasks != pool[j].ActiveTasks {
			return pool[i].ActiveTasks < pool[j].ActiveTasks
		}
		if !pool[i].CreatedAt.Equal(pool[j].CreatedAt) {
			return pool[i].CreatedAt.Before(pool[j].CreatedAt)
		}
		return pool[i].ArtistID < pool[j].ArtistID
	})

	return pool, nil
}
