package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inklane/artist-match-engine/internal/core/domain"
)

// scoringConfig returns rules tuned so each factor of the weighted base can be
// pinned exactly from the artist snapshot.
func scoringConfig() *domain.AlgorithmConfig {
	cfg := domain.DefaultConfig()
	cfg.Weights = domain.Weights{
		SkillMatch:         40,
		TimezoneFit:        20,
		ExperienceMatch:    20,
		WorkloadBalance:    10,
		PerformanceHistory: 10,
	}
	cfg.TimezoneSettings.EveningScore = 80
	cfg.ExperienceMatrix[domain.ComplexityIntermediate][domain.ExperienceMid] = 70
	cfg.ExclusionRules.MinSkillScoreToInclude = 0
	cfg.BonusModifiers = domain.BonusModifiers{}
	return &cfg
}

func scoringArtist() *domain.ArtistSnapshot {
	return &domain.ArtistSnapshot{
		ID:                 "artist-1",
		TimeZone:           "UTC",
		Experience:         domain.ExperienceMid,
		ActiveTasks:        0,
		SkillMatch:         90,
		PerformanceHistory: 60,
	}
}

func scoringTask() *domain.Task {
	return &domain.Task{
		ID:         "task-1",
		Category:   "logo",
		Complexity: domain.ComplexityIntermediate,
		Urgency:    domain.UrgencyStandard,
	}
}

// eveningUTC falls in the evening band of the default 09:00-18:00 peak window.
var eveningUTC = time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)

func TestScoreWeightedBase(t *testing.T) {
	cfg := scoringConfig()

	// factors {90, 80, 70, 100, 60} under weights {40, 20, 20, 10, 10}:
	// 36 + 16 + 14 + 10 + 6 = 82
	result, err := Score(scoringArtist(), scoringTask(), cfg, domain.TierLevel1, eveningUTC)
	require.NoError(t, err)
	require.False(t, result.Excluded)
	require.Equal(t, 82, result.Score)
}

func TestScoreIsDeterministic(t *testing.T) {
	cfg := scoringConfig()
	for i := 0; i < 10; i++ {
		result, err := Score(scoringArtist(), scoringTask(), cfg, domain.TierLevel1, eveningUTC)
		require.NoError(t, err)
		require.Equal(t, 82, result.Score)
	}
}

func TestScoreRoundsToNearest(t *testing.T) {
	cfg := scoringConfig()
	artist := scoringArtist()
	artist.PerformanceHistory = 65 // weighted sum 8250, base rounds up to 83

	result, err := Score(artist, scoringTask(), cfg, domain.TierLevel1, eveningUTC)
	require.NoError(t, err)
	require.Equal(t, 83, result.Score)
}

func TestScoreExcludesVacationingArtist(t *testing.T) {
	cfg := scoringConfig()
	artist := scoringArtist()
	artist.OnVacation = true

	result, err := Score(artist, scoringTask(), cfg, domain.TierLevel1, eveningUTC)
	require.NoError(t, err)
	require.True(t, result.Excluded)
	require.Equal(t, ReasonOnVacation, result.Reason)
}

func TestScoreVacationExclusionCanBeDisabled(t *testing.T) {
	cfg := scoringConfig()
	cfg.ExclusionRules.ExcludeVacationMode = false
	artist := scoringArtist()
	artist.OnVacation = true

	result, err := Score(artist, scoringTask(), cfg, domain.TierLevel1, eveningUTC)
	require.NoError(t, err)
	require.False(t, result.Excluded)
}

func TestScoreExcludesOverloadedArtist(t *testing.T) {
	cfg := scoringConfig()
	cfg.WorkloadSettings.MaxActiveTasks = 3
	cfg.EscalationSettings.MaxWorkloadOverride = 1
	artist := scoringArtist()
	artist.ActiveTasks = 3

	result, err := Score(artist, scoringTask(), cfg, domain.TierLevel1, eveningUTC)
	require.NoError(t, err)
	require.True(t, result.Excluded)
	require.Equal(t, ReasonOverloaded, result.Reason)

	// Level2 tolerates the configured workload override.
	result, err = Score(artist, scoringTask(), cfg, domain.TierLevel2, eveningUTC)
	require.NoError(t, err)
	require.False(t, result.Excluded)

	artist.ActiveTasks = 4
	result, err = Score(artist, scoringTask(), cfg, domain.TierLevel2, eveningUTC)
	require.NoError(t, err)
	require.True(t, result.Excluded)
}

func TestScoreExcludesNightHoursForTimeSensitiveTasks(t *testing.T) {
	cfg := scoringConfig()
	night := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

	task := scoringTask()
	task.Urgency = domain.UrgencyUrgent
	result, err := Score(scoringArtist(), task, cfg, domain.TierLevel1, night)
	require.NoError(t, err)
	require.True(t, result.Excluded)
	require.Equal(t, ReasonNightHours, result.Reason)

	// A standard task reaches the same artist at the same local hour.
	result, err = Score(scoringArtist(), scoringTask(), cfg, domain.TierLevel1, night)
	require.NoError(t, err)
	require.False(t, result.Excluded)
}

func TestScoreSkillGateUsesRawFactor(t *testing.T) {
	cfg := scoringConfig()
	cfg.ExclusionRules.MinSkillScoreToInclude = 50
	artist := scoringArtist()
	artist.SkillMatch = 49
	artist.PerformanceHistory = 100 // weighted total is still high

	result, err := Score(artist, scoringTask(), cfg, domain.TierLevel1, eveningUTC)
	require.NoError(t, err)
	require.True(t, result.Excluded)
	require.Equal(t, ReasonSkillBelowMin, result.Reason)
}

func TestScoreBonuses(t *testing.T) {
	cfg := scoringConfig()
	cfg.BonusModifiers = domain.BonusModifiers{
		CategorySpecializationBonus: 10,
		NiceToHaveSkillBonus:        2,
		FavoriteArtistBonus:         5,
	}
	artist := scoringArtist()
	artist.CategorySpecialist = true
	artist.MatchedNiceToHaveSkills = 3
	artist.Favorite = true

	// 82 + 10 + 2*3 + 5 = 103, clamped to 100
	result, err := Score(artist, scoringTask(), cfg, domain.TierLevel1, eveningUTC)
	require.NoError(t, err)
	require.Equal(t, 100, result.Score)

	artist.Favorite = false
	artist.MatchedNiceToHaveSkills = 1
	// 82 + 10 + 2 = 94
	result, err = Score(artist, scoringTask(), cfg, domain.TierLevel1, eveningUTC)
	require.NoError(t, err)
	require.Equal(t, 94, result.Score)
}

func TestScoreFailsOnUnresolvableTimezone(t *testing.T) {
	cfg := scoringConfig()
	artist := scoringArtist()
	artist.TimeZone = "Atlantis/Nowhere"

	_, err := Score(artist, scoringTask(), cfg, domain.TierLevel1, eveningUTC)
	require.Error(t, err)
}

func TestScoreSkipsTimezoneWhenUnweighted(t *testing.T) {
	cfg := scoringConfig()
	cfg.Weights = domain.Weights{
		SkillMatch:         50,
		TimezoneFit:        0,
		ExperienceMatch:    20,
		WorkloadBalance:    15,
		PerformanceHistory: 15,
	}
	artist := scoringArtist()
	artist.TimeZone = "Atlantis/Nowhere"

	// Standard urgency and zero timezone weight: the zone is never resolved.
	result, err := Score(artist, scoringTask(), cfg, domain.TierLevel1, eveningUTC)
	require.NoError(t, err)
	require.False(t, result.Excluded)
}

func TestWorkloadBalance(t *testing.T) {
	require.Equal(t, 100, workloadBalance(0, 20))
	require.Equal(t, 60, workloadBalance(2, 20))
	require.Equal(t, 0, workloadBalance(5, 20))
	require.Equal(t, 0, workloadBalance(9, 20))
	require.Equal(t, 100, workloadBalance(3, 0))
}
