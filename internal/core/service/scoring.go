// Package service implements the engine's core logic: scoring, candidate
// pools, config versioning, the escalation state machine and offer timers.
package service

import (
	"fmt"
	"time"

	"github.com/inklane/artist-match-engine/internal/core/domain"
)

// Exclusion reasons surfaced in score results and logs.
const (
	ReasonOnVacation    = "on vacation"
	ReasonOverloaded    = "at max active tasks"
	ReasonNightHours    = "night hours for time-sensitive task"
	ReasonSkillBelowMin = "skill match below minimum"
)

// ScoreResult is the outcome of evaluating one (artist, task) pair.
type ScoreResult struct {
	Score    int
	Excluded bool
	Reason   string
}

// Score computes the 0-100 match score for an artist against a task under one
// config snapshot. It is a pure function of its inputs (now included): the
// same snapshot, task, config, tier and clock always produce the same result,
// which makes re-scoring on retries safe.
//
// Order of operations: hard exclusion rules, weighted base score, the minimum
// skill gate, flat bonuses, final clamp.
func Score(artist *domain.ArtistSnapshot, task *domain.Task, cfg *domain.AlgorithmConfig, tier domain.Tier, now time.Time) (ScoreResult, error) {
	rules := cfg.ExclusionRules

	if rules.ExcludeVacationMode && artist.OnVacation {
		return ScoreResult{Excluded: true, Reason: ReasonOnVacation}, nil
	}

	if rules.ExcludeOverloaded {
		limit := cfg.WorkloadSettings.MaxActiveTasks
		if tier == domain.TierLevel2 {
			limit += cfg.EscalationSettings.MaxWorkloadOverride
		}
		if artist.ActiveTasks >= limit {
			return ScoreResult{Excluded: true, Reason: ReasonOverloaded}, nil
		}
	}

	var local time.Time
	needLocal := rules.ExcludeNightHoursForUrgent && task.IsTimeSensitive() || cfg.Weights.TimezoneFit > 0
	if needLocal {
		var err error
		local, err = artist.LocalTime(now)
		if err != nil {
			return ScoreResult{}, fmt.Errorf("resolve artist timezone: %w", err)
		}
	}

	if rules.ExcludeNightHoursForUrgent && task.IsTimeSensitive() && cfg.TimezoneSettings.IsNightHour(local) {
		return ScoreResult{Excluded: true, Reason: ReasonNightHours}, nil
	}

	skill := clampFactor(artist.SkillMatch)
	timezone := 0
	if cfg.Weights.TimezoneFit > 0 {
		timezone = clampFactor(cfg.TimezoneSettings.ScoreFor(local))
	}
	experience := clampFactor(cfg.ExperienceMatrix.Lookup(task.Complexity, artist.Experience))
	workload := workloadBalance(artist.ActiveTasks, cfg.WorkloadSettings.ScorePerTask)
	performance := clampFactor(artist.PerformanceHistory)

	w := cfg.Weights
	weighted := w.SkillMatch*skill +
		w.TimezoneFit*timezone +
		w.ExperienceMatch*experience +
		w.WorkloadBalance*workload +
		w.PerformanceHistory*performance
	base := (weighted + 50) / 100 // round to nearest

	// The minimum skill gate applies to the raw factor, not the weighted sum.
	if skill < cfg.ExclusionRules.MinSkillScoreToInclude {
		return ScoreResult{Excluded: true, Reason: ReasonSkillBelowMin}, nil
	}

	total := base
	if artist.CategorySpecialist {
		total += cfg.BonusModifiers.CategorySpecializationBonus
	}
	if artist.MatchedNiceToHaveSkills > 0 {
		total += cfg.BonusModifiers.NiceToHaveSkillBonus * artist.MatchedNiceToHaveSkills
	}
	if artist.Favorite {
		total += cfg.BonusModifiers.FavoriteArtistBonus
	}

	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	return ScoreResult{Score: total}, nil
}

// workloadBalance implements 100 - min(100, activeTasks * scorePerTask).
func workloadBalance(activeTasks, scorePerTask int) int {
	penalty := activeTasks * scorePerTask
	if penalty > 100 {
		penalty = 100
	}
	return 100 - penalty
}

func clampFactor(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
