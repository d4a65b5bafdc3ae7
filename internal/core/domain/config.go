// Package domain provides the engine's entities, domain level errors and the
// scoring-related value objects shared across services and adapters.
package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is shared across configs; the custom checks below cover everything
// struct tags cannot express.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Weights are the five factor weights of the base score. They must sum to
// exactly 100; the admin UI's slider rebalancing is a client concern and is
// deliberately not reproduced here.
type Weights struct {
	SkillMatch         int `json:"skill_match" mapstructure:"skillMatch" validate:"min=0,max=100"`
	TimezoneFit        int `json:"timezone_fit" mapstructure:"timezoneFit" validate:"min=0,max=100"`
	ExperienceMatch    int `json:"experience_match" mapstructure:"experienceMatch" validate:"min=0,max=100"`
	WorkloadBalance    int `json:"workload_balance" mapstructure:"workloadBalance" validate:"min=0,max=100"`
	PerformanceHistory int `json:"performance_history" mapstructure:"performanceHistory" validate:"min=0,max=100"`
}

// Sum returns the total of all five weights.
func (w Weights) Sum() int {
	return w.SkillMatch + w.TimezoneFit + w.ExperienceMatch + w.WorkloadBalance + w.PerformanceHistory
}

// AcceptanceWindows holds minutes-to-respond per task urgency.
type AcceptanceWindows struct {
	Critical int `json:"critical" validate:"min=1,max=1440"`
	Urgent   int `json:"urgent" validate:"min=1,max=1440"`
	Standard int `json:"standard" validate:"min=1,max=1440"`
	Flexible int `json:"flexible" validate:"min=1,max=1440"`
}

// EscalationSettings tune the tier state machine. Level1 >= Level2 ordering on
// the skill thresholds is expected but intentionally not enforced; product
// never confirmed it as a hard rule.
type EscalationSettings struct {
	Level1SkillThreshold   int `json:"level1_skill_threshold" validate:"min=0,max=100"`
	Level2SkillThreshold   int `json:"level2_skill_threshold" validate:"min=0,max=100"`
	Level1MaxOffers        int `json:"level1_max_offers" validate:"min=1,max=10"`
	Level2MaxOffers        int `json:"level2_max_offers" validate:"min=1,max=10"`
	Level3BroadcastMinutes int `json:"level3_broadcast_minutes" validate:"min=5,max=120"`
	MaxWorkloadOverride    int `json:"max_workload_override" validate:"min=0,max=5"`

	// AllowExpiredRetryAtLowerTier lets artists whose offer merely expired
	// (as opposed to an explicit decline) be re-offered at a lower tier.
	AllowExpiredRetryAtLowerTier bool `json:"allow_expired_retry_at_lower_tier"`
}

// TimezonePeriod is one of the five time-of-day bands an artist's local clock
// maps to when scoring timezone fit.
type TimezonePeriod string

const (
	PeriodPeak         TimezonePeriod = "PEAK"
	PeriodEvening      TimezonePeriod = "EVENING"
	PeriodEarlyMorning TimezonePeriod = "EARLY_MORNING"
	PeriodLateEvening  TimezonePeriod = "LATE_EVENING"
	PeriodNight        TimezonePeriod = "NIGHT"
)

// Fixed day anchors for the non-peak bands, in minutes since midnight.
const (
	nightEndMin      = 5 * 60  // night runs 00:00-05:00
	lateEveningStart = 21 * 60 // late evening runs 21:00-24:00
)

// TimezoneSettings score an artist's local time of day at offer time.
type TimezoneSettings struct {
	PeakHoursStart string `json:"peak_hours_start" validate:"required"` // HH:MM
	PeakHoursEnd   string `json:"peak_hours_end" validate:"required"`   // HH:MM

	PeakScore         int `json:"peak_score" validate:"min=0,max=100"`
	EveningScore      int `json:"evening_score" validate:"min=0,max=100"`
	EarlyMorningScore int `json:"early_morning_score" validate:"min=0,max=100"`
	LateEveningScore  int `json:"late_evening_score" validate:"min=0,max=100"`
	NightScore        int `json:"night_score" validate:"min=0,max=100"`
}

// PeriodFor maps a local clock time to a band. Bands are checked in the fixed
// precedence peak > evening > earlyMorning > lateEvening > night so that a
// peak window overlapping an anchor band still wins.
func (tz TimezoneSettings) PeriodFor(local time.Time) TimezonePeriod {
	m := local.Hour()*60 + local.Minute()
	start, _ := parseHHMM(tz.PeakHoursStart)
	end, _ := parseHHMM(tz.PeakHoursEnd)

	inPeak := false
	if start <= end {
		inPeak = m >= start && m < end
	} else {
		// Peak window wraps midnight.
		inPeak = m >= start || m < end
	}
	switch {
	case inPeak:
		return PeriodPeak
	case end < lateEveningStart && m >= end && m < lateEveningStart:
		return PeriodEvening
	case start > nightEndMin && m >= nightEndMin && m < start:
		return PeriodEarlyMorning
	case m >= lateEveningStart:
		return PeriodLateEvening
	default:
		return PeriodNight
	}
}

// ScoreFor returns the configured score for the band local falls into.
func (tz TimezoneSettings) ScoreFor(local time.Time) int {
	switch tz.PeriodFor(local) {
	case PeriodPeak:
		return tz.PeakScore
	case PeriodEvening:
		return tz.EveningScore
	case PeriodEarlyMorning:
		return tz.EarlyMorningScore
	case PeriodLateEvening:
		return tz.LateEveningScore
	default:
		return tz.NightScore
	}
}

// IsNightHour reports whether local falls in the night band.
func (tz TimezoneSettings) IsNightHour(local time.Time) bool {
	return tz.PeriodFor(local) == PeriodNight
}

// ExperienceMatrix maps task complexity x artist experience level to a match
// score. All 16 cells must be present.
type ExperienceMatrix map[Complexity]map[ExperienceLevel]int

var (
	allComplexities = []Complexity{ComplexitySimple, ComplexityIntermediate, ComplexityAdvanced, ComplexityExpert}
	allExperiences  = []ExperienceLevel{ExperienceJunior, ExperienceMid, ExperienceSenior, ExperienceExpert}
)

// Lookup returns the score for a (complexity, level) cell; missing cells read
// as zero, which validation prevents for published configs.
func (m ExperienceMatrix) Lookup(c Complexity, l ExperienceLevel) int {
	if row, ok := m[c]; ok {
		return row[l]
	}
	return 0
}

// WorkloadSettings govern active-task based exclusion and scoring.
type WorkloadSettings struct {
	MaxActiveTasks int `json:"max_active_tasks" validate:"min=1"`
	ScorePerTask   int `json:"score_per_task" validate:"min=0,max=100"`
}

// ExclusionRules are hard filters applied before any scoring.
type ExclusionRules struct {
	MinSkillScoreToInclude     int  `json:"min_skill_score_to_include" validate:"min=0,max=100"`
	ExcludeOverloaded          bool `json:"exclude_overloaded"`
	ExcludeNightHoursForUrgent bool `json:"exclude_night_hours_for_urgent"`
	ExcludeVacationMode        bool `json:"exclude_vacation_mode"`
}

// BonusModifiers are flat point additions applied after the weighted base.
type BonusModifiers struct {
	CategorySpecializationBonus int `json:"category_specialization_bonus" validate:"min=0,max=100"`
	NiceToHaveSkillBonus        int `json:"nice_to_have_skill_bonus" validate:"min=0,max=100"`
	FavoriteArtistBonus         int `json:"favorite_artist_bonus" validate:"min=0,max=100"`
}

// AlgorithmConfig is one immutable snapshot of the matching rules. Publishing
// a new version never mutates an old one; only the active flag moves.
type AlgorithmConfig struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`

	Weights            Weights            `json:"weights"`
	AcceptanceWindows  AcceptanceWindows  `json:"acceptance_windows"`
	EscalationSettings EscalationSettings `json:"escalation_settings"`
	TimezoneSettings   TimezoneSettings   `json:"timezone_settings"`
	ExperienceMatrix   ExperienceMatrix   `json:"experience_matrix"`
	WorkloadSettings   WorkloadSettings   `json:"workload_settings"`
	ExclusionRules     ExclusionRules     `json:"exclusion_rules"`
	BonusModifiers     BonusModifiers     `json:"bonus_modifiers"`

	IsActive    bool       `json:"is_active"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate rejects any config the engine must never run with. It is called at
// publish time; an invalid draft leaves the previously active config in place.
func (c *AlgorithmConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if sum := c.Weights.Sum(); sum != 100 {
		return fmt.Errorf("%w: weights sum to %d, want exactly 100", ErrConfigInvalid, sum)
	}
	if _, err := parseHHMM(c.TimezoneSettings.PeakHoursStart); err != nil {
		return fmt.Errorf("%w: peak hours start: %v", ErrConfigInvalid, err)
	}
	if _, err := parseHHMM(c.TimezoneSettings.PeakHoursEnd); err != nil {
		return fmt.Errorf("%w: peak hours end: %v", ErrConfigInvalid, err)
	}
	for _, comp := range allComplexities {
		row, ok := c.ExperienceMatrix[comp]
		if !ok {
			return fmt.Errorf("%w: experience matrix missing row %s", ErrConfigInvalid, comp)
		}
		for _, lvl := range allExperiences {
			score, ok := row[lvl]
			if !ok {
				return fmt.Errorf("%w: experience matrix missing cell %s/%s", ErrConfigInvalid, comp, lvl)
			}
			if score < 0 || score > 100 {
				return fmt.Errorf("%w: experience matrix cell %s/%s out of range: %d", ErrConfigInvalid, comp, lvl, score)
			}
		}
	}
	return nil
}

// WindowFor returns the acceptance window for a task urgency.
func (c *AlgorithmConfig) WindowFor(u Urgency) time.Duration {
	minutes := c.AcceptanceWindows.Standard
	switch u {
	case UrgencyCritical:
		minutes = c.AcceptanceWindows.Critical
	case UrgencyUrgent:
		minutes = c.AcceptanceWindows.Urgent
	case UrgencyFlexible:
		minutes = c.AcceptanceWindows.Flexible
	}
	return time.Duration(minutes) * time.Minute
}

// MaxOffersFor returns how many single-target offers a tier allows before the
// machine advances. Level3 is a broadcast and has no per-offer cap.
func (c *AlgorithmConfig) MaxOffersFor(tier Tier) int {
	switch tier {
	case TierLevel1:
		return c.EscalationSettings.Level1MaxOffers
	case TierLevel2:
		return c.EscalationSettings.Level2MaxOffers
	default:
		return 0
	}
}

// SkillThresholdFor returns the minimum collaborator skill match for a tier.
// Level3 broadcasts to everyone regardless of skill.
func (c *AlgorithmConfig) SkillThresholdFor(tier Tier) int {
	switch tier {
	case TierLevel1:
		return c.EscalationSettings.Level1SkillThreshold
	case TierLevel2:
		return c.EscalationSettings.Level2SkillThreshold
	default:
		return 0
	}
}

// DefaultConfig returns the stock matching rules used to seed a fresh
// deployment before an admin publishes a tuned version.
func DefaultConfig() AlgorithmConfig {
	return AlgorithmConfig{
		Weights: Weights{
			SkillMatch:         40,
			TimezoneFit:        20,
			ExperienceMatch:    20,
			WorkloadBalance:    10,
			PerformanceHistory: 10,
		},
		AcceptanceWindows: AcceptanceWindows{
			Critical: 30,
			Urgent:   60,
			Standard: 240,
			Flexible: 480,
		},
		EscalationSettings: EscalationSettings{
			Level1SkillThreshold:   80,
			Level2SkillThreshold:   60,
			Level1MaxOffers:        3,
			Level2MaxOffers:        5,
			Level3BroadcastMinutes: 30,
			MaxWorkloadOverride:    1,
		},
		TimezoneSettings: TimezoneSettings{
			PeakHoursStart:    "09:00",
			PeakHoursEnd:      "18:00",
			PeakScore:         100,
			EveningScore:      70,
			EarlyMorningScore: 60,
			LateEveningScore:  40,
			NightScore:        20,
		},
		ExperienceMatrix: ExperienceMatrix{
			ComplexitySimple:       {ExperienceJunior: 100, ExperienceMid: 90, ExperienceSenior: 70, ExperienceExpert: 50},
			ComplexityIntermediate: {ExperienceJunior: 60, ExperienceMid: 100, ExperienceSenior: 90, ExperienceExpert: 70},
			ComplexityAdvanced:     {ExperienceJunior: 20, ExperienceMid: 60, ExperienceSenior: 100, ExperienceExpert: 90},
			ComplexityExpert:       {ExperienceJunior: 0, ExperienceMid: 30, ExperienceSenior: 70, ExperienceExpert: 100},
		},
		WorkloadSettings: WorkloadSettings{
			MaxActiveTasks: 5,
			ScorePerTask:   20,
		},
		ExclusionRules: ExclusionRules{
			MinSkillScoreToInclude:     30,
			ExcludeOverloaded:          true,
			ExcludeNightHoursForUrgent: true,
			ExcludeVacationMode:        true,
		},
		BonusModifiers: BonusModifiers{
			CategorySpecializationBonus: 10,
			NiceToHaveSkillBonus:        2,
			FavoriteArtistBonus:         5,
		},
	}
}

func parseHHMM(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
