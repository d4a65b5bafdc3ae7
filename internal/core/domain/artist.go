package domain

import "time"

type ExperienceLevel string

const (
	ExperienceJunior ExperienceLevel = "JUNIOR"
	ExperienceMid    ExperienceLevel = "MID"
	ExperienceSenior ExperienceLevel = "SENIOR"
	ExperienceExpert ExperienceLevel = "EXPERT"
)

// ArtistSnapshot is the per-(artist, task) evaluation input supplied by the
// artist data collaborator. SkillMatch, MatchedNiceToHaveSkills,
// CategorySpecialist and Favorite are already resolved against the task under
// evaluation; the engine treats the whole snapshot as read-only.
type ArtistSnapshot struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name"`
	TimeZone    string          `json:"time_zone"` // IANA name, e.g. "Europe/Lisbon"
	Experience  ExperienceLevel `json:"experience"`

	ActiveTasks int  `json:"active_tasks"`
	OnVacation  bool `json:"on_vacation"`

	SkillMatch         int `json:"skill_match"`         // 0-100, collaborator-computed vs required skills
	PerformanceHistory int `json:"performance_history"` // 0-100 rolling rating/on-time/acceptance composite

	MatchedNiceToHaveSkills int  `json:"matched_nice_to_have_skills"`
	CategorySpecialist      bool `json:"category_specialist"`
	Favorite                bool `json:"favorite"`

	CreatedAt time.Time `json:"created_at"` // account creation, used as the final tie-break
}

// LocalTime converts now into the artist's own timezone. The zone name comes
// from the collaborator and may be garbage; callers treat a failed load as
// incomplete candidate data.
func (a *ArtistSnapshot) LocalTime(now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(a.TimeZone)
	if err != nil {
		return time.Time{}, err
	}
	return now.In(loc), nil
}
