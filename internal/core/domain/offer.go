package domain

import "time"

type Tier string

const (
	TierLevel1 Tier = "LEVEL1"
	TierLevel2 Tier = "LEVEL2"
	TierLevel3 Tier = "LEVEL3"
)

// Next returns the tier after t; Level3 has no successor.
func (t Tier) Next() (Tier, bool) {
	switch t {
	case TierLevel1:
		return TierLevel2, true
	case TierLevel2:
		return TierLevel3, true
	default:
		return "", false
	}
}

type OfferOutcome string

const (
	OfferPending  OfferOutcome = "PENDING"
	OfferAccepted OfferOutcome = "ACCEPTED"
	OfferDeclined OfferOutcome = "DECLINED"
	OfferExpired  OfferOutcome = "EXPIRED"
)

// TaskOffer is one time-boxed proposal of a task to one artist. It is created
// by the escalation state machine and owned by the offer scheduler until
// resolved. At Level3 the "offer" models the broadcast window instead and
// ArtistID is empty until an artist claims it.
type TaskOffer struct {
	ID        string       `json:"id"`
	TaskID    string       `json:"task_id"`
	ArtistID  string       `json:"artist_id"`
	Tier      Tier         `json:"tier"`
	Score     int          `json:"score"`
	OfferedAt time.Time    `json:"offered_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Outcome   OfferOutcome `json:"outcome"`
}

// Resolved reports whether the offer reached a final outcome.
func (o *TaskOffer) Resolved() bool {
	return o.Outcome != OfferPending
}
