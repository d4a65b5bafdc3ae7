package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/core/domain"
	"github.com/inklane/artist-match-engine/internal/core/port"
)

// ExpiryFunc is invoked when an offer's acceptance window elapses without a
// resolution.
type ExpiryFunc func(offerID, taskID string)

// OfferScheduler owns one countdown timer per outstanding offer. Timers for
// different tasks never block each other; cancellation is idempotent, so a
// timer firing just after a cancel is a no-op.
type OfferScheduler struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	offers   port.OfferRepository
	onExpire ExpiryFunc
	log      *zap.Logger
}

func NewOfferScheduler(offers port.OfferRepository, log *zap.Logger) *OfferScheduler {
	return &OfferScheduler{
		timers: make(map[string]*time.Timer),
		offers: offers,
		log:    log,
	}
}

// OnExpire registers the expiry callback. Must be set before Schedule or
// Recover is called.
func (s *OfferScheduler) OnExpire(fn ExpiryFunc) {
	s.onExpire = fn
}

// Schedule arms the countdown for a pending offer. An offer already past its
// deadline fires immediately.
func (s *OfferScheduler) Schedule(offer *domain.TaskOffer) {
	s.scheduleAfter(offer.ID, offer.TaskID, time.Until(offer.ExpiresAt))
}

func (s *OfferScheduler) scheduleAfter(offerID, taskID string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[offerID]; ok {
		old.Stop()
	}
	s.timers[offerID] = time.AfterFunc(d, func() {
		s.fire(offerID, taskID)
	})
	s.log.Debug("Armed offer timer",
		zap.String("offer_id", offerID),
		zap.String("task_id", taskID),
		zap.Duration("window", d))
}

// fire delivers the expiry once; a concurrently cancelled timer finds itself
// already removed and does nothing.
func (s *OfferScheduler) fire(offerID, taskID string) {
	s.mu.Lock()
	_, live := s.timers[offerID]
	delete(s.timers, offerID)
	s.mu.Unlock()
	if !live {
		return
	}
	s.log.Debug("Offer timer fired", zap.String("offer_id", offerID))
	s.onExpire(offerID, taskID)
}

// Cancel disarms an offer's timer. Safe to call for unknown or already-fired
// offers.
func (s *OfferScheduler) Cancel(offerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[offerID]; ok {
		t.Stop()
		delete(s.timers, offerID)
	}
}

// Recover re-arms timers after a process restart. Offers whose deadline
// already passed while we were down are expired immediately; still-pending
// offers get a timer for the remaining duration.
func (s *OfferScheduler) Recover(ctx context.Context) error {
	pending, err := s.offers.ListPending(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	recovered, lapsed := 0, 0
	for _, offer := range pending {
		if offer.ExpiresAt.After(now) {
			s.scheduleAfter(offer.ID, offer.TaskID, offer.ExpiresAt.Sub(now))
			recovered++
			continue
		}
		lapsed++
		go s.onExpire(offer.ID, offer.TaskID)
	}
	s.log.Info("Recovered offer timers",
		zap.Int("rearmed", recovered),
		zap.Int("lapsed", lapsed))
	return nil
}

// Stop disarms every timer. Used on shutdown.
func (s *OfferScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
