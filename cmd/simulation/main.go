package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/adapter/storage/memory"
	"github.com/inklane/artist-match-engine/internal/core/domain"
	"github.com/inklane/artist-match-engine/internal/core/service"
)

const (
	simulationDuration = 2 * time.Minute
	injectionInterval  = 5 * time.Second
	responseInterval   = 1 * time.Second
)

var (
	categories = []string{"logo", "illustration", "branding", "web", "packaging"}
	urgencies  = []domain.Urgency{domain.UrgencyCritical, domain.UrgencyUrgent, domain.UrgencyStandard, domain.UrgencyFlexible}
	levels     = []domain.ExperienceLevel{domain.ExperienceJunior, domain.ExperienceMid, domain.ExperienceSenior, domain.ExperienceExpert}
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	ctx := context.Background()

	// All in-memory: the simulation exercises the real scoring, pool and
	// escalation code without postgres/redis/rabbitmq running.
	configRepo := memory.NewConfigRepository()
	offerRepo := memory.NewOfferRepository()
	stateRepo := memory.NewEscalationRepository()
	publisher := memory.NewPublisher()
	directory := memory.NewDirectory(randomRoster(25)...)

	configService := service.NewConfigService(configRepo, logger.Named("Config"))
	draftID, err := configService.CreateVersion(ctx, domain.DefaultConfig())
	if err != nil {
		log.Fatal("Failed to create config draft:", err)
	}
	if _, err := configService.Publish(ctx, draftID); err != nil {
		log.Fatal("Failed to publish config:", err)
	}

	poolBuilder := service.NewPoolBuilder(directory, logger.Named("Pool"))
	scheduler := service.NewOfferScheduler(offerRepo, logger.Named("Scheduler"))
	engine := service.NewEngine(configService, poolBuilder, offerRepo, stateRepo, publisher, scheduler, logger.Named("Engine"))

	fmt.Println("🚀 Starting 2-minute Assignment Simulation...")
	fmt.Println("   Artists respond to offers with random accept/decline...")

	endTime := time.Now().Add(simulationDuration)
	injector := time.NewTicker(injectionInterval)
	defer injector.Stop()
	responder := time.NewTicker(responseInterval)
	defer responder.Stop()

	go monitorEvents(publisher)

	taskCount := 0
	for {
		select {
		case <-injector.C:
			if time.Now().After(endTime) {
				engine.Shutdown()
				scheduler.Stop()
				printSummary(ctx, stateRepo)
				return
			}

			batchSize := rand.Intn(3) + 1
			fmt.Printf("\n[Generator] Injecting %d new tasks...\n", batchSize)

			for i := 0; i < batchSize; i++ {
				taskCount++
				task := &domain.Task{
					ID:         fmt.Sprintf("sim-task-%d", taskCount),
					Title:      "simulation-job",
					Category:   categories[rand.Intn(len(categories))],
					Complexity: domain.ComplexityIntermediate,
					Urgency:    urgencies[rand.Intn(len(urgencies))],
					CreatedAt:  time.Now().UTC(),
				}
				if err := engine.Submit(context.Background(), task); err != nil {
					log.Printf("Failed to submit task %s: %v", task.ID, err)
				}
			}

		case <-responder.C:
			// Each pending offer gets a response with 60% probability:
			// accept 2 out of 3 times, decline otherwise.
			pending, err := offerRepo.ListPending(ctx)
			if err != nil {
				continue
			}
			for _, offer := range pending {
				if offer.ArtistID == "" {
					continue // Level3 broadcast window, nobody targeted
				}
				if rand.Float64() > 0.6 {
					continue
				}
				if rand.Float64() < 0.66 {
					if err := engine.Accept(ctx, offer.TaskID, offer.ID, offer.ArtistID); err != nil {
						continue
					}
					fmt.Printf("   ✅ %s accepted %s (tier %s, score %d)\n", offer.ArtistID, offer.TaskID, offer.Tier, offer.Score)
				} else {
					if err := engine.Decline(ctx, offer.TaskID, offer.ID, offer.ArtistID); err != nil {
						continue
					}
					fmt.Printf("   ❌ %s declined %s (tier %s)\n", offer.ArtistID, offer.TaskID, offer.Tier)
				}
			}
		}
	}
}

func randomRoster(n int) []*domain.ArtistSnapshot {
	zones := []string{"Europe/Lisbon", "America/New_York", "Asia/Tokyo", "Europe/Berlin", "America/Sao_Paulo"}
	artists := make([]*domain.ArtistSnapshot, 0, n)
	for i := 1; i <= n; i++ {
		artists = append(artists, &domain.ArtistSnapshot{
			ID:                      fmt.Sprintf("artist-%d", i),
			DisplayName:             fmt.Sprintf("Artist %d", i),
			TimeZone:                zones[rand.Intn(len(zones))],
			Experience:              levels[rand.Intn(len(levels))],
			ActiveTasks:             rand.Intn(5),
			OnVacation:              rand.Float64() < 0.1,
			SkillMatch:              rand.Intn(101),
			PerformanceHistory:      40 + rand.Intn(61),
			MatchedNiceToHaveSkills: rand.Intn(4),
			CategorySpecialist:      rand.Float64() < 0.2,
			Favorite:                rand.Float64() < 0.1,
			CreatedAt:               time.Now().UTC().Add(-time.Duration(rand.Intn(720)) * time.Hour),
		})
	}
	return artists
}

func monitorEvents(publisher *memory.Publisher) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	seen := 0
	for range ticker.C {
		events := publisher.Events()
		for _, event := range events[seen:] {
			switch event.Type {
			case domain.EventTaskAssigned:
				fmt.Printf("   👀 Engine assigned %s -> %s (tier %s)\n", event.TaskID, event.ArtistID, event.Tier)
			case domain.EventTaskAdminEscalated:
				fmt.Printf("   🚨 Task %s exhausted all tiers, handed to admin\n", event.TaskID)
			}
		}
		seen = len(events)
	}
}

func printSummary(ctx context.Context, states *memory.EscalationRepository) {
	active, err := states.ListActive(ctx)
	if err != nil {
		return
	}
	fmt.Printf("\n✅ Simulation Complete. %d tasks still in flight at shutdown.\n", len(active))
}
