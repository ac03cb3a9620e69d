// services/scheduler.go
package services

import (
	"log"
	"time"

	"ladder-challenge-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartExpiryScheduler runs the challenge-deadline sweep every minute.
func (s *LadderService) StartExpiryScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			expired, err := s.ExpireOverdueChallenges(time.Now())
			if err != nil {
				log.Printf("[Scheduler] Expiry sweep failed: %v", err)
				return
			}
			if expired > 0 {
				log.Printf("✅ Expired %d overdue challenges", expired)
			}
		}),
	)
}

// StartArchiveScheduler uploads a daily audit snapshot of every active
// ladder. Decline and immunity history is retained for audit; the snapshot
// ships it to object storage alongside the standings.
func (s *LadderService) StartArchiveScheduler(archive func(ladderID string) error) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			var ladderIDs []string
			if err := s.DB.Model(&models.Ladder{}).Where("is_active = ?", true).
				Pluck("id", &ladderIDs).Error; err != nil {
				log.Printf("[Scheduler] Archive sweep failed: %v", err)
				return
			}
			for _, id := range ladderIDs {
				if err := archive(id); err != nil {
					log.Printf("[Scheduler] Failed to archive ladder %s: %v", id, err)
				}
			}
		}),
	)
}
