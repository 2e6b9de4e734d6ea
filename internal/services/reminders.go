package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"mapit-backend/internal/models"
	"mapit-backend/internal/srs"
)

const reminderRunTimeout = 2 * time.Minute

type DueCounter interface {
	DueCounts(ctx context.Context, today time.Time) ([]models.DueCount, error)
}

// ReminderScheduler pushes a daily reviews_due message to every learner
// with cards due.
type ReminderScheduler struct {
	scheduler *gocron.Scheduler
	counter   DueCounter
	publisher Publisher
	at        string
	now       func() time.Time
}

func NewReminderScheduler(counter DueCounter, publisher Publisher, at string) *ReminderScheduler {
	return &ReminderScheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		counter:   counter,
		publisher: publisher,
		at:        at,
		now:       time.Now,
	}
}

func (s *ReminderScheduler) Start() error {
	if _, err := s.scheduler.Every(1).Day().At(s.at).Do(s.run); err != nil {
		return fmt.Errorf("schedule reminders at %q: %w", s.at, err)
	}
	s.scheduler.StartAsync()
	log.Printf("Review reminders scheduled daily at %s UTC", s.at)
	return nil
}

func (s *ReminderScheduler) Stop() {
	s.scheduler.Stop()
}

func (s *ReminderScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), reminderRunTimeout)
	defer cancel()

	sent, err := s.SendReminders(ctx)
	if err != nil {
		log.Printf("review reminders: %v", err)
		return
	}
	log.Printf("review reminders: notified %d learners", sent)
}

// SendReminders publishes one reviews_due message per learner with at
// least one due card and returns how many were sent.
func (s *ReminderScheduler) SendReminders(ctx context.Context) (int, error) {
	today := srs.Date(s.now())
	counts, err := s.counter.DueCounts(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("count due cards: %w", err)
	}

	date := today.Format("2006-01-02")
	sent := 0
	for _, c := range counts {
		if c.Count <= 0 {
			continue
		}
		s.publisher.Publish(ctx, c.UserID, models.WSMessage{
			Type:    models.WSReviewsDue,
			Payload: models.ReviewsDueEvent{DueCount: c.Count, Date: date},
		})
		sent++
	}
	return sent, nil
}
