package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mapit-backend/internal/models"
	"mapit-backend/internal/srs"
)

type FlashcardStore interface {
	ListByMindMap(ctx context.Context, mindMapID uuid.UUID) ([]models.Flashcard, error)
	GetOwned(ctx context.Context, cardID, userID uuid.UUID) (*models.Flashcard, error)
	EnsureProgress(ctx context.Context, userID, cardID uuid.UUID, today time.Time) error
	EnsureProgressInScope(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID, today time.Time) (int64, error)
	GetProgress(ctx context.Context, userID, cardID uuid.UUID) (*models.FlashcardProgress, error)
	ListDue(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID, today time.Time) ([]*models.FlashcardProgress, error)
	Review(ctx context.Context, userID, cardID uuid.UUID, today time.Time, apply func(*models.FlashcardProgress) error) (*models.FlashcardProgress, error)
	Stats(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID, today time.Time) (*models.FlashcardStats, error)
}

// MindMapOwnership is the part of the mind map store used to scope
// flashcard and game requests to the caller.
type MindMapOwnership interface {
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.MindMap, error)
}

type FlashcardService struct {
	cards     FlashcardStore
	maps      MindMapOwnership
	generator Generator
	now       func() time.Time
}

func NewFlashcardService(cards FlashcardStore, maps MindMapOwnership, generator Generator) *FlashcardService {
	return &FlashcardService{
		cards:     cards,
		maps:      maps,
		generator: generator,
		now:       time.Now,
	}
}

func (s *FlashcardService) today() time.Time {
	return srs.Date(s.now())
}

func (s *FlashcardService) requireMindMap(ctx context.Context, userID, mindMapID uuid.UUID) error {
	if _, err := s.maps.GetByID(ctx, mindMapID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Message: "Mind map not found"}
		}
		return err
	}
	return nil
}

func (s *FlashcardService) requireCard(ctx context.Context, userID, cardID uuid.UUID) (*models.Flashcard, error) {
	card, err := s.cards.GetOwned(ctx, cardID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Flashcard not found"}
		}
		return nil, err
	}
	return card, nil
}

func (s *FlashcardService) ListForMindMap(ctx context.Context, userID, mindMapID uuid.UUID) ([]models.Flashcard, error) {
	if err := s.requireMindMap(ctx, userID, mindMapID); err != nil {
		return nil, err
	}
	cards, err := s.cards.ListByMindMap(ctx, mindMapID)
	if err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []models.Flashcard{}
	}
	return cards, nil
}

// Review records one rating for a card and returns the rescheduled
// progress. The read-modify-write happens under a row lock.
func (s *FlashcardService) Review(ctx context.Context, userID, cardID uuid.UUID, quality *int) (*models.FlashcardProgress, error) {
	if quality == nil {
		return nil, &ValidationError{Fields: map[string]string{"quality": "Quality is required"}}
	}
	if err := srs.ValidateQuality(*quality); err != nil {
		return nil, &ValidationError{Fields: map[string]string{"quality": "Quality must be between 0 and 5"}}
	}
	if _, err := s.requireCard(ctx, userID, cardID); err != nil {
		return nil, err
	}

	now := s.now()
	return s.cards.Review(ctx, userID, cardID, srs.Date(now), func(p *models.FlashcardProgress) error {
		next, err := srs.Review(progressState(p), *quality, now)
		if err != nil {
			return err
		}
		p.EasinessFactor = next.EasinessFactor
		p.Interval = next.Interval
		p.Repetitions = next.Repetitions
		p.NextReviewDate = next.NextReviewDate
		p.LastReviewedAt = next.LastReviewedAt
		return nil
	})
}

// Due lists the caller's cards due today, optionally for one mind map.
// Cards without progress are initialized first so new cards show up.
func (s *FlashcardService) Due(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID) ([]*models.FlashcardProgress, error) {
	if mindMapID != nil {
		if err := s.requireMindMap(ctx, userID, *mindMapID); err != nil {
			return nil, err
		}
	}
	today := s.today()
	if _, err := s.cards.EnsureProgressInScope(ctx, userID, mindMapID, today); err != nil {
		return nil, err
	}
	due, err := s.cards.ListDue(ctx, userID, mindMapID, today)
	if err != nil {
		return nil, err
	}
	if due == nil {
		due = []*models.FlashcardProgress{}
	}
	return due, nil
}

func (s *FlashcardService) Progress(ctx context.Context, userID, cardID uuid.UUID) (*models.FlashcardProgress, error) {
	if _, err := s.requireCard(ctx, userID, cardID); err != nil {
		return nil, err
	}
	if err := s.cards.EnsureProgress(ctx, userID, cardID, s.today()); err != nil {
		return nil, err
	}
	return s.cards.GetProgress(ctx, userID, cardID)
}

// Evaluate grades a free-text answer with the AI generator. The returned
// quality is a suggestion; nothing is persisted.
func (s *FlashcardService) Evaluate(ctx context.Context, userID, cardID uuid.UUID, answer string) (*models.AnswerEvaluation, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, &ValidationError{Fields: map[string]string{"user_answer": "Answer is required"}}
	}
	card, err := s.requireCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	return s.generator.EvaluateAnswer(ctx, card, answer)
}

func (s *FlashcardService) Stats(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID) (*models.FlashcardStats, error) {
	if mindMapID != nil {
		if err := s.requireMindMap(ctx, userID, *mindMapID); err != nil {
			return nil, err
		}
	}
	return s.cards.Stats(ctx, userID, mindMapID, s.today())
}

func progressState(p *models.FlashcardProgress) srs.State {
	return srs.State{
		EasinessFactor: p.EasinessFactor,
		Interval:       p.Interval,
		Repetitions:    p.Repetitions,
		NextReviewDate: p.NextReviewDate,
		LastReviewedAt: p.LastReviewedAt,
	}
}
