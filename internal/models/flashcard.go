package models

import (
	"time"

	"github.com/google/uuid"
)

type Flashcard struct {
	ID        uuid.UUID `json:"id"`
	MindMapID uuid.UUID `json:"mind_map_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// FlashcardProgress is one learner's review state for one card.
type FlashcardProgress struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"-"`
	FlashcardID    uuid.UUID  `json:"flashcard_id"`
	Flashcard      *Flashcard `json:"flashcard,omitempty"`
	EasinessFactor float64    `json:"easiness_factor"`
	Interval       int        `json:"interval"`
	Repetitions    int        `json:"repetitions"`
	NextReviewDate time.Time  `json:"next_review_date"`
	LastReviewedAt *time.Time `json:"last_reviewed_at"`
}

type ReviewRequest struct {
	Quality *int `json:"quality"`
}

type EvaluateAnswerRequest struct {
	UserAnswer string `json:"user_answer"`
}

type AnswerEvaluation struct {
	Quality      int    `json:"quality"`
	Feedback     string `json:"feedback"`
	QualityLabel string `json:"quality_label"`
}

type FlashcardStats struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Learning int `json:"learning"`
	Mastered int `json:"mastered"`
	DueToday int `json:"due_today"`
}

// DueCount is the number of due cards for one learner.
type DueCount struct {
	UserID uuid.UUID `json:"user_id"`
	Count  int       `json:"count"`
}
