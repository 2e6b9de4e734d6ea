package models

import (
	"time"

	"github.com/google/uuid"
)

type GameSession struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"-"`
	MindMapID          uuid.UUID  `json:"mind_map_id"`
	Score              int        `json:"score"`
	Completed          bool       `json:"completed"`
	ExactMatch         bool       `json:"exact_match"`
	TimeElapsedSeconds *int       `json:"time_elapsed_seconds"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at"`
}

type CreateGameSessionRequest struct {
	MindMapID uuid.UUID `json:"mind_map_id"`
}

type SubmittedEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type CompleteGameSessionRequest struct {
	Edges              []SubmittedEdge `json:"edges"`
	TimeElapsedSeconds *int            `json:"time_elapsed_seconds"`
}
