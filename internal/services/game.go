package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mapit-backend/internal/graphscore"
	"mapit-backend/internal/models"
	"mapit-backend/internal/repository"
)

const (
	defaultGameListLimit = 50
	maxGameListLimit     = 100
)

type GameStore interface {
	Create(ctx context.Context, g *models.GameSession) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.GameSession, error)
	List(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID, limit int) ([]*models.GameSession, error)
	Complete(ctx context.Context, id, userID uuid.UUID, elapsedSeconds int, score func(canonical []models.Edge) int) (*models.GameSession, error)
}

type GameService struct {
	games GameStore
	maps  MindMapOwnership
}

func NewGameService(games GameStore, maps MindMapOwnership) *GameService {
	return &GameService{games: games, maps: maps}
}

func (s *GameService) Create(ctx context.Context, userID, mindMapID uuid.UUID) (*models.GameSession, error) {
	m, err := s.maps.GetByID(ctx, mindMapID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Mind map not found"}
		}
		return nil, err
	}
	if m.Status != models.MindMapReady {
		return nil, &PreconditionError{Message: "Mind map is not ready yet"}
	}

	g := &models.GameSession{UserID: userID, MindMapID: mindMapID}
	if err := s.games.Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Complete scores the submitted edges against the mind map's edges and
// closes the session. A session is scored at most once.
func (s *GameService) Complete(ctx context.Context, userID, sessionID uuid.UUID, req models.CompleteGameSessionRequest) (*models.GameSession, error) {
	fields := map[string]string{}
	if req.TimeElapsedSeconds == nil {
		fields["time_elapsed_seconds"] = "Time elapsed is required"
	} else if *req.TimeElapsedSeconds < 0 {
		fields["time_elapsed_seconds"] = "Time elapsed must not be negative"
	}
	if req.Edges == nil {
		fields["edges"] = "Edges are required"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	submitted := make([]graphscore.Edge, 0, len(req.Edges))
	for _, e := range req.Edges {
		submitted = append(submitted, graphscore.Edge{Source: e.Source, Target: e.Target})
	}

	g, err := s.games.Complete(ctx, sessionID, userID, *req.TimeElapsedSeconds, func(canonical []models.Edge) int {
		edges := make([]graphscore.Edge, 0, len(canonical))
		for _, e := range canonical {
			edges = append(edges, graphscore.Edge{Source: e.Source, Target: e.Target})
		}
		return graphscore.Score(edges, submitted)
	})
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, &NotFoundError{Message: "Game session not found"}
		case errors.Is(err, repository.ErrSessionCompleted):
			return nil, &ConflictError{Message: "Game session already completed"}
		}
		return nil, err
	}
	return g, nil
}

func (s *GameService) Get(ctx context.Context, userID, sessionID uuid.UUID) (*models.GameSession, error) {
	g, err := s.games.GetByID(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Game session not found"}
		}
		return nil, err
	}
	return g, nil
}

func (s *GameService) List(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID, limit int) ([]*models.GameSession, error) {
	if limit <= 0 {
		limit = defaultGameListLimit
	}
	if limit > maxGameListLimit {
		limit = maxGameListLimit
	}
	sessions, err := s.games.List(ctx, userID, mindMapID, limit)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*models.GameSession{}
	}
	return sessions, nil
}
