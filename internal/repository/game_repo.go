package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mapit-backend/internal/models"
)

// ErrSessionCompleted is returned when completing a session that already
// has a score.
var ErrSessionCompleted = errors.New("game session already completed")

type GameRepo struct {
	pool *pgxpool.Pool
}

func NewGameRepo(pool *pgxpool.Pool) *GameRepo {
	return &GameRepo{pool: pool}
}

const (
	gameColumns = `id, user_id, mind_map_id, score, completed, time_elapsed_seconds, created_at, completed_at`

	lockSessionSQL = `SELECT ` + gameColumns + ` FROM game_sessions WHERE id = $1 AND user_id = $2 FOR UPDATE`
)

func scanGame(row pgx.Row) (*models.GameSession, error) {
	g := &models.GameSession{}
	err := row.Scan(
		&g.ID, &g.UserID, &g.MindMapID, &g.Score, &g.Completed,
		&g.TimeElapsedSeconds, &g.CreatedAt, &g.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	g.ExactMatch = g.Completed && g.Score == 100
	return g, nil
}

func (r *GameRepo) Create(ctx context.Context, g *models.GameSession) error {
	g.ID = uuid.New()
	g.Score = 0
	g.Completed = false

	return r.pool.QueryRow(ctx,
		`INSERT INTO game_sessions (id, user_id, mind_map_id) VALUES ($1, $2, $3) RETURNING created_at`,
		g.ID, g.UserID, g.MindMapID,
	).Scan(&g.CreatedAt)
}

func (r *GameRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.GameSession, error) {
	return scanGame(r.pool.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM game_sessions WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
}

func (r *GameRepo) List(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID, limit int) ([]*models.GameSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+gameColumns+` FROM game_sessions
		 WHERE user_id = $1 AND ($2::uuid IS NULL OR mind_map_id = $2)
		 ORDER BY created_at DESC LIMIT $3`,
		userID, mindMapID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]*models.GameSession, 0)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, g)
	}
	return sessions, rows.Err()
}

// Complete locks the session row, rejects it with ErrSessionCompleted if it
// was already scored, and stores the score computed by score from the
// mind map's canonical edges.
func (r *GameRepo) Complete(ctx context.Context, id, userID uuid.UUID, elapsedSeconds int, score func(canonical []models.Edge) int) (*models.GameSession, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	g, err := scanGame(tx.QueryRow(ctx, lockSessionSQL, id, userID))
	if err != nil {
		return nil, err
	}
	if g.Completed {
		return nil, ErrSessionCompleted
	}

	canonical, err := listEdges(ctx, tx, g.MindMapID)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}

	now := time.Now().UTC()
	g.Score = score(canonical)
	g.Completed = true
	g.ExactMatch = g.Score == 100
	g.TimeElapsedSeconds = &elapsedSeconds
	g.CompletedAt = &now

	_, err = tx.Exec(ctx,
		`UPDATE game_sessions SET score = $1, completed = TRUE, time_elapsed_seconds = $2, completed_at = $3
		 WHERE id = $4`,
		g.Score, elapsedSeconds, now, g.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return g, nil
}
