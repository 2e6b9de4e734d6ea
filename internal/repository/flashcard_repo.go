package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mapit-backend/internal/models"
)

type FlashcardRepo struct {
	pool *pgxpool.Pool
}

func NewFlashcardRepo(pool *pgxpool.Pool) *FlashcardRepo {
	return &FlashcardRepo{pool: pool}
}

// Card operations

func (r *FlashcardRepo) ListByMindMap(ctx context.Context, mindMapID uuid.UUID) ([]models.Flashcard, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, mind_map_id, question, answer, created_at
		 FROM flashcards WHERE mind_map_id = $1 ORDER BY created_at, id`,
		mindMapID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := make([]models.Flashcard, 0)
	for rows.Next() {
		var c models.Flashcard
		if err := rows.Scan(&c.ID, &c.MindMapID, &c.Question, &c.Answer, &c.CreatedAt); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// GetOwned loads a card only if it belongs to a mind map owned by userID.
func (r *FlashcardRepo) GetOwned(ctx context.Context, cardID, userID uuid.UUID) (*models.Flashcard, error) {
	c := &models.Flashcard{}
	err := r.pool.QueryRow(ctx,
		`SELECT f.id, f.mind_map_id, f.question, f.answer, f.created_at
		 FROM flashcards f JOIN mind_maps m ON m.id = f.mind_map_id
		 WHERE f.id = $1 AND m.user_id = $2`,
		cardID, userID,
	).Scan(&c.ID, &c.MindMapID, &c.Question, &c.Answer, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Progress operations

const progressColumns = `p.id, p.user_id, p.flashcard_id, p.easiness_factor, p.interval_days, p.repetitions,
	p.next_review_date, p.last_reviewed_at,
	f.id, f.mind_map_id, f.question, f.answer, f.created_at`

const (
	ensureProgressSQL = `INSERT INTO flashcard_progress (id, user_id, flashcard_id, next_review_date)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, flashcard_id) DO NOTHING`

	ensureProgressInScopeSQL = `INSERT INTO flashcard_progress (id, user_id, flashcard_id, next_review_date)
		 SELECT gen_random_uuid(), $1, f.id, $3
		 FROM flashcards f JOIN mind_maps m ON m.id = f.mind_map_id
		 WHERE m.user_id = $1 AND ($2::uuid IS NULL OR f.mind_map_id = $2)
		 ON CONFLICT (user_id, flashcard_id) DO NOTHING`

	// only the progress row is locked, the card row stays shared
	lockProgressSQL = `SELECT ` + progressColumns + `
		 FROM flashcard_progress p JOIN flashcards f ON f.id = p.flashcard_id
		 WHERE p.user_id = $1 AND p.flashcard_id = $2
		 FOR UPDATE OF p`
)

func scanProgress(row pgx.Row) (*models.FlashcardProgress, error) {
	p := &models.FlashcardProgress{Flashcard: &models.Flashcard{}}
	err := row.Scan(
		&p.ID, &p.UserID, &p.FlashcardID, &p.EasinessFactor, &p.Interval, &p.Repetitions,
		&p.NextReviewDate, &p.LastReviewedAt,
		&p.Flashcard.ID, &p.Flashcard.MindMapID, &p.Flashcard.Question, &p.Flashcard.Answer, &p.Flashcard.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// EnsureProgress creates the default review state for (userID, cardID) if
// none exists. Safe to call concurrently.
func (r *FlashcardRepo) EnsureProgress(ctx context.Context, userID, cardID uuid.UUID, today time.Time) error {
	_, err := r.pool.Exec(ctx, ensureProgressSQL, uuid.New(), userID, cardID, today)
	return err
}

// EnsureProgressInScope creates default review states for every card of
// the user's mind maps (or of one map when mindMapID is set) that has none.
func (r *FlashcardRepo) EnsureProgressInScope(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID, today time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, ensureProgressInScopeSQL, userID, mindMapID, today)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *FlashcardRepo) GetProgress(ctx context.Context, userID, cardID uuid.UUID) (*models.FlashcardProgress, error) {
	return scanProgress(r.pool.QueryRow(ctx,
		`SELECT `+progressColumns+`
		 FROM flashcard_progress p JOIN flashcards f ON f.id = p.flashcard_id
		 WHERE p.user_id = $1 AND p.flashcard_id = $2`,
		userID, cardID,
	))
}

func (r *FlashcardRepo) ListDue(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID, today time.Time) ([]*models.FlashcardProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+progressColumns+`
		 FROM flashcard_progress p
		 JOIN flashcards f ON f.id = p.flashcard_id
		 JOIN mind_maps m ON m.id = f.mind_map_id
		 WHERE p.user_id = $1 AND m.user_id = $1
		   AND ($2::uuid IS NULL OR f.mind_map_id = $2)
		   AND p.next_review_date <= $3
		 ORDER BY p.next_review_date, f.created_at, f.id`,
		userID, mindMapID, today,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	due := make([]*models.FlashcardProgress, 0)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, p)
	}
	return due, rows.Err()
}

// Review locks the (userID, cardID) progress row, creating it first if
// needed, hands it to apply and persists the result. Concurrent reviews
// of the same card are serialized on the row lock.
func (r *FlashcardRepo) Review(ctx context.Context, userID, cardID uuid.UUID, today time.Time, apply func(*models.FlashcardProgress) error) (*models.FlashcardProgress, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, ensureProgressSQL, uuid.New(), userID, cardID, today)
	if err != nil {
		return nil, fmt.Errorf("ensure progress: %w", err)
	}

	p, err := scanProgress(tx.QueryRow(ctx, lockProgressSQL, userID, cardID))
	if err != nil {
		return nil, err
	}

	if err := apply(p); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE flashcard_progress
		 SET easiness_factor = $1, interval_days = $2, repetitions = $3,
		     next_review_date = $4, last_reviewed_at = $5, updated_at = NOW()
		 WHERE id = $6`,
		p.EasinessFactor, p.Interval, p.Repetitions, p.NextReviewDate, p.LastReviewedAt, p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Stats counts cards in scope by mastery. Cards never reviewed, with or
// without a progress row, count as new and due.
func (r *FlashcardRepo) Stats(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID, today time.Time) (*models.FlashcardStats, error) {
	s := &models.FlashcardStats{}
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE COALESCE(p.repetitions, 0) = 0),
			COUNT(*) FILTER (WHERE p.repetitions > 0 AND (p.repetitions < 3 OR p.easiness_factor < 2.5)),
			COUNT(*) FILTER (WHERE p.repetitions >= 3 AND p.easiness_factor >= 2.5),
			COUNT(*) FILTER (WHERE p.id IS NULL OR p.next_review_date <= $3)
		 FROM flashcards f
		 JOIN mind_maps m ON m.id = f.mind_map_id
		 LEFT JOIN flashcard_progress p ON p.flashcard_id = f.id AND p.user_id = $1
		 WHERE m.user_id = $1 AND ($2::uuid IS NULL OR f.mind_map_id = $2)`,
		userID, mindMapID, today,
	).Scan(&s.Total, &s.New, &s.Learning, &s.Mastered, &s.DueToday)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// DueCounts returns, for every active user with at least one due card,
// how many cards are due on today.
func (r *FlashcardRepo) DueCounts(ctx context.Context, today time.Time) ([]models.DueCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.user_id, COUNT(*)
		 FROM flashcards f
		 JOIN mind_maps m ON m.id = f.mind_map_id
		 JOIN users u ON u.id = m.user_id AND u.is_active
		 LEFT JOIN flashcard_progress p ON p.flashcard_id = f.id AND p.user_id = m.user_id
		 WHERE p.id IS NULL OR p.next_review_date <= $1
		 GROUP BY m.user_id`,
		today,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]models.DueCount, 0)
	for rows.Next() {
		var c models.DueCount
		if err := rows.Scan(&c.UserID, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
