package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mapit-backend/internal/models"
)

type MindMapRepo struct {
	pool *pgxpool.Pool
}

func NewMindMapRepo(pool *pgxpool.Pool) *MindMapRepo {
	return &MindMapRepo{pool: pool}
}

const mindMapColumns = `id, user_id, title, pdf_filename, content_hash, status, error_message, created_at, updated_at`

func scanMindMap(row pgx.Row, m *models.MindMap) error {
	return row.Scan(
		&m.ID, &m.UserID, &m.Title, &m.PDFFilename, &m.ContentHash,
		&m.Status, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt,
	)
}

func (r *MindMapRepo) Create(ctx context.Context, m *models.MindMap) error {
	m.ID = uuid.New()
	if m.Status == "" {
		m.Status = models.MindMapPending
	}

	query := `INSERT INTO mind_maps (id, user_id, title, pdf_filename, content_hash, source_text, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		m.ID, m.UserID, m.Title, m.PDFFilename, m.ContentHash, m.SourceText, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

// GetByID returns the mind map without its graph. Maps owned by another
// user are reported as pgx.ErrNoRows.
func (r *MindMapRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.MindMap, error) {
	m := &models.MindMap{}
	query := `SELECT ` + mindMapColumns + ` FROM mind_maps WHERE id = $1 AND user_id = $2`
	if err := scanMindMap(r.pool.QueryRow(ctx, query, id, userID), m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetSourceText is used by the generation worker, which runs without a
// user scope.
func (r *MindMapRepo) GetSourceText(ctx context.Context, id uuid.UUID) (string, error) {
	var text string
	err := r.pool.QueryRow(ctx, "SELECT source_text FROM mind_maps WHERE id = $1", id).Scan(&text)
	return text, err
}

func (r *MindMapRepo) GetWithGraph(ctx context.Context, id, userID uuid.UUID) (*models.MindMap, error) {
	m, err := r.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if m.Nodes, err = r.ListNodes(ctx, id); err != nil {
		return nil, err
	}
	if m.Edges, err = r.ListEdges(ctx, id); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MindMapRepo) ListNodes(ctx context.Context, mindMapID uuid.UUID) ([]models.Node, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT node_id, label, content, position_x, position_y, level
		 FROM mind_map_nodes WHERE mind_map_id = $1 ORDER BY level, created_at, node_id`,
		mindMapID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := make([]models.Node, 0)
	for rows.Next() {
		var n models.Node
		var x, y *float64
		if err := rows.Scan(&n.ID, &n.Label, &n.Content, &x, &y, &n.Level); err != nil {
			return nil, err
		}
		if x != nil && y != nil {
			n.Position = &models.Position{X: *x, Y: *y}
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (r *MindMapRepo) ListEdges(ctx context.Context, mindMapID uuid.UUID) ([]models.Edge, error) {
	return listEdges(ctx, r.pool, mindMapID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listEdges(ctx context.Context, q querier, mindMapID uuid.UUID) ([]models.Edge, error) {
	rows, err := q.Query(ctx,
		`SELECT edge_id, source_node_id, target_node_id
		 FROM mind_map_edges WHERE mind_map_id = $1 ORDER BY created_at, edge_id`,
		mindMapID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	edges := make([]models.Edge, 0)
	for rows.Next() {
		e := models.Edge{Type: models.EdgeTypeFloating}
		if err := rows.Scan(&e.ID, &e.Source, &e.Target); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (r *MindMapRepo) List(ctx context.Context, userID uuid.UUID, p models.ListMindMapsParams) ([]*models.MindMap, error) {
	query := `SELECT ` + mindMapColumns + ` FROM mind_maps
		WHERE user_id = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3`

	rows, err := r.pool.Query(ctx, query, userID, p.Skip, p.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	maps := make([]*models.MindMap, 0)
	for rows.Next() {
		m := &models.MindMap{}
		if err := scanMindMap(rows, m); err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

// FindReadyByHash returns the newest ready map the user built from the same
// document, or pgx.ErrNoRows.
func (r *MindMapRepo) FindReadyByHash(ctx context.Context, userID uuid.UUID, hash string) (*models.MindMap, error) {
	m := &models.MindMap{}
	query := `SELECT ` + mindMapColumns + ` FROM mind_maps
		WHERE user_id = $1 AND content_hash = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1`
	if err := scanMindMap(r.pool.QueryRow(ctx, query, userID, hash, models.MindMapReady), m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes the map and, through cascades, its nodes, edges, cards,
// review progress and game sessions. It reports whether a row was removed.
func (r *MindMapRepo) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM mind_maps WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *MindMapRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE mind_maps SET status = $1, error_message = $2, updated_at = NOW() WHERE id = $3",
		status, errMsg, id,
	)
	return err
}

// SaveGeneration stores a generated graph and its flashcards and marks the
// map ready, all in one transaction. Any earlier partial content for the
// map is replaced.
func (r *MindMapRepo) SaveGeneration(ctx context.Context, mindMapID uuid.UUID, s *models.MindMapStructure, cards []models.GeneratedCard) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"mind_map_edges", "mind_map_nodes", "flashcards"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE mind_map_id = $1", mindMapID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	batch := &pgx.Batch{}
	for _, n := range s.Nodes {
		var x, y *float64
		if n.Position != nil {
			x, y = &n.Position.X, &n.Position.Y
		}
		batch.Queue(
			`INSERT INTO mind_map_nodes (id, mind_map_id, node_id, label, content, position_x, position_y, level)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), mindMapID, n.ID, n.Label, n.Content, x, y, n.Level,
		)
	}
	for _, e := range s.Edges {
		batch.Queue(
			`INSERT INTO mind_map_edges (id, mind_map_id, edge_id, source_node_id, target_node_id)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), mindMapID, e.ID, e.Source, e.Target,
		)
	}
	for _, c := range cards {
		batch.Queue(
			`INSERT INTO flashcards (id, mind_map_id, question, answer) VALUES ($1, $2, $3, $4)`,
			uuid.New(), mindMapID, c.Question, c.Answer,
		)
	}
	batch.Queue(
		`UPDATE mind_maps SET title = COALESCE(NULLIF($1::text, ''), title), status = $2,
		 error_message = NULL, updated_at = NOW() WHERE id = $3`,
		s.Title, models.MindMapReady, mindMapID,
	)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert generated content: %w", err)
	}

	return tx.Commit(ctx)
}
