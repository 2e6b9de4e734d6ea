package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"mapit-backend/internal/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 100
)

type MindMapStore interface {
	Create(ctx context.Context, m *models.MindMap) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.MindMap, error)
	GetWithGraph(ctx context.Context, id, userID uuid.UUID) (*models.MindMap, error)
	GetSourceText(ctx context.Context, id uuid.UUID) (string, error)
	List(ctx context.Context, userID uuid.UUID, p models.ListMindMapsParams) ([]*models.MindMap, error)
	FindReadyByHash(ctx context.Context, userID uuid.UUID, hash string) (*models.MindMap, error)
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string) error
	SaveGeneration(ctx context.Context, mindMapID uuid.UUID, s *models.MindMapStructure, cards []models.GeneratedCard) error
}

type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

type TextExtractor interface {
	Extract(data []byte) (*Document, error)
}

// UploadInput is one PDF upload.
type UploadInput struct {
	Filename string
	Title    string
	Data     []byte
}

type MindMapService struct {
	maps      MindMapStore
	jobs      JobStore
	queue     JobQueue
	extractor TextExtractor
	generator Generator
	publisher Publisher
	maxUpload int64
	numCards  int
}

func NewMindMapService(
	maps MindMapStore,
	jobs JobStore,
	queue JobQueue,
	extractor TextExtractor,
	generator Generator,
	publisher Publisher,
	maxUploadBytes int64,
	numCards int,
) *MindMapService {
	return &MindMapService{
		maps:      maps,
		jobs:      jobs,
		queue:     queue,
		extractor: extractor,
		generator: generator,
		publisher: publisher,
		maxUpload: maxUploadBytes,
		numCards:  numCards,
	}
}

// Upload extracts the PDF text, returns an existing ready map built from
// the same file, or stores a pending map and queues its generation.
func (s *MindMapService) Upload(ctx context.Context, userID uuid.UUID, in UploadInput) (*models.UploadResult, error) {
	if !strings.EqualFold(filepath.Ext(in.Filename), ".pdf") {
		return nil, &ValidationError{Fields: map[string]string{"file": "Only PDF files are accepted"}}
	}
	if len(in.Data) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"file": "File is empty"}}
	}
	if s.maxUpload > 0 && int64(len(in.Data)) > s.maxUpload {
		return nil, &TooLargeError{Message: fmt.Sprintf("File exceeds the %d MB limit", s.maxUpload>>20)}
	}

	doc, err := s.extractor.Extract(in.Data)
	if err != nil {
		return nil, err
	}

	existing, err := s.maps.FindReadyByHash(ctx, userID, doc.ContentHash)
	if err == nil {
		return &models.UploadResult{MindMap: existing, Duplicate: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	filename := filepath.Base(in.Filename)
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	m := &models.MindMap{
		UserID:      userID,
		Title:       title,
		PDFFilename: &filename,
		ContentHash: doc.ContentHash,
		SourceText:  doc.Text,
		Status:      models.MindMapPending,
	}
	if err := s.maps.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create mind map: %w", err)
	}

	cfg, _ := json.Marshal(models.MindMapJobConfig{Title: strings.TrimSpace(in.Title), NumCards: s.numCards})
	job := &models.Job{
		UserID:      userID,
		Type:        models.JobTypeMindMapGeneration,
		ReferenceID: m.ID,
		ConfigJSON:  cfg,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		msg := "Failed to queue generation"
		s.jobs.UpdateStatus(ctx, job.ID, models.JobFailed)
		s.jobs.UpdateError(ctx, job.ID, err.Error(), 0)
		s.maps.UpdateStatus(ctx, m.ID, models.MindMapFailed, &msg)
		return nil, err
	}

	return &models.UploadResult{MindMap: m, JobID: &job.ID}, nil
}

func (s *MindMapService) List(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*models.MindMap, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.maps.List(ctx, userID, models.ListMindMapsParams{Skip: skip, Limit: limit})
}

func (s *MindMapService) Get(ctx context.Context, userID, id uuid.UUID) (*models.MindMap, error) {
	m, err := s.maps.GetWithGraph(ctx, id, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Mind map not found"}
		}
		return nil, err
	}
	return m, nil
}

func (s *MindMapService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	deleted, err := s.maps.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return &NotFoundError{Message: "Mind map not found"}
	}
	return nil
}

func (s *MindMapService) GetJob(ctx context.Context, userID, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Job not found"}
		}
		return nil, err
	}
	if job.UserID != userID {
		return nil, &NotFoundError{Message: "Job not found"}
	}
	return job, nil
}

// ResultType names mind maps in job completion events.
func (s *MindMapService) ResultType() string { return "mind_map" }

// Process runs a mindmap-generation job: the concept graph and flashcards
// are generated concurrently and stored together only if both succeed.
func (s *MindMapService) Process(ctx context.Context, job *models.Job) error {
	var cfg models.MindMapJobConfig
	if len(job.ConfigJSON) > 0 {
		if err := json.Unmarshal(job.ConfigJSON, &cfg); err != nil {
			return fmt.Errorf("invalid job config: %w", err)
		}
	}
	if cfg.NumCards <= 0 {
		cfg.NumCards = s.numCards
	}

	mindMapID := job.ReferenceID
	text, err := s.maps.GetSourceText(ctx, mindMapID)
	if err != nil {
		return fmt.Errorf("load source text: %w", err)
	}
	if err := s.maps.UpdateStatus(ctx, mindMapID, models.MindMapProcessing, nil); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	s.progress(ctx, job, 1, "Generating mind map and flashcards")

	var (
		structure *models.MindMapStructure
		cards     []models.GeneratedCard
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		structure, err = s.generator.GenerateMindMap(gctx, text, cfg.Title)
		if err != nil {
			return fmt.Errorf("mind map: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		cards, err = s.generator.GenerateFlashcards(gctx, text, cfg.NumCards)
		if err != nil {
			return fmt.Errorf("flashcards: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.progress(ctx, job, 2, "Saving")

	if err := s.maps.SaveGeneration(ctx, mindMapID, structure, cards); err != nil {
		return fmt.Errorf("save generation: %w", err)
	}

	log.Printf("Mind map %s ready: %d nodes, %d edges, %d flashcards",
		mindMapID, len(structure.Nodes), len(structure.Edges), len(cards))
	return nil
}

func (s *MindMapService) MarkFailed(ctx context.Context, job *models.Job, errMsg string) error {
	return s.maps.UpdateStatus(ctx, job.ReferenceID, models.MindMapFailed, &errMsg)
}

func (s *MindMapService) progress(ctx context.Context, job *models.Job, step int, name string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, job.UserID, models.WSMessage{
		Type: models.WSStatusUpdate,
		Payload: models.StatusUpdate{
			JobID:    job.ID,
			Step:     step,
			StepName: name,
		},
	})
}
