package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mapit-backend/internal/models"
)

type stubUserStore struct {
	byEmail map[string]*models.User
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{byEmail: make(map[string]*models.User)}
}

func (s *stubUserStore) Create(_ context.Context, u *models.User) error {
	u.ID = uuid.New()
	u.IsActive = true
	u.CreatedAt = time.Now()
	s.byEmail[u.Email] = u
	return nil
}

func (s *stubUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *stubUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range s.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *stubUserStore) UpdateLastLogin(context.Context, uuid.UUID) error { return nil }

type stubTokenStore struct {
	values map[string]string
}

func newStubTokenStore() *stubTokenStore {
	return &stubTokenStore{values: make(map[string]string)}
}

func (s *stubTokenStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.values[key] = value
	return nil
}

func (s *stubTokenStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return v, nil
}

func (s *stubTokenStore) Del(_ context.Context, key string) error {
	delete(s.values, key)
	return nil
}

type stubMindMapStore struct {
	mu       sync.Mutex
	maps     map[uuid.UUID]*models.MindMap
	saved    *models.MindMapStructure
	cards    []models.GeneratedCard
	statuses []string
}

func newStubMindMapStore() *stubMindMapStore {
	return &stubMindMapStore{maps: make(map[uuid.UUID]*models.MindMap)}
}

func (s *stubMindMapStore) add(m *models.MindMap) *models.MindMap {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.maps[m.ID] = m
	return m
}

func (s *stubMindMapStore) Create(_ context.Context, m *models.MindMap) error {
	s.add(m)
	return nil
}

func (s *stubMindMapStore) GetByID(_ context.Context, id, userID uuid.UUID) (*models.MindMap, error) {
	if m, ok := s.maps[id]; ok && m.UserID == userID {
		return m, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *stubMindMapStore) GetWithGraph(ctx context.Context, id, userID uuid.UUID) (*models.MindMap, error) {
	return s.GetByID(ctx, id, userID)
}

func (s *stubMindMapStore) GetSourceText(_ context.Context, id uuid.UUID) (string, error) {
	if m, ok := s.maps[id]; ok {
		return m.SourceText, nil
	}
	return "", pgx.ErrNoRows
}

func (s *stubMindMapStore) List(_ context.Context, userID uuid.UUID, p models.ListMindMapsParams) ([]*models.MindMap, error) {
	var out []*models.MindMap
	for _, m := range s.maps {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubMindMapStore) FindReadyByHash(_ context.Context, userID uuid.UUID, hash string) (*models.MindMap, error) {
	for _, m := range s.maps {
		if m.UserID == userID && m.ContentHash == hash && m.Status == models.MindMapReady {
			return m, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *stubMindMapStore) Delete(_ context.Context, id, userID uuid.UUID) (bool, error) {
	if m, ok := s.maps[id]; ok && m.UserID == userID {
		delete(s.maps, id)
		return true, nil
	}
	return false, nil
}

func (s *stubMindMapStore) UpdateStatus(_ context.Context, id uuid.UUID, status string, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	if m, ok := s.maps[id]; ok {
		m.Status = status
		m.ErrorMessage = errMsg
	}
	return nil
}

func (s *stubMindMapStore) SaveGeneration(_ context.Context, id uuid.UUID, st *models.MindMapStructure, cards []models.GeneratedCard) error {
	s.saved = st
	s.cards = cards
	if m, ok := s.maps[id]; ok {
		m.Status = models.MindMapReady
		m.Title = st.Title
	}
	return nil
}

type stubJobStore struct {
	jobs map[uuid.UUID]*models.Job
}

func newStubJobStore() *stubJobStore {
	return &stubJobStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (s *stubJobStore) Create(_ context.Context, j *models.Job) error {
	j.ID = uuid.New()
	j.Status = models.JobPending
	s.jobs[j.ID] = j
	return nil
}

func (s *stubJobStore) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	if j, ok := s.jobs[id]; ok {
		return j, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *stubJobStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	if j, ok := s.jobs[id]; ok {
		j.Status = status
	}
	return nil
}

func (s *stubJobStore) UpdateError(_ context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	if j, ok := s.jobs[id]; ok {
		j.ErrorMessage = &errMsg
		j.RetryCount = retryCount
	}
	return nil
}

type stubQueue struct {
	err  error
	jobs []*models.Job
}

func (q *stubQueue) Enqueue(_ context.Context, j *models.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, j)
	return nil
}

type stubPublisher struct {
	mu       sync.Mutex
	messages map[uuid.UUID][]models.WSMessage
}

func newStubPublisher() *stubPublisher {
	return &stubPublisher{messages: make(map[uuid.UUID][]models.WSMessage)}
}

func (p *stubPublisher) Publish(_ context.Context, userID uuid.UUID, msg models.WSMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[userID] = append(p.messages[userID], msg)
}

type stubGenerator struct {
	structure  *models.MindMapStructure
	cards      []models.GeneratedCard
	evaluation *models.AnswerEvaluation
	mapErr     error
	cardErr    error
	evalErr    error
}

func (g *stubGenerator) GenerateMindMap(context.Context, string, string) (*models.MindMapStructure, error) {
	return g.structure, g.mapErr
}

func (g *stubGenerator) GenerateFlashcards(context.Context, string, int) ([]models.GeneratedCard, error) {
	return g.cards, g.cardErr
}

func (g *stubGenerator) EvaluateAnswer(context.Context, *models.Flashcard, string) (*models.AnswerEvaluation, error) {
	return g.evaluation, g.evalErr
}

type stubExtractor struct {
	doc *Document
	err error
}

func (e *stubExtractor) Extract([]byte) (*Document, error) {
	return e.doc, e.err
}
