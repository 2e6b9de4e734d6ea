package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapit-backend/internal/middleware"
	"mapit-backend/internal/models"
	"mapit-backend/internal/services"
)

// newRequest builds an authenticated request with chi URL params set.
func newRequest(method, target string, body []byte, userID uuid.UUID, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserIDKey, userID)
	return req.WithContext(ctx)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp.Error
}

func TestHandleServiceError_StatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&services.ValidationError{Fields: map[string]string{"x": "bad"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{&services.PreconditionError{Message: "no text"}, http.StatusUnprocessableEntity, "UNPROCESSABLE"},
		{&services.TooLargeError{Message: "big"}, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{&services.ConflictError{Message: "done"}, http.StatusConflict, "CONFLICT"},
		{&services.NotFoundError{Message: "gone"}, http.StatusNotFound, "NOT_FOUND"},
		{&services.UnauthorizedError{Message: "who"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{&services.ForbiddenError{Message: "no"}, http.StatusForbidden, "FORBIDDEN"},
		{&services.RateLimitError{Message: "slow"}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{services.ErrGeneration, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handleServiceError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, decodeError(t, rr).Code)
		})
	}
}

func TestErrorResp_CarriesRequestID(t *testing.T) {
	var got models.APIError
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "missing", r))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	got = decodeError(t, rr)
	assert.Equal(t, "req-123", got.RequestID)
}

// Auth

type stubAuthService struct {
	registerErr error
	loggedOut   string
}

func (s *stubAuthService) Register(_ context.Context, req models.RegisterRequest) (*models.User, error) {
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &models.User{ID: uuid.New(), Email: req.Email, FullName: req.FullName, IsActive: true}, nil
}

func (s *stubAuthService) Login(context.Context, models.LoginRequest) (*models.AuthTokens, error) {
	return &models.AuthTokens{AccessToken: "a", RefreshToken: "r", TokenType: "bearer", ExpiresIn: 1800}, nil
}

func (s *stubAuthService) RefreshToken(_ context.Context, token string) (*models.AuthTokens, error) {
	if token != "r" {
		return nil, &services.UnauthorizedError{Message: "expired"}
	}
	return &models.AuthTokens{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (s *stubAuthService) Logout(_ context.Context, token string) error {
	s.loggedOut = token
	return nil
}

func (s *stubAuthService) Me(_ context.Context, id uuid.UUID) (*models.User, error) {
	return &models.User{ID: id, Email: "me@example.com"}, nil
}

func TestAuthHandler_Register(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{})
	body, _ := json.Marshal(map[string]string{"email": "a@b.co", "password": "password1", "full_name": "A"})

	rr := httptest.NewRecorder()
	h.Register(rr, newRequest(http.MethodPost, "/api/v1/auth/register", body, uuid.Nil, nil))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestAuthHandler_RegisterConflict(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{registerErr: &services.ConflictError{Message: "Email already in use"}})
	body, _ := json.Marshal(map[string]string{"email": "a@b.co", "password": "password1"})

	rr := httptest.NewRecorder()
	h.Register(rr, newRequest(http.MethodPost, "/api/v1/auth/register", body, uuid.Nil, nil))

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAuthHandler_InvalidBody(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{})

	rr := httptest.NewRecorder()
	h.Login(rr, newRequest(http.MethodPost, "/api/v1/auth/login", []byte("{"), uuid.Nil, nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rr).Code)
}

func TestAuthHandler_RefreshAndLogout(t *testing.T) {
	svc := &stubAuthService{}
	h := NewAuthHandler(svc)

	rr := httptest.NewRecorder()
	h.Refresh(rr, newRequest(http.MethodPost, "/api/v1/auth/refresh", []byte(`{"refresh_token":"old"}`), uuid.Nil, nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	h.Refresh(rr, newRequest(http.MethodPost, "/api/v1/auth/refresh", []byte(`{"refresh_token":"r"}`), uuid.Nil, nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Logout(rr, newRequest(http.MethodPost, "/api/v1/auth/logout", []byte(`{"refresh_token":"r2"}`), uuid.Nil, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "r2", svc.loggedOut)
}

func TestAuthHandler_Me(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{})
	userID := uuid.New()

	rr := httptest.NewRecorder()
	h.Me(rr, newRequest(http.MethodGet, "/api/v1/auth/me", nil, userID, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var u models.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
	assert.Equal(t, userID, u.ID)
}

// Mind maps

type stubMindMapService struct {
	uploaded  *services.UploadInput
	result    *models.UploadResult
	uploadErr error
	mindMap   *models.MindMap
	listSkip  int
	listLimit int
}

func (s *stubMindMapService) Upload(_ context.Context, _ uuid.UUID, in services.UploadInput) (*models.UploadResult, error) {
	s.uploaded = &in
	return s.result, s.uploadErr
}

func (s *stubMindMapService) List(_ context.Context, _ uuid.UUID, skip, limit int) ([]*models.MindMap, error) {
	s.listSkip, s.listLimit = skip, limit
	return nil, nil
}

func (s *stubMindMapService) Get(_ context.Context, _, id uuid.UUID) (*models.MindMap, error) {
	if s.mindMap == nil || s.mindMap.ID != id {
		return nil, &services.NotFoundError{Message: "Mind map not found"}
	}
	return s.mindMap, nil
}

func (s *stubMindMapService) Delete(_ context.Context, _, id uuid.UUID) error {
	if s.mindMap == nil || s.mindMap.ID != id {
		return &services.NotFoundError{Message: "Mind map not found"}
	}
	return nil
}

func (s *stubMindMapService) GetJob(_ context.Context, userID, jobID uuid.UUID) (*models.Job, error) {
	return &models.Job{ID: jobID, UserID: userID, Status: models.JobPending}, nil
}

func multipartUpload(t *testing.T, filename string, content []byte, title string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	if title != "" {
		require.NoError(t, mw.WriteField("title", title))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestMindMapHandler_UploadAccepted(t *testing.T) {
	mapID, jobID := uuid.New(), uuid.New()
	svc := &stubMindMapService{result: &models.UploadResult{
		MindMap: &models.MindMap{ID: mapID, Status: models.MindMapPending},
		JobID:   &jobID,
	}}
	h := NewMindMapHandler(svc, 1<<20)

	body, contentType := multipartUpload(t, "lecture.pdf", []byte("%PDF-1.4"), "Lecture 1")
	req := newRequest(http.MethodPost, "/api/v1/mind-maps", body.Bytes(), uuid.New(), nil)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.Upload(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, mapID.String(), resp["mind_map_id"])
	assert.Equal(t, jobID.String(), resp["job_id"])

	require.NotNil(t, svc.uploaded)
	assert.Equal(t, "lecture.pdf", svc.uploaded.Filename)
	assert.Equal(t, "Lecture 1", svc.uploaded.Title)
	assert.Equal(t, []byte("%PDF-1.4"), svc.uploaded.Data)
}

func TestMindMapHandler_UploadDuplicate(t *testing.T) {
	svc := &stubMindMapService{result: &models.UploadResult{
		MindMap:   &models.MindMap{ID: uuid.New(), Status: models.MindMapReady},
		Duplicate: true,
	}}
	h := NewMindMapHandler(svc, 1<<20)

	body, contentType := multipartUpload(t, "lecture.pdf", []byte("%PDF-1.4"), "")
	req := newRequest(http.MethodPost, "/api/v1/mind-maps", body.Bytes(), uuid.New(), nil)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.Upload(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"duplicate":true`)
}

func TestMindMapHandler_UploadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		h := NewMindMapHandler(&stubMindMapService{}, 1<<20)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("title", "x"))
		require.NoError(t, mw.Close())

		req := newRequest(http.MethodPost, "/api/v1/mind-maps", buf.Bytes(), uuid.New(), nil)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		h.Upload(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("body over limit", func(t *testing.T) {
		h := NewMindMapHandler(&stubMindMapService{}, 1024)
		body, contentType := multipartUpload(t, "big.pdf", make([]byte, 3<<20), "")

		req := newRequest(http.MethodPost, "/api/v1/mind-maps", body.Bytes(), uuid.New(), nil)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		h.Upload(rr, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})

	t.Run("no extractable text", func(t *testing.T) {
		h := NewMindMapHandler(&stubMindMapService{uploadErr: &services.PreconditionError{Message: "no text"}}, 1<<20)
		body, contentType := multipartUpload(t, "scan.pdf", []byte("%PDF-1.4"), "")

		req := newRequest(http.MethodPost, "/api/v1/mind-maps", body.Bytes(), uuid.New(), nil)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		h.Upload(rr, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})
}

func TestMindMapHandler_GetListDelete(t *testing.T) {
	m := &models.MindMap{ID: uuid.New(), Status: models.MindMapReady}
	svc := &stubMindMapService{mindMap: m}
	h := NewMindMapHandler(svc, 1<<20)
	userID := uuid.New()

	rr := httptest.NewRecorder()
	h.Get(rr, newRequest(http.MethodGet, "/", nil, userID, map[string]string{"id": m.ID.String()}))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"nodes":[]`)

	rr = httptest.NewRecorder()
	h.Get(rr, newRequest(http.MethodGet, "/", nil, userID, map[string]string{"id": "not-a-uuid"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.Get(rr, newRequest(http.MethodGet, "/", nil, userID, map[string]string{"id": uuid.NewString()}))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.List(rr, newRequest(http.MethodGet, "/api/v1/mind-maps?skip=10&limit=5", nil, userID, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())
	assert.Equal(t, 10, svc.listSkip)
	assert.Equal(t, 5, svc.listLimit)

	rr = httptest.NewRecorder()
	h.Delete(rr, newRequest(http.MethodDelete, "/", nil, userID, map[string]string{"id": m.ID.String()}))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

// Flashcards

type stubFlashcardService struct {
	quality   *int
	dueScope  *uuid.UUID
	reviewErr error
	evalErr   error
}

func (s *stubFlashcardService) ListForMindMap(context.Context, uuid.UUID, uuid.UUID) ([]models.Flashcard, error) {
	return []models.Flashcard{{ID: uuid.New(), Question: "Q", Answer: "A"}}, nil
}

func (s *stubFlashcardService) Review(_ context.Context, _, cardID uuid.UUID, quality *int) (*models.FlashcardProgress, error) {
	s.quality = quality
	if s.reviewErr != nil {
		return nil, s.reviewErr
	}
	return &models.FlashcardProgress{FlashcardID: cardID, Repetitions: 1, Interval: 1}, nil
}

func (s *stubFlashcardService) Due(_ context.Context, _ uuid.UUID, mindMapID *uuid.UUID) ([]*models.FlashcardProgress, error) {
	s.dueScope = mindMapID
	return []*models.FlashcardProgress{}, nil
}

func (s *stubFlashcardService) Progress(_ context.Context, _, cardID uuid.UUID) (*models.FlashcardProgress, error) {
	return &models.FlashcardProgress{FlashcardID: cardID}, nil
}

func (s *stubFlashcardService) Evaluate(context.Context, uuid.UUID, uuid.UUID, string) (*models.AnswerEvaluation, error) {
	if s.evalErr != nil {
		return nil, s.evalErr
	}
	return nil, services.ErrGeneration
}

func (s *stubFlashcardService) Stats(context.Context, uuid.UUID, *uuid.UUID) (*models.FlashcardStats, error) {
	return &models.FlashcardStats{Total: 4, New: 4, DueToday: 4}, nil
}

func TestFlashcardHandler_Review(t *testing.T) {
	svc := &stubFlashcardService{}
	h := NewFlashcardHandler(svc)
	cardID := uuid.New()

	rr := httptest.NewRecorder()
	h.Review(rr, newRequest(http.MethodPost, "/", []byte(`{"quality":4}`), uuid.New(), map[string]string{"id": cardID.String()}))

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, svc.quality)
	assert.Equal(t, 4, *svc.quality)
}

func TestFlashcardHandler_ReviewMissingQuality(t *testing.T) {
	svc := &stubFlashcardService{reviewErr: &services.ValidationError{Fields: map[string]string{"quality": "Quality is required"}}}
	h := NewFlashcardHandler(svc)

	rr := httptest.NewRecorder()
	h.Review(rr, newRequest(http.MethodPost, "/", []byte(`{}`), uuid.New(), map[string]string{"id": uuid.NewString()}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Nil(t, svc.quality)
	assert.Contains(t, decodeError(t, rr).Fields, "quality")
}

func TestFlashcardHandler_DueScope(t *testing.T) {
	svc := &stubFlashcardService{}
	h := NewFlashcardHandler(svc)
	mapID := uuid.New()

	rr := httptest.NewRecorder()
	h.Due(rr, newRequest(http.MethodGet, "/api/v1/flashcards/due?mind_map_id="+mapID.String(), nil, uuid.New(), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, svc.dueScope)
	assert.Equal(t, mapID, *svc.dueScope)

	rr = httptest.NewRecorder()
	h.Due(rr, newRequest(http.MethodGet, "/api/v1/flashcards/due?mind_map_id=zzz", nil, uuid.New(), nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFlashcardHandler_EvaluateGenerationFailure(t *testing.T) {
	h := NewFlashcardHandler(&stubFlashcardService{})

	rr := httptest.NewRecorder()
	h.Evaluate(rr, newRequest(http.MethodPost, "/", []byte(`{"user_answer":"x"}`), uuid.New(), map[string]string{"id": uuid.NewString()}))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestFlashcardHandler_EvaluateWhileAIBusy(t *testing.T) {
	h := NewFlashcardHandler(&stubFlashcardService{evalErr: &services.RateLimitError{Message: "AI service is busy"}})

	rr := httptest.NewRecorder()
	h.Evaluate(rr, newRequest(http.MethodPost, "/", []byte(`{"user_answer":"x"}`), uuid.New(), map[string]string{"id": uuid.NewString()}))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, rr).Code)
}

func TestFlashcardHandler_Stats(t *testing.T) {
	h := NewFlashcardHandler(&stubFlashcardService{})

	rr := httptest.NewRecorder()
	h.Stats(rr, newRequest(http.MethodGet, "/api/v1/flashcards/stats", nil, uuid.New(), nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var stats models.FlashcardStats
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&stats))
	assert.Equal(t, 4, stats.DueToday)
}

// Game

type stubGameService struct {
	completeErr error
	limit       int
}

func (s *stubGameService) Create(_ context.Context, userID, mindMapID uuid.UUID) (*models.GameSession, error) {
	return &models.GameSession{ID: uuid.New(), UserID: userID, MindMapID: mindMapID}, nil
}

func (s *stubGameService) Complete(_ context.Context, _, id uuid.UUID, req models.CompleteGameSessionRequest) (*models.GameSession, error) {
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	return &models.GameSession{ID: id, Score: 100, ExactMatch: true, Completed: true, TimeElapsedSeconds: req.TimeElapsedSeconds}, nil
}

func (s *stubGameService) Get(_ context.Context, _, id uuid.UUID) (*models.GameSession, error) {
	return &models.GameSession{ID: id}, nil
}

func (s *stubGameService) List(_ context.Context, _ uuid.UUID, _ *uuid.UUID, limit int) ([]*models.GameSession, error) {
	s.limit = limit
	return []*models.GameSession{}, nil
}

func TestGameHandler_Create(t *testing.T) {
	h := NewGameHandler(&stubGameService{})

	rr := httptest.NewRecorder()
	body := []byte(`{"mind_map_id":"` + uuid.NewString() + `"}`)
	h.Create(rr, newRequest(http.MethodPost, "/api/v1/game/sessions", body, uuid.New(), nil))
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	h.Create(rr, newRequest(http.MethodPost, "/api/v1/game/sessions", []byte(`{}`), uuid.New(), nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGameHandler_Complete(t *testing.T) {
	h := NewGameHandler(&stubGameService{})
	body := []byte(`{"edges":[{"source":"1","target":"2"}],"time_elapsed_seconds":30}`)

	rr := httptest.NewRecorder()
	h.Complete(rr, newRequest(http.MethodPut, "/", body, uuid.New(), map[string]string{"id": uuid.NewString()}))

	require.Equal(t, http.StatusOK, rr.Code)
	var g models.GameSession
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&g))
	assert.True(t, g.ExactMatch)
	assert.Equal(t, 30, *g.TimeElapsedSeconds)
}

func TestGameHandler_CompleteTwice(t *testing.T) {
	h := NewGameHandler(&stubGameService{completeErr: &services.ConflictError{Message: "Game session already completed"}})

	rr := httptest.NewRecorder()
	h.Complete(rr, newRequest(http.MethodPut, "/", []byte(`{"edges":[],"time_elapsed_seconds":1}`), uuid.New(), map[string]string{"id": uuid.NewString()}))

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestGameHandler_ListDefaultLimit(t *testing.T) {
	svc := &stubGameService{}
	h := NewGameHandler(svc)

	rr := httptest.NewRecorder()
	h.List(rr, newRequest(http.MethodGet, "/api/v1/game/sessions", nil, uuid.New(), nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 50, svc.limit)
}
