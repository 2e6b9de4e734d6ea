package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"mapit-backend/internal/middleware"
	"mapit-backend/internal/models"
)

type GameService interface {
	Create(ctx context.Context, userID, mindMapID uuid.UUID) (*models.GameSession, error)
	Complete(ctx context.Context, userID, sessionID uuid.UUID, req models.CompleteGameSessionRequest) (*models.GameSession, error)
	Get(ctx context.Context, userID, sessionID uuid.UUID) (*models.GameSession, error)
	List(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID, limit int) ([]*models.GameSession, error)
}

type GameHandler struct {
	games GameService
}

func NewGameHandler(games GameService) *GameHandler {
	return &GameHandler{games: games}
}

func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.MindMapID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"mind_map_id": "Mind map id is required"}, r))
		return
	}

	session, err := h.games.Create(r.Context(), middleware.GetUserID(r.Context()), req.MindMapID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *GameHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.CompleteGameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	session, err := h.games.Complete(r.Context(), middleware.GetUserID(r.Context()), id, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	session, err := h.games.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *GameHandler) List(w http.ResponseWriter, r *http.Request) {
	mindMapID, ok := queryUUID(w, r, "mind_map_id")
	if !ok {
		return
	}

	sessions, err := h.games.List(r.Context(), middleware.GetUserID(r.Context()), mindMapID, queryInt(r, "limit", 50))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}
