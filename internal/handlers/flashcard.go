package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"mapit-backend/internal/middleware"
	"mapit-backend/internal/models"
)

type FlashcardService interface {
	ListForMindMap(ctx context.Context, userID, mindMapID uuid.UUID) ([]models.Flashcard, error)
	Review(ctx context.Context, userID, cardID uuid.UUID, quality *int) (*models.FlashcardProgress, error)
	Due(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID) ([]*models.FlashcardProgress, error)
	Progress(ctx context.Context, userID, cardID uuid.UUID) (*models.FlashcardProgress, error)
	Evaluate(ctx context.Context, userID, cardID uuid.UUID, answer string) (*models.AnswerEvaluation, error)
	Stats(ctx context.Context, userID uuid.UUID, mindMapID *uuid.UUID) (*models.FlashcardStats, error)
}

type FlashcardHandler struct {
	flashcards FlashcardService
}

func NewFlashcardHandler(flashcards FlashcardService) *FlashcardHandler {
	return &FlashcardHandler{flashcards: flashcards}
}

func (h *FlashcardHandler) ListForMindMap(w http.ResponseWriter, r *http.Request) {
	mindMapID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	cards, err := h.flashcards.ListForMindMap(r.Context(), middleware.GetUserID(r.Context()), mindMapID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (h *FlashcardHandler) Review(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	progress, err := h.flashcards.Review(r.Context(), middleware.GetUserID(r.Context()), cardID, req.Quality)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *FlashcardHandler) Due(w http.ResponseWriter, r *http.Request) {
	mindMapID, ok := queryUUID(w, r, "mind_map_id")
	if !ok {
		return
	}

	due, err := h.flashcards.Due(r.Context(), middleware.GetUserID(r.Context()), mindMapID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, due)
}

func (h *FlashcardHandler) Progress(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	progress, err := h.flashcards.Progress(r.Context(), middleware.GetUserID(r.Context()), cardID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *FlashcardHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.EvaluateAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	eval, err := h.flashcards.Evaluate(r.Context(), middleware.GetUserID(r.Context()), cardID, req.UserAnswer)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (h *FlashcardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	mindMapID, ok := queryUUID(w, r, "mind_map_id")
	if !ok {
		return
	}

	stats, err := h.flashcards.Stats(r.Context(), middleware.GetUserID(r.Context()), mindMapID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
