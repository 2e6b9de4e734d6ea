package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"mapit-backend/internal/middleware"
	"mapit-backend/internal/models"
	"mapit-backend/internal/services"
)

// multipartOverhead is allowed on top of the file size limit for the
// form boundaries and the title field.
const multipartOverhead = 1 << 20

type MindMapService interface {
	Upload(ctx context.Context, userID uuid.UUID, in services.UploadInput) (*models.UploadResult, error)
	List(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*models.MindMap, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.MindMap, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	GetJob(ctx context.Context, userID, jobID uuid.UUID) (*models.Job, error)
}

// mindMapDetail always renders the graph, even when it is empty.
type mindMapDetail struct {
	*models.MindMap
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

type MindMapHandler struct {
	mindMaps       MindMapService
	maxUploadBytes int64
}

func NewMindMapHandler(mindMaps MindMapService, maxUploadBytes int64) *MindMapHandler {
	return &MindMapHandler{mindMaps: mindMaps, maxUploadBytes: maxUploadBytes}
}

// Upload accepts a multipart PDF ("file", optional "title"). A new document
// is queued for generation (202); a document the user already turned into
// a ready mind map returns that map (200).
func (h *MindMapHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleServiceError(w, r, &services.TooLargeError{Message: "File is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart form", r))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"file": "File is required"}, r))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Could not read uploaded file", r))
		return
	}

	res, err := h.mindMaps.Upload(r.Context(), middleware.GetUserID(r.Context()), services.UploadInput{
		Filename: header.Filename,
		Title:    r.FormValue("title"),
		Data:     data,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if res.Duplicate {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"mind_map_id": res.MindMap.ID,
		"job_id":      res.JobID,
		"status":      res.MindMap.Status,
	})
}

func (h *MindMapHandler) List(w http.ResponseWriter, r *http.Request) {
	maps, err := h.mindMaps.List(r.Context(), middleware.GetUserID(r.Context()),
		queryInt(r, "skip", 0), queryInt(r, "limit", 100))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if maps == nil {
		maps = []*models.MindMap{}
	}
	writeJSON(w, http.StatusOK, maps)
}

func (h *MindMapHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	m, err := h.mindMaps.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	detail := mindMapDetail{MindMap: m, Nodes: m.Nodes, Edges: m.Edges}
	if detail.Nodes == nil {
		detail.Nodes = []models.Node{}
	}
	if detail.Edges == nil {
		detail.Edges = []models.Edge{}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *MindMapHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.mindMaps.Delete(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MindMapHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	job, err := h.mindMaps.GetJob(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
