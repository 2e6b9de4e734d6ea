package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MindMapPending    = "pending"
	MindMapProcessing = "processing"
	MindMapReady      = "ready"
	MindMapFailed     = "failed"

	// EdgeTypeFloating is the edge type the viewer renders.
	EdgeTypeFloating = "floating"
)

type MindMap struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Title        string    `json:"title"`
	PDFFilename  *string   `json:"pdf_filename"`
	ContentHash  string    `json:"-"`
	SourceText   string    `json:"-"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Nodes []Node `json:"nodes,omitempty"`
	Edges []Edge `json:"edges,omitempty"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Node struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Content  *string   `json:"content"`
	Position *Position `json:"position,omitempty"`
	Level    int       `json:"level"`
}

type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// MindMapStructure is the concept graph produced by the AI generator.
type MindMapStructure struct {
	Title string `json:"title"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// GeneratedCard is a question/answer pair produced by the AI generator.
type GeneratedCard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type UploadResult struct {
	MindMap   *MindMap   `json:"mind_map"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
	Duplicate bool       `json:"duplicate"`
}

type ListMindMapsParams struct {
	Skip  int
	Limit int
}
