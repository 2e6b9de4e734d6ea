package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mapit-backend/internal/models"
	"mapit-backend/internal/srs"
)

const (
	// maxPromptRunes caps how much document text is sent per prompt.
	maxPromptRunes = 4000
	maxCardsPerMap = 50
	rateSlotWait   = 5 * time.Minute
)

// Generator produces study material from document text.
type Generator interface {
	GenerateMindMap(ctx context.Context, text, title string) (*models.MindMapStructure, error)
	GenerateFlashcards(ctx context.Context, text string, numCards int) ([]models.GeneratedCard, error)
	EvaluateAnswer(ctx context.Context, card *models.Flashcard, userAnswer string) (*models.AnswerEvaluation, error)
}

// Completer sends one prompt to a model and returns its raw text reply.
// Implementations are asked for JSON output.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32) (string, error)
	Close() error
}

// LLMGenerator implements Generator on top of any Completer. Calls are
// limited to a number of requests per minute and a number in flight.
type LLMGenerator struct {
	client   Completer
	limiter  *rate.Limiter
	rateChan chan struct{}
	slotWait time.Duration
}

func NewLLMGenerator(client Completer, requestsPerMinute, concurrentReqs int) *LLMGenerator {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if concurrentReqs <= 0 {
		concurrentReqs = 1
	}

	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &LLMGenerator{
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), concurrentReqs),
		rateChan: rateChan,
		slotWait: rateSlotWait,
	}
}

func (g *LLMGenerator) Close() error {
	return g.client.Close()
}

// acquireRate blocks until a concurrency slot and a rate token are available
func (g *LLMGenerator) acquireRate(ctx context.Context) error {
	select {
	case <-g.rateChan:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(g.slotWait):
		return &RateLimitError{Message: "AI service is busy, please try again shortly"}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		g.releaseRate()
		return err
	}
	return nil
}

func (g *LLMGenerator) releaseRate() {
	g.rateChan <- struct{}{}
}

func (g *LLMGenerator) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	if err := g.acquireRate(ctx); err != nil {
		return "", err
	}
	defer g.releaseRate()

	raw, err := g.client.Complete(ctx, prompt, temperature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return raw, nil
}

func (g *LLMGenerator) GenerateMindMap(ctx context.Context, text, title string) (*models.MindMapStructure, error) {
	raw, err := g.complete(ctx, buildMindMapPrompt(text), 0.7)
	if err != nil {
		return nil, err
	}

	var s models.MindMapStructure
	if err := decodeJSON(raw, &s); err != nil {
		return nil, err
	}
	if err := ValidateStructure(&s); err != nil {
		return nil, err
	}

	if t := strings.TrimSpace(title); t != "" {
		s.Title = t
	}
	if strings.TrimSpace(s.Title) == "" {
		s.Title = s.Nodes[0].Label
	}
	return &s, nil
}

func (g *LLMGenerator) GenerateFlashcards(ctx context.Context, text string, numCards int) ([]models.GeneratedCard, error) {
	if numCards <= 0 {
		numCards = 10
	}
	if numCards > maxCardsPerMap {
		numCards = maxCardsPerMap
	}

	raw, err := g.complete(ctx, buildFlashcardPrompt(text, numCards), 0.8)
	if err != nil {
		return nil, err
	}

	var out struct {
		Flashcards []models.GeneratedCard `json:"flashcards"`
	}
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	cards, err := ValidateCards(out.Flashcards)
	if err != nil {
		return nil, err
	}
	if len(cards) > numCards {
		cards = cards[:numCards]
	}
	return cards, nil
}

func (g *LLMGenerator) EvaluateAnswer(ctx context.Context, card *models.Flashcard, userAnswer string) (*models.AnswerEvaluation, error) {
	raw, err := g.complete(ctx, buildEvaluationPrompt(card.Question, card.Answer, userAnswer), 0.2)
	if err != nil {
		return nil, err
	}

	var out struct {
		Quality  *int   `json:"quality"`
		Feedback string `json:"feedback"`
	}
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	if out.Quality == nil {
		return nil, fmt.Errorf("%w: evaluation has no quality", ErrGeneration)
	}
	if err := srs.ValidateQuality(*out.Quality); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	return &models.AnswerEvaluation{
		Quality:      *out.Quality,
		Feedback:     strings.TrimSpace(out.Feedback),
		QualityLabel: srs.QualityLabel(*out.Quality),
	}, nil
}

// ValidateStructure rejects graphs the game and viewer cannot use: no
// nodes, nodes without id or label, duplicate ids, and edges that lack an
// id or point at unknown nodes. Missing edge types default to floating.
func ValidateStructure(s *models.MindMapStructure) error {
	if len(s.Nodes) == 0 {
		return fmt.Errorf("%w: mind map has no nodes", ErrGeneration)
	}

	known := make(map[string]struct{}, len(s.Nodes))
	for i := range s.Nodes {
		n := &s.Nodes[i]
		n.ID = strings.TrimSpace(n.ID)
		n.Label = strings.TrimSpace(n.Label)
		if n.ID == "" || n.Label == "" {
			return fmt.Errorf("%w: node %d is missing id or label", ErrGeneration, i)
		}
		if _, dup := known[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %q", ErrGeneration, n.ID)
		}
		if n.Level < 0 {
			n.Level = 0
		}
		known[n.ID] = struct{}{}
	}

	edgeIDs := make(map[string]struct{}, len(s.Edges))
	for i := range s.Edges {
		e := &s.Edges[i]
		e.ID = strings.TrimSpace(e.ID)
		e.Source = strings.TrimSpace(e.Source)
		e.Target = strings.TrimSpace(e.Target)
		if e.ID == "" || e.Source == "" || e.Target == "" {
			return fmt.Errorf("%w: edge %d is missing id, source or target", ErrGeneration, i)
		}
		if _, dup := edgeIDs[e.ID]; dup {
			return fmt.Errorf("%w: duplicate edge id %q", ErrGeneration, e.ID)
		}
		if _, ok := known[e.Source]; !ok {
			return fmt.Errorf("%w: edge %q references unknown node %q", ErrGeneration, e.ID, e.Source)
		}
		if _, ok := known[e.Target]; !ok {
			return fmt.Errorf("%w: edge %q references unknown node %q", ErrGeneration, e.ID, e.Target)
		}
		if e.Type == "" {
			e.Type = models.EdgeTypeFloating
		}
		edgeIDs[e.ID] = struct{}{}
	}
	return nil
}

// ValidateCards trims cards and fails if any lacks a question or answer.
func ValidateCards(cards []models.GeneratedCard) ([]models.GeneratedCard, error) {
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: no flashcards generated", ErrGeneration)
	}
	for i := range cards {
		cards[i].Question = strings.TrimSpace(cards[i].Question)
		cards[i].Answer = strings.TrimSpace(cards[i].Answer)
		if cards[i].Question == "" || cards[i].Answer == "" {
			return nil, fmt.Errorf("%w: flashcard %d is missing question or answer", ErrGeneration, i)
		}
	}
	return cards, nil
}

// decodeJSON parses a model reply, tolerating markdown code fences and
// prose around the JSON value.
func decodeJSON(raw string, v interface{}) error {
	text := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.IndexAny(text, "{[")
	if start >= 0 {
		closer := "}"
		if text[start] == '[' {
			closer = "]"
		}
		end := strings.LastIndex(text, closer)
		if end > start {
			if err := json.Unmarshal([]byte(text[start:end+1]), v); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: reply is not valid JSON", ErrGeneration)
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func buildMindMapPrompt(text string) string {
	var b strings.Builder

	b.WriteString("You are an expert educator. Analyze the text below and build a hierarchical mind map of its concepts.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.\n\n")
	b.WriteString(`JSON schema:
{"title": "main topic", "nodes": [{"id": "1", "label": "concept", "content": "short explanation", "level": 0}], "edges": [{"id": "e1", "source": "1", "target": "2"}]}

Rules:
- Exactly one root node with level 0 holding the main topic
- Child nodes use level 1, 2, ... for subtopics
- Node ids are "1", "2", "3"...; edge ids are "e1", "e2"...
- "content" holds the relevant detail for the node
- Between 5 and 15 nodes depending on the complexity of the text
- Every node must be connected to the graph
`)
	b.WriteString("\n---CONTENT---\n")
	b.WriteString(truncateRunes(text, maxPromptRunes))
	b.WriteString("\n---END---\n")

	return b.String()
}

func buildFlashcardPrompt(text string, numCards int) string {
	var b strings.Builder

	b.WriteString("You are an expert flashcard creator. Generate study flashcards from the content below.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.\n\n")
	b.WriteString(fmt.Sprintf("Generate exactly %d flashcards.\n", numCards))
	b.WriteString(`
Rules:
- Clear, direct questions
- Complete but concise answers
- Cover the most important concepts of the text
- Vary the question type (definition, comparison, application)

JSON schema:
{"flashcards": [{"question": "string", "answer": "string"}]}
`)
	b.WriteString("\n---CONTENT---\n")
	b.WriteString(truncateRunes(text, maxPromptRunes))
	b.WriteString("\n---END---\n")

	return b.String()
}

func buildEvaluationPrompt(question, expected, given string) string {
	var b strings.Builder

	b.WriteString("You are a fair tutor grading a student's flashcard answer.\n\n")
	b.WriteString("CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.\n\n")
	b.WriteString(`Grade recall quality on the SM-2 scale:
5 = perfect response
4 = correct after some hesitation
3 = correct with serious difficulty
2 = incorrect, but the correct answer seemed easy to recall
1 = incorrect, the correct answer was remembered on seeing it
0 = complete blackout

JSON schema:
{"quality": 0-5, "feedback": "one or two sentences for the student"}
`)
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nExpected answer: ")
	b.WriteString(expected)
	b.WriteString("\nStudent answer: ")
	b.WriteString(truncateRunes(given, maxPromptRunes))
	b.WriteString("\n")

	return b.String()
}
