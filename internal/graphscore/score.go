// Package graphscore grades mind map reconstruction attempts by comparing
// undirected edge sets.
package graphscore

// Edge connects two node ids. Direction is ignored when scoring.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type pair struct{ a, b string }

// EdgeSet is a normalized set of undirected edges.
type EdgeSet map[pair]struct{}

// Normalize builds the undirected edge set for edges. Each pair is stored
// with its endpoints sorted, so (A,B) and (B,A) collapse into one entry.
// Duplicates and edges missing an endpoint are dropped.
func Normalize(edges []Edge) EdgeSet {
	set := make(EdgeSet, len(edges))
	for _, e := range edges {
		if e.Source == "" || e.Target == "" {
			continue
		}
		a, b := e.Source, e.Target
		if b < a {
			a, b = b, a
		}
		set[pair{a, b}] = struct{}{}
	}
	return set
}

// Contains reports whether the undirected edge between x and y is present.
func (s EdgeSet) Contains(x, y string) bool {
	if y < x {
		x, y = y, x
	}
	_, ok := s[pair{x, y}]
	return ok
}

// Result is the breakdown behind a score.
type Result struct {
	Score   int `json:"score"`
	Correct int `json:"correct_edges"`
	Total   int `json:"total_edges"`
	Extra   int `json:"extra_edges"`
}

// ExactMatch reports whether every canonical edge was recovered.
func (r Result) ExactMatch() bool {
	return r.Score == 100
}

// Evaluate compares a submission against the canonical edges.
//
// An empty canonical graph is solved only by an empty submission. Otherwise
// the score is the floored percentage of canonical edges recovered; extra
// submitted edges are counted but never penalized.
func Evaluate(canonical, submitted []Edge) Result {
	want := Normalize(canonical)
	got := Normalize(submitted)

	if len(want) == 0 {
		r := Result{Extra: len(got)}
		if len(got) == 0 {
			r.Score = 100
		}
		return r
	}

	correct := 0
	for p := range got {
		if _, ok := want[p]; ok {
			correct++
		}
	}

	return Result{
		Score:   correct * 100 / len(want),
		Correct: correct,
		Total:   len(want),
		Extra:   len(got) - correct,
	}
}

// Score returns the 0-100 grade for submitted against canonical.
func Score(canonical, submitted []Edge) int {
	return Evaluate(canonical, submitted).Score
}

// ExactMatch reports whether Score would be 100.
func ExactMatch(canonical, submitted []Edge) bool {
	return Score(canonical, submitted) == 100
}
