// Package srs implements the SM-2 derived review scheduler used for
// flashcard progress. Everything here is pure: callers load the state,
// run Review and persist the result.
package srs

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultEasinessFactor = 2.5
	MinEasinessFactor     = 1.3

	MinQuality     = 0
	MaxQuality     = 5
	PassingQuality = 3

	firstInterval  = 1
	secondInterval = 6

	// MaxIntervalDays caps interval growth at about a century so the next
	// review date stays a valid calendar date and fits a 32-bit column.
	MaxIntervalDays = 36500
)

// ErrInvalidQuality is returned for ratings outside [MinQuality, MaxQuality].
var ErrInvalidQuality = errors.New("quality must be between 0 and 5")

// State is the memory strength of one learner for one card.
type State struct {
	EasinessFactor float64
	Interval       int
	Repetitions    int
	NextReviewDate time.Time
	LastReviewedAt *time.Time
}

// NewState returns the default state for a card that was never reviewed.
// It is due on the day it is created.
func NewState(now time.Time) State {
	return State{
		EasinessFactor: DefaultEasinessFactor,
		Interval:       0,
		Repetitions:    0,
		NextReviewDate: Date(now),
	}
}

// ValidateQuality rejects ratings the scheduler is not defined for.
func ValidateQuality(quality int) error {
	if quality < MinQuality || quality > MaxQuality {
		return fmt.Errorf("%w: got %d", ErrInvalidQuality, quality)
	}
	return nil
}

// Review applies one rating to s and returns the next state.
//
// Branch selection and the repetition increment both use the repetition
// count from before this review. Interval growth truncates, it never rounds,
// and saturates at MaxIntervalDays.
func Review(s State, quality int, now time.Time) (State, error) {
	if err := ValidateQuality(quality); err != nil {
		return s, err
	}

	next := s
	if quality >= PassingQuality {
		switch s.Repetitions {
		case 0:
			next.Interval = firstInterval
		case 1:
			next.Interval = secondInterval
		default:
			next.Interval = int(math.Min(math.Floor(float64(s.Interval)*s.EasinessFactor), MaxIntervalDays))
		}
		next.Repetitions = s.Repetitions + 1
	} else {
		next.Repetitions = 0
		next.Interval = firstInterval
	}

	next.EasinessFactor = NextEasinessFactor(s.EasinessFactor, quality)

	reviewedAt := now
	next.NextReviewDate = Date(now).AddDate(0, 0, next.Interval)
	next.LastReviewedAt = &reviewedAt

	return next, nil
}

// NextEasinessFactor is the SM-2 easiness update with the 1.3 floor.
// It accepts any integer quality.
func NextEasinessFactor(ef float64, quality int) float64 {
	q := float64(5 - quality)
	return math.Max(MinEasinessFactor, ef+(0.1-q*(0.08+q*0.02)))
}

// IsDue reports whether s should be reviewed on the day containing now.
func IsDue(s State, now time.Time) bool {
	return !s.NextReviewDate.After(Date(now))
}

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Mastery buckets used by deck statistics.
const (
	MasteryNew      = "new"
	MasteryLearning = "learning"
	MasteryMastered = "mastered"
)

// Mastery classifies a state: mastered needs three straight passes with an
// easiness factor at or above the default.
func Mastery(s State) string {
	switch {
	case s.Repetitions == 0:
		return MasteryNew
	case s.Repetitions >= 3 && s.EasinessFactor >= DefaultEasinessFactor:
		return MasteryMastered
	default:
		return MasteryLearning
	}
}

// QualityLabel is the human label shown next to an evaluated answer.
func QualityLabel(quality int) string {
	switch quality {
	case 5:
		return "Perfect"
	case 4:
		return "Good"
	case 3:
		return "Correct"
	case 2:
		return "Hard"
	case 1:
		return "Wrong"
	default:
		return "Forgot"
	}
}
