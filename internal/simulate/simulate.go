// Package simulate synthesizes plausible attempt results without audio input.
package simulate

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/rliebert/reading-fluency-app/internal/model"
	"github.com/rliebert/reading-fluency-app/internal/passage"
)

// Kind selects how the raw simulated score is adjusted.
type Kind string

const (
	Normal     Kind = "normal"
	Perfect    Kind = "perfect"
	Struggling Kind = "struggling"
	Improving  Kind = "improving"
)

// MaxErrorRate is the highest accepted error rate percentage.
const MaxErrorRate = 50

// ErrInvalidProfile is returned for profiles outside the accepted ranges.
var ErrInvalidProfile = errors.New("invalid simulation profile")

// Profile describes the reading to simulate.
type Profile struct {
	WordsPerMinute   int
	ErrorRatePercent int
	ImprovementDelta int
	Kind             Kind
}

// ParseKind converts a name into a Kind.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case Normal, Perfect, Struggling, Improving:
		return k, nil
	case "":
		return Normal, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidProfile, name)
	}
}

// Validate checks the profile ranges.
func (p Profile) Validate() error {
	if p.WordsPerMinute < 0 {
		return fmt.Errorf("%w: words per minute must be >= 0", ErrInvalidProfile)
	}
	if p.ErrorRatePercent < 0 || p.ErrorRatePercent > MaxErrorRate {
		return fmt.Errorf("%w: error rate must be between 0 and %d", ErrInvalidProfile, MaxErrorRate)
	}
	if _, err := ParseKind(string(p.Kind)); err != nil {
		return err
	}
	return nil
}

// Engine produces randomized attempt results.
type Engine struct {
	rnd *rand.Rand
}

// New returns an Engine seeded with the current time.
func New() *Engine {
	return &Engine{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeeded returns an Engine with a fixed seed for reproducible output.
func NewSeeded(seed int64) *Engine {
	return &Engine{rnd: rand.New(rand.NewSource(seed))}
}

// Simulate synthesizes a result for reading p under profile.
// priorScores holds the earlier scores for the same passage, oldest first.
func (e *Engine) Simulate(profile Profile, p passage.Passage, priorScores []int) (model.AttemptResult, error) {
	if err := profile.Validate(); err != nil {
		return model.AttemptResult{}, err
	}
	kind, _ := ParseKind(string(profile.Kind))

	wordsRead := min(profile.WordsPerMinute, p.Len())
	errorCount := int(math.Round(float64(wordsRead) * float64(profile.ErrorRatePercent) / 100))
	if errorCount > wordsRead {
		errorCount = wordsRead
	}

	positions := e.rnd.Perm(wordsRead)[:errorCount]
	sort.Ints(positions)
	errs := make([]string, 0, errorCount)
	for _, pos := range positions {
		if w, ok := p.Word(pos); ok {
			errs = append(errs, w)
		}
	}

	score := wordsRead - errorCount
	switch kind {
	case Perfect:
		score = wordsRead
		errs = []string{}
	case Struggling:
		score = max(10, wordsRead-errorCount-5)
	case Improving:
		if len(priorScores) > 0 {
			score = priorScores[len(priorScores)-1] + profile.ImprovementDelta
		}
	}
	if score < 0 {
		score = 0
	}
	return model.AttemptResult{Score: score, Errors: errs}, nil
}
