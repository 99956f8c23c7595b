// Package scoring compares a spoken transcript against a passage.
//
// Matching is strictly positional: spoken word i is compared with target
// word i and nothing else. A skipped or inserted word shifts every later
// position, so one slip early in a reading can cost many points. This is a
// known limitation of the scoring rule and is kept as is.
package scoring

import (
	"github.com/rliebert/reading-fluency-app/internal/model"
	"github.com/rliebert/reading-fluency-app/internal/passage"
)

// Mark describes how one target position was read.
type Mark int

const (
	// Pending means nothing was spoken for the position yet.
	Pending Mark = iota
	// Correct means the spoken word matched the target.
	Correct
	// Missed means a different word was spoken at the position.
	Missed
)

// Score counts correct positions and lists mis-read target words in order.
func Score(transcript string, p passage.Passage) model.AttemptResult {
	spoken := passage.Tokenize(transcript)
	result := model.AttemptResult{Errors: []string{}}
	for i, word := range spoken {
		target, ok := p.Word(i)
		if !ok {
			continue
		}
		if word == target {
			result.Score++
			continue
		}
		result.Errors = append(result.Errors, target)
	}
	return result
}

// Marks returns one mark per target word using the same rule as Score.
func Marks(transcript string, p passage.Passage) []Mark {
	spoken := passage.Tokenize(transcript)
	marks := make([]Mark, p.Len())
	for i := range marks {
		if i >= len(spoken) {
			break
		}
		target, _ := p.Word(i)
		if spoken[i] == target {
			marks[i] = Correct
		} else {
			marks[i] = Missed
		}
	}
	return marks
}
