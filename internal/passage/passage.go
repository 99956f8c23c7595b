// Package passage provides reading passages and their target word lists.
package passage

import (
	"fmt"
	"strings"
)

// Passage is an immutable block of reading text split into segments.
type Passage struct {
	id       string
	level    string
	segments []string
	words    []string
}

// New builds a passage and tokenizes its target words once.
func New(id, level string, segments []string) (Passage, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Passage{}, fmt.Errorf("passage id is empty")
	}
	segs := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		segs = append(segs, s)
	}
	if len(segs) == 0 {
		return Passage{}, fmt.Errorf("passage %q has no text", id)
	}
	return Passage{
		id:       id,
		level:    strings.TrimSpace(level),
		segments: segs,
		words:    Tokenize(strings.Join(segs, " ")),
	}, nil
}

// MustNew is like New but panics on invalid input.
func MustNew(id, level string, segments []string) Passage {
	p, err := New(id, level, segments)
	if err != nil {
		panic(err)
	}
	return p
}

// Tokenize splits text on whitespace and lowercases every token.
func Tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ToLower(f))
	}
	return out
}

// ID returns the passage identifier.
func (p Passage) ID() string { return p.id }

// Level returns the reading level label.
func (p Passage) Level() string { return p.level }

// Len returns the number of target words.
func (p Passage) Len() int { return len(p.words) }

// SegmentCount returns the number of text segments.
func (p Passage) SegmentCount() int { return len(p.segments) }

// Segment returns segment i, or an empty string when out of range.
func (p Passage) Segment(i int) string {
	if i < 0 || i >= len(p.segments) {
		return ""
	}
	return p.segments[i]
}

// Segments returns a copy of the text segments.
func (p Passage) Segments() []string {
	return append([]string(nil), p.segments...)
}

// Words returns a copy of the lowercase target words.
func (p Passage) Words() []string {
	return append([]string(nil), p.words...)
}

// Word returns target word i and whether it exists.
func (p Passage) Word(i int) (string, bool) {
	if i < 0 || i >= len(p.words) {
		return "", false
	}
	return p.words[i], true
}

// Text returns the full passage text.
func (p Passage) Text() string {
	return strings.Join(p.segments, " ")
}

// SegmentOffset returns the index of the first target word of segment i.
func (p Passage) SegmentOffset(i int) int {
	if i <= 0 {
		return 0
	}
	if i > len(p.segments) {
		i = len(p.segments)
	}
	n := 0
	for _, s := range p.segments[:i] {
		n += len(strings.Fields(s))
	}
	return n
}
