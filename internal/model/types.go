// Package model defines shared data structures.
package model

import "time"

// AttemptResult is the outcome of one reading attempt.
type AttemptResult struct {
	// Score is words correct per minute.
	Score int
	// Errors lists mis-read passage words in passage order.
	Errors []string
}

// ErrorCount returns the number of mis-read words.
func (r AttemptResult) ErrorCount() int {
	return len(r.Errors)
}

// Config defines practice settings resolved from flags and the config file.
type Config struct {
	PassagesFile   string
	TestMode       bool
	Duration       time.Duration
	SimulationKind string
	WPM            int
	ErrorRate      int
	Improvement    int
}

// HistoryConfig defines filters and options for history output.
type HistoryConfig struct {
	Level       string
	Since       *time.Time
	Last        int
	CurveWindow int
	TopTricky   int
}

// AttemptRecord captures a finished attempt for storage.
type AttemptRecord struct {
	SessionID  string
	PassageID  string
	Level      string
	Attempt    int
	Mode       string
	StartedAt  time.Time
	EndedAt    time.Time
	Score      int
	Errors     []string
	Transcript string
	Improved   bool
}

// AttemptAggregate summarizes a stored attempt for reporting.
type AttemptAggregate struct {
	ID         int64
	SessionID  string
	PassageID  string
	Level      string
	Attempt    int
	Mode       string
	EndedAt    time.Time
	Score      int
	ErrorCount int
	Improved   bool
}

// WordAggregate counts how often a word was mis-read across attempts.
type WordAggregate struct {
	Word     string
	Misses   int
	Attempts int
}
