package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rliebert/reading-fluency-app/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "readfluent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func record(session string, attempt, score int, at time.Time, errs ...string) model.AttemptRecord {
	return model.AttemptRecord{
		SessionID: session,
		PassageID: "max-the-dog",
		Level:     "Kindergarten",
		Attempt:   attempt,
		Mode:      "simulated",
		StartedAt: at.Add(-time.Minute),
		EndedAt:   at,
		Score:     score,
		Errors:    errs,
	}
}

func TestInsertAndList(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	session := uuid.NewString()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	id1, err := st.InsertAttempt(ctx, record(session, 1, 20, base, "dog.", "brown"))
	require.NoError(t, err)
	rec := record(session, 2, 30, base.Add(2*time.Minute), "dog.")
	rec.Improved = true
	id2, err := st.InsertAttempt(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, st.Record(ctx, record(session, 3, 40, base.Add(4*time.Minute))))

	all, err := st.ListAttempts(ctx, model.HistoryConfig{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, id1, all[0].ID)
	assert.Equal(t, 2, all[0].ErrorCount)
	assert.Equal(t, session, all[0].SessionID)
	assert.True(t, all[1].Improved)
	assert.True(t, all[0].EndedAt.Equal(base))

	last, err := st.ListAttempts(ctx, model.HistoryConfig{Last: 2})
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, id2, last[0].ID)

	since := base.Add(time.Minute)
	recent, err := st.ListAttempts(ctx, model.HistoryConfig{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	other, err := st.ListAttempts(ctx, model.HistoryConfig{Level: "3rd Grade"})
	require.NoError(t, err)
	assert.Empty(t, other)

	words, err := st.ErrorsForAttempt(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, []string{"dog.", "brown"}, words)
}

func TestTrickyWords(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	id1, err := st.InsertAttempt(ctx, record("s", 1, 10, base, "dog.", "brown", "dog."))
	require.NoError(t, err)
	id2, err := st.InsertAttempt(ctx, record("s", 2, 12, base.Add(time.Minute), "dog."))
	require.NoError(t, err)

	aggs, err := st.TrickyWords(ctx, []int64{id1, id2})
	require.NoError(t, err)
	byWord := map[string]model.WordAggregate{}
	for _, a := range aggs {
		byWord[a.Word] = a
	}
	assert.Equal(t, model.WordAggregate{Word: "dog.", Misses: 3, Attempts: 2}, byWord["dog."])
	assert.Equal(t, model.WordAggregate{Word: "brown", Misses: 1, Attempts: 1}, byWord["brown"])

	none, err := st.TrickyWords(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
