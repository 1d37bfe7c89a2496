package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizedPairOrdersIDs(t *testing.T) {
	a, b := NormalizedPair(7, 3)
	assert.EqualValues(t, 3, a)
	assert.EqualValues(t, 7, b)

	a, b = NormalizedPair(3, 7)
	assert.EqualValues(t, 3, a)
	assert.EqualValues(t, 7, b)
}

func TestJSONMapRoundTrip(t *testing.T) {
	m := JSONMap{"pages": float64(3), "method": "pdf_text"}

	value, err := m.Value()
	require.NoError(t, err)

	var out JSONMap
	require.NoError(t, out.Scan(value))
	assert.Equal(t, m, out)
}

func TestDifferenceListRoundTrip(t *testing.T) {
	diffs := DifferenceList{
		{Section: "Payment", Classification: "semantic", Severity: SeverityHigh},
	}

	value, err := diffs.Value()
	require.NoError(t, err)

	var out DifferenceList
	require.NoError(t, out.Scan(value))
	require.Len(t, out, 1)
	assert.Equal(t, "Payment", out[0].Section)
	assert.Equal(t, SeverityHigh, out[0].Severity)
}

func TestTaskDue(t *testing.T) {
	now := time.Now()
	task := &QueueTask{}
	assert.True(t, task.Due(now))

	future := now.Add(time.Hour)
	task.ScheduledAt = &future
	assert.False(t, task.Due(now))
	assert.True(t, task.Due(future))
}

func TestTaskTerminal(t *testing.T) {
	cases := map[TaskStatus]bool{
		TaskPending:    false,
		TaskProcessing: false,
		TaskCompleted:  true,
		TaskFailed:     true,
		TaskCancelled:  true,
	}
	for status, terminal := range cases {
		task := &QueueTask{Status: status}
		assert.Equalf(t, terminal, task.Terminal(), "status %s", status)
	}
}

func TestValidationErrorUnwrapsToSentinel(t *testing.T) {
	err := NewValidationError("size", "too large")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "size")
	assert.Contains(t, err.Error(), "too large")
}

func TestDocumentHasExtractedText(t *testing.T) {
	doc := &Document{Status: DocumentProcessed, ExtractedText: "body"}
	assert.True(t, doc.HasExtractedText())

	assert.False(t, (&Document{Status: DocumentProcessed}).HasExtractedText())
}
