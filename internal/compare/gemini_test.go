package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenhao0221/contract-compare/internal/models"
)

func TestParseAIResponsePlainJSON(t *testing.T) {
	raw := `{"summary":"documents differ in payment terms","differences":[{"section":"Payment","severity":"high","excerpt1":"thirty days","excerpt2":"sixty days","suggestion":"align payment windows"}]}`

	parsed, err := parseAIResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "documents differ in payment terms", parsed.Summary)
	require.Len(t, parsed.Differences, 1)
	assert.Equal(t, "Payment", parsed.Differences[0].Section)
}

func TestParseAIResponseStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"summary\":\"fenced reply\",\"differences\":[]}\n```"

	parsed, err := parseAIResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "fenced reply", parsed.Summary)
}

func TestParseAIResponseRejectsGarbage(t *testing.T) {
	_, err := parseAIResponse("I could not compare these documents, sorry!")
	require.Error(t, err)

	_, err = parseAIResponse(`{"summary":"","differences":[]}`)
	require.Error(t, err)
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, models.SeverityHigh, normalizeSeverity("HIGH"))
	assert.Equal(t, models.SeverityLow, normalizeSeverity(" low "))
	assert.Equal(t, models.SeverityMedium, normalizeSeverity("medium"))
	// 未知值落到 medium
	assert.Equal(t, models.SeverityMedium, normalizeSeverity("catastrophic"))
}

func TestDeriveRiskLevel(t *testing.T) {
	assert.Equal(t, "low", deriveRiskLevel(nil))
	assert.Equal(t, "low", deriveRiskLevel(models.DifferenceList{
		{Severity: models.SeverityLow},
	}))
	assert.Equal(t, "medium", deriveRiskLevel(models.DifferenceList{
		{Severity: models.SeverityLow},
		{Severity: models.SeverityMedium},
	}))
	assert.Equal(t, "high", deriveRiskLevel(models.DifferenceList{
		{Severity: models.SeverityMedium},
		{Severity: models.SeverityHigh},
	}))
}

func TestSimilarityFromDifferences(t *testing.T) {
	assert.Equal(t, 100.0, similarityFromDifferences(nil))

	score := similarityFromDifferences(models.DifferenceList{
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityMedium},
		{Severity: models.SeverityLow},
	})
	assert.Equal(t, 74.0, score)

	// 大量差异也不会降到零以下
	many := make(models.DifferenceList, 20)
	for i := range many {
		many[i] = models.Difference{Severity: models.SeverityHigh}
	}
	assert.Equal(t, 0.0, similarityFromDifferences(many))
}
