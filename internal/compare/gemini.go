package compare

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/pkg/logger"
)

const comparePrompt = `You are a contract review assistant. Compare the two contract texts below and respond with ONLY a JSON object, no markdown fences, in this exact shape:
{
  "summary": "one paragraph overview of how the documents differ",
  "differences": [
    {
      "section": "name or number of the affected section",
      "severity": "high|medium|low",
      "excerpt1": "the relevant wording from document 1",
      "excerpt2": "the relevant wording from document 2",
      "suggestion": "how to resolve the discrepancy"
    }
  ]
}

=== DOCUMENT 1 ===
%s

=== DOCUMENT 2 ===
%s`

// 固定推荐动作列表。见 DESIGN.md：源系统里这是占位实现，
// 保留为可配置项而不是契约。
var defaultActions = []string{
	"Review all high severity differences with legal counsel",
	"Confirm that payment and liability terms match the agreed position",
	"Request an amended draft for any unresolved discrepancies",
}

// GeminiConfig AI 比对器配置
type GeminiConfig struct {
	APIKey     string
	Model      string
	Confidence float64
}

// GeminiComparator 把语义比对委托给 Gemini 的策略。上游不可达
// 或返回格式坏掉时直接报错，不会静默退回统计比对。
type GeminiComparator struct {
	client     *genai.Client
	model      string
	confidence float64
	logger     logger.Logger
}

type aiDifference struct {
	Section    string `json:"section"`
	Severity   string `json:"severity"`
	Excerpt1   string `json:"excerpt1"`
	Excerpt2   string `json:"excerpt2"`
	Suggestion string `json:"suggestion"`
}

type aiResponse struct {
	Summary     string         `json:"summary"`
	Differences []aiDifference `json:"differences"`
}

// NewGeminiComparator creates the AI-assisted comparator.
func NewGeminiComparator(ctx context.Context, cfg *GeminiConfig, log logger.Logger) (*GeminiComparator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	confidence := cfg.Confidence
	if confidence <= 0 {
		confidence = 0.85
	}

	return &GeminiComparator{
		client:     client,
		model:      model,
		confidence: confidence,
		logger:     log,
	}, nil
}

// Close releases the underlying client.
func (c *GeminiComparator) Close() error {
	return c.client.Close()
}

// Compare implements Comparator.
func (c *GeminiComparator) Compare(ctx context.Context, text1, text2 string) (*Result, error) {
	start := time.Now()

	model := c.client.GenerativeModel(c.model)
	model.ResponseMIMEType = "application/json"

	prompt := fmt.Sprintf(comparePrompt, text1, text2)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini request failed: %v", models.ErrUpstream, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: gemini returned no candidates", models.ErrUpstream)
	}

	raw := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])
	parsed, err := parseAIResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUpstream, err)
	}

	differences := make(models.DifferenceList, 0, len(parsed.Differences))
	for _, d := range parsed.Differences {
		differences = append(differences, models.Difference{
			Section:        d.Section,
			Classification: "semantic",
			Severity:       normalizeSeverity(d.Severity),
			Excerpt1:       d.Excerpt1,
			Excerpt2:       d.Excerpt2,
			Suggestion:     d.Suggestion,
		})
	}

	c.logger.Info("AI comparison completed",
		logger.String("model", c.model),
		logger.Int("differences", len(differences)),
		logger.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		SimilarityScore: similarityFromDifferences(differences),
		SimilarityLabel: similarityLabel(similarityFromDifferences(differences)),
		Summary:         parsed.Summary,
		RiskLevel:       deriveRiskLevel(differences),
		Confidence:      c.confidence,
		Method:          MethodAI,
		Differences:     differences,
		Suggestions:     append(models.StringList(nil), defaultActions...),
	}, nil
}

// parseAIResponse 解析模型输出，容忍包了 ```json 围栏的回复
func parseAIResponse(raw string) (*aiResponse, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed aiResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("malformed gemini response: %v", err)
	}
	if parsed.Summary == "" && len(parsed.Differences) == 0 {
		return nil, fmt.Errorf("gemini response carried no usable content")
	}
	return &parsed, nil
}

func normalizeSeverity(s string) models.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return models.SeverityHigh
	case "low":
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}

// deriveRiskLevel 有 high 即 high，否则有 medium 即 medium
func deriveRiskLevel(diffs models.DifferenceList) string {
	risk := "low"
	for _, d := range diffs {
		switch d.Severity {
		case models.SeverityHigh:
			return "high"
		case models.SeverityMedium:
			risk = "medium"
		}
	}
	return risk
}

// similarityFromDifferences 差异数量和严重度折算的粗粒度分数
func similarityFromDifferences(diffs models.DifferenceList) float64 {
	score := 100.0
	for _, d := range diffs {
		switch d.Severity {
		case models.SeverityHigh:
			score -= 15
		case models.SeverityMedium:
			score -= 8
		default:
			score -= 3
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
