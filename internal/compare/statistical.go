package compare

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/wenhao0221/contract-compare/internal/models"
	"github.com/wenhao0221/contract-compare/pkg/logger"
)

// 章节探测的三个启发式：编号标题、全大写行、法律套话关键词。
// 三者独立命中后取并集去重。
var (
	numberedHeaderRe = regexp.MustCompile(`^\d+\.\s*[A-Z].*`)
	sentenceSplitRe  = regexp.MustCompile(`[.!?]+`)
	wordRe           = regexp.MustCompile(`[a-zA-Z]+`)
)

var legalKeywords = []string{
	"section", "article", "clause", "whereas", "herein",
	"hereinafter", "party", "parties", "agreement", "term",
}

// StatisticalComparator 无外部依赖的确定性比对器：词频统计加
// Jaccard 相似度
type StatisticalComparator struct {
	logger logger.Logger
}

// NewStatisticalComparator creates the deterministic comparator.
func NewStatisticalComparator(log logger.Logger) *StatisticalComparator {
	return &StatisticalComparator{logger: log}
}

// Compare implements Comparator.
func (c *StatisticalComparator) Compare(ctx context.Context, text1, text2 string) (*Result, error) {
	stats1 := buildStats(text1)
	stats2 := buildStats(text2)

	set1 := tokenSet(text1)
	set2 := tokenSet(text2)
	score := jaccardSimilarity(set1, set2)
	label := similarityLabel(score)

	sections1 := detectSections(text1)
	sections2 := detectSections(text2)
	stats1.SectionCount = len(sections1)
	stats2.SectionCount = len(sections2)

	differences := sectionDifferences(sections1, sections2)

	summary := fmt.Sprintf(
		"Documents share %.1f%% of their significant vocabulary (%s). Document 1: %d words, %d sections. Document 2: %d words, %d sections.",
		score, label, stats1.WordCount, len(sections1), stats2.WordCount, len(sections2),
	)

	return &Result{
		SimilarityScore: score,
		SimilarityLabel: label,
		Summary:         summary,
		Confidence:      1.0,
		Method:          MethodStatistical,
		Differences:     differences,
		Stats1:          stats1,
		Stats2:          stats2,
	}, nil
}

// buildStats 词/字符/句/段计数
func buildStats(text string) *TextStats {
	words := strings.Fields(text)

	sentences := 0
	for _, part := range sentenceSplitRe.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			sentences++
		}
	}

	paragraphs := 0
	for _, block := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(block) != "" {
			paragraphs++
		}
	}

	return &TextStats{
		WordCount:      len(words),
		CharCount:      len(text),
		SentenceCount:  sentences,
		ParagraphCount: paragraphs,
	}
}

// tokenSet 小写后长度大于 3 的词集合
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) > 3 {
			set[w] = struct{}{}
		}
	}
	return set
}

// jaccardSimilarity |A∩B| / |A∪B| * 100。两边词集都为空时视为
// 完全相同。
func jaccardSimilarity(set1, set2 map[string]struct{}) float64 {
	intersection := 0
	for w := range set1 {
		if _, ok := set2[w]; ok {
			intersection++
		}
	}
	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 100
	}
	return float64(intersection) / float64(union) * 100
}

// similarityLabel 五档定性标签，阈值固定
func similarityLabel(score float64) string {
	switch {
	case score > 80:
		return "Very Similar"
	case score > 60:
		return "Similar"
	case score > 40:
		return "Somewhat Similar"
	case score > 20:
		return "Different"
	default:
		return "Very Different"
	}
}

// detectSections 三个启发式取并集，保序去重
func detectSections(text string) []string {
	seen := make(map[string]struct{})
	var sections []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		sections = append(sections, s)
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if numberedHeaderRe.MatchString(trimmed) {
			add(trimmed)
			continue
		}

		if isAllCapsHeader(trimmed) {
			add(trimmed)
			continue
		}

		lower := strings.ToLower(trimmed)
		for _, kw := range legalKeywords {
			if strings.Contains(lower, kw) {
				add(trimmed)
				break
			}
		}
	}
	return sections
}

// isAllCapsHeader 整行大写且含字母的短行
func isAllCapsHeader(line string) bool {
	if len(line) > 80 {
		return false
	}
	hasLetter := false
	for _, r := range line {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

// sectionDifferences 只在一侧出现的章节作为关键差异输出
func sectionDifferences(sections1, sections2 []string) models.DifferenceList {
	set1 := make(map[string]struct{}, len(sections1))
	for _, s := range sections1 {
		set1[s] = struct{}{}
	}
	set2 := make(map[string]struct{}, len(sections2))
	for _, s := range sections2 {
		set2[s] = struct{}{}
	}

	var diffs models.DifferenceList
	for _, s := range sections1 {
		if _, ok := set2[s]; !ok {
			diffs = append(diffs, models.Difference{
				Section:        truncate(s, 120),
				Classification: "section_missing",
				Severity:       models.SeverityMedium,
				Excerpt1:       truncate(s, 200),
				Excerpt2:       "",
				Suggestion:     "Review whether this section should appear in both documents",
			})
		}
	}
	for _, s := range sections2 {
		if _, ok := set1[s]; !ok {
			diffs = append(diffs, models.Difference{
				Section:        truncate(s, 120),
				Classification: "section_added",
				Severity:       models.SeverityMedium,
				Excerpt1:       "",
				Excerpt2:       truncate(s, 200),
				Suggestion:     "Review whether this section should appear in both documents",
			})
		}
	}

	sort.SliceStable(diffs, func(i, j int) bool {
		return diffs[i].Section < diffs[j].Section
	})
	return diffs
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
