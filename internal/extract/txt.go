package extract

import (
	"fmt"
	"unicode/utf8"
)

// extractTXT 纯文本直接透传
func extractTXT(data []byte) (*Extraction, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file is not valid utf-8 text")
	}

	return &Extraction{
		Text:       string(data),
		PageCount:  1,
		Confidence: 1.0,
		Method:     "plain_text",
	}, nil
}
