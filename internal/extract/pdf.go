package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF 逐页取纯文本
func extractPDF(ctx context.Context, data []byte) (*Extraction, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := pdfReader.NumPage()
	var sb strings.Builder
	extracted := 0

	for i := 1; i <= numPages; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// 个别坏页跳过，整体失败由空结果兜底
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
		extracted++
	}

	if extracted == 0 {
		return nil, fmt.Errorf("no readable pages out of %d", numPages)
	}

	confidence := float64(extracted) / float64(numPages)
	return &Extraction{
		Text:       sb.String(),
		PageCount:  numPages,
		Confidence: confidence,
		Method:     "pdf_text",
	}, nil
}
