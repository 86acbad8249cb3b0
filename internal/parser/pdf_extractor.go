package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"

	"resume-agent-go/internal/logger"
)

// PDFTextExtractor pulls the full plain text out of a PDF using the eino
// PDF parser. The parser is configured without page splitting so the whole
// document comes back as one string.
type PDFTextExtractor struct {
	parser *pdf.PDFParser
}

// NewPDFTextExtractor initializes the underlying eino parser.
func NewPDFTextExtractor(ctx context.Context) (*PDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("create pdf parser: %w", err)
	}
	return &PDFTextExtractor{parser: p}, nil
}

// ExtractText extracts the text of the PDF behind reader. uri is used for
// logging and parser metadata only.
func (e *PDFTextExtractor) ExtractText(ctx context.Context, reader io.Reader, uri string) (string, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	docs, err := e.parser.Parse(ctx, reader, einoParser.WithURI(uri))
	if err != nil {
		return "", fmt.Errorf("parse pdf %s: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("pdf parser returned no documents for %s", uri)
	}

	var full bytes.Buffer
	for i, doc := range docs {
		if i > 0 {
			full.WriteString("\n\n")
		}
		full.WriteString(doc.Content)
	}

	logger.Ctx(ctx).Debug().
		Str("uri", uri).
		Int("chars", full.Len()).
		Dur("took", time.Since(start)).
		Msg("pdf text extracted")

	return full.String(), nil
}

// ExtractTextFromBytes is ExtractText over an in-memory document.
func (e *PDFTextExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, error) {
	return e.ExtractText(ctx, bytes.NewReader(data), uri)
}
