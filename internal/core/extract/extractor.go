package extract

import (
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/Procura/internal/core"
)

// DefaultMinWords is the word-count floor under which structural
// extraction is considered too thin and the OCR fallback kicks in.
const DefaultMinWords = 100

// DefaultOcrFactor: an OCR result replaces the structural one only when
// it yields at least this many times the words, so good structured text
// is not swapped for noisy OCR text.
const DefaultOcrFactor = 2

// DocconvExtractor implements core.Extractor using sajari/docconv with a
// table-aware reflow pass on top.
type DocconvExtractor struct {
	MinWords int
}

var _ core.Extractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(minWords int) *DocconvExtractor {
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	return &DocconvExtractor{MinWords: minWords}
}

// Extract runs the structural parse and reports word count as the
// quality signal. The caller decides whether OCR is needed.
func (e *DocconvExtractor) Extract(ctx context.Context, canonicalPath string) (*core.ExtractResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := docconv.ConvertPath(canonicalPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrExtractionFailed, err)
	}

	text := Reflow(res.Body)
	return &core.ExtractResult{
		Text:      text,
		WordCount: CountWords(text),
		Method:    "structural",
	}, nil
}

// NeedsOcr reports whether a structural result is too thin to trust.
func (e *DocconvExtractor) NeedsOcr(res *core.ExtractResult) bool {
	return res == nil || res.WordCount < e.MinWords
}

// ChooseBetter picks between the structural result and an OCR rendition.
// The OCR text is adopted only when it is meaningfully richer (factor x
// the word count) or the structural pass produced nothing usable.
func ChooseBetter(primary *core.ExtractResult, ocrText string, factor int) *core.ExtractResult {
	if factor <= 0 {
		factor = DefaultOcrFactor
	}
	ocr := &core.ExtractResult{
		Text:      ocrText,
		WordCount: CountWords(ocrText),
		Method:    "ocr",
	}
	if primary == nil || primary.WordCount == 0 {
		return ocr
	}
	if ocr.WordCount >= factor*primary.WordCount {
		return ocr
	}
	return primary
}

// CountWords is the extraction quality signal.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// Reflow renders table-like line runs as pipe-delimited rows and joins
// broken prose lines back into paragraphs. Heuristics only: a line whose
// cells are short and sentence-free is treated as tabular; everything
// else is prose.
func Reflow(raw string) string {
	lines := strings.Split(raw, "\n")
	var out []string
	var paragraph []string

	flush := func() {
		if len(paragraph) > 0 {
			out = append(out, strings.Join(paragraph, " "))
			paragraph = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if cells := splitCells(line); len(cells) >= 2 && looksTabular(cells) {
			flush()
			out = append(out, strings.Join(cells, " | "))
			continue
		}
		paragraph = append(paragraph, normalizeSpace(trimmed))
		if endsSentence(trimmed) {
			flush()
		}
	}
	flush()

	return strings.Join(out, "\n")
}

// splitCells breaks a line on runs of two or more spaces, or tabs, which
// is how column gaps survive text extraction.
func splitCells(line string) []string {
	line = strings.ReplaceAll(line, "\t", "  ")
	parts := strings.Split(line, "  ")
	var cells []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

// looksTabular: short cells with no sentence structure and weakly related
// words read as a table row, not wrapped prose.
func looksTabular(cells []string) bool {
	for _, c := range cells {
		if len(c) > 40 || endsSentence(c) {
			return false
		}
		if CountWords(c) > 6 {
			return false
		}
	}
	return true
}

func endsSentence(s string) bool {
	s = strings.TrimRight(s, " ")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
		return true
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
