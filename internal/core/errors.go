package core

import (
	"errors"
	"fmt"
)

// Pipeline error kinds. Stage errors are wrapped with one of these so the
// orchestrator can map any failure to a task status and operators can tell
// a broken document from a transient outage at a glance.
var (
	ErrDownloadFailed   = errors.New("download failed")
	ErrConversionFailed = errors.New("conversion failed")
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrOcrRequired means structural extraction yielded too little text
	// and the OCR fallback is disabled by policy. Terminal: retrying would
	// repeat the same failure.
	ErrOcrRequired = errors.New("ocr required but disabled")
	ErrOcrFailed   = errors.New("ocr failed")

	ErrSummarizationTimeout   = errors.New("summarization timed out")
	ErrInvalidSummaryResponse = errors.New("invalid summarization response")

	// ErrIndexingFailed is a best-effort side channel failure; it never
	// flips a completed task to failed.
	ErrIndexingFailed = errors.New("indexing failed")

	// ErrTaskTimeout is the umbrella per-document deadline.
	ErrTaskTimeout = errors.New("document processing timed out")
)

// ErrConversionNoOutput is the hard sub-kind of ErrConversionFailed raised
// when the tool exits cleanly but no canonical file appears.
var ErrConversionNoOutput = fmt.Errorf("%w: tool produced no output", ErrConversionFailed)
