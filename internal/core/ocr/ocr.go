package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/logger"
)

const (
	// DefaultWorkers caps the recognizer pool; actual parallelism is
	// bounded by page count.
	DefaultWorkers = 8
	DefaultDPI     = 300
)

// Rasterizer renders each page of a canonical file to an image and
// returns the image paths in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, canonicalPath, outDir string, dpi int) ([]string, error)
}

// Recognizer turns one page image into text. One instance per worker:
// the underlying tesseract client is not safe for concurrent use.
type Recognizer interface {
	RecognizeImage(imagePath string) (string, error)
	Close() error
}

// RecognizerFactory builds a fresh Recognizer for a pool worker.
type RecognizerFactory func() (Recognizer, error)

// Engine is the OCR fallback path: rasterize, normalize, recognize in
// parallel, reassemble in page order.
type Engine struct {
	ras     Rasterizer
	newRec  RecognizerFactory
	workers int
	dpi     int
}

var _ core.OcrEngine = (*Engine)(nil)

func NewEngine(ras Rasterizer, factory RecognizerFactory, workers, dpi int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Engine{ras: ras, newRec: factory, workers: workers, dpi: dpi}
}

// NewDefaultEngine wires pdftoppm rasterization with tesseract workers.
func NewDefaultEngine(workers, dpi int) *Engine {
	return NewEngine(PdftoppmRasterizer{}, NewTesseractRecognizer, workers, dpi)
}

// Recognize OCRs every page of the canonical file. Page images and
// recognizer workers are always released, results are joined in ascending
// page order regardless of completion order.
func (e *Engine) Recognize(ctx context.Context, canonicalPath string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "ocr-pages-")
	if err != nil {
		return "", fmt.Errorf("%w: temp dir: %v", core.ErrOcrFailed, err)
	}
	defer os.RemoveAll(tmpDir)

	pages, err := e.ras.Rasterize(ctx, canonicalPath, tmpDir, e.dpi)
	if err != nil {
		return "", fmt.Errorf("%w: rasterize: %v", core.ErrOcrFailed, err)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("%w: no pages rasterized", core.ErrOcrFailed)
	}

	workers := e.workers
	if len(pages) < workers {
		workers = len(pages)
	}

	results := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := NormalizeImage(page); err != nil {
				// Recognition still runs on the raw page; normalization
				// only improves accuracy.
				logger.Warn(gctx, "page normalization failed", "page", i+1, "error", err)
			}
			rec, err := e.newRec()
			if err != nil {
				return fmt.Errorf("page %d: recognizer: %w", i+1, err)
			}
			defer rec.Close()

			text, err := rec.RecognizeImage(page)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			results[i] = CleanText(text)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrOcrFailed, err)
	}

	return strings.Join(results, "\n\n"), nil
}

// PdftoppmRasterizer shells out to poppler's pdftoppm.
type PdftoppmRasterizer struct{}

func (PdftoppmRasterizer) Rasterize(ctx context.Context, canonicalPath, outDir string, dpi int) ([]string, error) {
	prefix := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-r", fmt.Sprint(dpi), "-gray", "-png", canonicalPath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %v: %s", err, strings.TrimSpace(string(out)))
	}

	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	// pdftoppm zero-pads page numbers, so lexicographic order is page order.
	sort.Strings(pages)
	return pages, nil
}

type tesseractRecognizer struct {
	client *gosseract.Client
}

// NewTesseractRecognizer configures one tesseract client for contract
// document pages: automatic page segmentation, restricted charset.
func NewTesseractRecognizer() (Recognizer, error) {
	client := gosseract.NewClient()
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.SetWhitelist("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789 .,;:!?()[]{}<>/\\-_'\"$%&@#*+="); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &tesseractRecognizer{client: client}, nil
}

func (r *tesseractRecognizer) RecognizeImage(imagePath string) (string, error) {
	if err := r.client.SetImage(imagePath); err != nil {
		return "", err
	}
	return r.client.Text()
}

func (r *tesseractRecognizer) Close() error {
	return r.client.Close()
}

// CleanText drops control and exotic characters that recognition tends to
// hallucinate and normalizes whitespace within lines.
func CleanText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == ' ':
			b.WriteRune(r)
		case unicode.IsControl(r):
			// skip
		case r > unicode.MaxASCII && !unicode.IsLetter(r) && !unicode.IsDigit(r):
			// skip
		default:
			b.WriteRune(r)
		}
	}

	lines := strings.Split(b.String(), "\n")
	var out []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
