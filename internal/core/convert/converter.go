package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/logger"
)

const (
	maxAttempts    = 3
	initialBackoff = time.Second
)

// Converter gates invocations of the external office-to-PDF tool behind
// its own semaphore, independent of the document-level pool. The tool is
// a single heavyweight process per invocation; running many concurrently
// exhausts memory and produces cross-talk between instances.
type Converter struct {
	tool   string
	sem    *semaphore.Weighted
	runner Runner
	active atomic.Int64
}

var _ core.Converter = (*Converter)(nil)

// NewConverter builds a gate of the given capacity around tool (soffice).
func NewConverter(tool string, slots int, runner Runner) *Converter {
	if slots < 1 {
		slots = 1
	}
	return &Converter{
		tool:   tool,
		sem:    semaphore.NewWeighted(int64(slots)),
		runner: runner,
	}
}

// ActiveConversions returns the number of in-flight tool invocations.
func (c *Converter) ActiveConversions() int64 {
	return c.active.Load()
}

// Convert produces a PDF rendition of sourcePath and returns its path.
// Already-canonical inputs pass through without consuming a slot. The
// produced file lands next to the source; the per-invocation profile
// directory is always removed, slot always released.
func (c *Converter) Convert(ctx context.Context, sourcePath string) (string, error) {
	if strings.EqualFold(filepath.Ext(sourcePath), ".pdf") {
		return sourcePath, nil
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	c.active.Add(1)
	defer c.active.Add(-1)

	// Unique profile dir per invocation: concurrent instances sharing a
	// user profile deadlock on the profile lock.
	profileDir, err := os.MkdirTemp("", "soffice-profile-"+uuid.NewString())
	if err != nil {
		return "", fmt.Errorf("%w: create profile dir: %v", core.ErrConversionFailed, err)
	}
	defer os.RemoveAll(profileDir)

	outDir := filepath.Dir(sourcePath)
	args := []string{
		"--headless",
		"--norestore",
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--convert-to", "pdf",
		"--outdir", outDir,
		sourcePath,
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, runErr := c.runner.Run(ctx, c.tool, args...)
		if runErr == nil {
			produced := canonicalOutputPath(sourcePath)
			if _, statErr := os.Stat(produced); statErr != nil {
				return "", fmt.Errorf("%w: expected %s", core.ErrConversionNoOutput, produced)
			}
			return produced, nil
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = fmt.Errorf("%w: %v: %s", core.ErrConversionFailed, runErr, strings.TrimSpace(string(out)))
		if !transientStartupFailure(string(out)) {
			return "", lastErr
		}

		logger.Warn(ctx, "transient converter startup failure, retrying",
			"attempt", attempt, "backoff", backoff.String(), "source", filepath.Base(sourcePath))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return "", lastErr
}

// StartSweeper periodically kills lingering tool processes that outlived
// their own timeout. Skips the kill while conversions are in flight so a
// healthy invocation is never reaped.
func (c *Converter) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.active.Load() > 0 {
					continue
				}
				if err := c.runner.KillStale(ctx, c.tool); err != nil {
					logger.Warn(ctx, "converter sweep failed", "error", err)
				}
			}
		}
	}()
}

func canonicalOutputPath(sourcePath string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(sourcePath), stem+".pdf")
}

// transientStartupFailure matches the known class of recoverable tool
// startup problems: profile lock contention and environment races.
func transientStartupFailure(output string) bool {
	s := strings.ToLower(output)
	for _, marker := range []string{
		"user installation could not be processed",
		"failed to acquire",
		"lockfile",
		".lock",
		"javaldx",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
