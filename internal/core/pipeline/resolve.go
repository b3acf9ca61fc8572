package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/logger"
	"github.com/markdave123-py/Procura/internal/models"
)

// maxDownloadSize caps attachment downloads.
const maxDownloadSize = 10 << 20

// SourceResolver locates the source file for a task: the stored local
// path when still valid, a fresh download otherwise, and as a last
// resort a scan of the download directory for a filename or notice-id
// match. The scan is a deliberate best-effort recovery heuristic for
// rows whose local path went missing, not a guaranteed lookup.
type SourceResolver struct {
	httpClient  *http.Client
	downloadDir string
}

func NewSourceResolver(downloadDir string) *SourceResolver {
	return &SourceResolver{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		downloadDir: downloadDir,
	}
}

func (r *SourceResolver) Resolve(ctx context.Context, task *models.DocumentTask) (string, error) {
	if task.LocalFilePath != "" {
		if info, err := os.Stat(task.LocalFilePath); err == nil && info.Size() > 0 {
			return task.LocalFilePath, nil
		}
	}

	if task.DocumentURL != "" {
		p, err := r.download(ctx, task)
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		logger.Warn(ctx, "download failed, falling back to directory scan",
			"url", task.DocumentURL, "error", err)
	}

	if p := r.scanDownloadDir(task); p != "" {
		logger.Info(ctx, "recovered source file by directory scan", "path", p)
		return p, nil
	}

	return "", fmt.Errorf("%w: no usable source for %s", core.ErrDownloadFailed, task.Filename)
}

func (r *SourceResolver) download(ctx context.Context, task *models.DocumentTask) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.DocumentURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", "Procura/1.0")
	req.Header.Set("Accept", "*/*")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", core.ErrDownloadFailed, resp.StatusCode)
	}

	if err := os.MkdirAll(r.downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrDownloadFailed, err)
	}

	// Prefix with the notice id so same-named attachments from different
	// notices never clobber each other mid-pipeline.
	base := filepath.Base(task.Filename)
	if task.ContractNoticeID != "" {
		base = task.ContractNoticeID + "_" + base
	}
	dest := filepath.Join(r.downloadDir, base)
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrDownloadFailed, err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("%w: %v", core.ErrDownloadFailed, err)
	}
	if n > maxDownloadSize {
		_ = os.Remove(dest)
		return "", fmt.Errorf("%w: file exceeds %d bytes", core.ErrDownloadFailed, maxDownloadSize)
	}

	return dest, nil
}

func (r *SourceResolver) scanDownloadDir(task *models.DocumentTask) string {
	entries, err := os.ReadDir(r.downloadDir)
	if err != nil {
		return ""
	}

	stem := strings.TrimSuffix(task.Filename, filepath.Ext(task.Filename))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if (stem != "" && strings.Contains(name, stem)) ||
			(task.ContractNoticeID != "" && strings.Contains(name, task.ContractNoticeID)) {
			return filepath.Join(r.downloadDir, name)
		}
	}
	return ""
}
