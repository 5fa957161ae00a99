package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/adjust481/PolySniper/internal/domain"
)

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// RunArchiver uploads the rendered report files of a run under
// {prefix}/runs/{YYYY-MM-DD}/{runID}/.
type RunArchiver struct {
	writer domain.BlobWriter
	prefix string
}

// NewRunArchiver creates a RunArchiver writing through w.
func NewRunArchiver(w domain.BlobWriter, prefix string) *RunArchiver {
	return &RunArchiver{writer: w, prefix: prefix}
}

// Archive uploads every artifact and returns the object keys written, in
// order. It stops at the first failed upload.
func (a *RunArchiver) Archive(ctx context.Context, runID string, startedAt time.Time, artifacts []domain.Artifact) ([]string, error) {
	dir := runDir(a.prefix, runID, startedAt)
	keys := make([]string, 0, len(artifacts))

	for _, art := range artifacts {
		key := path.Join(dir, art.Name)
		var err error
		if len(art.Data) >= multipartThreshold {
			err = a.writer.PutMultipart(ctx, key, bytes.NewReader(art.Data), minPartSize)
		} else {
			err = a.writer.Put(ctx, key, bytes.NewReader(art.Data), art.ContentType)
		}
		if err != nil {
			return keys, fmt.Errorf("s3blob: archive run %s: %w", runID, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func runDir(prefix, runID string, startedAt time.Time) string {
	return path.Join(prefix, "runs", startedAt.UTC().Format("2006-01-02"), runID)
}
