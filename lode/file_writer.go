package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"
)

// FileWriter writes sidecar files next to a job's records.
// Files land at Hive-partitioned paths under files/, bypassing Dataset
// segment/manifest machinery entirely.
type FileWriter interface {
	// PutFile writes a file to the job's files/ prefix.
	// The filename must not contain path separators or "..".
	PutFile(ctx context.Context, filename, contentType string, data []byte) error
}

var _ FileWriter = (*LodeClient)(nil)

// ErrInvalidFilename is returned for sidecar names that would escape files/.
var ErrInvalidFilename = errors.New("invalid sidecar filename")

// PutFile writes a sidecar file at the job's Hive path.
// The store is created lazily from the client's factory.
func (c *LodeClient) PutFile(ctx context.Context, filename, _ string, data []byte) error {
	if filename == "" || strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	store, err := c.getOrCreateStore()
	if err != nil {
		return WrapInitError(fmt.Errorf("file write store init failed: %w", err), c.config.Dataset)
	}

	path := c.buildFilePath(filename)
	if err := store.Put(ctx, path, bytes.NewReader(data)); err != nil {
		return WrapWriteError(err, path)
	}
	return nil
}

// getOrCreateStore lazily initializes the Store from the factory.
func (c *LodeClient) getOrCreateStore() (lode.Store, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
	})
	return c.store, c.storeErr
}

// buildFilePath computes the Hive-partitioned path for a sidecar file.
// Format: datasets/<dataset>/partitions/day=<d>/job_id=<j>/files/<filename>
func (c *LodeClient) buildFilePath(filename string) string {
	return fmt.Sprintf("datasets/%s/partitions/day=%s/job_id=%s/files/%s",
		c.config.Dataset,
		c.config.Day,
		c.config.JobID,
		filename,
	)
}

// StubFileWriter records PutFile calls for testing.
type StubFileWriter struct {
	mu    sync.Mutex
	Files []StubFileRecord
}

// StubFileRecord is a recorded file write.
type StubFileRecord struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NewStubFileWriter creates a new stub file writer.
func NewStubFileWriter() *StubFileWriter {
	return &StubFileWriter{}
}

// PutFile implements FileWriter by recording the call.
func (w *StubFileWriter) PutFile(_ context.Context, filename, contentType string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Files = append(w.Files, StubFileRecord{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})
	return nil
}

var _ FileWriter = (*StubFileWriter)(nil)
