// Package storage persists the bot state document in a local file or a
// Google Cloud Storage object.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
)

// DefaultObject is the state document name, shared with the legacy bot.
const DefaultObject = "variables.json"

// ErrNotFound reports that no state document exists yet.
var ErrNotFound = errors.New("storage: object doesn't exist")

// Store reads and writes the state document.
// With a local path set the document is a file in that directory,
// otherwise it is an object in the bucket.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
	object    string
}

// New creates a new storage handler.
func New(client *storage.Client, bucket, localPath, object string, logger *slog.Logger) *Store {
	if object == "" {
		object = DefaultObject
	}
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
		object:    object,
	}
}

// Location describes where the document lives, for logs and the status page.
func (s *Store) Location() string {
	if s.localPath != "" {
		return filepath.Join(s.localPath, s.object)
	}
	return "gs://" + s.bucket + "/" + s.object
}

// Save overwrites the whole document.
func (s *Store) Save(ctx context.Context, doc *Document) error {
	data, err := doc.Encode()
	if err != nil {
		return err
	}

	if s.localPath != "" {
		path := filepath.Join(s.localPath, s.object)
		if err := writeFileAtomic(path, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		s.logger.Info("State saved to local storage",
			"path", path,
			"celebrations", len(doc.CelebList),
			"subscribers", len(doc.BdList),
			"responded", len(doc.Responded))
		return nil
	}

	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "object", s.object, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Info("State saved",
		"location", s.Location(),
		"celebrations", len(doc.CelebList),
		"subscribers", len(doc.BdList),
		"responded", len(doc.Responded))
	return nil
}

// Load reads the document. A missing or unparsable document yields an empty
// one and no error, so the bot starts as on its first run. Other read
// failures are returned.
func (s *Store) Load(ctx context.Context) (*Document, error) {
	data, err := s.read(ctx)
	if err != nil {
		if IsNotFound(err) {
			s.logger.Info("No saved state, starting fresh", "location", s.Location())
			return NewDocument(), nil
		}
		return nil, err
	}

	doc, err := Decode(data)
	if err != nil {
		s.logger.Warn("Saved state is unreadable, starting fresh", "location", s.Location(), "error", err)
		return NewDocument(), nil
	}

	s.logger.Info("State loaded",
		"location", s.Location(),
		"celebrations", len(doc.CelebList),
		"subscribers", len(doc.BdList),
		"responded", len(doc.Responded))
	return doc, nil
}

func (s *Store) read(ctx context.Context) ([]byte, error) {
	if s.localPath != "" {
		data, err := os.ReadFile(filepath.Join(s.localPath, s.object))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
			if openErr != nil {
				// Don't retry on "not found" errors
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(ErrNotFound)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying load operation after error", "attempt", n, "object", s.object, "error", retryErr)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("load after retries: %w", err)
	}
	return data, nil
}

// IsNotFound checks if an error indicates the document does not exist.
// Errors returned through retry.Do are matched by message as well.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound) || strings.Contains(err.Error(), ErrNotFound.Error())
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so a crash mid-write never leaves a truncated document.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if _, err = f.Write(data); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Chmod(perm); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
