package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Local stores document uploads on the local filesystem. Keeping the
// original bytes around lets the quiz generator re-extract text when
// the vector index has nothing for a topic.
type Local struct {
	baseDir string
	logger  zerolog.Logger
}

// NewLocal prepares the upload directory and returns a store rooted there.
func NewLocal(baseDir string, logger zerolog.Logger) (*Local, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("upload directory must be provided")
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return &Local{
		baseDir: baseDir,
		logger:  logger.With().Str("component", "local_storage").Logger(),
	}, nil
}

// Save writes the payload under a collision-free name and returns the
// relative storage path.
func (l *Local) Save(name string, reader io.Reader) (string, error) {
	safe := sanitizeName(name)
	relative := fmt.Sprintf("%d-%s", time.Now().UnixNano(), safe)

	file, err := os.Create(filepath.Join(l.baseDir, relative))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	l.logger.Debug().Str("path", relative).Msg("file stored")

	return relative, nil
}

// Read returns the full contents of a previously stored file.
func (l *Local) Read(relative string) ([]byte, error) {
	cleaned := filepath.Clean(relative)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return nil, fmt.Errorf("invalid storage path %q", relative)
	}

	data, err := os.ReadFile(filepath.Join(l.baseDir, cleaned))
	if err != nil {
		return nil, fmt.Errorf("failed to read stored file: %w", err)
	}

	return data, nil
}

// Remove deletes a stored file. Missing files are not an error because
// removal runs as cleanup.
func (l *Local) Remove(relative string) error {
	cleaned := filepath.Clean(relative)
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return fmt.Errorf("invalid storage path %q", relative)
	}

	err := os.Remove(filepath.Join(l.baseDir, cleaned))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func sanitizeName(name string) string {
	base := filepath.Base(name)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)

	if base == "" || base == "." {
		base = "upload"
	}

	return base
}
