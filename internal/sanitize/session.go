package sanitize

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const readBufferBytes = 64 * 1024

// Stats counts the lines a Stream call saw.
type Stats struct {
	Kept    int
	Dropped int
}

// Session is one run's view of the append-only log file.
type Session struct {
	ID        string
	StartedAt time.Time
	Path      string

	logger zerolog.Logger
	filter Filter
	mu     sync.Mutex
	file   *os.File
}

// Open appends a session header to the log at path, creating it if needed.
// envNames are recorded by name only.
func Open(logger zerolog.Logger, path string, filter Filter, envNames []string) (*Session, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Path:      path,
		logger:    logger,
		filter:    filter,
		file:      file,
	}

	header := fmt.Sprintf("=== session %s started %s ===\nenv: %s\n",
		s.ID, s.StartedAt.Format(time.RFC3339), strings.Join(envNames, ", "))
	if _, err := file.WriteString(header); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("write session header: %w", err)
	}

	logger.Info().Str("session", s.ID).Str("path", path).Int("env_names", len(envNames)).Msg("log session opened")
	return s, nil
}

// Stream copies r line by line to live and to the log, dropping noise. Each
// kept line is written whole and byte for byte, with a newline appended only
// when the final line lacks one, in a single Write to each destination. Lines
// have no length limit. It returns once r reaches EOF, so a caller that stops
// the writer end gets a log that ends on a line boundary.
func (s *Session) Stream(r io.Reader, live io.Writer) (Stats, error) {
	var stats Stats
	reader := bufio.NewReaderSize(r, readBufferBytes)

	var liveErr error
	for {
		out, readErr := reader.ReadBytes('\n')
		if len(out) > 0 {
			if out[len(out)-1] != '\n' {
				out = append(out, '\n')
			}
			line := strings.TrimSuffix(strings.TrimSuffix(string(out), "\n"), "\r")
			if !s.filter.Keep(line) {
				stats.Dropped++
			} else {
				stats.Kept++
				if live != nil && liveErr == nil {
					if _, err := live.Write(out); err != nil {
						liveErr = err
						s.logger.Warn().Err(err).Msg("live output closed, continuing to log only")
					}
				}
				if err := s.write(out); err != nil {
					return stats, err
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, os.ErrClosed) {
				return stats, nil
			}
			return stats, fmt.Errorf("read server output: %w", readErr)
		}
	}
}

func (s *Session) write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return os.ErrClosed
	}
	if _, err := s.file.Write(p); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// Close releases the log file. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
