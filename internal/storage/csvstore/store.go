// Package csvstore is the append-only tabular output store. Rows are
// flushed to disk as they are written so an interrupted run loses at most
// the row in flight, and identifiers can be enumerated without loading
// full row content.
package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/interfaces"
	"github.com/ternarybob/messis/internal/models"
)

// identifierColumn is always the first column of the output file.
const identifierColumn = "identifier"

// Store implements interfaces.RecordStore on a CSV file. The column set is
// fixed by the first appended record (or by the header of an existing
// file); later records missing a column write an empty cell, and fields
// outside the header are dropped with a warning.
type Store struct {
	path   string
	logger arbor.ILogger

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	header []string
}

var _ interfaces.RecordStore = (*Store)(nil)

// Open opens or creates the output file. An existing file's header defines
// the column order for appended rows.
func Open(config common.OutputConfig, logger arbor.ILogger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	header, err := readHeader(config.Path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	logger.Debug().
		Str("path", config.Path).
		Bool("existing_header", header != nil).
		Msg("Output store opened")

	return &Store{
		path:   config.Path,
		logger: logger,
		file:   file,
		writer: csv.NewWriter(file),
		header: header,
	}, nil
}

// Append writes one record and flushes it to disk before returning.
func (s *Store) Append(rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.header == nil {
		s.header = headerFor(rec)
		if err := s.writer.Write(s.header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	row := make([]string, len(s.header))
	used := 1
	for i, col := range s.header {
		if i == 0 {
			row[0] = string(rec.ID)
			continue
		}
		if val, ok := rec.Fields[col]; ok {
			row[i] = val
			used++
		}
	}
	if extra := len(rec.Fields) + 1 - used; extra > 0 {
		s.logger.Warn().
			Str("identifier", string(rec.ID)).
			Int("dropped_fields", extra).
			Msg("Record carries fields outside the output header")
	}

	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("failed to write record %s: %w", rec.ID, err)
	}

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush record %s: %w", rec.ID, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync output file: %w", err)
	}
	return nil
}

// Keys reads only the identifier column of the whole file. Duplicate rows
// from a crash-interrupted run collapse into one key.
func (s *Store) Keys() (models.IdentifierSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := models.IdentifierSet{}

	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return keys, nil
		}
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read output file: %w", err)
		}
		if first {
			first = false
			continue // header
		}
		if len(row) > 0 && row[0] != "" {
			keys.Add(models.Identifier(row[0]))
		}
	}

	return keys, nil
}

// Close flushes and closes the output file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// headerFor builds the column order from the first record: identifier
// first, then field names sorted for a stable layout.
func headerFor(rec models.Record) []string {
	cols := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return append([]string{identifierColumn}, cols...)
}

// readHeader returns the header row of an existing non-empty file, or nil.
func readHeader(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output header: %w", err)
	}
	return header, nil
}
