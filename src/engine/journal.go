package engine

// This file contains the mutation journal of the instance store.
// Every create, update, remove and link is appended to a daily journal
// file so a session can be audited after the fact.

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// JournalEntry represents a single entry in the journal.
type JournalEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Element   string    `json:"element"`
	Details   string    `json:"details"`
}

// Journal represents the journal of one data set. Entries go straight to
// the daily file; nothing is kept in memory.
type Journal struct {
	file          *os.File  // File handle for the journal file
	baseFilePath  string    // Base path for journal files (without date)
	currentDate   time.Time // The date of the current journal file
	retentionDays int
	now           func() time.Time
}

var datePattern = regexp.MustCompile(`_(\d{4}-\d{2}-\d{2})$`)

// NewJournal creates a new journal writing next to journalFilePath.
// Files older than retentionDays are removed by CleanupOldJournals; zero
// keeps them forever.
func NewJournal(journalFilePath string, retentionDays int) (*Journal, error) {
	journal := &Journal{
		baseFilePath:  getBaseFilePath(journalFilePath),
		retentionDays: retentionDays,
		now:           time.Now,
	}

	if err := journal.ensureCorrectFileOpen(); err != nil {
		return nil, err
	}

	return journal, nil
}

// getBaseFilePath extracts the base path without date component
func getBaseFilePath(journalFilePath string) string {
	dir := filepath.Dir(journalFilePath)
	base := filepath.Base(journalFilePath)
	ext := filepath.Ext(journalFilePath)

	baseName := strings.TrimSuffix(base, ext)
	baseName = datePattern.ReplaceAllString(baseName, "")

	return filepath.Join(dir, baseName)
}

func (j *Journal) fileName(day time.Time) string {
	return fmt.Sprintf("%s_%s.journal", j.baseFilePath, day.Format("2006-01-02"))
}

// ensureCorrectFileOpen ensures the correct journal file is open based on current date
func (j *Journal) ensureCorrectFileOpen() error {
	today := j.now().Truncate(24 * time.Hour)

	if j.file != nil && j.currentDate.Equal(today) {
		return nil
	}

	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return fmt.Errorf("failed to close previous journal file: %w", err)
		}
		j.file = nil
	}

	fileName := j.fileName(today)
	if err := os.MkdirAll(filepath.Dir(fileName), 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	file, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file %s: %w", fileName, err)
	}

	j.file = file
	j.currentDate = today

	return nil
}

// AddEntry adds a new entry to the journal.
func (j *Journal) AddEntry(command, element, details string) error {
	if err := j.ensureCorrectFileOpen(); err != nil {
		return err
	}

	entry := JournalEntry{
		Timestamp: j.now(),
		Command:   command,
		Element:   element,
		Details:   details,
	}

	line := fmt.Sprintf("%s | %s | %s | %s\n", entry.Timestamp.Format(time.RFC3339), entry.Command, entry.Element, entry.Details)
	if _, err := j.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write to journal file: %w", err)
	}

	return nil
}

// CurrentFile returns the path of the journal file being written.
func (j *Journal) CurrentFile() string {
	return j.fileName(j.currentDate)
}

// Close closes the journal file.
func (j *Journal) Close() error {
	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return fmt.Errorf("failed to close journal file: %w", err)
		}
		j.file = nil
	}
	return nil
}

// CleanupOldJournals removes journal files older than the retention period
// and returns how many were deleted.
func (j *Journal) CleanupOldJournals() (int, error) {
	if j.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := j.now().Truncate(24*time.Hour).AddDate(0, 0, -j.retentionDays)

	matches, err := filepath.Glob(j.baseFilePath + "_*.journal")
	if err != nil {
		return 0, fmt.Errorf("failed to list journal files: %w", err)
	}

	removed := 0
	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), ".journal")
		m := datePattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		day, err := time.Parse("2006-01-02", m[1])
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove journal file %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}
