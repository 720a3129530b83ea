package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/boardsync/pkg/domain/events"
)

// JournalFile is the default journal file name inside the boardsync home.
const JournalFile = "events.jsonl"

// JournalEntry is one received push event as written to disk.
type JournalEntry struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Dropped    string          `json:"dropped,omitempty"`
}

// FileJournal records received push events as JSON Lines so a listen session
// can be inspected afterwards. Entries are read back for display only and are
// never merged into the board again.
type FileJournal struct {
	mu       sync.Mutex
	path     string
	basePath string
}

// NewFileJournal creates a journal under basePath. The directory is created on
// first write.
func NewFileJournal(basePath string) *FileJournal {
	return &FileJournal{path: filepath.Join(basePath, JournalFile), basePath: basePath}
}

func (j *FileJournal) Path() string { return j.path }

// Append writes env to the journal. dropReason is recorded for events the
// merger rejected.
func (j *FileJournal) Append(env events.Envelope, dropReason string) (err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := JournalEntry{
		ID:         uuid.New().String(),
		Event:      env.Event,
		Data:       env.Data,
		ReceivedAt: env.ReceivedAt,
		Dropped:    dropReason,
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now()
	}

	if err := os.MkdirAll(j.basePath, 0750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close journal: %w", cerr)
		}
	}()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

// LoadAll returns every entry in arrival order.
func (j *FileJournal) LoadAll() ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	var result []JournalEntry
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e JournalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		result = append(result, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return result, nil
}

// LoadByEvent returns the entries named event.
func (j *FileJournal) LoadByEvent(event string) ([]JournalEntry, error) {
	all, err := j.LoadAll()
	if err != nil {
		return nil, err
	}
	var out []JournalEntry
	for _, e := range all {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out, nil
}

// LoadSince returns entries received after since.
func (j *FileJournal) LoadSince(since time.Time) ([]JournalEntry, error) {
	all, err := j.LoadAll()
	if err != nil {
		return nil, err
	}
	var out []JournalEntry
	for _, e := range all {
		if e.ReceivedAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}
