// Package accesslog implements the append-only local authentication log
// and the frequency analysis that ranks UIDs by recent use.
package accesslog

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nexxgate/edge-coordinator/pkg/types"
)

// Store is the Access-Log Store: a single file, appended under a mutex,
// truncated only by the uploader after an acknowledged upload.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore opens (creating if absent) the log file at path.
func NewStore(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open access log %s: %w", path, err)
	}
	_ = f.Close()

	return &Store{path: path}, nil
}

// Append writes one CSV line: "YYYY-MM-DD HH:MM:SS,<uid>,<node_id>,<True|False>,<api_key>".
func (s *Store) Append(uid, nodeID string, ts time.Time, result bool, apiKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open access log %s: %w", s.path, err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s,%s,%s,%s,%s\n",
		ts.Format(types.LogTimestamp), uid, nodeID, types.BoolString(result), apiKey)

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append access log %s: %w", s.path, err)
	}
	return nil
}

// Contents returns the current raw log file bytes, for upload.
func (s *Store) Contents() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read access log %s: %w", s.path, err)
	}
	return data, nil
}

// Truncate empties the log file. Called only after the origin
// acknowledges an upload with 201.
func (s *Store) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Truncate(s.path, 0); err != nil {
		return fmt.Errorf("truncate access log %s: %w", s.path, err)
	}
	return nil
}

// Record is one parsed line of the access log.
type Record struct {
	Timestamp time.Time
	UID       string
	NodeID    string
	Result    bool
	APIKey    string
}

// Lines reads every well-formed line of the log file. Malformed lines
// are skipped, not fatal to the scan.
func (s *Store) Lines() ([]Record, error) {
	s.mu.Lock()
	f, err := os.Open(s.path)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open access log %s: %w", s.path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rec, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan access log %s: %w", s.path, err)
	}

	return records, nil
}

func parseLine(line string) (Record, bool) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return Record{}, false
	}

	ts, err := time.Parse(types.LogTimestamp, fields[0])
	if err != nil {
		return Record{}, false
	}

	var result bool
	switch fields[3] {
	case "True":
		result = true
	case "False":
		result = false
	default:
		return Record{}, false
	}

	return Record{
		Timestamp: ts,
		UID:       fields[1],
		NodeID:    fields[2],
		Result:    result,
		APIKey:    fields[4],
	}, true
}
