package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Entry is one parsed log line.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Rank    *int           `json:"rank,omitempty"`
	Round   *uint64        `json:"round,omitempty"`
	Phase   string         `json:"phase,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Filter narrows a set of entries. Zero fields do not filter.
type Filter struct {
	// Level keeps entries at or above this level.
	Level string
	// Rank keeps entries stamped with this rank.
	Rank *int
	// FromRound and ToRound bound the round, inclusive. Entries without a
	// round are dropped when either bound is set.
	FromRound, ToRound *uint64
	// Phase keeps entries stamped with this phase.
	Phase string
	// Contains keeps entries whose message contains this substring.
	Contains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Collect reads gridflow.log and every gridflow.NNNN.log in dir and returns
// their entries sorted by time. Rotated backups are not read. Lines that are
// not JSON objects are skipped.
func Collect(dir string) ([]Entry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "gridflow*.log"))
	if err != nil {
		return nil, fmt.Errorf("list log files: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no gridflow log files in %s", dir)
	}
	var entries []Entry
	for _, path := range paths {
		more, err := readEntries(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, more...)
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return a.Time.Compare(b.Time)
	})
	return entries, nil
}

func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if entry, err := ParseEntry(line); err == nil {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return entries, nil
}

// ParseEntry parses one JSON log line.
func ParseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid log line: %w", err)
	}

	var entry Entry
	for key, value := range raw {
		switch key {
		case "time":
			if s, ok := value.(string); ok {
				entry.Time, _ = time.Parse(time.RFC3339Nano, s)
			}
		case "level":
			entry.Level, _ = value.(string)
		case "msg":
			entry.Message, _ = value.(string)
		case KeyPhase:
			entry.Phase, _ = value.(string)
		case KeyRank:
			if f, ok := value.(float64); ok {
				rank := int(f)
				entry.Rank = &rank
			}
		case KeyRound:
			if f, ok := value.(float64); ok {
				round := uint64(f)
				entry.Round = &round
			}
		default:
			if entry.Attrs == nil {
				entry.Attrs = make(map[string]any)
			}
			entry.Attrs[key] = value
		}
	}
	return entry, nil
}

// FilterEntries returns the entries matching every criterion in f.
func FilterEntries(entries []Entry, f Filter) []Entry {
	var out []Entry
	for _, e := range entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func (f Filter) matches(e Entry) bool {
	if f.Level != "" {
		want, ok1 := levelOrder[strings.ToUpper(f.Level)]
		got, ok2 := levelOrder[e.Level]
		if ok1 && ok2 && got < want {
			return false
		}
	}
	if f.Rank != nil && (e.Rank == nil || *e.Rank != *f.Rank) {
		return false
	}
	if f.FromRound != nil || f.ToRound != nil {
		if e.Round == nil {
			return false
		}
		if f.FromRound != nil && *e.Round < *f.FromRound {
			return false
		}
		if f.ToRound != nil && *e.Round > *f.ToRound {
			return false
		}
	}
	if f.Phase != "" && e.Phase != f.Phase {
		return false
	}
	return f.Contains == "" || strings.Contains(e.Message, f.Contains)
}

// Export writes entries to w as "json", "text" or "csv".
func Export(w io.Writer, entries []Entry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text":
		return exportText(w, entries)
	case "csv":
		return exportCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format %q (supported: json, text, csv)", format)
	}
}

func exportText(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] %-5s", e.Time.Format("15:04:05.000"), e.Level)
		if e.Rank != nil {
			fmt.Fprintf(&b, " r%d", *e.Rank)
		}
		if e.Round != nil {
			fmt.Fprintf(&b, " #%d", *e.Round)
		}
		if e.Phase != "" {
			fmt.Fprintf(&b, " %s", e.Phase)
		}
		fmt.Fprintf(&b, " - %s", e.Message)
		for _, key := range sortedKeys(e.Attrs) {
			fmt.Fprintf(&b, " %s=%v", key, e.Attrs[key])
		}
		b.WriteByte('\n')
		if _, err := io.WriteString(w, b.String()); err != nil {
			return fmt.Errorf("write text entry: %w", err)
		}
	}
	return nil
}

func exportCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "level", "rank", "round", "phase", "message", "attrs"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		var rank, round, attrs string
		if e.Rank != nil {
			rank = strconv.Itoa(*e.Rank)
		}
		if e.Round != nil {
			round = strconv.FormatUint(*e.Round, 10)
		}
		if len(e.Attrs) > 0 {
			if data, err := json.Marshal(e.Attrs); err == nil {
				attrs = string(data)
			}
		}
		record := []string{e.Time.Format(time.RFC3339Nano), e.Level, rank, round, e.Phase, e.Message, attrs}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
