// Package snapshot persists the patches a rank holds at the end of a run.
//
// Each rank writes its own file, state.NNNN.cbor, through an afero
// filesystem so tests can run against memory. Writes go to a temporary file
// in the target directory and are renamed into place, so a reader never
// sees a partial snapshot.
package snapshot

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/afero"

	"github.com/jzrake/gridflow/internal/coder"
	"github.com/jzrake/gridflow/internal/errors"
	"github.com/jzrake/gridflow/internal/event"
	"github.com/jzrake/gridflow/internal/indexspace"
	"github.com/jzrake/gridflow/internal/logging"
	"github.com/jzrake/gridflow/internal/mesh"
	"github.com/jzrake/gridflow/internal/patch"
)

const (
	filePrefix = "state."
	fileSuffix = ".cbor"
)

// FileName returns the snapshot file name for rank.
func FileName(rank int) string {
	return fmt.Sprintf("%s%04d%s", filePrefix, rank, fileSuffix)
}

// State is one rank's share of the solution.
type State struct {
	Time      float64       `cbor:"0,keyasint"`
	Iteration uint64        `cbor:"1,keyasint"`
	Rank      int           `cbor:"2,keyasint"`
	Mesh      mesh.Mesh     `cbor:"3,keyasint"`
	Patches   []patch.Patch `cbor:"4,keyasint"`
}

// Validate checks every patch and rejects duplicate keys.
func (s State) Validate() error {
	seen := make(map[indexspace.Rect]bool, len(s.Patches))
	for _, p := range s.Patches {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Rect] {
			return fmt.Errorf("snapshot: patch %v appears twice: %w", p.Rect, errors.ErrInvalidInput)
		}
		seen[p.Rect] = true
	}
	return nil
}

// Store reads and writes snapshots in one directory.
type Store struct {
	fs     afero.Fs
	dir    string
	enc    cbor.EncMode
	dec    cbor.DecMode
	bus    *event.Bus
	logger *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithBus publishes a SnapshotWrittenEvent after every write.
func WithBus(b *event.Bus) Option {
	return func(s *Store) { s.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns a Store rooted at dir on fs.
func NewStore(fs afero.Fs, dir string, opts ...Option) (*Store, error) {
	enc, dec, err := coder.Modes()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		dir = "."
	}
	s := &Store{fs: fs, dir: dir, enc: enc, dec: dec, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewOsStore returns a Store on the real filesystem.
func NewOsStore(dir string, opts ...Option) (*Store, error) {
	return NewStore(afero.NewOsFs(), dir, opts...)
}

// Dir returns the directory snapshots are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file a rank's snapshot lives in.
func (s *Store) Path(rank int) string {
	return filepath.Join(s.dir, FileName(rank))
}

// Write stores st atomically and returns the file path.
func (s *Store) Write(st State) (string, error) {
	if err := st.Validate(); err != nil {
		return "", err
	}
	data, err := s.enc.Marshal(st)
	if err != nil {
		return "", errors.NewCodecError("encode snapshot", errors.Join(errors.ErrEncode, err)).WithRank(st.Rank)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: create %s: %w", s.dir, err)
	}

	path := s.Path(st.Rank)
	if err := s.atomicWrite(path, data); err != nil {
		return "", err
	}

	s.logger.WithRank(st.Rank).Info("snapshot written",
		"path", path,
		"iteration", st.Iteration,
		"time", st.Time,
		"patches", len(st.Patches),
		"bytes", len(data))
	if s.bus != nil {
		s.bus.Publish(event.NewSnapshotWrittenEvent(st.Rank, path, st.Iteration, st.Time, len(data)))
	}
	return path, nil
}

func (s *Store) atomicWrite(path string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, s.dir, ".tmp-state-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = s.fs.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("snapshot: rename temp file: %w", err)
	}
	success = true
	return nil
}

// Load reads the snapshot rank wrote.
func (s *Store) Load(rank int) (State, error) {
	path := s.Path(rank)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return State{}, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	var st State
	if err := s.dec.Unmarshal(data, &st); err != nil {
		return State{}, errors.NewCodecError("decode snapshot "+path, errors.Join(errors.ErrDecode, err)).WithRank(rank)
	}
	if err := st.Validate(); err != nil {
		return State{}, err
	}
	return st, nil
}

// Ranks lists the ranks that have a snapshot in the directory, ascending.
func (s *Store) Ranks() ([]int, error) {
	matches, err := afero.Glob(s.fs, filepath.Join(s.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("snapshot: list %s: %w", s.dir, err)
	}
	var ranks []int
	for _, m := range matches {
		digits := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), filePrefix), fileSuffix)
		if r, err := strconv.Atoi(digits); err == nil {
			ranks = append(ranks, r)
		}
	}
	slices.Sort(ranks)
	return ranks, nil
}

// Merge loads every rank's snapshot and assembles the field over the mesh.
// All snapshots must agree on time, iteration and mesh, and together cover
// every cell exactly once.
func (s *Store) Merge() (State, patch.Patch, error) {
	ranks, err := s.Ranks()
	if err != nil {
		return State{}, patch.Patch{}, err
	}
	if len(ranks) == 0 {
		return State{}, patch.Patch{}, fmt.Errorf("snapshot: no snapshots in %s: %w", s.dir, errors.ErrInvalidInput)
	}

	var merged State
	var whole patch.Patch
	covered := 0
	for n, r := range ranks {
		st, err := s.Load(r)
		if err != nil {
			return State{}, patch.Patch{}, err
		}
		if n == 0 {
			merged = State{Time: st.Time, Iteration: st.Iteration, Rank: -1, Mesh: st.Mesh}
			whole = patch.New(st.Mesh.Index())
		} else if st.Time != merged.Time || st.Iteration != merged.Iteration || st.Mesh != merged.Mesh {
			return State{}, patch.Patch{}, fmt.Errorf("snapshot: rank %d is at iteration %d, rank %d at %d: %w",
				r, st.Iteration, ranks[0], merged.Iteration, errors.ErrInvalidInput)
		}
		for _, p := range st.Patches {
			covered += whole.CopyFrom(p)
			merged.Patches = append(merged.Patches, p)
		}
	}
	if covered != whole.Rect.Area() {
		return State{}, patch.Patch{}, fmt.Errorf("snapshot: patches cover %d of %d cells: %w",
			covered, whole.Rect.Area(), errors.ErrInvalidInput)
	}
	return merged, whole, nil
}
