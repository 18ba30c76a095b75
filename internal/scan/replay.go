package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ReplayScan is one recorded scan cycle in a replay file.
type ReplayScan struct {
	Failed   bool      `yaml:"failed,omitempty"`
	Networks []Network `yaml:"networks"`
}

// ReplayFile is the on-disk format of the replay backend.
type ReplayFile struct {
	Scans []ReplayScan `yaml:"scans"`
}

// ErrReplayFailed is returned for scans marked as failed in a replay file.
var ErrReplayFailed = errors.New("replayed scan failure")

// Replay serves scans from a YAML file in order and wraps around at the end.
// It lets the collector run on machines without a wireless card.
type Replay struct {
	mutex sync.Mutex
	scans []ReplayScan
	next  int
}

// NewReplay creates a replay scanner over scans.
func NewReplay(scans []ReplayScan) *Replay {
	return &Replay{scans: scans}
}

// LoadReplay reads a replay file.
func LoadReplay(path string) (*Replay, error) {
	if path == "" {
		return nil, errors.New("replay backend requires scan.replay_file")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}

	var file ReplayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse replay file: %w", err)
	}
	if len(file.Scans) == 0 {
		return nil, fmt.Errorf("replay file %s contains no scans", path)
	}

	return NewReplay(file.Scans), nil
}

// Scan returns the next recorded scan.
func (r *Replay) Scan(ctx context.Context) ([]Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(r.scans) == 0 {
		return nil, errors.New("replay has no scans")
	}

	s := r.scans[r.next]
	r.next = (r.next + 1) % len(r.scans)

	if s.Failed {
		return nil, ErrReplayFailed
	}

	out := make([]Network, len(s.Networks))
	copy(out, s.Networks)
	return out, nil
}
