package recording

import (
	"log/slog"
	"sync"

	"github.com/iottest/wifiposition/internal/fingerprint"
)

// Store holds the recording session state: whether recording is active, the
// current label, the latest raw sample and the accumulated dataset.
//
// All operations are total and safe for concurrent use. Reads return copies so
// callers never observe a partially appended entry.
type Store struct {
	mutex        sync.RWMutex
	isRecording  bool
	currentLabel string
	latestSample fingerprint.Sample
	dataset      fingerprint.Dataset
}

// NewStore creates an empty store in the idle state.
func NewStore() *Store {
	return &Store{}
}

// StartRecording enables recording. Calling it while recording has no effect.
func (s *Store) StartRecording() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.isRecording = true
}

// StopRecording disables recording. Calling it while idle has no effect.
func (s *Store) StopRecording() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.isRecording = false
}

// ToggleRecording inverts the recording flag and returns the new value.
func (s *Store) ToggleRecording() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.isRecording = !s.isRecording
	return s.isRecording
}

// IsRecording reports whether new samples are being appended to the dataset.
func (s *Store) IsRecording() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.isRecording
}

// SetLabel replaces the label applied to samples recorded from now on.
// Entries already in the dataset keep their label.
func (s *Store) SetLabel(label string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.currentLabel = label
}

// Label returns the current label.
func (s *Store) Label() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.currentLabel
}

// RecordSample always replaces the latest sample and, while recording, appends
// it to the dataset under the current label.
func (s *Store) RecordSample(sample fingerprint.Sample) {
	owned := sample.Clone()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.latestSample = owned
	if s.isRecording {
		s.dataset = append(s.dataset, fingerprint.LabeledSample{
			Label:    s.currentLabel,
			Readings: owned,
		})
		slog.Debug("Sample recorded", "label", s.currentLabel, "readings", len(owned), "entries", len(s.dataset))
	}
}

// LatestSample returns a copy of the most recent sample, or nil if no scan
// has been observed yet.
func (s *Store) LatestSample() fingerprint.Sample {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.latestSample == nil {
		return nil
	}
	return s.latestSample.Clone()
}

// Dataset returns a snapshot of the dataset in insertion order.
func (s *Store) Dataset() fingerprint.Dataset {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.snapshot()
}

// DatasetLen returns the number of labeled samples recorded so far.
func (s *Store) DatasetLen() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.dataset)
}

// SerializeDataset encodes a consistent snapshot of the whole dataset.
func (s *Store) SerializeDataset() []byte {
	data, err := fingerprint.EncodeDataset(s.Dataset())
	if err != nil {
		// Plain strings and ints always marshal.
		slog.Error("Dataset encoding failed", "error", err)
		return []byte("[]")
	}
	return data
}

// SerializeLatestSample encodes the latest sample, or an empty array if no
// scan has been observed yet.
func (s *Store) SerializeLatestSample() []byte {
	data, err := fingerprint.EncodeSample(s.LatestSample())
	if err != nil {
		slog.Error("Sample encoding failed", "error", err)
		return []byte("[]")
	}
	return data
}

// Clear empties the dataset. Recording state, label and latest sample are kept.
func (s *Store) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.dataset = nil
}

// snapshot copies the dataset. Callers must hold the lock. Readings are shared
// because entries are never mutated after they are appended.
func (s *Store) snapshot() fingerprint.Dataset {
	out := make(fingerprint.Dataset, len(s.dataset))
	copy(out, s.dataset)
	return out
}
