package fingerprint

import (
	"encoding/json"
	"fmt"
)

// AccessPointReading is one observed station and its signal level from a single scan.
type AccessPointReading struct {
	Identifier     string `json:"ssid_bssid"`
	SignalStrength int    `json:"signal_strength"`
}

// Sample is the ordered set of readings produced by one scan cycle.
// Order is scan-result order and duplicates are kept.
type Sample []AccessPointReading

// LabeledSample is a Sample tagged with the location label active when it was recorded.
type LabeledSample struct {
	Label    string `json:"label"`
	Readings Sample `json:"ap_list"`
}

// Dataset is the chronological sequence of labeled samples.
type Dataset []LabeledSample

// Identifier builds the practical key for an access point: network name and
// hardware address joined by a single space.
func Identifier(ssid, bssid string) string {
	return ssid + " " + bssid
}

// Clone returns a copy of the sample that shares no backing array with s.
func (s Sample) Clone() Sample {
	out := make(Sample, len(s))
	copy(out, s)
	return out
}

// Equal reports whether both samples hold the same readings in the same order.
func (s Sample) Equal(other Sample) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// EncodeSample returns the wire encoding of a single unlabeled sample.
// A nil or empty sample encodes as an empty JSON array.
func EncodeSample(s Sample) ([]byte, error) {
	if s == nil {
		s = Sample{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sample: %w", err)
	}
	return data, nil
}

// EncodeDataset returns the wire encoding of a dataset. A nil or empty dataset
// encodes as an empty JSON array.
func EncodeDataset(d Dataset) ([]byte, error) {
	out := make(Dataset, len(d))
	for i, entry := range d {
		if entry.Readings == nil {
			entry.Readings = Sample{}
		}
		out[i] = entry
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dataset: %w", err)
	}
	return data, nil
}

// DecodeDataset parses the wire encoding produced by EncodeDataset.
func DecodeDataset(data []byte) (Dataset, error) {
	var d Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	if d == nil {
		d = Dataset{}
	}
	return d, nil
}

// DecodeSample parses the wire encoding produced by EncodeSample.
func DecodeSample(data []byte) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode sample: %w", err)
	}
	if s == nil {
		s = Sample{}
	}
	return s, nil
}
