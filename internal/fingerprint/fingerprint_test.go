package fingerprint

import (
	"strings"
	"testing"
)

func TestIdentifier(t *testing.T) {
	if got := Identifier("net1", "AA:BB"); got != "net1 AA:BB" {
		t.Errorf("Identifier = %q, want %q", got, "net1 AA:BB")
	}
	// Hidden networks have an empty name but keep the separator.
	if got := Identifier("", "AA:BB"); got != " AA:BB" {
		t.Errorf("Identifier = %q, want %q", got, " AA:BB")
	}
}

func TestEncodeEmpty(t *testing.T) {
	data, err := EncodeDataset(nil)
	if err != nil {
		t.Fatalf("EncodeDataset: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("empty dataset encoded as %s, want []", data)
	}

	data, err = EncodeSample(nil)
	if err != nil {
		t.Fatalf("EncodeSample: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("empty sample encoded as %s, want []", data)
	}
}

func TestEncodeDatasetWireFormat(t *testing.T) {
	d := Dataset{
		{Label: "kitchen", Readings: Sample{{Identifier: "net1 AA:BB", SignalStrength: -50}}},
		{Label: "kitchen", Readings: nil},
	}

	data, err := EncodeDataset(d)
	if err != nil {
		t.Fatalf("EncodeDataset: %v", err)
	}

	want := `[{"label":"kitchen","ap_list":[{"ssid_bssid":"net1 AA:BB","signal_strength":-50}]},{"label":"kitchen","ap_list":[]}]`
	if string(data) != want {
		t.Errorf("encoded dataset:\n got %s\nwant %s", data, want)
	}
	if d[1].Readings != nil {
		t.Error("EncodeDataset must not modify its argument")
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	d := Dataset{
		{Label: "hall", Readings: Sample{{"a 01", -40}, {"b 02", -70}, {"a 01", -41}}},
		{Label: "", Readings: Sample{}},
		{Label: "desk", Readings: Sample{{"c 03", -90}}},
	}

	data, err := EncodeDataset(d)
	if err != nil {
		t.Fatalf("EncodeDataset: %v", err)
	}
	got, err := DecodeDataset(data)
	if err != nil {
		t.Fatalf("DecodeDataset: %v", err)
	}

	if len(got) != len(d) {
		t.Fatalf("decoded %d entries, want %d", len(got), len(d))
	}
	for i := range d {
		if got[i].Label != d[i].Label {
			t.Errorf("entry %d label = %q, want %q", i, got[i].Label, d[i].Label)
		}
		if !got[i].Readings.Equal(d[i].Readings) {
			t.Errorf("entry %d readings = %v, want %v", i, got[i].Readings, d[i].Readings)
		}
	}
}

func TestDecodeSampleRejectsGarbage(t *testing.T) {
	_, err := DecodeSample([]byte("{not json"))
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if !strings.Contains(err.Error(), "failed to decode sample") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSampleClone(t *testing.T) {
	s := Sample{{"a 01", -40}}
	c := s.Clone()
	c[0].SignalStrength = -99
	if s[0].SignalStrength != -40 {
		t.Error("Clone shares backing array with original")
	}
}
