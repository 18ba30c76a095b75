package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iottest/wifiposition/internal/config"
)

func TestParseNmcliOutput(t *testing.T) {
	output := "HomeNet:AA\\:BB\\:CC\\:DD\\:EE\\:01:80\n" +
		":AA\\:BB\\:CC\\:DD\\:EE\\:02:40\n" +
		"Cafe\\: Guest:AA\\:BB\\:CC\\:DD\\:EE\\:03:100\n" +
		"garbage line\n" +
		"Bad:AA\\:BB:notanumber\n\n"

	networks := parseNmcliOutput(output)
	if len(networks) != 3 {
		t.Fatalf("parsed %d networks, want 3: %+v", len(networks), networks)
	}

	want := []Network{
		{SSID: "HomeNet", BSSID: "AA:BB:CC:DD:EE:01", Level: -60},
		{SSID: "", BSSID: "AA:BB:CC:DD:EE:02", Level: -80},
		{SSID: "Cafe: Guest", BSSID: "AA:BB:CC:DD:EE:03", Level: -50},
	}
	for i := range want {
		if networks[i] != want[i] {
			t.Errorf("network %d = %+v, want %+v", i, networks[i], want[i])
		}
	}
}

func TestParseNmcliEmpty(t *testing.T) {
	networks := parseNmcliOutput("")
	if networks == nil || len(networks) != 0 {
		t.Errorf("empty output should parse to an empty, non-nil list, got %#v", networks)
	}
}

func TestQualityToDBm(t *testing.T) {
	cases := map[int]int{0: -100, 50: -75, 100: -50, 150: -50, -5: -100}
	for in, want := range cases {
		if got := qualityToDBm(in); got != want {
			t.Errorf("qualityToDBm(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestParseIwOutput(t *testing.T) {
	output := `BSS aa:bb:cc:dd:ee:01(on wlan0) -- associated
	TSF: 123 usec
	freq: 2412
	BSS Load:
		 * station count: 3
	signal: -45.00 dBm
	SSID: HomeNet
BSS aa:bb:cc:dd:ee:02(on wlan0)
	signal: -71.50 dBm
	SSID:
BSS aa:bb:cc:dd:ee:03(on wlan0)
	SSID: NoSignal
`
	networks := parseIwOutput(output)
	if len(networks) != 3 {
		t.Fatalf("parsed %d networks, want 3", len(networks))
	}
	if networks[0] != (Network{SSID: "HomeNet", BSSID: "aa:bb:cc:dd:ee:01", Level: -45}) {
		t.Errorf("network 0 = %+v", networks[0])
	}
	if networks[1].SSID != "" || networks[1].Level != -72 {
		t.Errorf("network 1 = %+v, want hidden ssid at -72", networks[1])
	}
	if networks[2].Level != 0 {
		t.Errorf("network 2 level = %d, want 0 when missing", networks[2].Level)
	}
}

func TestReplayCyclesAndFails(t *testing.T) {
	r := NewReplay([]ReplayScan{
		{Networks: []Network{{SSID: "a", BSSID: "01", Level: -40}}},
		{Failed: true},
	})

	ctx := context.Background()
	first, err := r.Scan(ctx)
	if err != nil || len(first) != 1 || first[0].SSID != "a" {
		t.Fatalf("first scan = %+v, %v", first, err)
	}
	if _, err := r.Scan(ctx); !errors.Is(err, ErrReplayFailed) {
		t.Errorf("second scan error = %v, want ErrReplayFailed", err)
	}
	again, err := r.Scan(ctx)
	if err != nil || len(again) != 1 {
		t.Errorf("replay should wrap around, got %+v, %v", again, err)
	}
}

func TestLoadReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scans.yaml")
	content := `
scans:
  - networks:
      - ssid: net1
        bssid: AA:BB
        level: -50
      - ssid: net2
        bssid: CC:DD
        level: -70
  - failed: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadReplay(path)
	if err != nil {
		t.Fatalf("LoadReplay: %v", err)
	}
	networks, err := r.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(networks) != 2 || networks[1].BSSID != "CC:DD" || networks[1].Level != -70 {
		t.Errorf("networks = %+v", networks)
	}

	if _, err := LoadReplay(""); err == nil {
		t.Error("expected error for empty path")
	}

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("scans: []\n"), 0644)
	if _, err := LoadReplay(empty); err == nil || !strings.Contains(err.Error(), "no scans") {
		t.Errorf("expected 'no scans' error, got %v", err)
	}
}

func TestNewScannerSelectsBackend(t *testing.T) {
	s, err := NewScanner(&config.ScanConfig{Backend: "nmcli", Interface: "wlp2s0"})
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	if n, ok := s.(*Nmcli); !ok || n.iface != "wlp2s0" {
		t.Errorf("scanner = %#v, want nmcli on wlp2s0", s)
	}

	s, err = NewScanner(&config.ScanConfig{Backend: "IW"})
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	if w, ok := s.(*Iw); !ok || w.iface != "wlan0" {
		t.Errorf("scanner = %#v, want iw on wlan0", s)
	}

	if _, err := NewScanner(&config.ScanConfig{Backend: "replay"}); err == nil {
		t.Error("replay without file should fail")
	}
	if _, err := NewScanner(&config.ScanConfig{Backend: "airport"}); err == nil {
		t.Error("unknown backend should fail")
	}
}

type fakeScanner struct {
	mutex sync.Mutex
	calls int
	fail  bool
}

func (f *fakeScanner) Scan(ctx context.Context) ([]Network, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("radio busy")
	}
	return []Network{{SSID: "net", BSSID: "01", Level: -f.calls}}, nil
}

func TestSourceDeliversResults(t *testing.T) {
	scanner := &fakeScanner{}

	var mutex sync.Mutex
	var delivered int
	var failures int
	src := NewSource(scanner, 5*time.Millisecond, func(networks []Network, err error) {
		mutex.Lock()
		defer mutex.Unlock()
		if err != nil {
			failures++
			return
		}
		delivered++
	})

	// Stopping before Start is tolerated.
	src.Stop()

	src.Start()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mutex.Lock()
		n := delivered
		mutex.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	src.Stop()

	mutex.Lock()
	defer mutex.Unlock()
	if delivered < 3 {
		t.Errorf("delivered %d scans, want at least 3", delivered)
	}
	if failures != 0 {
		t.Errorf("failures = %d, want 0", failures)
	}
	if src.Running() {
		t.Error("source should be stopped")
	}
}
