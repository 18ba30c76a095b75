package scan

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Iw scans with the nl80211 iw tool. It reports real dBm values but usually
// needs root or CAP_NET_ADMIN to trigger a scan.
type Iw struct {
	iface string
}

// NewIw creates an iw scanner bound to iface (wlan0 when empty).
func NewIw(iface string) *Iw {
	if iface == "" {
		iface = "wlan0"
	}
	return &Iw{iface: iface}
}

// Scan runs "iw dev <iface> scan" and parses the station blocks.
func (w *Iw) Scan(ctx context.Context) ([]Network, error) {
	output, err := exec.CommandContext(ctx, "iw", "dev", w.iface, "scan").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to scan on %s via iw: %w", w.iface, err)
	}
	return parseIwOutput(string(output)), nil
}

func parseIwOutput(output string) []Network {
	networks := []Network{}
	var current *Network

	flush := func() {
		if current != nil {
			networks = append(networks, *current)
			current = nil
		}
	}

	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)

		// Station headers are the only unindented "BSS " lines; "BSS Load:" is nested.
		if strings.HasPrefix(raw, "BSS ") {
			flush()
			bssid := strings.TrimPrefix(line, "BSS ")
			if i := strings.IndexAny(bssid, "( "); i >= 0 {
				bssid = bssid[:i]
			}
			current = &Network{BSSID: bssid}
			continue
		}
		if current == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "signal:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "signal:"))
			value = strings.TrimSpace(strings.TrimSuffix(value, "dBm"))
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				current.Level = int(math.Round(f))
			}
		case strings.HasPrefix(line, "SSID:"):
			current.SSID = strings.TrimSpace(strings.TrimPrefix(line, "SSID:"))
		}
	}
	flush()

	return networks
}
