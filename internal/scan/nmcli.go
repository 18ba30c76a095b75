package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Nmcli scans through NetworkManager's command line client.
type Nmcli struct {
	iface string
}

// NewNmcli creates an nmcli scanner. An empty interface lets NetworkManager pick.
func NewNmcli(iface string) *Nmcli {
	return &Nmcli{iface: iface}
}

// Scan asks NetworkManager for a fresh scan and returns the visible stations.
func (n *Nmcli) Scan(ctx context.Context) ([]Network, error) {
	args := []string{"-t", "-f", "SSID,BSSID,SIGNAL", "device", "wifi", "list", "--rescan", "yes"}
	if n.iface != "" {
		args = append(args, "ifname", n.iface)
	}

	output, err := exec.CommandContext(ctx, "nmcli", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list wifi networks via nmcli: %w", err)
	}

	return parseNmcliOutput(string(output)), nil
}

// parseNmcliOutput parses terse nmcli output. Fields are separated by ':' and
// literal colons inside a field (every BSSID) are escaped as '\:'.
func parseNmcliOutput(output string) []Network {
	networks := []Network{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		fields := splitTerse(line)
		if len(fields) != 3 {
			slog.Debug("Skipping malformed nmcli line", "line", line)
			continue
		}

		quality, err := strconv.Atoi(fields[2])
		if err != nil {
			slog.Debug("Skipping nmcli line with bad signal", "line", line, "error", err)
			continue
		}

		networks = append(networks, Network{
			SSID:  fields[0],
			BSSID: fields[1],
			Level: qualityToDBm(quality),
		})
	}
	return networks
}

// splitTerse splits a terse nmcli line on unescaped colons.
func splitTerse(line string) []string {
	var fields []string
	var current strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(fields, current.String())
}

// qualityToDBm maps NetworkManager's 0-100 signal quality onto the
// -100..-50 dBm range it was derived from.
func qualityToDBm(quality int) int {
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	return quality/2 - 100
}
