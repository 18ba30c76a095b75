package scan

import (
	"context"
	"fmt"
	"strings"

	"github.com/iottest/wifiposition/internal/config"
)

// Network is one access point reported by a scan backend.
type Network struct {
	SSID  string `json:"ssid" yaml:"ssid"`
	BSSID string `json:"bssid" yaml:"bssid"`
	// Level is the signal power in dBm, typically negative.
	Level int `json:"level" yaml:"level"`
}

// Scanner defines the interface that all scan backends must implement.
// A returned error means the scan did not complete; an empty slice with a nil
// error is a completed scan that saw no stations.
type Scanner interface {
	Scan(ctx context.Context) ([]Network, error)
}

// BackendType represents the type of scan backend
type BackendType string

const (
	BackendTypeNmcli  BackendType = "nmcli"
	BackendTypeIw     BackendType = "iw"
	BackendTypeReplay BackendType = "replay"
)

// NewScanner creates a scanner using the backend selected in configuration
func NewScanner(cfg *config.ScanConfig) (Scanner, error) {
	switch determineBackend(cfg) {
	case BackendTypeIw:
		return NewIw(cfg.Interface), nil
	case BackendTypeReplay:
		return LoadReplay(cfg.ReplayFile)
	case BackendTypeNmcli:
		return NewNmcli(cfg.Interface), nil
	default:
		return nil, fmt.Errorf("unsupported scan backend: %s", cfg.Backend)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.ScanConfig) BackendType {
	switch strings.ToLower(cfg.Backend) {
	case "", "nmcli", "auto":
		return BackendTypeNmcli
	case "iw":
		return BackendTypeIw
	case "replay":
		return BackendTypeReplay
	}
	return BackendType(cfg.Backend)
}

// GetAvailableBackends returns the backend names accepted in configuration
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypeNmcli, BackendTypeIw, BackendTypeReplay}
}
