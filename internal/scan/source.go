package scan

import (
	"context"
	"log/slog"
	"time"

	"github.com/iottest/wifiposition/internal/loop"
)

// Handler receives every scan outcome. err is non-nil when the scan failed.
type Handler func(networks []Network, err error)

// Source triggers a scan once per interval and delivers the outcome to its
// handler. Results that arrive after Stop are dropped.
type Source struct {
	scanner Scanner
	handler Handler
	loop    *loop.Loop
}

// NewSource creates a stopped scan source.
func NewSource(scanner Scanner, interval time.Duration, handler Handler) *Source {
	s := &Source{
		scanner: scanner,
		handler: handler,
	}
	s.loop = loop.New("scan", interval, s.scanOnce)
	return s
}

// Start begins periodic scanning. It is a no-op when already running.
func (s *Source) Start() {
	s.loop.Start()
}

// Stop ends periodic scanning. Stopping a source that was never started is
// logged and otherwise ignored.
func (s *Source) Stop() {
	s.loop.Stop()
}

// Running reports whether the source is currently scanning.
func (s *Source) Running() bool {
	return s.loop.Running()
}

func (s *Source) scanOnce(ctx context.Context) {
	networks, err := s.scanner.Scan(ctx)
	if ctx.Err() != nil {
		slog.Debug("Discarding scan result after stop")
		return
	}
	s.handler(networks, err)
}
