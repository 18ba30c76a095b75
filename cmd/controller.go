package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iottest/wifiposition/internal/config"
	"github.com/iottest/wifiposition/internal/metrics"
	"github.com/iottest/wifiposition/internal/publish"
	"github.com/iottest/wifiposition/internal/scan"
	"github.com/iottest/wifiposition/internal/service"
	"github.com/iottest/wifiposition/internal/syncclient"
)

// newController wires the scan backend, the sync client and the optional MQTT
// mirror into a controller. The returned function stops the loops and
// disconnects from the broker.
func newController(cfg *config.Config) (*service.Controller, func(), error) {
	scanner, err := scan.NewScanner(&cfg.Scan)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	client, err := syncclient.New(cfg.Server.BaseURL, cfg.Server.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create sync client: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	var sink service.PredictionSink
	stopPublisher := func() {}
	if cfg.MQTT.Enabled() {
		pub, err := publish.Connect(cfg.MQTT)
		if err != nil {
			// The mirror is optional; collection still works without it.
			slog.Warn("MQTT disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				pub.Start(ctx)
				close(done)
			}()
			sink = pub
			stopPublisher = func() {
				cancel()
				<-done
				pub.Close()
			}
			slog.Info("Mirroring predictions to MQTT", "topic", pub.Topic())
		}
	}

	svc := service.New(cfg, scanner, client, sink)
	slog.Debug("Controller created",
		"backend", cfg.Scan.Backend,
		"server", client.BaseURL(),
		"scan_interval", cfg.Scan.Interval,
		"prediction_interval", cfg.Prediction.Interval)

	cleanup := func() {
		svc.Close()
		stopPublisher()
	}
	return svc, cleanup, nil
}
