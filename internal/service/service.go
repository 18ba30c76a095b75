package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iottest/wifiposition/internal/config"
	"github.com/iottest/wifiposition/internal/fingerprint"
	"github.com/iottest/wifiposition/internal/loop"
	"github.com/iottest/wifiposition/internal/metrics"
	"github.com/iottest/wifiposition/internal/recording"
	"github.com/iottest/wifiposition/internal/scan"
)

// Service is the recording controller used by the TUI, the CLI commands and
// the remote-control server.
type Service interface {
	// Recording operations
	StartRecording(label string) (bool, error)
	StopRecording()
	ToggleRecording(label string) (bool, error)
	SetLabel(label string)
	Clear()

	// Scan binding
	HandleScan(networks []scan.Network, err error)
	StartScanning() error
	StopScanning()

	// Sync operations
	Upload(ctx context.Context) (string, error)
	StartPrediction()
	StopPrediction()

	// Lifecycle
	Pause()
	Resume()
	Close()

	// Information operations
	Prediction() (string, time.Time)
	Status() Status
	LatestSample() fingerprint.Sample
	Dataset() fingerprint.Dataset
	DatasetLen() int
	GetConfig() *config.Config
	GetLastError() string
}

// SyncClient posts a payload to the prediction service.
type SyncClient interface {
	Post(ctx context.Context, path string, body []byte) ([]byte, error)
}

// PredictionSink receives every accepted live prediction.
type PredictionSink interface {
	PublishPrediction(location string, at time.Time)
}

// RecordingStatus represents the toggle state
type RecordingStatus string

const (
	StatusIdle      RecordingStatus = "IDLE"
	StatusRecording RecordingStatus = "RECORDING"
)

// Status is a point-in-time snapshot for UIs and the remote-control API.
type Status struct {
	State           RecordingStatus `json:"state"`
	Recording       bool            `json:"recording"`
	Label           string          `json:"label"`
	DatasetEntries  int             `json:"dataset_entries"`
	VisibleStations int             `json:"visible_stations"`
	Prediction      string          `json:"prediction"`
	PredictedAt     *time.Time      `json:"predicted_at,omitempty"`
	Scanning        bool            `json:"scanning"`
	Predicting      bool            `json:"predicting"`
	Paused          bool            `json:"paused"`
	ServerURL       string          `json:"server_url"`
	LastError       string          `json:"last_error,omitempty"`
}

// ErrLabelRequired is returned when recording would start with no label given
// and none set before.
var ErrLabelRequired = errors.New("label is required to start recording")

// ErrNoScanner is returned by StartScanning when the controller was built without a scan backend.
var ErrNoScanner = errors.New("no scan backend configured")

// Controller binds the recording store to the scan source, the bulk upload
// and the live prediction loop.
type Controller struct {
	cfg    *config.Config
	store  *recording.Store
	client SyncClient
	source *scan.Source
	sink   PredictionSink

	predictLoop *loop.Loop

	// Serializes compound toggle operations
	stateMutex sync.Mutex

	predictionMutex sync.RWMutex
	prediction      string
	predictedAt     time.Time

	pauseMutex       sync.Mutex
	paused           bool
	resumeScanning   bool
	resumePredicting bool

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a controller. scanner may be nil when samples are fed through
// HandleScan directly; sink may be nil.
func New(cfg *config.Config, scanner scan.Scanner, client SyncClient, sink PredictionSink) *Controller {
	c := &Controller{
		cfg:    cfg,
		store:  recording.NewStore(),
		client: client,
		sink:   sink,
	}
	if scanner != nil {
		c.source = scan.NewSource(scanner, cfg.Scan.Interval, c.HandleScan)
	}
	c.predictLoop = loop.New("prediction", cfg.Prediction.Interval, c.predictOnce)
	return c
}

// StartRecording moves Idle to Recording with label. An empty label reuses
// the previous one. It reports whether recording was started; while already
// recording it does nothing and returns false.
func (c *Controller) StartRecording(label string) (bool, error) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	return c.startRecordingLocked(label)
}

func (c *Controller) startRecordingLocked(label string) (bool, error) {
	if c.store.IsRecording() {
		slog.Debug("Already recording", "label", c.store.Label())
		return false, nil
	}
	if label == "" {
		label = c.store.Label()
	}
	if label == "" {
		return false, ErrLabelRequired
	}
	c.store.SetLabel(label)
	c.store.StartRecording()
	metrics.SetRecording(true)
	slog.Info("Recording started", "label", label)
	return true, nil
}

// StopRecording moves Recording to Idle. The label is kept for the next session.
func (c *Controller) StopRecording() {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	c.stopRecordingLocked()
}

func (c *Controller) stopRecordingLocked() {
	if !c.store.IsRecording() {
		return
	}
	c.store.StopRecording()
	metrics.SetRecording(false)
	slog.Info("Recording stopped", "label", c.store.Label(), "entries", c.store.DatasetLen())
}

// ToggleRecording starts recording with label when idle and stops it otherwise.
// It returns the new recording state.
func (c *Controller) ToggleRecording(label string) (bool, error) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if c.store.IsRecording() {
		c.stopRecordingLocked()
		return false, nil
	}
	return c.startRecordingLocked(label)
}

// SetLabel replaces the label used for future samples.
func (c *Controller) SetLabel(label string) {
	c.store.SetLabel(label)
	slog.Debug("Label set", "label", label)
}

// Clear drops the accumulated dataset.
func (c *Controller) Clear() {
	c.store.Clear()
	metrics.SetDatasetEntries(0)
	slog.Info("Dataset cleared")
}

// HandleScan is the scan callback. A failed scan is dropped without any
// state change.
func (c *Controller) HandleScan(networks []scan.Network, err error) {
	if err != nil {
		slog.Debug("Ignoring failed scan", "error", err)
		metrics.ObserveScan(metrics.ResultError, 0)
		return
	}

	sample := make(fingerprint.Sample, 0, len(networks))
	for _, n := range networks {
		sample = append(sample, fingerprint.AccessPointReading{
			Identifier:     fingerprint.Identifier(n.SSID, n.BSSID),
			SignalStrength: n.Level,
		})
	}

	c.store.RecordSample(sample)
	metrics.ObserveScan(metrics.ResultSuccess, len(sample))
	metrics.SetDatasetEntries(c.store.DatasetLen())
}

// StartScanning starts the periodic scan source.
func (c *Controller) StartScanning() error {
	if c.source == nil {
		return ErrNoScanner
	}
	c.source.Start()
	return nil
}

// StopScanning stops the periodic scan source. It is a no-op without one.
func (c *Controller) StopScanning() {
	if c.source == nil {
		slog.Debug("Scan source not attached")
		return
	}
	c.source.Stop()
}

// Upload sends the whole dataset to the feed endpoint once. Failures are
// logged and returned; nothing is retried and the dataset is kept.
func (c *Controller) Upload(ctx context.Context) (string, error) {
	body := c.store.SerializeDataset()
	entries := c.store.DatasetLen()

	start := time.Now()
	resp, err := c.client.Post(ctx, c.cfg.Server.FeedPath, body)
	if err != nil {
		metrics.ObserveUpload(metrics.ResultError, time.Since(start))
		slog.Warn("Dataset upload failed", "endpoint", c.cfg.Server.FeedPath, "entries", entries, "error", err)
		c.setLastError(fmt.Sprintf("Upload failed: %v", err))
		return "", err
	}

	metrics.ObserveUpload(metrics.ResultSuccess, time.Since(start))
	slog.Info("Dataset uploaded", "endpoint", c.cfg.Server.FeedPath, "entries", entries, "response", string(resp))
	c.clearLastError()
	return string(resp), nil
}

// StartPrediction starts the live prediction loop.
func (c *Controller) StartPrediction() {
	c.predictLoop.Start()
}

// StopPrediction stops the live prediction loop. A response still in flight
// is discarded.
func (c *Controller) StopPrediction() {
	c.predictLoop.Stop()
}

func (c *Controller) predictOnce(ctx context.Context) {
	body := c.store.SerializeLatestSample()

	start := time.Now()
	resp, err := c.client.Post(ctx, c.cfg.Server.PredictPath, body)
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		metrics.ObservePrediction(metrics.ResultDiscarded, elapsed)
		slog.Debug("Discarding prediction after stop")
		return
	}
	if err != nil {
		metrics.ObservePrediction(metrics.ResultError, elapsed)
		slog.Warn("Prediction request failed", "endpoint", c.cfg.Server.PredictPath, "error", err)
		return
	}

	location := string(resp)
	now := time.Now()

	c.predictionMutex.Lock()
	if ctx.Err() != nil {
		c.predictionMutex.Unlock()
		metrics.ObservePrediction(metrics.ResultDiscarded, elapsed)
		return
	}
	c.prediction = location
	c.predictedAt = now
	c.predictionMutex.Unlock()

	metrics.ObservePrediction(metrics.ResultSuccess, elapsed)
	slog.Debug("Prediction updated", "location", location)

	if c.sink != nil {
		c.sink.PublishPrediction(location, now)
	}
}

// Prediction returns the last accepted prediction and when it arrived. The
// time is zero before the first successful response.
func (c *Controller) Prediction() (string, time.Time) {
	c.predictionMutex.RLock()
	defer c.predictionMutex.RUnlock()
	return c.prediction, c.predictedAt
}

// Pause stops both loops and remembers which ones were running.
func (c *Controller) Pause() {
	c.pauseMutex.Lock()
	defer c.pauseMutex.Unlock()

	if c.paused {
		return
	}
	c.resumeScanning = c.source != nil && c.source.Running()
	c.resumePredicting = c.predictLoop.Running()
	c.paused = true

	c.StopScanning()
	c.StopPrediction()
	slog.Debug("Controller paused", "scanning", c.resumeScanning, "predicting", c.resumePredicting)
}

// Resume restarts the loops stopped by Pause.
func (c *Controller) Resume() {
	c.pauseMutex.Lock()
	defer c.pauseMutex.Unlock()

	if !c.paused {
		return
	}
	c.paused = false

	if c.resumeScanning {
		if err := c.StartScanning(); err != nil {
			slog.Warn("Failed to resume scanning", "error", err)
		}
	}
	if c.resumePredicting {
		c.StartPrediction()
	}
	slog.Debug("Controller resumed")
}

// Close stops both loops.
func (c *Controller) Close() {
	c.StopScanning()
	c.StopPrediction()
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	prediction, at := c.Prediction()

	c.pauseMutex.Lock()
	paused := c.paused
	c.pauseMutex.Unlock()

	s := Status{
		State:           StatusIdle,
		Recording:       c.store.IsRecording(),
		Label:           c.store.Label(),
		DatasetEntries:  c.store.DatasetLen(),
		VisibleStations: len(c.store.LatestSample()),
		Prediction:      prediction,
		Scanning:        c.source != nil && c.source.Running(),
		Predicting:      c.predictLoop.Running(),
		Paused:          paused,
		ServerURL:       c.cfg.Server.BaseURL,
		LastError:       c.GetLastError(),
	}
	if s.Recording {
		s.State = StatusRecording
	}
	if !at.IsZero() {
		s.PredictedAt = &at
	}
	return s
}

// LatestSample returns the most recent scan, nil before the first one.
func (c *Controller) LatestSample() fingerprint.Sample {
	return c.store.LatestSample()
}

// Dataset returns a copy of the recorded dataset.
func (c *Controller) Dataset() fingerprint.Dataset {
	return c.store.Dataset()
}

// DatasetLen returns the number of recorded samples.
func (c *Controller) DatasetLen() int {
	return c.store.DatasetLen()
}

func (c *Controller) GetConfig() *config.Config {
	return c.cfg
}

// GetLastError returns the last upload error, empty after a successful upload.
func (c *Controller) GetLastError() string {
	c.lastErrorMutex.RLock()
	defer c.lastErrorMutex.RUnlock()
	return c.lastError
}

func (c *Controller) setLastError(err string) {
	c.lastErrorMutex.Lock()
	defer c.lastErrorMutex.Unlock()
	c.lastError = err
}

func (c *Controller) clearLastError() {
	c.lastErrorMutex.Lock()
	defer c.lastErrorMutex.Unlock()
	c.lastError = ""
}
