package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iottest/wifiposition/internal/config"
	"github.com/iottest/wifiposition/internal/fingerprint"
	"github.com/iottest/wifiposition/internal/scan"
	"github.com/iottest/wifiposition/internal/syncclient"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Server.BaseURL = baseURL
	cfg.Scan.Interval = 5 * time.Millisecond
	cfg.Prediction.Interval = 5 * time.Millisecond
	return cfg
}

func newTestController(t *testing.T, handler http.Handler, scanner scan.Scanner, sink PredictionSink) (*Controller, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := syncclient.New(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("syncclient.New: %v", err)
	}
	c := New(testConfig(srv.URL), scanner, client, sink)
	t.Cleanup(c.Close)
	return c, srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHandleScanBuildsIdentifiers(t *testing.T) {
	c, _ := newTestController(t, http.NotFoundHandler(), nil, nil)

	c.HandleScan([]scan.Network{
		{SSID: "net1", BSSID: "AA:BB", Level: -50},
		{SSID: "", BSSID: "CC:DD", Level: -80},
	}, nil)

	latest := c.LatestSample()
	want := fingerprint.Sample{
		{Identifier: "net1 AA:BB", SignalStrength: -50},
		{Identifier: " CC:DD", SignalStrength: -80},
	}
	if !latest.Equal(want) {
		t.Errorf("latest = %+v, want %+v", latest, want)
	}
	if c.DatasetLen() != 0 {
		t.Errorf("idle scan should not be recorded, got %d entries", c.DatasetLen())
	}
}

func TestHandleScanFailureIsDropped(t *testing.T) {
	c, _ := newTestController(t, http.NotFoundHandler(), nil, nil)

	c.StartRecording("hall")
	c.HandleScan([]scan.Network{{SSID: "a", BSSID: "1", Level: -40}}, nil)
	c.HandleScan(nil, errors.New("scan throttled"))

	if c.DatasetLen() != 1 {
		t.Errorf("dataset len = %d, want 1", c.DatasetLen())
	}
	if len(c.LatestSample()) != 1 {
		t.Errorf("failed scan must not replace the latest sample")
	}
}

func TestHandleEmptyScanUpdatesLatest(t *testing.T) {
	c, _ := newTestController(t, http.NotFoundHandler(), nil, nil)

	c.HandleScan([]scan.Network{{SSID: "a", BSSID: "1", Level: -40}}, nil)
	c.HandleScan([]scan.Network{}, nil)

	latest := c.LatestSample()
	if latest == nil || len(latest) != 0 {
		t.Errorf("latest = %#v, want empty non-nil sample", latest)
	}
}

func TestEmptyLabelReusesPrevious(t *testing.T) {
	c, _ := newTestController(t, http.NotFoundHandler(), nil, nil)

	if started, err := c.StartRecording(""); started || !errors.Is(err, ErrLabelRequired) {
		t.Fatalf("StartRecording(\"\") = %v, %v, want ErrLabelRequired", started, err)
	}
	if c.Status().Recording {
		t.Fatal("recording must not start without a label")
	}

	c.StartRecording("porch")
	c.StopRecording()

	if on, err := c.ToggleRecording(""); err != nil || !on {
		t.Fatalf("toggle with empty label = %v, %v", on, err)
	}
	if got := c.Status().Label; got != "porch" {
		t.Errorf("label = %q, want previous label", got)
	}
}

func TestConcurrentToggleAndStop(t *testing.T) {
	c, _ := newTestController(t, http.NotFoundHandler(), nil, nil)
	c.SetLabel("attic")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := c.ToggleRecording(""); err != nil {
				t.Errorf("toggle: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			c.StopRecording()
		}()
	}
	wg.Wait()

	if got := c.Status().Label; got != "attic" {
		t.Errorf("label = %q after concurrent toggles", got)
	}
}

func TestToggleRecordingStateMachine(t *testing.T) {
	c, _ := newTestController(t, http.NotFoundHandler(), nil, nil)

	if on, err := c.ToggleRecording("kitchen"); err != nil || !on {
		t.Fatal("first toggle should start recording")
	}
	if st := c.Status(); st.State != StatusRecording || st.Label != "kitchen" {
		t.Errorf("status = %+v", st)
	}

	// Starting again while recording keeps the current label.
	c.StartRecording("garage")
	if c.Status().Label != "kitchen" {
		t.Errorf("label changed while recording: %q", c.Status().Label)
	}

	if on, _ := c.ToggleRecording("ignored"); on {
		t.Fatal("second toggle should stop recording")
	}
	st := c.Status()
	if st.State != StatusIdle || st.Label != "kitchen" {
		t.Errorf("label should be retained after stop, status = %+v", st)
	}

	c.StopRecording()
	if c.Status().Recording {
		t.Error("stop while idle should stay idle")
	}
}

func TestKitchenScenario(t *testing.T) {
	c, _ := newTestController(t, http.NotFoundHandler(), nil, nil)

	c.SetLabel("kitchen")
	c.StartRecording("kitchen")
	c.HandleScan([]scan.Network{{SSID: "net1", BSSID: "AA:BB", Level: -50}}, nil)
	c.HandleScan([]scan.Network{{SSID: "net1", BSSID: "AA:BB", Level: -55}}, nil)
	c.StopRecording()
	c.HandleScan([]scan.Network{{SSID: "net2", BSSID: "CC:DD", Level: -40}}, nil)

	ds := c.Dataset()
	if len(ds) != 2 || ds[0].Label != "kitchen" || ds[1].Label != "kitchen" {
		t.Fatalf("dataset = %+v", ds)
	}
	want := fingerprint.Sample{{Identifier: "net2 CC:DD", SignalStrength: -40}}
	if !c.LatestSample().Equal(want) {
		t.Errorf("latest = %+v", c.LatestSample())
	}

	c.Clear()
	if c.DatasetLen() != 0 || !c.LatestSample().Equal(want) || c.Status().Label != "kitchen" {
		t.Error("clear should only empty the dataset")
	}
}

func TestUploadPostsDataset(t *testing.T) {
	var (
		mutex       sync.Mutex
		gotPath     string
		gotType     string
		gotBody     []byte
		uploadCalls int
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutex.Lock()
		defer mutex.Unlock()
		uploadCalls++
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte("stored 2"))
	})
	c, _ := newTestController(t, handler, nil, nil)

	c.StartRecording("desk")
	c.HandleScan([]scan.Network{{SSID: "a", BSSID: "1", Level: -30}}, nil)
	c.HandleScan([]scan.Network{{SSID: "b", BSSID: "2", Level: -60}}, nil)

	resp, err := c.Upload(context.Background())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp != "stored 2" {
		t.Errorf("response = %q", resp)
	}

	mutex.Lock()
	defer mutex.Unlock()
	if uploadCalls != 1 {
		t.Errorf("upload calls = %d, want 1", uploadCalls)
	}
	if gotPath != "/feed" {
		t.Errorf("path = %q, want /feed", gotPath)
	}
	if gotType != syncclient.ContentType {
		t.Errorf("content type = %q", gotType)
	}
	ds, err := fingerprint.DecodeDataset(gotBody)
	if err != nil {
		t.Fatalf("body is not a dataset: %v", err)
	}
	if len(ds) != 2 || ds[1].Readings[0].Identifier != "b 2" || ds[1].Label != "desk" {
		t.Errorf("uploaded dataset = %+v", ds)
	}
}

func TestUploadFailureKeepsDataset(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model busy", http.StatusServiceUnavailable)
	})
	c, _ := newTestController(t, handler, nil, nil)

	c.StartRecording("desk")
	c.HandleScan([]scan.Network{{SSID: "a", BSSID: "1", Level: -30}}, nil)

	_, err := c.Upload(context.Background())
	var statusErr *syncclient.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want 503 StatusError", err)
	}
	if c.DatasetLen() != 1 {
		t.Errorf("failed upload must keep the dataset, got %d entries", c.DatasetLen())
	}
	if c.GetLastError() == "" {
		t.Error("last error should be set after a failed upload")
	}
}

func TestUploadEmptyDataset(t *testing.T) {
	var body atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body.Store(string(b))
	})
	c, _ := newTestController(t, handler, nil, nil)

	if _, err := c.Upload(context.Background()); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := body.Load(); got != "[]" {
		t.Errorf("body = %v, want []", got)
	}
}

type recordingSink struct {
	mutex     sync.Mutex
	locations []string
}

func (s *recordingSink) PublishPrediction(location string, at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.locations = append(s.locations, location)
}

func (s *recordingSink) count() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.locations)
}

func TestPredictionLoopUpdatesDisplay(t *testing.T) {
	var gotBody atomic.Value
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotBody.Store(string(b))
		w.Write([]byte("kitchen"))
	})
	sink := &recordingSink{}
	c, _ := newTestController(t, handler, nil, sink)

	c.HandleScan([]scan.Network{{SSID: "net1", BSSID: "AA:BB", Level: -50}}, nil)
	c.StartPrediction()
	waitFor(t, "prediction", func() bool {
		p, _ := c.Prediction()
		return p == "kitchen"
	})
	c.StopPrediction()

	if got := gotBody.Load(); got != `[{"ssid_bssid":"net1 AA:BB","signal_strength":-50}]` {
		t.Errorf("predict body = %v", got)
	}
	if _, at := c.Prediction(); at.IsZero() {
		t.Error("prediction time should be set")
	}
	if sink.count() == 0 {
		t.Error("sink should receive the prediction")
	}
	if st := c.Status(); st.Prediction != "kitchen" || st.PredictedAt == nil || st.Predicting {
		t.Errorf("status = %+v", st)
	}
}

func TestPredictionFailureKeepsPriorValue(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte("kitchen"))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c, _ := newTestController(t, handler, nil, nil)

	c.StartPrediction()
	waitFor(t, "repeated attempts after failure", func() bool { return calls.Load() >= 4 })
	c.StopPrediction()

	if p, _ := c.Prediction(); p != "kitchen" {
		t.Errorf("prediction = %q, want prior value kept", p)
	}
}

func TestStopPredictionDiscardsLateResponse(t *testing.T) {
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case arrived <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Write([]byte("late"))
	})
	c, _ := newTestController(t, handler, nil, nil)
	defer close(release)

	c.StartPrediction()
	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("prediction request never arrived")
	}
	c.StopPrediction()

	if p, at := c.Prediction(); p != "" || !at.IsZero() {
		t.Errorf("prediction = %q at %v, want nothing after stop", p, at)
	}
}

type fakeScanner struct {
	calls atomic.Int32
}

func (f *fakeScanner) Scan(ctx context.Context) ([]scan.Network, error) {
	n := f.calls.Add(1)
	return []scan.Network{{SSID: "net", BSSID: "01", Level: -int(n)}}, nil
}

func TestScanningFeedsStore(t *testing.T) {
	scanner := &fakeScanner{}
	c, _ := newTestController(t, http.NotFoundHandler(), scanner, nil)

	c.StartRecording("lab")
	if err := c.StartScanning(); err != nil {
		t.Fatalf("StartScanning: %v", err)
	}
	waitFor(t, "recorded scans", func() bool { return c.DatasetLen() >= 3 })
	c.StopScanning()

	n := c.DatasetLen()
	time.Sleep(20 * time.Millisecond)
	if c.DatasetLen() != n {
		t.Errorf("dataset grew after StopScanning: %d -> %d", n, c.DatasetLen())
	}
}

func TestStartScanningWithoutScanner(t *testing.T) {
	c, _ := newTestController(t, http.NotFoundHandler(), nil, nil)

	if err := c.StartScanning(); !errors.Is(err, ErrNoScanner) {
		t.Errorf("err = %v, want ErrNoScanner", err)
	}
	c.StopScanning()
}

func TestPauseResume(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hall"))
	})
	c, _ := newTestController(t, handler, &fakeScanner{}, nil)

	// Pause before anything runs resumes nothing.
	c.Pause()
	c.Resume()
	if st := c.Status(); st.Scanning || st.Predicting {
		t.Errorf("nothing should run, status = %+v", st)
	}

	if err := c.StartScanning(); err != nil {
		t.Fatal(err)
	}
	c.StartPrediction()

	c.Pause()
	c.Pause()
	st := c.Status()
	if st.Scanning || st.Predicting || !st.Paused {
		t.Errorf("paused status = %+v", st)
	}

	c.Resume()
	c.Resume()
	st = c.Status()
	if !st.Scanning || !st.Predicting || st.Paused {
		t.Errorf("resumed status = %+v", st)
	}
}

func TestLoopsAreIndependent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hall"))
	})
	scanner := &fakeScanner{}
	c, _ := newTestController(t, handler, scanner, nil)

	if err := c.StartScanning(); err != nil {
		t.Fatal(err)
	}
	c.StartPrediction()
	c.StopPrediction()

	before := scanner.calls.Load()
	waitFor(t, "scans after prediction stopped", func() bool { return scanner.calls.Load() > before+2 })
	if !c.Status().Scanning {
		t.Error("stopping prediction must not stop scanning")
	}
}
