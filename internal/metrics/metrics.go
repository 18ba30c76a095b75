package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "wifipos_"

	ResultSuccess = "success"
	ResultError   = "error"
	// ResultDiscarded marks a response that arrived after its loop was stopped.
	ResultDiscarded = "discarded"
)

var (
	registerOnce sync.Once

	scansTotal        *prometheus.CounterVec
	uploadsTotal      *prometheus.CounterVec
	uploadLatency     *prometheus.HistogramVec
	predictionsTotal  *prometheus.CounterVec
	predictionLatency *prometheus.HistogramVec
	datasetEntries    prometheus.Gauge
	recordingActive   prometheus.Gauge
	visibleStations   prometheus.Gauge
)

// Init registers the collector metrics on the default registry. Calling it
// more than once is harmless; the Observe functions are no-ops before Init.
func Init() {
	registerOnce.Do(func() {
		scansTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scans_total",
				Help: "Total scan deliveries by result",
			},
			[]string{"result"},
		)
		uploadsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "uploads_total",
				Help: "Total dataset uploads by result",
			},
			[]string{"result"},
		)
		uploadLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "upload_latency_seconds",
				Help:    "Dataset upload latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		predictionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "predictions_total",
				Help: "Total live prediction requests by result",
			},
			[]string{"result"},
		)
		predictionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "prediction_latency_seconds",
				Help:    "Live prediction latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		datasetEntries = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "dataset_entries",
				Help: "Labeled samples currently held in memory",
			},
		)
		recordingActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "recording_active",
				Help: "1 while recording, 0 otherwise",
			},
		)
		visibleStations = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "visible_stations",
				Help: "Access points in the latest completed scan",
			},
		)

		prometheus.MustRegister(
			scansTotal,
			uploadsTotal,
			uploadLatency,
			predictionsTotal,
			predictionLatency,
			datasetEntries,
			recordingActive,
			visibleStations,
		)
	})
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScan records a scan delivery and, on success, the number of stations seen.
func ObserveScan(result string, stations int) {
	if result == "" {
		result = ResultSuccess
	}
	if scansTotal != nil {
		scansTotal.WithLabelValues(result).Inc()
	}
	if result == ResultSuccess && visibleStations != nil {
		visibleStations.Set(float64(stations))
	}
}

// ObserveUpload records a bulk upload duration and result.
func ObserveUpload(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if uploadsTotal != nil {
		uploadsTotal.WithLabelValues(result).Inc()
	}
	if uploadLatency != nil {
		uploadLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObservePrediction records a live prediction round trip.
func ObservePrediction(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if predictionsTotal != nil {
		predictionsTotal.WithLabelValues(result).Inc()
	}
	if predictionLatency != nil {
		predictionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// SetDatasetEntries sets the dataset size gauge.
func SetDatasetEntries(n int) {
	if datasetEntries != nil {
		datasetEntries.Set(float64(n))
	}
}

// SetRecording sets the recording gauge.
func SetRecording(recording bool) {
	if recordingActive == nil {
		return
	}
	if recording {
		recordingActive.Set(1)
	} else {
		recordingActive.Set(0)
	}
}
