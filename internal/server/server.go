package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/iottest/wifiposition/internal/config"
	"github.com/iottest/wifiposition/internal/fingerprint"
	"github.com/iottest/wifiposition/internal/metrics"
	"github.com/iottest/wifiposition/internal/service"
)

// Server is the remote control for a collector running on a laptop or phone,
// reachable from another device on the LAN.
type Server struct {
	service        service.Service
	configFile     string
	port           string
	metricsEnabled bool
	httpServer     *http.Server

	// Uploads run in the background, at most one at a time
	uploadMutex sync.Mutex
	uploading   bool
	uploads     sync.WaitGroup
}

// GenericResponse is the body of every POST endpoint.
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	State   string `json:"state,omitempty"`
	Label   string `json:"label,omitempty"`
	Entries int    `json:"entries"`
}

// LabelRequest is the JSON body accepted by /start, /toggle and /label.
type LabelRequest struct {
	Label string `json:"label"`
}

// New creates a remote-control server around svc.
func New(svc service.Service, configFile, port string) *Server {
	s := &Server{
		service:        svc,
		configFile:     configFile,
		port:           port,
		metricsEnabled: svc.GetConfig().Metrics.Enabled,
	}
	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/dataset", s.handleDataset)
	mux.HandleFunc("/latest", s.handleLatest)
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/toggle", s.handleToggle)
	mux.HandleFunc("/label", s.handleLabel)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/clear", s.handleClear)
	mux.HandleFunc("/config/profiles", s.handleProfiles)
	if s.metricsEnabled {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}

// Start serves until Shutdown is called or the listener fails. It returns nil
// after a Shutdown.
func (s *Server) Start() error {
	localIP := getLocalIP()

	slog.Info("Starting remote control server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port),
		"metrics", s.metricsEnabled)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for active ones and then for any
// background upload.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.Wait()
	return err
}

// Wait blocks until background uploads have finished.
func (s *Server) Wait() {
	s.uploads.Wait()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	s.sendJSON(w, http.StatusOK, s.service.Status())
}

// handleDataset returns the dataset exactly as it would be uploaded.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	data, err := fingerprint.EncodeDataset(s.service.Dataset())
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to encode dataset: %v", err), "operation", "dataset")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(data)
}

// handleLatest returns the latest raw sample in the predict wire format.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	data, err := fingerprint.EncodeSample(s.service.LatestSample())
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to encode sample: %v", err), "operation", "latest")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(data)
}

// handleStart moves Idle to Recording. An omitted label reuses the previous one.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	label, err := readLabel(r)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "start")
		return
	}

	started, err := s.service.StartRecording(label)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Label is required", "operation", "start")
		return
	}
	if !started {
		s.sendJSON(w, http.StatusOK, s.response("Already recording"))
		return
	}

	slog.Info("Server: recording started", "label", s.service.Status().Label)
	s.sendJSON(w, http.StatusOK, s.response("Recording started"))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	s.service.StopRecording()
	s.sendJSON(w, http.StatusOK, s.response("Recording stopped"))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	label, err := readLabel(r)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "toggle")
		return
	}

	recording, err := s.service.ToggleRecording(label)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Label is required to start recording", "operation", "toggle")
		return
	}

	message := "Recording stopped"
	if recording {
		message = "Recording started"
	}
	s.sendJSON(w, http.StatusOK, s.response(message))
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	label, err := readLabel(r)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "label")
		return
	}
	if label == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Label is required", "operation", "label")
		return
	}
	s.service.SetLabel(label)
	s.sendJSON(w, http.StatusOK, s.response("Label set"))
}

// handleUpload starts one bulk upload in the background. The outcome is only
// logged, and visible afterwards as last_error on /status.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}

	s.uploadMutex.Lock()
	if s.uploading {
		s.uploadMutex.Unlock()
		s.sendJSON(w, http.StatusConflict, GenericResponse{Success: false, Error: "Upload already in progress", Entries: s.service.DatasetLen()})
		return
	}
	s.uploading = true
	s.uploads.Add(1)
	s.uploadMutex.Unlock()

	go func() {
		defer s.uploads.Done()
		defer func() {
			s.uploadMutex.Lock()
			s.uploading = false
			s.uploadMutex.Unlock()
		}()
		// Errors are logged by the controller.
		_, _ = s.service.Upload(context.Background())
	}()

	s.sendJSON(w, http.StatusAccepted, s.response("Upload started"))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodPost) {
		return
	}
	s.service.Clear()
	s.sendJSON(w, http.StatusOK, s.response("Dataset cleared"))
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	profiles := []string{"default"}
	if s.configFile != "" {
		names, err := config.ProfileNames(s.configFile)
		if err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read profiles: %v", err), "operation", "profiles")
			return
		}
		sort.Strings(names)
		for _, n := range names {
			if n != "default" {
				profiles = append(profiles, n)
			}
		}
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": profiles,
		"active":   s.service.GetConfig().Profile,
	})
}

func (s *Server) response(message string) GenericResponse {
	st := s.service.Status()
	return GenericResponse{
		Success: true,
		Message: message,
		State:   string(st.State),
		Label:   st.Label,
		Entries: st.DatasetEntries,
	}
}

// readLabel accepts either a JSON body or a form field named "label".
func readLabel(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req LabelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", fmt.Errorf("Invalid JSON body: %v", err)
		}
		return strings.TrimSpace(req.Label), nil
	}
	if err := r.ParseForm(); err != nil {
		return "", fmt.Errorf("Failed to parse form")
	}
	return strings.TrimSpace(r.FormValue("label")), nil
}

func (s *Server) allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.sendJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
	return false
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Warn("Sending error response to client", logFields...)

	s.sendJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Dialing UDP sends nothing; it only selects the outbound interface.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
