package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/oceanwatch/plastic-detection-service/detections"
	"github.com/oceanwatch/plastic-detection-service/metrics"
	"github.com/oceanwatch/plastic-detection-service/models"
	"github.com/oceanwatch/plastic-detection-service/pipeline"
)

const uploadField = "file"

type AppState struct {
	Pipeline       *pipeline.Pipeline
	Pool           *detections.ModelSessionPool
	MaxUploadBytes int64
}

var requestCounter uint64

func newRequestID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), atomic.AddUint64(&requestCounter, 1))
}

// newRouter wires the routes. CORS wraps the whole router so that preflight
// requests and 404/405 answers carry the headers as well.
func newRouter(state *AppState) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/predict", handlePredict(state)).Methods(http.MethodPost)
	r.HandleFunc("/labels", state.handleLabels).Methods(http.MethodGet)
	state.addMonitoringRoutes(r)

	return corsMiddleware(r)
}

// corsMiddleware allows any origin, method and header with credentials. It is
// meant for local development front ends, not for hardened deployments.
func corsMiddleware(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowOriginFunc:  func(string) bool { return true },
		AllowCredentials: true,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
	}).Handler(next)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handlePredict(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := newRequestID()
		logger := log.WithField("request_id", requestID)

		if r.ContentLength > state.MaxUploadBytes {
			rejectTooLarge(w, logger, fmt.Errorf("content length %d exceeds %d bytes", r.ContentLength, state.MaxUploadBytes))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, state.MaxUploadBytes)
		imgBytes, err := readUpload(r, state.MaxUploadBytes)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rejectTooLarge(w, logger, err)
			return
		}
		if err != nil {
			logger.WithError(err).Info("rejected upload")
			metrics.Requests.WithLabelValues(CodeInvalidRequest).Inc()
			sendErrorResponse(w, CodeInvalidRequest, MsgMissingImage, err.Error(), http.StatusBadRequest)
			return
		}

		response, timings, err := state.Pipeline.Run(r.Context(), requestID, imgBytes)
		logTimings(logger, timings)
		if err != nil {
			code, msg, status := classifyError(err)
			entry := logger.WithError(err).WithField("code", code)
			if status >= http.StatusInternalServerError {
				entry.Error("prediction failed")
			} else {
				entry.Info("prediction rejected")
			}
			metrics.Requests.WithLabelValues(code).Inc()
			sendErrorResponse(w, code, msg, err.Error(), status)
			return
		}

		metrics.Requests.WithLabelValues("ok").Inc()
		logger.WithField("count", response.PlasticCount).Debug("prediction served")
		sendJSON(w, http.StatusOK, response)
	}
}

func rejectTooLarge(w http.ResponseWriter, logger *log.Entry, err error) {
	logger.WithError(err).Info("rejected oversized upload")
	metrics.Requests.WithLabelValues(CodeTooLarge).Inc()
	sendErrorResponse(w, CodeTooLarge, MsgTooLarge, err.Error(), http.StatusRequestEntityTooLarge)
}

// readUpload extracts image bytes from a multipart form (field "file"), a
// JSON body {"image": "<base64>"} or a raw request body.
func readUpload(r *http.Request, maxBytes int64) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		data, err = handleMultipartRequest(r, maxBytes)
	case mediaType == "application/json":
		data, err = handleJSONRequest(r)
	default:
		data, err = handleRawRequest(r)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, pipeline.ErrMissingImage
	}
	return data, nil
}

func handleMultipartRequest(r *http.Request, maxBytes int64) ([]byte, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}

	file, _, err := r.FormFile(uploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, pipeline.ErrMissingImage
		}
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode json body: %w", err)
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func handleRawRequest(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}

type labelsResponse struct {
	TargetClass string            `json:"target_class"`
	Labels      map[string]string `json:"labels"`
}

func (s *AppState) handleLabels(w http.ResponseWriter, _ *http.Request) {
	labels := s.Pipeline.Labels()
	out := make(map[string]string, len(labels))
	for id, name := range labels {
		out[strconv.Itoa(id)] = name
	}
	sendJSON(w, http.StatusOK, labelsResponse{
		TargetClass: s.Pipeline.TargetClass(),
		Labels:      out,
	})
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/metrics/pool", s.handlePoolStats).Methods(http.MethodGet)
}

func (s *AppState) handlePoolStats(w http.ResponseWriter, _ *http.Request) {
	if s.Pool == nil {
		sendErrorResponse(w, "pool_unavailable", "No session pool is configured.", "", http.StatusNotFound)
		return
	}
	sendJSON(w, http.StatusOK, s.Pool.Stats())
}

func logTimings(logger *log.Entry, t *models.ProcessingTimings) {
	if t == nil || !logger.Logger.IsLevelEnabled(log.DebugLevel) {
		return
	}
	logger.WithFields(log.Fields{
		"decode": t.ImageDecode,
		"detect": t.Detect,
		"filter": t.Filter,
		"render": t.Render,
		"encode": t.Encode,
		"total":  t.Total,
	}).Debug("processing times")
}

// sendJSON encodes body before writing the status so that an unencodable
// value, such as a NaN coordinate, becomes an error response.
func sendJSON(w http.ResponseWriter, status int, body interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		log.WithError(err).Error("failed to encode response")
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(ErrorResponse{
			Code:    CodeEncode,
			Message: MsgResponseEncode,
			Details: err.Error(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

func sendErrorResponse(w http.ResponseWriter, code, message, details string, status int) {
	sendJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}
