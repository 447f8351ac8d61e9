package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Brownie44l1/damage-api/internal/artifact"
	apperrors "github.com/Brownie44l1/damage-api/internal/errors"
	"github.com/Brownie44l1/damage-api/internal/metrics"
	"github.com/Brownie44l1/damage-api/internal/model"
	"github.com/Brownie44l1/damage-api/internal/preprocess"
	"github.com/rs/zerolog/log"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type PreprocessingSummary struct {
	Resize []int   `json:"resize"`
	Scale  float64 `json:"scale"`
}

type SummaryResponse struct {
	ModelName     string               `json:"model_name"`
	TestAUC       *float64             `json:"test_auc"`
	InputSize     []int                `json:"input_size"`
	Classes       []string             `json:"classes"`
	Preprocessing PreprocessingSummary `json:"preprocessing"`
}

type PredictionResponse struct {
	Prediction string `json:"prediction"`
}

type ErrorResponse struct {
	Error string         `json:"error"`
	Code  apperrors.Kind `json:"code"`
}

// Gate bounds how many requests run the model at once. Acquire blocks until
// a slot is free or ctx ends.
type Gate interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type Handler struct {
	artifact       *artifact.Artifact
	preprocessor   *preprocess.Preprocessor
	metrics        *metrics.Client
	maxUploadBytes int64
	gate           Gate
}

func NewHandler(a *artifact.Artifact, p *preprocess.Preprocessor, m *metrics.Client, maxUploadBytes int64) *Handler {
	if m == nil {
		m = metrics.NoOp()
	}
	return &Handler{
		artifact:       a,
		preprocessor:   p,
		metrics:        m,
		maxUploadBytes: maxUploadBytes,
	}
}

// WithGate makes Inference hold a slot from g while it classifies. The
// upload is read before a slot is requested.
func (h *Handler) WithGate(g Gate) *Handler {
	h.gate = g
	return h
}

// Health reports liveness only; it does not look at the model.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.artifact == nil {
		WriteError(w, r, apperrors.NewArtifactLoadError("model artifact is not loaded", nil))
		return
	}
	a := h.artifact
	writeJSON(w, http.StatusOK, SummaryResponse{
		ModelName: a.ModelName,
		TestAUC:   a.TestAUC,
		InputSize: a.InputShape.Dims(),
		Classes:   a.Classes[:],
		Preprocessing: PreprocessingSummary{
			Resize: a.Preprocessing.Resize[:],
			Scale:  a.Preprocessing.Scale,
		},
	})
}

func (h *Handler) Inference(w http.ResponseWriter, r *http.Request) {
	payload, err := ExtractPayload(w, r, h.maxUploadBytes)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if h.gate != nil {
		release, err := h.gate.Acquire(r.Context())
		if err != nil {
			WriteError(w, r, fmt.Errorf("waiting for an inference worker: %w", err))
			return
		}
		defer release()
	}

	result, err := h.Classify(payload)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	log.Debug().
		Str("encoding", payload.Encoding.String()).
		Int("bytes", len(payload.Data)).
		Float32("score", result.Score).
		Str("prediction", result.Label).
		Msg("inference")
	writeJSON(w, http.StatusOK, PredictionResponse{Prediction: result.Label})
}

// Classify runs preprocess, score and the decision rule on one payload.
func (h *Handler) Classify(p Payload) (model.Result, error) {
	if h.artifact == nil || h.preprocessor == nil {
		return model.Result{}, apperrors.NewArtifactLoadError("model artifact is not loaded", nil)
	}

	start := time.Now()
	tensor, err := h.preprocessor.Prepare(p.Data)
	if err != nil {
		return model.Result{}, err
	}
	h.metrics.Timing(metrics.StageLatency, time.Since(start), []string{"stage:preprocess"})

	start = time.Now()
	score, err := h.artifact.Model.Score(tensor)
	if err != nil {
		return model.Result{}, err
	}
	h.metrics.Timing(metrics.StageLatency, time.Since(start), []string{"stage:score"})

	label := h.artifact.Classes.Label(score)
	h.metrics.Count(metrics.PredictionTotal, 1, []string{"prediction:" + label, "encoding:" + p.Encoding.String()})
	return model.Result{Score: score, Label: label}, nil
}

// WriteError reports err as a JSON error body with the status its kind maps
// to. Image content is never logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := apperrors.Classify(err)
	msg := err.Error()
	if kind == apperrors.KindInternal {
		msg = http.StatusText(status)
	}

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Str("code", string(kind)).Msg("request failed")

	writeJSON(w, status, ErrorResponse{Error: msg, Code: kind})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
