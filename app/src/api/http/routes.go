package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
	"airflow-service/app/src/shared/constants"
	sharederrors "airflow-service/app/src/shared/errors"
)

const (
	paramRoomID  = "roomID"
	queryLimit   = "limit"
	maxBodyBytes = 1 << 20
)

// handler contains the HTTP handlers and shared dependencies for the REST API.
type handler struct {
	service domain.AirflowService
	history domain.EstimateReader
	logger  *infra.Logger
}

func registerRoutes(router chi.Router, h *handler) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h.logger.Println(r.Context(), "health check OK")
		writeStatusOK(w)
	})
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatusOK(w)
	})

	router.Route("/rooms", func(r chi.Router) {
		r.Get("/", h.handleListRooms)
		r.Route("/{roomID}", func(r chi.Router) {
			r.Post("/measurements", h.handleRecordMeasurements)
			r.Get("/airflow", h.handleCalculateAirflow)
			r.Get("/estimates", h.handleEstimateHistory)
		})
	})
}

func writeStatusOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type measurementRequest struct {
	Timestamp        *float64 `json:"timestamp"`
	ConcentrationPPM *float64 `json:"concentration_ppm"`
}

type acceptedResponse struct {
	RoomID   string `json:"room_id"`
	Accepted int    `json:"accepted"`
}

type roomResponse struct {
	ID              string  `json:"id"`
	VolumeM3        float64 `json:"volume_m3"`
	FurnitureCount  float64 `json:"furniture_count"`
	IndoorVentSpeed float64 `json:"indoor_vent_speed"`
	OccupantCount   float64 `json:"occupant_count"`
}

type estimateResponse struct {
	RoomID     string  `json:"room_id"`
	ACH        float64 `json:"ach"`
	AirflowM3H float64 `json:"airflow_m3h"`
	AirflowCFM float64 `json:"airflow_cfm"`
	Confidence float64 `json:"confidence"`
	Samples    int     `json:"samples"`
	Bucket     string  `json:"bucket,omitempty"`
	ComputedAt string  `json:"computed_at"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Reason string `json:"reason,omitempty"`
}

func (h *handler) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.service.Rooms()
	payload := make([]roomResponse, len(rooms))
	for i, room := range rooms {
		payload[i] = roomResponse{
			ID:              room.ID,
			VolumeM3:        room.VolumeM3,
			FurnitureCount:  room.FurnitureCount,
			IndoorVentSpeed: room.IndoorVentSpeed,
			OccupantCount:   room.OccupantCount,
		}
	}
	h.writeJSON(w, r, http.StatusOK, payload)
}

func (h *handler) handleRecordMeasurements(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	measurements, err := decodeMeasurements(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	for _, m := range measurements {
		if err := h.service.RecordMeasurement(r.Context(), roomID, m); err != nil {
			h.respondServiceError(w, r, err)
			return
		}
	}

	h.writeJSON(w, r, http.StatusAccepted, acceptedResponse{RoomID: roomID, Accepted: len(measurements)})
}

func (h *handler) handleCalculateAirflow(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	estimate, err := h.service.CalculateAirflow(r.Context(), roomID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, toEstimateResponse(estimate))
}

func (h *handler) handleEstimateHistory(w http.ResponseWriter, r *http.Request) {
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get(queryLimit); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.history.History(r.Context(), roomID, limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	payload := make([]estimateResponse, len(records))
	for i, record := range records {
		payload[i] = toRecordResponse(record)
	}
	h.writeJSON(w, r, http.StatusOK, payload)
}

func (h *handler) roomID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := constants.ParseRoomID(chi.URLParam(r, paramRoomID))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid room id")
		return "", false
	}
	return id, true
}

// decodeMeasurements accepts either a single measurement object or an array of them.
func decodeMeasurements(body io.Reader) ([]domain.Measurement, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("request body must not be empty")
	}

	var requests []measurementRequest
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &requests); err != nil {
			return nil, errors.New("invalid measurement payload")
		}
		if len(requests) == 0 {
			return nil, errors.New("at least one measurement is required")
		}
	} else {
		var single measurementRequest
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, errors.New("invalid measurement payload")
		}
		requests = []measurementRequest{single}
	}

	measurements := make([]domain.Measurement, len(requests))
	for i, req := range requests {
		if req.Timestamp == nil || req.ConcentrationPPM == nil {
			return nil, fmt.Errorf("measurement %d: timestamp and concentration_ppm are required", i)
		}
		if !finite(*req.Timestamp) || !finite(*req.ConcentrationPPM) {
			return nil, fmt.Errorf("measurement %d: values must be finite", i)
		}
		measurements[i] = domain.Measurement{Timestamp: *req.Timestamp, ConcentrationPPM: *req.ConcentrationPPM}
	}
	return measurements, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (h *handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if reason := domain.ReasonOf(err); reason != domain.ReasonNone {
		h.logger.Debugf(r.Context(), "no airflow result: %v", err)
		h.writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
			Error:  reasonMessage(reason),
			Code:   http.StatusUnprocessableEntity,
			Reason: string(reason),
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		h.writeError(w, r, http.StatusNotFound, "room not found")
	case errors.Is(err, sharederrors.ErrInvalidRoomID):
		h.writeError(w, r, http.StatusBadRequest, "invalid room id")
	default:
		h.logger.Errorf(r.Context(), "http: %s %s: %v", r.Method, r.URL.Path, err)
		h.writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func reasonMessage(reason domain.Reason) string {
	switch reason {
	case domain.ReasonInsufficientData:
		return domain.ErrInsufficientData.Error()
	case domain.ReasonNotDecaying:
		return domain.ErrNotDecaying.Error()
	default:
		return domain.ErrFitFailed.Error()
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, r, status, errorResponse{Error: message, Code: status})
}

// writeJSON answers 500 when payload cannot be encoded.
func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		h.logger.Errorf(r.Context(), "http: %s %s: encode %T: %v", r.Method, r.URL.Path, payload, err)
		status = http.StatusInternalServerError
		body.Reset()
		_ = json.NewEncoder(&body).Encode(errorResponse{Error: "internal server error", Code: status})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body.Bytes()); err != nil {
		h.logger.Errorf(r.Context(), "http: %s %s: write response: %v", r.Method, r.URL.Path, err)
	}
}

func toEstimateResponse(estimate domain.AirflowEstimate) estimateResponse {
	return estimateResponse{
		RoomID:     estimate.RoomID,
		ACH:        estimate.ACH,
		AirflowM3H: estimate.AirflowM3H,
		AirflowCFM: estimate.AirflowCFM,
		Confidence: estimate.Confidence,
		Samples:    estimate.Samples,
		Bucket:     string(estimate.Bucket),
		ComputedAt: estimate.ComputedAt.UTC().Format(constants.TimeFormat),
	}
}

func toRecordResponse(record domain.EstimateRecord) estimateResponse {
	return estimateResponse{
		RoomID:     record.RoomID,
		ACH:        record.ACH,
		AirflowM3H: record.AirflowM3H,
		AirflowCFM: record.AirflowCFM,
		Confidence: record.Confidence,
		Samples:    record.Samples,
		ComputedAt: record.ComputedAt.UTC().Format(constants.TimeFormat),
	}
}
