package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/process"
)

const maxUploadBytes = 10 << 20

type vehicleNumberBody struct {
	VehicleNumber string `json:"vehicle_number"`
}

type detectResponse struct {
	Result        *model.DetectionResult `json:"result"`
	VehicleNumber string                 `json:"vehicle_number"`
}

func (s *Server) listProcesses(w http.ResponseWriter, r *http.Request) {
	status := model.ProcessStatus(r.URL.Query().Get("status"))
	switch status {
	case "":
		writeJSON(w, http.StatusOK, s.store.ListAll())
	case model.StatusPending, model.StatusFinished:
		writeJSON(w, http.StatusOK, s.store.Filter(status))
	default:
		writeError(w, http.StatusBadRequest, "status must be Pending or Finished")
	}
}

func (s *Server) getProcess(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.store.Get(chi.URLParam(r, "ticket"))
	if !ok {
		writeError(w, http.StatusNotFound, "process not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) waitIn(w http.ResponseWriter, r *http.Request) {
	var form model.WaitInForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := form.DeliveryTable.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.store.AddWaitInEntry(r.Context(), form)
	if err != nil {
		common.Logger(r.Context()).Error("wait-in failed", "vehicle", form.VehicleNumber, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record wait-in")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) waitOut(w http.ResponseWriter, r *http.Request) {
	ticket := chi.URLParam(r, "ticket")

	form := model.WaitOutForm{DeliveryTable: model.NewDeliveryTable()}
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := form.DeliveryTable.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := s.store.UpdateWaitOutEntry(r.Context(), ticket, form)
	if err != nil {
		common.Logger(r.Context()).Error("wait-out failed", "ticket", ticket, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record wait-out")
		return
	}

	switch outcome {
	case process.OutcomeNotFound:
		writeError(w, http.StatusNotFound, "process not found")
	case process.OutcomeAlreadyFinished:
		writeError(w, http.StatusConflict, "process already finished")
	default:
		rec, _ := s.store.Get(ticket)
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) waitInForm(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.InitialFormData())
}

func (s *Server) getCounters(w http.ResponseWriter, r *http.Request) {
	state, err := s.counters.Counts(r.Context())
	if err != nil {
		common.Logger(r.Context()).Error("failed to read counters", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read counters")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) getDetectedVehicle(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vehicleNumberBody{VehicleNumber: s.store.DetectedVehicleNumber()})
}

func (s *Server) putDetectedVehicle(w http.ResponseWriter, r *http.Request) {
	var body vehicleNumberBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.store.SetDetectedVehicleNumber(strings.TrimSpace(body.VehicleNumber))
	writeJSON(w, http.StatusOK, vehicleNumberBody{VehicleNumber: s.store.DetectedVehicleNumber()})
}

func (s *Server) detect(w http.ResponseWriter, r *http.Request) {
	if s.detector == nil {
		writeError(w, http.StatusServiceUnavailable, "plate detection is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image upload")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	result, err := s.detector.DetectImage(r.Context(), header.Filename, data)
	if err != nil {
		common.Logger(r.Context()).Warn("plate detection failed", "file", header.Filename, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "result": result})
		return
	}
	s.writeDetection(w, result)
}

// detectBase64 accepts a camera snapshot as {"image": "<base64 or data URL>"}.
func (s *Server) detectBase64(w http.ResponseWriter, r *http.Request) {
	if s.detector == nil {
		writeError(w, http.StatusServiceUnavailable, "plate detection is not configured")
		return
	}

	var body struct {
		Image string `json:"image"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Image) == "" {
		writeError(w, http.StatusBadRequest, "missing image")
		return
	}

	result, err := s.detector.DetectBase64(r.Context(), body.Image)
	if err != nil {
		common.Logger(r.Context()).Warn("plate detection failed", "bytes", len(body.Image), "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "result": result})
		return
	}
	s.writeDetection(w, result)
}

func (s *Server) writeDetection(w http.ResponseWriter, result *model.DetectionResult) {

	best, ok := result.Best()
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  common.ErrNoPlateDetected.Error(),
			"result": result,
		})
		return
	}

	s.store.SetDetectedVehicleNumber(best.PlateText())
	writeJSON(w, http.StatusOK, detectResponse{VehicleNumber: best.PlateText(), Result: result})
}

