package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rallytiming/internal/export"
	"rallytiming/internal/integrations"
	"rallytiming/internal/model"
	"rallytiming/internal/standings"
)

const maxImportBytes = 10 << 20

// ClassificationHandler handles GET /v1/events/{eventId}/classification
func (s *Server) ClassificationHandler(w http.ResponseWriter, r *http.Request) {
	q, ok := s.classificationRequest(w, r)
	if !ok {
		return
	}
	c, err := s.Standings.Classification(r.Context(), q)
	if err != nil {
		writeError(w, r, "Classification failed", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ClassificationXLSXHandler handles GET /v1/events/{eventId}/classification.xlsx
func (s *Server) ClassificationXLSXHandler(w http.ResponseWriter, r *http.Request) {
	q, ok := s.classificationRequest(w, r)
	if !ok {
		return
	}
	c, err := s.Standings.Classification(r.Context(), q)
	if err != nil {
		writeError(w, r, "Classification failed", err)
		return
	}
	f, err := export.Workbook(c)
	if err != nil {
		writeError(w, r, "Export failed", err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"classification-%d.xlsx\"", q.EventID))
	_, _ = f.WriteTo(w)
}

func (s *Server) classificationRequest(w http.ResponseWriter, r *http.Request) (standings.Query, bool) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid event id", err.Error(), r.URL.Path)
		return standings.Query{}, false
	}
	categoryID, stage, err := classificationQuery(r.URL.Query())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
		return standings.Query{}, false
	}
	return standings.Query{EventID: eventID, CategoryID: categoryID, StageOrder: stage}, true
}

// EventResultsHandler handles GET /v1/events/{eventId}/results
func (s *Server) EventResultsHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid event id", err.Error(), r.URL.Path)
		return
	}
	items, err := s.Standings.ListResults(r.Context(), eventID)
	if err != nil {
		writeError(w, r, "List results failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ImportResultsHandler handles POST /v1/events/{eventId}/results/import with a
// CSV body or a multipart "file" field.
func (s *Server) ImportResultsHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid event id", err.Error(), r.URL.Path)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Missing file", err.Error(), r.URL.Path)
			return
		}
		defer file.Close()
		body = file
	}
	data, err := io.ReadAll(body)
	if err != nil {
		writeProblem(w, http.StatusRequestEntityTooLarge, "Upload too large", err.Error(), r.URL.Path)
		return
	}
	if secret := s.Config.Import.Secret; secret != "" {
		if err := integrations.Verify(secret, data, r.Header.Get(integrations.SignatureHeader)); err != nil {
			writeProblem(w, http.StatusUnauthorized, "Invalid signature", err.Error(), r.URL.Path)
			return
		}
	}
	batch, err := s.Importer.Parse(bytes.NewReader(data))
	if err != nil {
		writeError(w, r, "Invalid "+s.Importer.Name()+" import", err)
		return
	}
	rep, err := s.Standings.ImportResults(r.Context(), eventID, batch)
	if err != nil {
		writeError(w, r, "Import failed", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ElapsedTimesHandler handles POST /v1/events/{eventId}/elapsed-times
func (s *Server) ElapsedTimesHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid event id", err.Error(), r.URL.Path)
		return
	}
	elapsed, err := s.Standings.DeriveElapsedTimes(r.Context(), eventID)
	if err != nil {
		writeError(w, r, "Derive elapsed times failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": len(elapsed), "elapsed": elapsed})
}

// EntrantHandler handles POST/DELETE /v1/events/{eventId}/vehicles/{vehicleId}
func (s *Server) EntrantHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid event id", err.Error(), r.URL.Path)
		return
	}
	vehicleID, err := pathID(r, "vehicleId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid vehicle id", err.Error(), r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		err = s.Standings.RegisterVehicle(r.Context(), eventID, vehicleID)
	case http.MethodDelete:
		err = s.Standings.UnregisterVehicle(r.Context(), eventID, vehicleID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		writeError(w, r, "Update entrants failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateResultHandler handles POST /v1/stage-results
func (s *Server) CreateResultHandler(w http.ResponseWriter, r *http.Request) {
	var in model.StageResultInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateResultInput(in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid stage result", err.Error(), r.URL.Path)
		return
	}
	res, err := s.Standings.CreateResult(r.Context(), in)
	if err != nil {
		writeError(w, r, "Create stage result failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ResultByIDHandler handles PUT/DELETE /v1/stage-results/{id}
func (s *Server) ResultByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid result id", err.Error(), r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var patch model.StageResultPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if patch.ElapsedTimeSeconds != nil && *patch.ElapsedTimeSeconds < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid stage result", "elapsedTimeSeconds must be >= 0", r.URL.Path)
			return
		}
		res, err := s.Standings.UpdateResult(r.Context(), id, patch)
		if err != nil {
			writeError(w, r, "Update stage result failed", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case http.MethodDelete:
		if err := s.Standings.DeleteResult(r.Context(), id); err != nil {
			writeError(w, r, "Delete stage result failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PenaltyHandler handles PUT /v1/stage-results/{id}/penalty. All three
// components are overwritten, either from the JSON body (seconds) or from
// ISO-8601 query params (?penaltyWaypoint=PT30S&penaltySpeed=...&discountClaim=...).
func (s *Server) PenaltyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid result id", err.Error(), r.URL.Path)
		return
	}
	var p model.Penalty
	if hasPenaltyParams(r.URL.Query()) {
		p = penaltyFromQuery(r.URL.Query())
	} else if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validatePenalty(p); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid penalty", err.Error(), r.URL.Path)
		return
	}
	res, err := s.Standings.ApplyPenalty(r.Context(), id, p)
	if err != nil {
		writeError(w, r, "Apply penalty failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// VehicleCategoryHandler handles PUT /v1/vehicles/{vehicleId}/category
func (s *Server) VehicleCategoryHandler(w http.ResponseWriter, r *http.Request) {
	vehicleID, err := pathID(r, "vehicleId")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid vehicle id", err.Error(), r.URL.Path)
		return
	}
	var body struct {
		CategoryID int64 `json:"categoryId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if body.CategoryID <= 0 {
		writeProblem(w, http.StatusBadRequest, "Missing categoryId", "", r.URL.Path)
		return
	}
	events, err := s.Standings.AssignVehicleCategory(r.Context(), vehicleID, body.CategoryID)
	if err != nil {
		writeError(w, r, "Assign category failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicleId": vehicleID, "categoryId": body.CategoryID, "events": events})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB and Redis connectivity when those backends are in use
	type pinger interface {
		Ping(ctx context.Context) error
	}
	for name, dep := range map[string]any{"store": s.Store, "cache": s.Cache} {
		p, ok := dep.(pinger)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, 503, "Not Ready", name+": "+err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
