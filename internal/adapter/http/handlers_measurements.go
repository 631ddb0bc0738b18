package adapthttp

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"soma/internal/app"
	"soma/internal/domain"
)

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

func (s *Server) handleListMeasurements(w http.ResponseWriter, r *http.Request) {
	items, err := app.NewMeasurementService(s.storeFor(r)).List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAddMeasurement(w http.ResponseWriter, r *http.Request) {
	var m domain.Measurement
	if err := parseJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user := userFromContext(r)

	created, err := app.NewMeasurementService(s.storeFor(r)).Add(r.Context(), m)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	created.UserID = user.ID
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateMeasurement(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var m domain.Measurement
	if err := parseJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m.ID = id
	m.UserID = userFromContext(r).ID

	if err := app.NewMeasurementService(s.storeFor(r)).Update(r.Context(), m); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMeasurement(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := app.NewMeasurementService(s.storeFor(r)).Remove(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
