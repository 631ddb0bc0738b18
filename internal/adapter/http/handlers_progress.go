package adapthttp

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"soma/internal/app"
	"soma/internal/domain"
	"soma/internal/plot"
)

func (s *Server) progress(r *http.Request) *app.ProgressService {
	return app.NewProgressService(s.storeFor(r)).WithClock(s.now)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":      domain.Catalog(),
		"ranges":       domain.TimeRanges,
		"defaultRange": domain.DefaultTimeRange,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.progress(r).History(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	tr, err := domain.ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	data, err := s.progress(r).Chart(r.Context(), tr, r.URL.Query().Get("unit"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleChartPNG(w http.ResponseWriter, r *http.Request) {
	tr, err := domain.ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	metrics, err := metricsQuery(r, "metrics")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	data, err := s.progress(r).Chart(r.Context(), tr, r.URL.Query().Get("unit"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = plot.RenderPNG(&buf, data.Points, plot.Options{
		Title:   "Progress (" + string(tr) + ")",
		Width:   min(intQuery(r, "width", 960), 4096),
		Height:  min(intQuery(r, "height", 480), 4096),
		Metrics: metrics,
		Unit:    data.Unit,
	})
	if errors.Is(err, plot.ErrNoData) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	metrics, err := metricsQuery(r, "metrics")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sum, err := s.progress(r).Summary(r.Context(), metrics...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": sum})
}
