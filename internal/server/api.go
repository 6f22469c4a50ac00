package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitushen/langdonboard/internal/adapter"
	"github.com/hitushen/langdonboard/internal/models"
	"github.com/hitushen/langdonboard/internal/store"
	"github.com/hitushen/langdonboard/internal/targets"
)

// ErrInvalidPage 表示 page 参数不是整数。
var ErrInvalidPage = errors.New("invalid page")

func (s *Server) apiOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.source.Overview(r.Context())
	if err != nil {
		writeErr(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, overview)
}

func (s *Server) apiPromisingFindings(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r.URL.Query().Get("page"))
	if err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	res, err := s.source.Findings(r.Context(), adapter.Page(page))
	if err != nil {
		writeErr(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

// pageParam 解析可选页码，缺省与负数按 0 处理。
func pageParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPage, raw)
	}
	return adapter.PageNumber(&n), nil
}

func (s *Server) apiScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	if _, err := targets.Parse(body.Address); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	if !s.scanner.Schedule(body.Address) {
		writeMessage(w, "scan already running", http.StatusConflict)
		return
	}
	writeJSONStatus(w, map[string]string{"status": "scheduled", "target": targets.Normalize(body.Address)}, http.StatusAccepted)
}

func (s *Server) entityDetail(t models.FindingType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeErr(w, err, http.StatusBadRequest)
			return
		}
		ctx := r.Context()
		var entity interface{}
		switch t {
		case models.FindingDomain:
			entity, err = s.store.GetDomain(ctx, id)
		case models.FindingTechnology:
			entity, err = s.store.GetTechnology(ctx, id)
		case models.FindingUsedPort:
			entity, err = s.store.GetUsedPort(ctx, id)
		case models.FindingVulnerability:
			entity, err = s.store.GetVulnerability(ctx, id)
		case models.FindingWebDirectory:
			entity, err = s.store.GetWebDirectory(ctx, id)
		default:
			writeMessage(w, "unknown entity", http.StatusNotFound)
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, err, http.StatusNotFound)
			return
		}
		if err != nil {
			writeErr(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"type": t, "entity": entity})
	}
}
