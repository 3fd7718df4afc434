package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/store"
)

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.requests.ListRequests(r.Context(), store.RequestFilter{Limit: limit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.RequestRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hdr, err := s.requests.GetRequest(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	matches, err := s.requests.ListMatches(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if matches == nil {
		matches = []model.MatchRecord{}
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		model.RequestDetail
	}{OK: true, RequestDetail: model.RequestDetail{Request: *hdr, Matches: matches}})
}
