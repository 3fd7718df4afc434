package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/registry"
)

func (s *Server) listVendors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	vendors, err := s.vendors.List(r.Context(), q.Get("q"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if vendors == nil {
		vendors = []model.SupplierRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(vendors), "vendors": vendors})
}

func (s *Server) createVendor(w http.ResponseWriter, r *http.Request) {
	var in registry.VendorInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := s.vendors.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "vendor": rec})
}

func (s *Server) updateVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := vendorID(w, r)
	if !ok {
		return
	}
	var p registry.VendorPatch
	if !decode(w, r, &p) {
		return
	}
	if err := s.vendors.Update(r.Context(), id, p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (s *Server) deleteVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := vendorID(w, r)
	if !ok {
		return
	}
	if err := s.vendors.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func vendorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeFail(w, http.StatusBadRequest, "invalid vendor id")
		return 0, false
	}
	return id, true
}
