package api

import (
	"net/http"
	"strings"

	"github.com/safar/qooldab/internal/store"
)

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.reader.GetUser(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, okEnvelope, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "user": user})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1, 0)
	if err != nil {
		respondError(w, okEnvelope, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", defaultPageSize, maxPageSize)
	if err != nil {
		respondError(w, okEnvelope, err)
		return
	}

	filter := store.ProductFilter{
		CategorySlug: strings.TrimSpace(r.URL.Query().Get("category")),
		Sort:         r.URL.Query().Get("sort"),
	}

	result, err := s.reader.ListProducts(r.Context(), filter, page, pageSize)
	if err != nil {
		s.fail(w, r, okEnvelope, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"products":   result.Items,
		"total":      result.Total,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalPages": result.TotalPages,
	})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.reader.GetProductBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.fail(w, r, okEnvelope, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "product": product})
}
