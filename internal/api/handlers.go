package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clarity-dx/referral-portal/internal/auth"
	"github.com/clarity-dx/referral-portal/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Email == "" || req.Password == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	user, err := s.identity.Authenticate(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
			return
		}
		respondError(w, err)
		return
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.portal.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.portal.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleProcessOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.portal.Process(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExtractedData model.ExtractedData `json:"extracted_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := s.portal.UpdateFields(r.Context(), chi.URLParam(r, "orderID"), req.ExtractedData, editorIdentity(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleApproveOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.portal.Approve(r.Context(), chi.URLParam(r, "orderID"), editorIdentity(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handleFetchProviders(w http.ResponseWriter, r *http.Request) {
	order, err := s.portal.FetchProviders(r.Context(), chi.URLParam(r, "orderID"), r.URL.Query().Get("proc_code"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order.ProviderMapping)
}

func (s *Server) handleSelectProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderID string `json:"provider_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := s.portal.SelectProvider(r.Context(), chi.URLParam(r, "orderID"), req.ProviderID, editorIdentity(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (s *Server) handlePackageForCRM(w http.ResponseWriter, r *http.Request) {
	order, export, err := s.portal.PackageForCRM(r.Context(), chi.URLParam(r, "orderID"), editorIdentity(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"order": order, "export": export})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := s.portal.AuditTrail(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.ListDocuments(chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	filename := chi.URLParam(r, "filename")

	if r.URL.Query().Get("view") == "email" {
		email, err := s.docs.EmailView(orderID, filename)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, email)
		return
	}

	data, contentType, err := s.docs.ReadDocument(orderID, filename)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// editorIdentity names the editor for provenance stamps: the authenticated
// user's email when present.
func editorIdentity(r *http.Request) string {
	if user, ok := auth.FromContext(r.Context()); ok {
		return user.Email
	}
	return ""
}
