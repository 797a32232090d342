package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/preplab/preplab/internal/identity"
	"github.com/preplab/preplab/internal/metrics"
	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/resolver"
	"github.com/preplab/preplab/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	experiments, err := s.registry.List(r.Context(), "")
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	_ = row.Scan(&dbSize)

	response := HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// VariantResponse is the wire shape of a variant lookup.
type VariantResponse struct {
	Variant string `json:"variant"`
	Source  string `json:"source,omitempty"`
	Bucket  *int   `json:"bucket,omitempty"`
	IsNew   bool   `json:"isNew"`
	UserID  string `json:"userId"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleVariant(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	experimentName := r.URL.Query().Get("experiment")
	if experimentName == "" {
		http.Error(w, "experiment parameter required", http.StatusBadRequest)
		return
	}

	// Authenticated callers pass an explicit user id; everyone else
	// gets a stable anonymous identity.
	userID := r.URL.Query().Get("user")
	userID, _ = identity.Resolve(w, r, userID)

	res, err := s.resolver.GetVariant(r.Context(), userID, experimentName)
	if err != nil {
		s.writeVariantError(w, userID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(VariantResponse{
		Variant: res.Variant,
		Source:  string(res.Source),
		Bucket:  res.Bucket,
		IsNew:   res.IsNew,
		UserID:  userID,
	})
}

// ForceRequest pins a user to a variant, bypassing bucketing.
type ForceRequest struct {
	UserID         string `json:"userId"`
	ExperimentName string `json:"experimentName"`
	Variant        string `json:"variant"`
}

func (s *Server) handleForce(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ForceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.ExperimentName == "" || req.Variant == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	res, err := s.resolver.ForceAssign(r.Context(), req.UserID, req.ExperimentName, req.Variant)
	if err != nil {
		s.writeVariantError(w, req.UserID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(VariantResponse{
		Variant: res.Variant,
		Source:  string(res.Source),
		IsNew:   res.IsNew,
		UserID:  req.UserID,
	})
}

// PurchaseRequest records a conversion event.
type PurchaseRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amountCents"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	if err := s.store.RecordPurchase(r.Context(), req.UserID, req.AmountCents); err != nil {
		s.logger.Error("failed to record purchase", zap.Error(err))
		http.Error(w, "Failed to record purchase", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExperimentsAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := store.ExperimentStatus(r.URL.Query().Get("status"))
	experiments, err := s.registry.List(r.Context(), status)
	if err != nil {
		if registry.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to list experiments", http.StatusInternalServerError)
		return
	}

	type ExperimentResponse struct {
		ID             string         `json:"id"`
		Name           string         `json:"name"`
		Description    string         `json:"description,omitempty"`
		Variants       []string       `json:"variants"`
		TrafficSplit   map[string]int `json:"trafficSplit"`
		Status         string         `json:"status"`
		WinningVariant *string        `json:"winningVariant,omitempty"`
		CreatedAt      int64          `json:"createdAt"`
	}

	response := make([]ExperimentResponse, 0, len(experiments))
	for _, e := range experiments {
		response = append(response, ExperimentResponse{
			ID:             e.ID,
			Name:           e.Name,
			Description:    e.Description,
			Variants:       e.Variants,
			TrafficSplit:   e.TrafficSplit,
			Status:         string(e.Status),
			WinningVariant: e.WinningVariant,
			CreatedAt:      e.CreatedAt.Unix(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleMetricsAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	experimentName := r.URL.Query().Get("experiment")
	if experimentName == "" {
		http.Error(w, "experiment parameter required", http.StatusBadRequest)
		return
	}
	dateRange := metrics.Preset(r.URL.Query().Get("range"))

	report, err := s.aggregator.ExperimentMetrics(r.Context(), experimentName, dateRange)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		if err := report.WriteCSV(w); err != nil {
			s.logger.Error("failed to render csv", zap.Error(err))
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (s *Server) writeVariantError(w http.ResponseWriter, userID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case registry.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, resolver.ErrExperimentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, resolver.ErrExperimentDraft), errors.Is(err, resolver.ErrExperimentConcluded):
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(VariantResponse{UserID: userID, Error: err.Error()})
}

func setCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
