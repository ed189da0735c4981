package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mselser95/pm-endgame/internal/storage"
	"github.com/mselser95/pm-endgame/pkg/types"
	"go.uber.org/zap"
)

// APIHandler handles HTTP requests for stored market data.
type APIHandler struct {
	storage         storage.Storage
	defaultPageSize int
	maxPageSize     int
	logger          *zap.Logger
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(store storage.Storage, defaultPageSize, maxPageSize int, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		storage:         store,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		logger:          logger,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
}

// OpportunitiesResponse represents one page of ranked recommendations.
type OpportunitiesResponse struct {
	Opportunities []types.Recommendation `json:"opportunities"`
	Total         int64                  `json:"total"`
	Limit         int                    `json:"limit"`
	Offset        int                    `json:"offset"`
}

// MarketDetailsResponse joins a market row with its latest snapshots.
// Sections are omitted when the corresponding row does not exist yet.
type MarketDetailsResponse struct {
	Market         *types.Market         `json:"market"`
	Quote          *types.Quote          `json:"quote,omitempty"`
	Rule           *types.RuleSnapshot   `json:"rule,omitempty"`
	Score          *types.Score          `json:"score,omitempty"`
	Recommendation *types.Recommendation `json:"recommendation,omitempty"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleHealth handles GET /health requests by probing database
// connectivity with a trivial round-trip.
func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := HealthResponse{Status: "healthy", Database: true}

	if err := h.storage.Ping(r.Context()); err != nil {
		h.logger.Warn("health-database-probe-failed", zap.Error(err))
		status = http.StatusServiceUnavailable
		response = HealthResponse{Status: "unhealthy", Database: false}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// HandleOpportunities handles GET /v1/opportunities requests. Query
// parameters min_score, max_t_remaining_sec, max_risk_score and has_flags
// filter the listing; limit and offset paginate it.
func (h *APIHandler) HandleOpportunities(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseRecFilter(r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Debug("opportunities-request-received",
		zap.Int("limit", filter.Limit),
		zap.Int("offset", filter.Offset))

	recs, err := h.storage.ListRecs(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed-to-list-recommendations", zap.Error(err))
		h.writeError(w, "failed to fetch opportunities", http.StatusInternalServerError)
		return
	}

	total, err := h.storage.CountRecs(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed-to-count-recommendations", zap.Error(err))
		h.writeError(w, "failed to count opportunities", http.StatusInternalServerError)
		return
	}

	if recs == nil {
		recs = []types.Recommendation{}
	}

	response := OpportunitiesResponse{
		Opportunities: recs,
		Total:         total,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	err = json.NewEncoder(w).Encode(response)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// HandleMarket handles GET /v1/market/{market_id} requests. The snapshot
// sections are best effort: a market that has not been quoted or scored
// yet simply has no corresponding section.
func (h *APIHandler) HandleMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "market_id")

	h.logger.Debug("market-request-received", zap.String("market-id", marketID))

	ctx := r.Context()

	market, err := h.storage.GetMarket(ctx, marketID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			h.writeError(w, "market not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed-to-fetch-market",
			zap.String("market-id", marketID),
			zap.Error(err))
		h.writeError(w, "failed to fetch market", http.StatusInternalServerError)
		return
	}

	response := MarketDetailsResponse{Market: market}

	if quote, err := h.storage.GetQuoteLatest(ctx, marketID); err == nil {
		response.Quote = quote
	}
	if rule, err := h.storage.GetRule(ctx, marketID); err == nil {
		response.Rule = rule
	}
	if score, err := h.storage.GetScore(ctx, marketID); err == nil {
		response.Score = score
	}
	if rec, err := h.storage.GetRec(ctx, marketID); err == nil {
		response.Recommendation = rec
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	err = json.NewEncoder(w).Encode(response)
	if err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// parseRecFilter builds a recommendation filter from query parameters.
// The limit is clamped to [1, maxPageSize] and defaults to defaultPageSize;
// the offset defaults to 0 and is never negative.
func (h *APIHandler) parseRecFilter(r *http.Request) (storage.RecFilter, error) {
	q := r.URL.Query()
	filter := storage.RecFilter{Limit: h.defaultPageSize}

	if v := q.Get("min_score"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid min_score %q", v)
		}
		filter.MinScore = &n
	}
	if v := q.Get("max_t_remaining_sec"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid max_t_remaining_sec %q", v)
		}
		filter.MaxTRemainingSec = &n
	}
	if v := q.Get("max_risk_score"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid max_risk_score %q", v)
		}
		filter.MaxRiskScore = &n
	}
	if v := q.Get("has_flags"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid has_flags %q", v)
		}
		filter.HasFlags = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid limit %q", v)
		}
		filter.Limit = n
	}
	if filter.Limit < 1 {
		filter.Limit = 1
	}
	if filter.Limit > h.maxPageSize {
		filter.Limit = h.maxPageSize
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid offset %q", v)
		}
		if n > 0 {
			filter.Offset = n
		}
	}

	return filter, nil
}

// writeError writes a JSON error response.
func (h *APIHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{Error: message}
	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		h.logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
