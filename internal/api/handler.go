package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"offer-storefront-engine/internal/engine"
	"offer-storefront-engine/internal/lifecycle"
	"offer-storefront-engine/internal/observability"
	"offer-storefront-engine/internal/storage"
)

// RedemptionCounter is the slice of the redemption store handlers need.
type RedemptionCounter interface {
	Count(ctx context.Context, offerID string) (int, error)
	Record(ctx context.Context, offerID string) (int, error)
}

type Handler struct {
	Eng            *engine.Engine
	Offers         *storage.OfferStateCache
	Redemptions    RedemptionCounter
	PrequalEnabled bool
}

func NewHandler(eng *engine.Engine, offers *storage.OfferStateCache, redemptions RedemptionCounter, prequalEnabled bool) *Handler {
	return &Handler{Eng: eng, Offers: offers, Redemptions: redemptions, PrequalEnabled: prequalEnabled}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type decisionsRequest struct {
	Attributes              engine.CustomerAttributes `json:"attributes"`
	IncludePrequalification bool                      `json:"includePrequalification"`
}

type decisionsResponse struct {
	EvaluationID string            `json:"evaluationId"`
	Decisions    []engine.Decision `json:"decisions"`
}

// Decisions evaluates a customer attribute map against every active product.
func (h *Handler) Decisions(w http.ResponseWriter, r *http.Request) {
	var req decisionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Attributes) == 0 {
		writeError(w, http.StatusBadRequest, "attributes are required")
		return
	}

	opts := engine.Options{
		IncludePrequalification: req.IncludePrequalification && h.PrequalEnabled,
	}
	decisions := h.Eng.Evaluate(req.Attributes, opts)

	observability.EvaluationsTotal.Inc()
	for _, d := range decisions {
		if d.Visible {
			observability.DecisionsTotal.WithLabelValues("visible").Inc()
		} else {
			observability.DecisionsTotal.WithLabelValues("hidden").Inc()
		}
	}

	writeJSON(w, http.StatusOK, decisionsResponse{
		EvaluationID: uuid.NewString(),
		Decisions:    decisions,
	})
}

type lifecycleResponse struct {
	ProductID       string           `json:"productId"`
	Status          lifecycle.Status `json:"status"`
	ExpiresAt       *time.Time       `json:"expiresAt,omitempty"`
	RedemptionCount int              `json:"redemptionCount"`
	Signal          lifecycle.Signal `json:"signal"`
}

// Lifecycle reports the lazily recomputed lifecycle status for one product
// instance. The evaluation clock comes from the ?now query parameter when
// present, so callers control elapsed time.
func (h *Handler) Lifecycle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.Eng.ProductByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown product")
		return
	}

	now := evalClock(r)
	resp := h.evaluateLifecycle(r.Context(), p, now)
	writeJSON(w, http.StatusOK, resp)
}

// RecordRedemption increments the offer's redemption count and returns the
// recomputed lifecycle status.
func (h *Handler) RecordRedemption(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.Eng.ProductByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown product")
		return
	}

	if _, err := h.Redemptions.Record(r.Context(), id); err != nil {
		log.Error().Err(err).Str("product", id).Msg("record redemption")
		writeError(w, http.StatusInternalServerError, "failed to record redemption")
		return
	}

	now := evalClock(r)
	resp := h.evaluateLifecycle(r.Context(), p, now)
	writeJSON(w, http.StatusOK, resp)
}

type campaignOffersResponse struct {
	CampaignID  string                          `json:"campaignId"`
	Keep        []string                        `json:"keep"`
	Promote     []string                        `json:"promote"`
	Notify      []string                        `json:"notify"`
	Evaluations map[string]lifecycle.Evaluation `json:"evaluations"`
}

// CampaignOffers refreshes a whole campaign's active offer list: expired
// offers are dropped or replaced per their expiration action, notify-only
// expirations stay visible.
func (h *Handler) CampaignOffers(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")
	now := evalClock(r)

	var offers []lifecycle.Offer
	for _, p := range h.Eng.Products() {
		if p.CampaignID != campaignID || p.Perpetual == nil {
			continue
		}
		offers = append(offers, lifecycle.Offer{
			ID:       p.ID,
			Settings: *p.Perpetual,
			State:    h.offerState(r.Context(), p),
		})
	}
	if len(offers) == 0 {
		writeError(w, http.StatusNotFound, "unknown campaign")
		return
	}

	res := lifecycle.EvaluateSet(offers, now)
	for _, ev := range res.Evaluations {
		if ev.Status == lifecycle.StatusExpired {
			observability.OffersExpired.Inc()
		}
	}
	for _, id := range res.Promote {
		h.Offers.Promote(id, now)
	}

	writeJSON(w, http.StatusOK, campaignOffersResponse{
		CampaignID:  campaignID,
		Keep:        res.Keep,
		Promote:     res.Promote,
		Notify:      res.Notify,
		Evaluations: res.Evaluations,
	})
}

func (h *Handler) evaluateLifecycle(ctx context.Context, p engine.Product, now time.Time) lifecycleResponse {
	st := h.offerState(ctx, p)

	var settings lifecycle.Settings
	if p.Perpetual != nil {
		settings = *p.Perpetual
	}
	ev := lifecycle.Evaluate(settings, st, now)
	if ev.Status == lifecycle.StatusExpired {
		observability.OffersExpired.Inc()
	}

	return lifecycleResponse{
		ProductID:       p.ID,
		Status:          ev.Status,
		ExpiresAt:       ev.ExpiresAt,
		RedemptionCount: st.RedemptionCount,
		Signal:          ev.Signal,
	}
}

// offerState assembles lifecycle input: add time from the state cache
// (lazily seeded from the product row) and the redemption count from the
// redemption store. A counter read failure degrades to 0 so a Redis outage
// never expires an offer.
func (h *Handler) offerState(ctx context.Context, p engine.Product) lifecycle.State {
	st, ok := h.Offers.Get(p.ID)
	if !ok {
		st = storage.OfferState{AddedAt: p.AddedAt}
		h.Offers.Seed(p.ID, st)
	}

	count := 0
	if h.Redemptions != nil {
		n, err := h.Redemptions.Count(ctx, p.ID)
		if err != nil {
			log.Warn().Err(err).Str("product", p.ID).Msg("redemption count unavailable")
		} else {
			count = n
		}
	}
	return lifecycle.State{AddedAt: st.AddedAt, RedemptionCount: count, Queued: st.Queued}
}

func evalClock(r *http.Request) time.Time {
	if raw := r.URL.Query().Get("now"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
	}
	return time.Now()
}
