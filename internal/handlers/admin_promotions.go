package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/services"
)

// AdminPromotionHandlers exposes promotion management endpoints.
type AdminPromotionHandlers struct {
	promotions services.PromotionService
}

// NewAdminPromotionHandlers constructs the admin promotion surface.
func NewAdminPromotionHandlers(promotions services.PromotionService) (*AdminPromotionHandlers, error) {
	if promotions == nil {
		return nil, errors.New("handlers: promotion service is required")
	}
	return &AdminPromotionHandlers{promotions: promotions}, nil
}

// Register mounts the promotion routes onto the admin group.
func (h *AdminPromotionHandlers) Register(r chi.Router) {
	r.Get("/promotions", h.list)
	r.Post("/promotions", h.create)
	r.Put("/promotions/{promotionID}", h.update)
	r.Post("/promotions/{promotionID}/deactivate", h.deactivate)
}

// promotionRequest is the write payload. Usage counters and timestamps are
// owned by the service and ignored on input.
type promotionRequest struct {
	Code               string           `json:"code"`
	Name               string           `json:"name"`
	Type               string           `json:"type"`
	Value              int64            `json:"value"`
	Active             bool             `json:"active"`
	StartsAt           time.Time        `json:"startsAt"`
	EndsAt             time.Time        `json:"endsAt"`
	MaxUses            int64            `json:"maxUses"`
	MaxUsesPerUser     int64            `json:"maxUsesPerUser"`
	MinAmount          int64            `json:"minAmount"`
	MaxAmount          int64            `json:"maxAmount"`
	MaxDiscount        int64            `json:"maxDiscount"`
	EligibleProducts   []string         `json:"eligibleProducts"`
	ExcludedProducts   []string         `json:"excludedProducts"`
	EligibleCategories []string         `json:"eligibleCategories"`
	BuyXGetY           *domain.BuyXGetY `json:"buyXGetY"`
}

func (req promotionRequest) toDomain() (domain.Promotion, error) {
	promoType := domain.PromotionType(strings.ToLower(strings.TrimSpace(req.Type)))
	switch promoType {
	case domain.PromotionTypePercentage, domain.PromotionTypeFixed,
		domain.PromotionTypeProductSpecific, domain.PromotionTypeCategorySpecific,
		domain.PromotionTypeBuyXGetY:
	default:
		return domain.Promotion{}, errors.New("unknown promotion type " + strings.TrimSpace(req.Type))
	}

	return domain.Promotion{
		Code:               strings.TrimSpace(req.Code),
		Name:               strings.TrimSpace(req.Name),
		Type:               promoType,
		Value:              req.Value,
		Active:             req.Active,
		StartsAt:           req.StartsAt,
		EndsAt:             req.EndsAt,
		MaxUses:            req.MaxUses,
		MaxUsesPerUser:     req.MaxUsesPerUser,
		MinAmount:          req.MinAmount,
		MaxAmount:          req.MaxAmount,
		MaxDiscount:        req.MaxDiscount,
		EligibleProducts:   req.EligibleProducts,
		ExcludedProducts:   req.ExcludedProducts,
		EligibleCategories: req.EligibleCategories,
		BuyXGetY:           req.BuyXGetY,
	}, nil
}

func (h *AdminPromotionHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	activeOnly := r.URL.Query().Get("active") == "true"
	page, err := h.promotions.List(ctx, activeOnly)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

func (h *AdminPromotionHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req promotionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	promo, err := req.toDomain()
	if err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}

	created, err := h.promotions.Create(ctx, services.UpsertPromotionCommand{
		Promotion: promo,
		ActorID:   actorID(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, created)
}

func (h *AdminPromotionHandlers) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req promotionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	promo, err := req.toDomain()
	if err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}
	promo.ID = chi.URLParam(r, "promotionID")

	updated, err := h.promotions.Update(ctx, services.UpsertPromotionCommand{
		Promotion: promo,
		ActorID:   actorID(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, updated)
}

func (h *AdminPromotionHandlers) deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.promotions.Deactivate(ctx, chi.URLParam(r, "promotionID"), actorID(ctx)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
