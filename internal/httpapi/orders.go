package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nsridhar76/go-orderrelay/internal/domain"
)

type orderService interface {
	Create(ctx context.Context, customerID string, total float64) (*domain.Order, error)
	Approve(ctx context.Context, id int64) (*domain.Order, error)
	Get(ctx context.Context, id int64) (*domain.Order, error)
	DeliveryTerm(ctx context.Context, orderID int64) (*domain.DeliveryTerm, error)
}

type OrderHandler struct {
	orders orderService
}

func NewOrderHandler(orders orderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type createOrderRequest struct {
	CustomerID string  `json:"customer_id"`
	Total      float64 `json:"total"`
}

type orderDTO struct {
	ID         int64      `json:"id"`
	CustomerID string     `json:"customer_id"`
	Total      float64    `json:"total"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

func toOrderDTO(o *domain.Order) orderDTO {
	return orderDTO{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Total:      o.Total,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		ApprovedAt: o.ApprovedAt,
	}
}

type deliveryTermDTO struct {
	OrderID      int64     `json:"order_id"`
	BaseDate     time.Time `json:"base_date"`
	DeliveryDays int       `json:"delivery_days"`
	DueDate      time.Time `json:"due_date"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}

	o, err := h.orders.Create(r.Context(), req.CustomerID, req.Total)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, toOrderDTO(o))
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toOrderDTO(o))
}

func (h *OrderHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	o, err := h.orders.Approve(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toOrderDTO(o))
}

func (h *OrderHandler) DeliveryTerm(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	t, err := h.orders.DeliveryTerm(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, deliveryTermDTO{
		OrderID:      t.OrderID,
		BaseDate:     t.BaseDate,
		DeliveryDays: t.DeliveryDays,
		DueDate:      t.DueDate(),
	})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "order id must be an integer")
		return 0, false
	}
	return id, true
}
