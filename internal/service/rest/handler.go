package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/bulk"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/orders"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/returns"
)

// Handler публикует HTTP-поверхность движка.
type Handler struct {
	store     *orders.Store
	ledger    *inventory.Ledger
	processor *returns.Processor
	executor  *bulk.Executor
	logger    *log.Entry
}

// NewHandler создаёт HTTP-обработчик поверх сервисов движка.
func NewHandler(
	store *orders.Store,
	ledger *inventory.Ledger,
	processor *returns.Processor,
	executor *bulk.Executor,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	return &Handler{
		store:     store,
		ledger:    ledger,
		processor: processor,
		executor:  executor,
		logger:    logger,
	}
}

// Routes собирает маршрутизатор API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
			r.Get("/{id}/timeline", h.getTimeline)
			r.Patch("/{id}/status", h.updateStatus)
			r.Post("/{id}/cancel", h.cancelOrder)
			r.Post("/{id}/tracking", h.addTracking)
			r.Post("/{id}/returns", h.createReturn)
			r.Get("/{id}/returns", h.listReturns)
		})
		r.Route("/returns", func(r chi.Router) {
			r.Get("/{id}", h.getReturn)
			r.Post("/{id}/process", h.processReturn)
			r.Post("/{id}/complete", h.completeReturn)
		})
		r.Route("/bulk-operations", func(r chi.Router) {
			r.Post("/", h.createBulkOperation)
			r.Get("/{id}", h.getBulkOperation)
			r.Post("/{id}/cancel", h.cancelBulkOperation)
		})
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/low-stock", h.lowStockReport)
			r.Get("/{productId}", h.getInventory)
			r.Put("/{productId}", h.putInventory)
		})
	})

	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondDecodeError(w, err)
		return
	}

	input := orders.CreateOrderInput{
		CustomerEmail: req.CustomerEmail,
		DiscountMinor: req.DiscountMinor,
		ShippingMinor: req.ShippingMinor,
		TaxMinor:      req.TaxMinor,
		Shipping: domain.ShippingInfo{
			Name:        req.Shipping.Name,
			AddressLine: req.Shipping.AddressLine,
			City:        req.Shipping.City,
			Country:     req.Shipping.Country,
			PostalCode:  req.Shipping.PostalCode,
		},
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, orders.ItemInput{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Qty:       item.Qty,
		})
	}

	order, err := h.store.CreateOrder(input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.OrderStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		h.respond(w, http.StatusBadRequest, errorBody{Error: errorDetail{
			Kind:    kindValidation,
			Message: "unknown status " + string(status),
		}})
		return
	}

	list, err := h.store.ListByStatus(status, 0)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.Timeline(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toTimelineResponse(events))
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondDecodeError(w, err)
		return
	}

	order, err := h.store.Transition(chi.URLParam(r, "id"), domain.OrderStatus(req.Status))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondDecodeError(w, err)
			return
		}
	}

	order, err := h.store.CancelOrder(chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) addTracking(w http.ResponseWriter, r *http.Request) {
	var req addTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondDecodeError(w, err)
		return
	}

	order, err := h.store.AddTracking(chi.URLParam(r, "id"), req.TrackingNumber, req.Carrier)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var req createReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondDecodeError(w, err)
		return
	}

	input := returns.CreateInput{
		OrderID: chi.URLParam(r, "id"),
		Type:    domain.ReturnType(req.Type),
		Reason:  req.Reason,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, returns.LineInput{
			OrderItemID: line.OrderItemID,
			Qty:         line.Qty,
			Reason:      line.Reason,
			Condition:   line.Condition,
		})
	}

	ret, err := h.processor.Create(input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, toReturnResponse(ret))
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	list, err := h.processor.ListByOrder(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]returnResponse, 0, len(list))
	for _, ret := range list {
		out = append(out, toReturnResponse(ret))
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := h.processor.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toReturnResponse(ret))
}

func (h *Handler) processReturn(w http.ResponseWriter, r *http.Request) {
	var req processReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondDecodeError(w, err)
		return
	}

	var approve bool
	switch req.Action {
	case "approve":
		approve = true
	case "reject":
	default:
		h.respond(w, http.StatusBadRequest, errorBody{Error: errorDetail{
			Kind:    kindValidation,
			Message: "action must be approve or reject",
		}})
		return
	}

	ret, err := h.processor.Process(chi.URLParam(r, "id"), returns.Decision{
		Approve:     approve,
		AmountMinor: req.AmountMinor,
		Note:        req.Note,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toReturnResponse(ret))
}

func (h *Handler) completeReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := h.processor.Complete(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toReturnResponse(ret))
}

// createBulkOperation принимает операцию и запускает её в фоне: клиент
// получает 202 и отслеживает прогресс поллингом GET.
func (h *Handler) createBulkOperation(w http.ResponseWriter, r *http.Request) {
	var req createBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondDecodeError(w, err)
		return
	}

	op, err := h.executor.Create(bulk.CreateInput{
		Type:      domain.BulkOperationType(req.Type),
		TargetIDs: req.TargetIDs,
		Changes: domain.BulkChanges{
			PriceMinor:    req.Changes.PriceMinor,
			Quantity:      req.Changes.Quantity,
			QuantityDelta: req.Changes.QuantityDelta,
			VariantID:     req.Changes.VariantID,
			Status:        domain.OrderStatus(req.Changes.Status),
			Tags:          req.Changes.Tags,
		},
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	go func() {
		if _, err := h.executor.Run(context.Background(), op.ID); err != nil {
			h.logger.WithError(err).WithField("op_id", op.ID).Error("bulk operation run failed")
		}
	}()

	h.respond(w, http.StatusAccepted, toBulkResponse(op))
}

func (h *Handler) getBulkOperation(w http.ResponseWriter, r *http.Request) {
	op, err := h.executor.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toBulkResponse(op))
}

func (h *Handler) cancelBulkOperation(w http.ResponseWriter, r *http.Request) {
	if err := h.executor.Cancel(chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

func (h *Handler) getInventory(w http.ResponseWriter, r *http.Request) {
	key := domain.InventoryKey{
		ProductID: chi.URLParam(r, "productId"),
		VariantID: r.URL.Query().Get("variant_id"),
	}
	rec, err := h.ledger.Get(key)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toInventoryResponse(rec))
}

func (h *Handler) putInventory(w http.ResponseWriter, r *http.Request) {
	var req putInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondDecodeError(w, err)
		return
	}

	rec := domain.InventoryRecord{
		ProductID:         chi.URLParam(r, "productId"),
		VariantID:         req.VariantID,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
		AllowBackorder:    req.AllowBackorder,
		Tracked:           req.Tracked,
		PriceMinor:        req.PriceMinor,
		Tags:              req.Tags,
	}
	if err := h.ledger.Upsert(rec); err != nil {
		h.respondError(w, err)
		return
	}

	stored, err := h.ledger.Get(rec.Key())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respond(w, http.StatusOK, toInventoryResponse(stored))
}

func (h *Handler) lowStockReport(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.LowStockReport()
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]inventoryResponse, 0, len(list))
	for _, rec := range list {
		out = append(out, toInventoryResponse(rec))
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Warn("encode response failed")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("internal error")
		h.respond(w, status, errorBody{Error: errorDetail{Kind: kind, Message: "internal error"}})
		return
	}
	h.respond(w, status, errorBody{Error: errorDetail{Kind: kind, Message: err.Error()}})
}

func (h *Handler) respondDecodeError(w http.ResponseWriter, err error) {
	h.respond(w, http.StatusBadRequest, errorBody{Error: errorDetail{
		Kind:    kindValidation,
		Message: "invalid request body: " + err.Error(),
	}})
}
