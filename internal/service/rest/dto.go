package rest

import (
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type createOrderRequest struct {
	Items         []orderItemRequest `json:"items"`
	CustomerEmail string             `json:"customer_email"`
	Shipping      shippingRequest    `json:"shipping"`
	DiscountMinor int64              `json:"discount_minor"`
	ShippingMinor int64              `json:"shipping_minor"`
	TaxMinor      int64              `json:"tax_minor"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Qty       int32  `json:"qty"`
}

type shippingRequest struct {
	Name        string `json:"name"`
	AddressLine string `json:"address_line"`
	City        string `json:"city"`
	Country     string `json:"country"`
	PostalCode  string `json:"postal_code"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type addTrackingRequest struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

type createReturnRequest struct {
	Type   string              `json:"type"`
	Reason string              `json:"reason"`
	Lines  []returnLineRequest `json:"lines"`
}

type returnLineRequest struct {
	OrderItemID string `json:"order_item_id"`
	Qty         int32  `json:"qty"`
	Reason      string `json:"reason,omitempty"`
	Condition   string `json:"condition,omitempty"`
}

type processReturnRequest struct {
	Action      string `json:"action"`
	AmountMinor *int64 `json:"amount_minor,omitempty"`
	Note        string `json:"note,omitempty"`
}

type createBulkRequest struct {
	Type      string             `json:"type"`
	TargetIDs []string           `json:"target_ids"`
	Changes   bulkChangesRequest `json:"changes"`
}

type bulkChangesRequest struct {
	PriceMinor    *int64   `json:"price_minor,omitempty"`
	Quantity      *int64   `json:"quantity,omitempty"`
	QuantityDelta *int64   `json:"quantity_delta,omitempty"`
	VariantID     string   `json:"variant_id,omitempty"`
	Status        string   `json:"status,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

type putInventoryRequest struct {
	VariantID         string   `json:"variant_id,omitempty"`
	Quantity          int64    `json:"quantity"`
	LowStockThreshold int64    `json:"low_stock_threshold"`
	AllowBackorder    bool     `json:"allow_backorder"`
	Tracked           bool     `json:"tracked"`
	PriceMinor        int64    `json:"price_minor"`
	Tags              []string `json:"tags,omitempty"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	OrderNumber   string              `json:"order_number"`
	CustomerEmail string              `json:"customer_email"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"payment_status"`
	Items         []orderItemResponse `json:"items"`

	SubtotalMinor int64 `json:"subtotal_minor"`
	DiscountMinor int64 `json:"discount_minor"`
	ShippingMinor int64 `json:"shipping_minor"`
	TaxMinor      int64 `json:"tax_minor"`
	TotalMinor    int64 `json:"total_minor"`
	RefundedMinor int64 `json:"refunded_minor,omitempty"`

	Shipping   shippingResponse `json:"shipping"`
	CancelNote string           `json:"cancel_note,omitempty"`

	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type orderItemResponse struct {
	ID              string `json:"id"`
	ProductID       string `json:"product_id"`
	VariantID       string `json:"variant_id,omitempty"`
	Qty             int32  `json:"qty"`
	UnitPriceMinor  int64  `json:"unit_price_minor"`
	TotalPriceMinor int64  `json:"total_price_minor"`
}

type shippingResponse struct {
	Name           string `json:"name,omitempty"`
	AddressLine    string `json:"address_line,omitempty"`
	City           string `json:"city,omitempty"`
	Country        string `json:"country,omitempty"`
	PostalCode     string `json:"postal_code,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

type returnResponse struct {
	ID      string               `json:"id"`
	OrderID string               `json:"order_id"`
	Type    string               `json:"type"`
	Status  string               `json:"status"`
	Reason  string               `json:"reason,omitempty"`
	Lines   []returnLineResponse `json:"lines"`

	RequestedAmountMinor int64 `json:"requested_amount_minor"`
	ApprovedAmountMinor  int64 `json:"approved_amount_minor"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

type returnLineResponse struct {
	OrderItemID string `json:"order_item_id"`
	Qty         int32  `json:"qty"`
	Reason      string `json:"reason,omitempty"`
	Condition   string `json:"condition,omitempty"`
}

type bulkOperationResponse struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	TargetIDs []string `json:"target_ids"`

	Status         string              `json:"status"`
	Progress       int                 `json:"progress"`
	ProcessedItems int                 `json:"processed_items"`
	TotalItems     int                 `json:"total_items"`
	Errors         []bulkErrorResponse `json:"errors,omitempty"`
	Cancelled      bool                `json:"cancelled,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type bulkErrorResponse struct {
	TargetID string `json:"target_id"`
	Message  string `json:"message"`
}

type inventoryResponse struct {
	ProductID         string   `json:"product_id"`
	VariantID         string   `json:"variant_id,omitempty"`
	Quantity          int64    `json:"quantity"`
	LowStockThreshold int64    `json:"low_stock_threshold"`
	AllowBackorder    bool     `json:"allow_backorder"`
	Tracked           bool     `json:"tracked"`
	PriceMinor        int64    `json:"price_minor"`
	Tags              []string `json:"tags,omitempty"`
	LowStock          bool     `json:"low_stock"`
	OutOfStock        bool     `json:"out_of_stock"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ID:              it.ID,
			ProductID:       it.ProductID,
			VariantID:       it.VariantID,
			Qty:             it.Qty,
			UnitPriceMinor:  it.UnitPriceMinor,
			TotalPriceMinor: it.TotalPriceMinor,
		})
	}
	return orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerEmail: o.CustomerEmail,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Items:         items,
		SubtotalMinor: o.SubtotalMinor,
		DiscountMinor: o.DiscountMinor,
		ShippingMinor: o.ShippingMinor,
		TaxMinor:      o.TaxMinor,
		TotalMinor:    o.TotalMinor,
		RefundedMinor: o.RefundedMinor,
		Shipping: shippingResponse{
			Name:           o.Shipping.Name,
			AddressLine:    o.Shipping.AddressLine,
			City:           o.Shipping.City,
			Country:        o.Shipping.Country,
			PostalCode:     o.Shipping.PostalCode,
			TrackingNumber: o.Shipping.TrackingNumber,
			Carrier:        o.Shipping.Carrier,
		},
		CancelNote:  o.CancelNote,
		ShippedAt:   o.ShippedAt,
		DeliveredAt: o.DeliveredAt,
		CancelledAt: o.CancelledAt,
		RefundedAt:  o.RefundedAt,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func toReturnResponse(r domain.ReturnRequest) returnResponse {
	lines := make([]returnLineResponse, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, returnLineResponse{
			OrderItemID: line.OrderItemID,
			Qty:         line.Qty,
			Reason:      line.Reason,
			Condition:   line.Condition,
		})
	}
	return returnResponse{
		ID:                   r.ID,
		OrderID:              r.OrderID,
		Type:                 string(r.Type),
		Status:               string(r.Status),
		Reason:               r.Reason,
		Lines:                lines,
		RequestedAmountMinor: r.RequestedAmountMinor,
		ApprovedAmountMinor:  r.ApprovedAmountMinor,
		CreatedAt:            r.CreatedAt,
		ProcessedAt:          r.ProcessedAt,
	}
}

func toBulkResponse(op domain.BulkOperation) bulkOperationResponse {
	errs := make([]bulkErrorResponse, 0, len(op.Errors))
	for _, e := range op.Errors {
		errs = append(errs, bulkErrorResponse{TargetID: e.TargetID, Message: e.Message})
	}
	return bulkOperationResponse{
		ID:             op.ID,
		Type:           string(op.Type),
		TargetIDs:      op.TargetIDs,
		Status:         string(op.Status),
		Progress:       op.Progress,
		ProcessedItems: op.ProcessedItems,
		TotalItems:     op.TotalItems,
		Errors:         errs,
		Cancelled:      op.Cancelled,
		CreatedAt:      op.CreatedAt,
		StartedAt:      op.StartedAt,
		FinishedAt:     op.FinishedAt,
	}
}

func toInventoryResponse(rec domain.InventoryRecord) inventoryResponse {
	return inventoryResponse{
		ProductID:         rec.ProductID,
		VariantID:         rec.VariantID,
		Quantity:          rec.Quantity,
		LowStockThreshold: rec.LowStockThreshold,
		AllowBackorder:    rec.AllowBackorder,
		Tracked:           rec.Tracked,
		PriceMinor:        rec.PriceMinor,
		Tags:              rec.Tags,
		LowStock:          rec.LowStock(),
		OutOfStock:        rec.OutOfStock(),
	}
}

func toTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, timelineEventResponse{
			Type:     ev.Type,
			Reason:   ev.Reason,
			Occurred: ev.Occurred,
		})
	}
	return out
}
