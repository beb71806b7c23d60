package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "order-1",
		OrderNumber:   "ORD-2026-000001",
		CustomerEmail: "buyer@example.com",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Items: []domain.OrderItem{
			{
				ID:              "item-1",
				ProductID:       "prod-1",
				Qty:             2,
				UnitPriceMinor:  250,
				TotalPriceMinor: 500,
				CreatedAt:       now,
			},
		},
		SubtotalMinor: 500,
		DiscountMinor: 50,
		ShippingMinor: 100,
		TaxMinor:      25,
		TotalMinor:    575,
		Version:       0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{
			name: "no email",
			mut: func(o *domain.Order) {
				o.CustomerEmail = ""
			},
		},
		{
			name: "no items",
			mut: func(o *domain.Order) {
				o.Items = nil
			},
		},
		{
			name: "qty invalid",
			mut: func(o *domain.Order) {
				o.Items[0].Qty = 0
			},
		},
		{
			name: "price invalid",
			mut: func(o *domain.Order) {
				o.Items[0].UnitPriceMinor = -5
			},
		},
		{
			name: "subtotal mismatch",
			mut: func(o *domain.Order) {
				o.SubtotalMinor = 999
			},
		},
		{
			name: "total identity broken",
			mut: func(o *domain.Order) {
				o.TotalMinor = 1
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			if len(order.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestStatusGraph_Transitions(t *testing.T) {
	cases := []struct {
		from    domain.OrderStatus
		to      domain.OrderStatus
		allowed bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusConfirmed, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusProcessing, true},
		{domain.OrderStatusProcessing, domain.OrderStatusShipped, true},
		{domain.OrderStatusShipped, domain.OrderStatusOutForDelivery, true},
		{domain.OrderStatusOutForDelivery, domain.OrderStatusDelivered, true},
		{domain.OrderStatusDelivered, domain.OrderStatusReturned, true},
		{domain.OrderStatusDelivered, domain.OrderStatusRefunded, true},

		// cancelled достижим из любого нетерминального статуса.
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusConfirmed, domain.OrderStatusCancelled, true},
		{domain.OrderStatusProcessing, domain.OrderStatusCancelled, true},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, true},
		{domain.OrderStatusOutForDelivery, domain.OrderStatusCancelled, true},

		// пропуск этапов и выход из терминальных статусов запрещены.
		{domain.OrderStatusPending, domain.OrderStatusDelivered, false},
		{domain.OrderStatusPending, domain.OrderStatusShipped, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusConfirmed, false},
		{domain.OrderStatusRefunded, domain.OrderStatusPending, false},
		{domain.OrderStatusReturned, domain.OrderStatusDelivered, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected allowed=%v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []domain.OrderStatus{
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusReturned,
		domain.OrderStatusRefunded,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	if domain.OrderStatusProcessing.Terminal() {
		t.Fatal("processing must not be terminal")
	}
}

func TestStampTransition_SetOnce(t *testing.T) {
	order := makeOrder()
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	order.StampTransition(domain.OrderStatusShipped, first)
	order.StampTransition(domain.OrderStatusShipped, second)

	if order.ShippedAt == nil || !order.ShippedAt.Equal(first) {
		t.Fatalf("shippedAt must keep the first stamp, got %v", order.ShippedAt)
	}
}

func TestReturnStatusGraph_ForwardOnly(t *testing.T) {
	if !domain.ReturnStatusPending.CanTransitionTo(domain.ReturnStatusApproved) {
		t.Fatal("pending -> approved must be allowed")
	}
	if !domain.ReturnStatusApproved.CanTransitionTo(domain.ReturnStatusCompleted) {
		t.Fatal("approved -> completed must be allowed")
	}
	if domain.ReturnStatusApproved.CanTransitionTo(domain.ReturnStatusPending) {
		t.Fatal("backward transition must be rejected")
	}
	if domain.ReturnStatusRejected.CanTransitionTo(domain.ReturnStatusCompleted) {
		t.Fatal("rejected is terminal")
	}
}

func TestBulkRecalcProgress_Monotonic(t *testing.T) {
	op := domain.BulkOperation{TotalItems: 3}

	var observed []int
	for i := 1; i <= 3; i++ {
		op.ProcessedItems = i
		op.RecalcProgress()
		observed = append(observed, op.Progress)
	}

	for i := 1; i < len(observed); i++ {
		if observed[i] < observed[i-1] {
			t.Fatalf("progress decreased: %v", observed)
		}
	}
	if observed[len(observed)-1] != 100 {
		t.Fatalf("progress must reach 100 when all items processed, got %d", observed[len(observed)-1])
	}
}

func TestInventoryRecordQueries(t *testing.T) {
	cases := []struct {
		name        string
		rec         domain.InventoryRecord
		low         bool
		out         bool
		backordered bool
	}{
		{
			name: "healthy stock",
			rec:  domain.InventoryRecord{Tracked: true, Quantity: 10, LowStockThreshold: 3},
		},
		{
			name: "low stock",
			rec:  domain.InventoryRecord{Tracked: true, Quantity: 2, LowStockThreshold: 3},
			low:  true,
		},
		{
			name: "out of stock",
			rec:  domain.InventoryRecord{Tracked: true, Quantity: 0, LowStockThreshold: 3},
			low:  true,
			out:  true,
		},
		{
			name:        "backorder debt is not a plain stock-out",
			rec:         domain.InventoryRecord{Tracked: true, AllowBackorder: true, Quantity: -4},
			low:         true,
			out:         true,
			backordered: true,
		},
		{
			name: "untracked never reports",
			rec:  domain.InventoryRecord{Tracked: false, Quantity: 0},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rec.LowStock(); got != tc.low {
				t.Fatalf("LowStock: expected %v, got %v", tc.low, got)
			}
			if got := tc.rec.OutOfStock(); got != tc.out {
				t.Fatalf("OutOfStock: expected %v, got %v", tc.out, got)
			}
			if got := tc.rec.Backordered(); got != tc.backordered {
				t.Fatalf("Backordered: expected %v, got %v", tc.backordered, got)
			}
		})
	}
}
