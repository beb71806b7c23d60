package rest_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/bulk"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/notify"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/orders"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/rest"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/returns"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	entry := logger.WithField("component", "test")

	invRepo := memory.NewInventoryRepository()
	require.NoError(t, invRepo.Put(domain.InventoryRecord{
		ProductID: "p1", Quantity: 5, LowStockThreshold: 2, Tracked: true, PriceMinor: 100,
	}))

	ledger := inventory.NewLedger(invRepo, entry)
	store := orders.NewStore(
		memory.NewOrderRepository(),
		memory.NewTimelineRepository(),
		memory.NewOrderNumberSequence(),
		ledger,
		notify.NewMockSink(),
		entry,
	)
	processor := returns.NewProcessor(memory.NewReturnRepository(), store, ledger, notify.NewMockSink(), entry)
	executor := bulk.NewExecutor(memory.NewBulkRepository(), ledger, store, notify.NewMockSink(), entry)

	handler := rest.NewHandler(store, ledger, processor, executor, entry)
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

func createOrderBody(qty int) map[string]interface{} {
	return map[string]interface{}{
		"customer_email": "buyer@example.com",
		"items": []map[string]interface{}{
			{"product_id": "p1", "qty": qty},
		},
	}
}

func errorKind(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	detail, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected error body, got %v", body)
	return detail["kind"].(string)
}

func TestCreateOrderEndpoint(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/orders", createOrderBody(2))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "pending", body["status"])
	require.EqualValues(t, 200, body["total_minor"])
	require.NotEmpty(t, body["order_number"])

	// Остаток уменьшился вместе с созданием заказа.
	resp, inv := doJSON(t, http.MethodGet, srv.URL+"/api/v1/inventory/p1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 3, inv["quantity"])
}

func TestCreateOrderEndpoint_InsufficientStock(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/orders", createOrderBody(10))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "insufficient_inventory", errorKind(t, body))
}

func TestCreateOrderEndpoint_Validation(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/orders", map[string]interface{}{
		"customer_email": "buyer@example.com",
		"items":          []map[string]interface{}{},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation", errorKind(t, body))
}

func TestStatusEndpoint_InvalidTransition(t *testing.T) {
	srv := newServer(t)

	_, order := doJSON(t, http.MethodPost, srv.URL+"/api/v1/orders", createOrderBody(1))
	id := order["id"].(string)

	resp, body := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/orders/"+id+"/status",
		map[string]interface{}{"status": "delivered"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "invalid_transition", errorKind(t, body))

	resp, updated := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/orders/"+id+"/status",
		map[string]interface{}{"status": "confirmed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "confirmed", updated["status"])
}

func TestCancelEndpoint_RestoresInventory(t *testing.T) {
	srv := newServer(t)

	_, order := doJSON(t, http.MethodPost, srv.URL+"/api/v1/orders", createOrderBody(2))
	id := order["id"].(string)

	resp, cancelled := doJSON(t, http.MethodPost, srv.URL+"/api/v1/orders/"+id+"/cancel",
		map[string]interface{}{"reason": "test"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "cancelled", cancelled["status"])

	_, inv := doJSON(t, http.MethodGet, srv.URL+"/api/v1/inventory/p1", nil)
	require.EqualValues(t, 5, inv["quantity"])
}

func TestOrderNotFound(t *testing.T) {
	srv := newServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/orders/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", errorKind(t, body))
}

func TestReturnFlowOverHTTP(t *testing.T) {
	srv := newServer(t)

	_, order := doJSON(t, http.MethodPost, srv.URL+"/api/v1/orders", createOrderBody(2))
	id := order["id"].(string)
	items := order["items"].([]interface{})
	itemID := items[0].(map[string]interface{})["id"].(string)

	for _, status := range []string{"confirmed", "processing", "shipped", "out_for_delivery", "delivered"} {
		resp, _ := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/orders/"+id+"/status",
			map[string]interface{}{"status": status})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, ret := doJSON(t, http.MethodPost, srv.URL+"/api/v1/orders/"+id+"/returns", map[string]interface{}{
		"type": "refund",
		"lines": []map[string]interface{}{
			{"order_item_id": itemID, "qty": 1, "reason": "damaged"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.EqualValues(t, 100, ret["requested_amount_minor"])
	returnID := ret["id"].(string)

	resp, processed := doJSON(t, http.MethodPost, srv.URL+"/api/v1/returns/"+returnID+"/process",
		map[string]interface{}{"action": "approve"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "approved", processed["status"])
	require.EqualValues(t, 100, processed["approved_amount_minor"])

	// Повторное решение отклоняется.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/returns/"+returnID+"/process",
		map[string]interface{}{"action": "reject"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "already_processed", errorKind(t, body))
}

func TestBulkOperationOverHTTP(t *testing.T) {
	srv := newServer(t)

	resp, op := doJSON(t, http.MethodPost, srv.URL+"/api/v1/bulk-operations", map[string]interface{}{
		"type":       "update_price",
		"target_ids": []string{"p1", "ghost"},
		"changes":    map[string]interface{}{"price_minor": 250},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	opID := op["id"].(string)

	// Операция выполняется в фоне; дожидаемся завершения поллингом.
	deadline := time.Now().Add(2 * time.Second)
	var final map[string]interface{}
	for {
		resp, current := doJSON(t, http.MethodGet, srv.URL+"/api/v1/bulk-operations/"+opID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		if current["status"] == "completed" || current["status"] == "failed" {
			final = current
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bulk operation did not finish: %v", current)
		}
		time.Sleep(10 * time.Millisecond)
	}

	require.Equal(t, "completed", final["status"])
	require.EqualValues(t, 100, final["progress"])
	require.EqualValues(t, 2, final["processed_items"])
	require.Len(t, final["errors"], 1)

	_, inv := doJSON(t, http.MethodGet, srv.URL+"/api/v1/inventory/p1", nil)
	require.EqualValues(t, 250, inv["price_minor"])
}

func TestInventoryEndpoints(t *testing.T) {
	srv := newServer(t)

	resp, rec := doJSON(t, http.MethodPut, srv.URL+"/api/v1/inventory/p2", map[string]interface{}{
		"quantity":            1,
		"low_stock_threshold": 3,
		"tracked":             true,
		"price_minor":         500,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, rec["low_stock"])

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/inventory/low-stock", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = body

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/inventory/missing", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLowStockReportContents(t *testing.T) {
	srv := newServer(t)

	// p1 имеет порог 2 и остаток 5: в отчёт не попадает, пока остаток не упадёт.
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/orders", createOrderBody(4))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/inventory/low-stock", nil)
	require.NoError(t, err)
	httpResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer httpResp.Body.Close()

	var report []map[string]interface{}
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&report))
	require.Len(t, report, 1)
	require.Equal(t, "p1", report[0]["product_id"])
}

func TestTimelineEndpoint(t *testing.T) {
	srv := newServer(t)

	_, order := doJSON(t, http.MethodPost, srv.URL+"/api/v1/orders", createOrderBody(1))
	id := order["id"].(string)

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/orders/%s/timeline", srv.URL, id), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	require.NotEmpty(t, events)
	require.Equal(t, "OrderCreated", events[0]["type"])
}
