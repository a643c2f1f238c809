package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockledger/internal/cache"
	"github.com/mamadbah2/stockledger/internal/repository/memory"
	"github.com/mamadbah2/stockledger/internal/server/handlers"
	"github.com/mamadbah2/stockledger/internal/service/stock"
	"github.com/mamadbah2/stockledger/internal/service/stocksync"
	"github.com/mamadbah2/stockledger/internal/service/summary"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T, health handlers.Pinger) *testServer {
	t.Helper()
	c := cache.NewMemoryCache(time.Minute)
	engine := stock.NewEngine(memory.NewRepository(), nil, stock.WithSummaryCache(c))
	h := Handlers{
		Stocks:  handlers.NewStockHandler(engine, nil),
		Reports: handlers.NewReportHandler(summary.NewService(engine, c, nil), stocksync.NewSyncer(engine, 5*time.Second, nil), nil),
		Health:  health,
	}
	return &testServer{t: t, handler: New(h, nil)}
}

func (s *testServer) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *testServer) createStock(product, unit, opening string) string {
	s.t.Helper()
	w, body := s.do(http.MethodPost, "/api/stocks", map[string]any{
		"product":      product,
		"unit":         unit,
		"openingStock": opening,
		"minimumStock": "5",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := body["id"].(string)
	require.NotEmpty(s.t, id)
	return id
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	w, body := s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthzDegraded(t *testing.T) {
	s := newTestServer(t, downPinger{})
	w, body := s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestCreateAndGetStock(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createStock("Rice", "kg", "100")

	w, body := s.do(http.MethodGet, "/api/stocks/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Rice", body["product"])
	assert.Equal(t, "100", body["closingStock"])
	assert.Equal(t, "100", body["stockAvailable"])

	w, body = s.do(http.MethodGet, "/api/stocks?product=ric", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
}

func TestCreateStockValidation(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(http.MethodPost, "/api/stocks", map[string]any{"product": "Rice", "unit": "barrels"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	details, _ := body["details"].(map[string]any)
	fields, _ := details["fields"].(map[string]any)
	assert.Equal(t, "stockunit", fields["unit"])

	s.createStock("Rice", "kg", "10")
	w, body = s.do(http.MethodPost, "/api/stocks", map[string]any{"product": "rice", "unit": "kg"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_ENTRY", body["code"])
}

func TestGetUnknownStock(t *testing.T) {
	s := newTestServer(t, nil)
	w, body := s.do(http.MethodGet, "/api/stocks/64b7f0c2e1a2b3c4d5e6f708", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestUpdateIgnoresDerivedFields(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createStock("Oil", "liters", "20")

	w, body := s.do(http.MethodPut, "/api/stocks/"+id, map[string]any{
		"minimumStock":   "30",
		"closingStock":   "9999",
		"stockAvailable": "9999",
		"isLowStock":     false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "20", body["closingStock"])
	assert.Equal(t, "20", body["stockAvailable"])
	assert.Equal(t, true, body["isLowStock"])
}

func TestAgentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createStock("Rice", "kg", "100")

	w, body := s.do(http.MethodPost, "/api/stocks/"+id+"/allocations", map[string]any{
		"agentId": "A1", "agentName": "Moussa", "quantity": "30",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	agent, _ := body["agent"].(map[string]any)
	assert.Equal(t, "Active", agent["status"])
	rec, _ := body["stock"].(map[string]any)
	assert.Equal(t, "70", rec["stockAvailable"])

	w, body = s.do(http.MethodPost, "/api/stocks/"+id+"/agents/A1/deliveries", map[string]any{"quantity": "40"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "EXCEEDS_STOCK_IN_HAND", body["code"])

	w, body = s.do(http.MethodPost, "/api/stocks/"+id+"/agents/A1/deliveries", map[string]any{"quantity": "20"})
	require.Equal(t, http.StatusOK, w.Code)
	agent, _ = body["agent"].(map[string]any)
	assert.Equal(t, "In Progress", agent["status"])

	w, body = s.do(http.MethodPost, "/api/stocks/"+id+"/agents/A1/returns", map[string]any{"quantity": "10"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	agent, _ = body["agent"].(map[string]any)
	assert.Equal(t, "20", agent["stockInHand"])
	assert.Equal(t, "10", agent["stockReturned"])

	w, body = s.do(http.MethodPost, "/api/stocks/"+id+"/agents/A1/returns", map[string]any{"quantity": "25"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "EXCEEDS_STOCK_IN_HAND", body["code"])

	w, body = s.do(http.MethodPost, "/api/stocks/"+id+"/agents/A1/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	agent, _ = body["agent"].(map[string]any)
	assert.Equal(t, "Completed", agent["status"])
	assert.Equal(t, "0", agent["stockInHand"])

	w, body = s.do(http.MethodGet, "/api/stocks/"+id+"/agents/A1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	agent, _ = body["agent"].(map[string]any)
	assert.Equal(t, "Moussa", agent["agentName"])

	w, _ = s.do(http.MethodGet, "/api/stocks/"+id+"/agents/ZZ", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(http.MethodGet, "/api/stocks/"+id+"/movements?type=agent_allocation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
}

func TestAllocationRejectedWhenShort(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createStock("Rice", "kg", "10")

	w, body := s.do(http.MethodPost, "/api/stocks/"+id+"/allocations", map[string]any{"agentId": "A1", "quantity": "11"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])

	w, body = s.do(http.MethodPost, "/api/stocks/"+id+"/allocations", map[string]any{"quantity": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestBatchAllocation(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createStock("Rice", "kg", "50")

	w, body := s.do(http.MethodPost, "/api/stocks/"+id+"/allocations", map[string]any{
		"allocations": []map[string]any{
			{"agentId": "A1", "quantity": "20"},
			{"agentId": "A2", "quantity": "25"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, body["allocated"])
	assert.EqualValues(t, 0, body["failed"])
	rec, _ := body["stock"].(map[string]any)
	assert.Equal(t, "5", rec["stockAvailable"])

	w, body = s.do(http.MethodPost, "/api/stocks/"+id+"/allocations", map[string]any{
		"allocations": []map[string]any{
			{"agentId": "A3", "quantity": "3"},
			{"agentId": "A4", "quantity": "3"},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])
}

func TestAdjustDeleteAndRefresh(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.createStock("Salt", "box", "10")

	w, body := s.do(http.MethodPost, "/api/stocks/"+id+"/adjust", map[string]any{"quantity": "-4", "reference": "count"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "6", body["closingStock"])

	w, body = s.do(http.MethodPost, "/api/stocks/"+id+"/adjust", map[string]any{"quantity": "-40"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_QUANTITY", body["code"])

	w, _ = s.do(http.MethodPost, "/api/stocks/"+id+"/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(http.MethodDelete, "/api/stocks/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["isActive"])

	w, body = s.do(http.MethodGet, "/api/stocks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])
}

func TestSyncAndSummaries(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(http.MethodPost, "/api/stock/sync", map[string]any{
		"kind":      "purchase",
		"reference": "PO-1",
		"lines": []map[string]any{
			{"product": "Rice", "unit": "kg", "quantity": "100"},
			{"product": "Oil", "unit": "liters", "quantity": "40"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["lines"], 2)

	w, body = s.do(http.MethodPost, "/api/stock/sync", map[string]any{
		"kind":      "sale",
		"reference": "INV-1",
		"lines": []map[string]any{
			{"product": "Rice", "unit": "kg", "quantity": "120"},
			{"product": "Sugar", "unit": "kg", "quantity": "1"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	warnings, _ := body["warnings"].([]any)
	assert.Len(t, warnings, 2)

	w, body = s.do(http.MethodGet, "/api/stock/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["records"])
	assert.Equal(t, "121", body["totalSales"])

	w, body = s.do(http.MethodGet, "/api/stock/agents/summary?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, _ = s.do(http.MethodGet, "/api/stock/agents/summary", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSyncRejectsBadDocuments(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := s.do(http.MethodPost, "/api/stock/sync", map[string]any{"kind": "gift", "reference": "X", "lines": []map[string]any{{"product": "Rice", "unit": "kg", "quantity": "1"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, _ = s.do(http.MethodPost, "/api/stock/sync", map[string]any{"kind": "sale", "reference": "X"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
