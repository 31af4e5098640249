package orders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/loomledger/loomledger/internal/platform/httpx"
	"github.com/loomledger/loomledger/internal/shared"
)

func newTestServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func doJSON(t *testing.T, method, url, body string, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandlerCreateAndDetail(t *testing.T) {
	f, srv := newTestServer(t)

	body := fmt.Sprintf(`{"contractor_id": %d, "design_number": "D-55", "date_issued": "2024-01-01",
		"length": 7.10, "width": "5", "price_per_sqft": 12,
		"issuances": [{"stock_id": %d, "weight_kg": 20}]}`, f.alice, f.wool)
	resp := doJSON(t, http.MethodPost, srv.URL+"/orders", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	resp = doJSON(t, http.MethodPost, srv.URL+"/orders", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/orders/%d", srv.URL, created.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail orderDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	require.Equal(t, "D-55", detail.Order.DesignNumber)
	require.Equal(t, StatusOpen, detail.Order.Status)
	requireDec(t, "2000", detail.Financials.IssuedValue)
	// 7ft10in x 5ft x 12 = 470
	requireDec(t, "470", detail.Financials.Wage)
	requireDec(t, "-1530", detail.Financials.AmountPending)
}

func TestHandlerMapsDomainErrors(t *testing.T) {
	f, srv := newTestServer(t)

	body := fmt.Sprintf(`{"contractor_id": %d, "design_number": "D", "date_issued": "2024-01-01",
		"issuances": [{"stock_id": %d, "weight_kg": 999}]}`, f.alice, f.wool)
	resp := doJSON(t, http.MethodPost, srv.URL+"/orders", body)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	require.Equal(t, shared.ReasonInsufficientStock, problem.Type)

	resp = doJSON(t, http.MethodGet, srv.URL+"/orders/404/financials", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/orders", `{"design_number": "D"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	orderID := f.createOrder(t)
	resp = doJSON(t, http.MethodPatch, fmt.Sprintf("%s/orders/%d", srv.URL, orderID), `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	require.Equal(t, shared.ReasonNoOp, problem.Type)

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/orders/%d/complete", srv.URL, orderID), `{"date_completed": "2024-01-03"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/orders/%d/reassign", srv.URL, orderID), fmt.Sprintf(`{"new_contractor_id": %d}`, f.bob))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	require.Equal(t, shared.ReasonInvalidState, problem.Type)

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/orders/%d/return-stock", srv.URL, orderID), fmt.Sprintf(`{"stock_id": %d, "weight_kg": 1}`, f.wool))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	require.Equal(t, shared.ReasonNoPriorIssuance, problem.Type)
}

func TestHandlerListsByStatus(t *testing.T) {
	f, srv := newTestServer(t)
	f.createOrder(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/orders?status=closed", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Empty(t, list)

	resp = doJSON(t, http.MethodGet, srv.URL+"/orders?status=OPEN", "")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	require.Equal(t, "Alice", list[0].ContractorName)
}
