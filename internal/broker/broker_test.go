package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpulse/stockpulse/internal/domain"
)

func rec(symbol string, amount float64) domain.Recommendation {
	return domain.Recommendation{
		ID:     "rec-1",
		Symbol: symbol,
		Action: domain.ActionBuy,
		Amount: amount,
	}
}

func TestSubmitPlacesNotionalOrder(t *testing.T) {
	var got orderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/orders", r.URL.Path)
		require.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":               "ord-1",
			"status":           "filled",
			"filled_avg_price": "50.25",
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"}, zerolog.Nop())
	order, err := c.Submit(context.Background(), rec("XYZ", 100))
	require.NoError(t, err)

	assert.Equal(t, "ord-1", order.OrderID)
	assert.Equal(t, 50.25, order.FillPrice)
	assert.Equal(t, "filled", order.Status)
	assert.Equal(t, "XYZ", got.Symbol)
	assert.Equal(t, 100.0, got.Notional)
	assert.Equal(t, "buy", got.Side)
	assert.Equal(t, "market", got.Type)
}

func TestSubmitNullFillPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"ord-2","status":"accepted","filled_avg_price":null}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())
	order, err := c.Submit(context.Background(), rec("XYZ", 100))
	require.NoError(t, err)
	assert.Zero(t, order.FillPrice, "unsettled fills report no price")
}

func TestSubmitRejectionIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"insufficient buying power"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := c.Submit(context.Background(), rec("XYZ", 100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient buying power")
}
