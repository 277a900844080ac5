package alert

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderrepo "github.com/Additional-Code/tableside/internal/repository/order"
	"github.com/Additional-Code/tableside/internal/repository/product"
	orderservice "github.com/Additional-Code/tableside/internal/service/order"
	"github.com/Additional-Code/tableside/internal/service/report"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/internal/store/local"
)

func newHandler(t *testing.T) (*Handler, *orderservice.Service) {
	t.Helper()
	backend, err := local.Open()
	require.NoError(t, err)
	require.NoError(t, backend.Put(context.Background(), store.Products, "1",
		[]byte(`{"name":"Cerveja Gelada 600ml","price":15,"category":"BEBIDAS","stock":48}`)))
	orders, err := orderservice.NewService(orderservice.Params{
		Orders:   orderrepo.NewRepository(backend, nil),
		Products: product.NewRepository(backend, nil),
		Backend:  backend,
	})
	require.NoError(t, err)
	return NewHandler(report.NewHub(), orders), orders
}

func TestStreamDeliversAlertsAsEvents(t *testing.T) {
	h, _ := newHandler(t)
	h.keepAlive = 20 * time.Millisecond
	e := echo.New()
	Register(e, h)
	srv := httptest.NewServer(e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/alerts/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return h.hub.Listeners() == 1 }, time.Second, 5*time.Millisecond)
	h.hub.Publish(report.Alert{NewOrders: 2, Pending: 5, Message: "2 new order(s)"})

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	sawKeepAlive := false
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, ": keep-alive"):
			sawKeepAlive = true
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
		if data != "" && sawKeepAlive {
			break
		}
	}
	require.Equal(t, "alert", event)
	var got report.Alert
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, 2, got.NewOrders)
	assert.Equal(t, 5, got.Pending)

	cancel()
	require.Eventually(t, func() bool { return h.hub.Listeners() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPendingCountsLiveOrders(t *testing.T) {
	h, orders := newHandler(t)
	_, err := orders.Create(context.Background(), 2, []orderservice.LineItem{{ProductID: "1", Quantity: 1}}, "")
	require.NoError(t, err)

	e := echo.New()
	Register(e, h)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/pending", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"pending":1,"listeners":0}}`, rec.Body.String())
}
