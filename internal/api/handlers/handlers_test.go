package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/tracing"
)

func testRouter() (*gin.Engine, *DeliveryHandler, *BillingHandler) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	tracer := &tracing.NewRelicTracer{}

	dh := NewDeliveryHandler(nil, tracer)
	dh.RegisterRoutes(router)
	bh := NewBillingHandler(nil, nil, nil, tracer)
	bh.RegisterRoutes(router)
	return router, dh, bh
}

func TestCreateDeliveryRejectsBadBody(t *testing.T) {
	router, _, _ := testRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/deliveries/shop", strings.NewReader(`{"bags": 2}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateDeliveryRejectsBadDate(t *testing.T) {
	router, _, _ := testRouter()

	body := `{"shop_id":"7f9d2f8a-0f5e-4b9d-9a43-1d2b6a3c4e5f","client_id":"57e1a5a4-93df-4c29-9a0d-2f6f3f3d1b2c","delivery_date":"12.03.2025","bags":2}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/deliveries/shop", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "delivery_date")
}

func TestCalculateRejectsBadID(t *testing.T) {
	router, _, _ := testRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/deliveries/not-a-uuid/calculate", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFreezeRejectsBadShopID(t *testing.T) {
	router, _, _ := testRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/deliveries/shop/freeze?shop_id=nope&month=2025-03", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRespondErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
	}{
		{apperrors.InvalidInput("bad"), http.StatusBadRequest},
		{apperrors.NotFound("missing"), http.StatusNotFound},
		{apperrors.Conflict("frozen"), http.StatusConflict},
		{apperrors.External(errors.New("boom"), "upstream"), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		respondError(c, tc.err)
		require.Equal(t, tc.status, w.Code, tc.err.Error())
	}
}

func TestActorFromHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set("X-Actor-Id", "7f9d2f8a-0f5e-4b9d-9a43-1d2b6a3c4e5f")
	c.Request.Header.Set("X-Actor-Name", "marie")

	actor := actorFromHeaders(c)
	require.Equal(t, "marie", actor.Name)
	require.Equal(t, "7f9d2f8a-0f5e-4b9d-9a43-1d2b6a3c4e5f", actor.ID.String())

	c.Request.Header.Del("X-Actor-Name")
	require.Equal(t, "system", actorFromHeaders(c).Name)
}
