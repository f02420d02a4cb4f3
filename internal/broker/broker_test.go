package broker

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ksred/klear-commissions/internal/config"
	"github.com/ksred/klear-commissions/internal/database"
	"github.com/ksred/klear-commissions/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.NewDatabase(config.DBConfig{Driver: config.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	return NewService(db)
}

func TestCreateAndListBrokers(t *testing.T) {
	svc := newTestService(t)

	zoe, err := svc.CreateBroker(CreateBrokerRequest{Name: "  Zoe Lane ", Email: "Zoe@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Zoe Lane", zoe.Name)
	assert.Equal(t, "zoe@example.com", zoe.Email)
	assert.Contains(t, zoe.BrokerID, "BRK_")

	adam, err := svc.CreateBroker(CreateBrokerRequest{Name: "Adam Reyes"})
	require.NoError(t, err)

	brokers, err := svc.ListBrokers()
	require.NoError(t, err)
	require.Len(t, brokers, 2)
	assert.Equal(t, adam.BrokerID, brokers[0].ID)
	assert.Equal(t, "Zoe Lane", brokers[1].Name)

	names, err := svc.LookupNames([]string{zoe.BrokerID, "BRK_missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{zoe.BrokerID: "Zoe Lane"}, names)
}

func TestCreateBrokerValidation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateBroker(CreateBrokerRequest{Name: "   "})
	var validationErr *response.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = svc.CreateBroker(CreateBrokerRequest{Name: "Ann", Email: "not-an-email"})
	assert.ErrorAs(t, err, &validationErr)

	_, err = svc.CreateBroker(CreateBrokerRequest{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	_, err = svc.CreateBroker(CreateBrokerRequest{Name: "Ann Again", Email: "ANN@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateBroker)
}

func TestGetBrokerNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetBroker("BRK_missing")
	assert.ErrorIs(t, err, ErrBrokerNotFound)
	assert.ErrorIs(t, err, response.ErrNotFound)
}

func TestLookupNamesEmpty(t *testing.T) {
	svc := newTestService(t)

	names, err := svc.LookupNames(nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestBrokerHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewGinHandlers(newTestService(t))

	r := gin.New()
	r.POST("/brokers", h.CreateBrokerHandler())
	r.GET("/brokers", h.ListBrokersHandler())

	post := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/brokers", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, post(`{"name":"Dana","email":"dana@example.com"}`))
	assert.Equal(t, http.StatusConflict, post(`{"name":"Dana 2","email":"dana@example.com"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"email":"x@example.com"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"name":"Eve","email":"nope"}`))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/brokers", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Dana")
}
