package commission

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ksred/klear-commissions/internal/broker"
	"github.com/ksred/klear-commissions/internal/config"
	"github.com/ksred/klear-commissions/internal/database"
	"github.com/ksred/klear-commissions/internal/deal"
	"github.com/ksred/klear-commissions/internal/payment"
	"github.com/ksred/klear-commissions/internal/split"
	"github.com/ksred/klear-commissions/internal/types"
	"github.com/ksred/klear-commissions/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const delta = 1e-9

type fixture struct {
	db        *gorm.DB
	service   *Service
	deals     *deal.Service
	dealID    string
	paymentID string
	ada, ben  string
	adaSplit  string
	benSplit  string
}

// newFixture creates a deal with pools 10000/5000/8000 and one payment of
// 23000 split between two brokers with no percentages set
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewDatabase(config.DBConfig{Driver: config.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)

	cache := split.NewCache(32)
	brokers := broker.NewService(db)
	service := NewService(db, brokers, cache)
	deals := deal.NewService(db, service)
	payments := payment.NewService(db, brokers, cache)

	ada, err := brokers.CreateBroker(broker.CreateBrokerRequest{Name: "Ada"})
	require.NoError(t, err)
	ben, err := brokers.CreateBroker(broker.CreateBrokerRequest{Name: "Ben"})
	require.NoError(t, err)

	d, err := deals.CreateDeal(deal.CreateDealRequest{
		DealName:         "Harbor Lease",
		FeeUSD:           23000,
		OriginationUSD:   split.Float(10000),
		SiteUSD:          split.Float(5000),
		DealUSD:          split.Float(8000),
		NumberOfPayments: 1,
	}, "fixture-"+t.Name())
	require.NoError(t, err)

	list, err := payments.GeneratePayments(d.DealID, []string{ada.BrokerID, ben.BrokerID})
	require.NoError(t, err)
	require.Len(t, list.Payments, 1)
	rows := list.Payments[0].Splits.Splits
	require.Len(t, rows, 2)

	return &fixture{
		db:        db,
		service:   service,
		deals:     deals,
		dealID:    d.DealID,
		paymentID: list.Payments[0].PaymentID,
		ada:       ada.BrokerID,
		ben:       ben.BrokerID,
		adaSplit:  rows[0].SplitID,
		benSplit:  rows[1].SplitID,
	}
}

func percents(o, s, d float64) SplitPercents {
	return SplitPercents{
		OriginationPercent: split.Float(o),
		SitePercent:        split.Float(s),
		DealPercent:        split.Float(d),
	}
}

func (f *fixture) storedSplit(t *testing.T, splitID string) types.PaymentSplit {
	t.Helper()
	var record types.PaymentSplit
	require.NoError(t, f.db.Where("split_id = ?", splitID).First(&record).Error)
	return record
}

func TestUpdateSplitRecalculatesAndPersists(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.UpdateSplit(f.adaSplit, percents(60, 50, 100))
	require.NoError(t, err)
	assert.False(t, resp.Validation.IsValid)
	assert.Equal(t, []string{
		"Check totals: origination is 60% (-40%)",
		"Check totals: site is 50% (-50%)",
	}, resp.Warnings)

	resp, err = f.service.UpdateSplit(f.benSplit, percents(40, 50, 0))
	require.NoError(t, err)
	assert.True(t, resp.Validation.IsValid)
	assert.Empty(t, resp.Warnings)

	require.Len(t, resp.Splits, 2)
	assert.Equal(t, "Ada", resp.Splits[0].BrokerName)
	assert.Equal(t, "16500", resp.Splits[0].BrokerTotal.String())
	assert.Equal(t, "6500", resp.Splits[1].BrokerTotal.String())
	assert.Equal(t, "23000", resp.Totals.Total.String())

	stored := f.storedSplit(t, f.adaSplit)
	assert.InDelta(t, 6000, stored.OriginationUSD, delta)
	assert.InDelta(t, 2500, stored.SiteUSD, delta)
	assert.InDelta(t, 8000, stored.DealUSD, delta)
	assert.Equal(t, stored.OriginationUSD+stored.SiteUSD+stored.DealUSD, stored.BrokerTotal)

	var p types.Payment
	require.NoError(t, f.db.Where("payment_id = ?", f.paymentID).First(&p).Error)
	assert.Equal(t, types.SplitStatusValid, p.SplitStatus)
	assert.NotNil(t, p.SplitCheckedAt)
}

func TestUpdateSplitClearsPercents(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.UpdateSplit(f.adaSplit, percents(100, 100, 100))
	require.NoError(t, err)

	resp, err := f.service.UpdateSplit(f.adaSplit, SplitPercents{SitePercent: split.Float(100)})
	require.NoError(t, err)

	stored := f.storedSplit(t, f.adaSplit)
	assert.Nil(t, stored.OriginationPercent)
	assert.Zero(t, stored.OriginationUSD)
	assert.InDelta(t, 5000, stored.BrokerTotal, delta)
	assert.False(t, resp.Validation.IsValid)

	_, err = f.service.UpdateSplit("SPL_missing", percents(1, 1, 1))
	assert.ErrorIs(t, err, ErrSplitNotFound)
}

func TestAddBrokerAndRemoveSplit(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.AddBroker(f.paymentID, AddBrokerRequest{BrokerID: f.ada})
	assert.ErrorIs(t, err, ErrDuplicateSplit)

	var validationErr *response.ValidationError
	_, err = f.service.AddBroker(f.paymentID, AddBrokerRequest{BrokerID: "BRK_unknown"})
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.service.RemoveSplit(f.benSplit)
	require.NoError(t, err)

	resp, err := f.service.AddBroker(f.paymentID, AddBrokerRequest{BrokerID: f.ben, SplitPercents: percents(40, 50, 0)})
	require.NoError(t, err)
	require.Len(t, resp.Splits, 2)
	assert.Equal(t, f.ben, resp.Splits[1].BrokerID)
	assert.Equal(t, "6500", resp.Splits[1].BrokerTotal.String())

	resp, err = f.service.RemoveSplit(f.adaSplit)
	require.NoError(t, err)
	require.Len(t, resp.Splits, 1)
	assert.False(t, resp.Validation.IsValid)

	resp, err = f.service.RemoveSplit(resp.Splits[0].SplitID)
	require.NoError(t, err)
	assert.Empty(t, resp.Splits)
	assert.Equal(t, []string{"Check totals: no brokers are assigned to this payment"}, resp.Warnings)

	_, err = f.service.RemoveSplit(f.adaSplit)
	assert.ErrorIs(t, err, ErrSplitNotFound)
}

func TestPreviewSplitsDoesNotPersist(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.PreviewSplits(f.paymentID, PreviewRequest{
		Splits: []PreviewSplit{
			{SplitID: f.adaSplit, SplitPercents: percents(60, 50, 100)},
			{SplitID: f.benSplit, SplitPercents: percents(20, 25, 0)},
			{BrokerID: "BRK_new", SplitPercents: percents(20, 25, 0)},
		},
		DealAmounts: split.Pools{OriginationUSD: split.Float(20000)},
	})
	require.NoError(t, err)
	assert.True(t, resp.Validation.IsValid)
	require.Len(t, resp.Splits, 3)
	assert.Equal(t, "12000", resp.Splits[0].OriginationUSD.String())
	assert.Equal(t, 20000.0, *resp.Pools.OriginationUSD)
	assert.Equal(t, 5000.0, *resp.Pools.SiteUSD)

	stored := f.storedSplit(t, f.adaSplit)
	assert.Nil(t, stored.OriginationPercent)
	assert.Zero(t, stored.BrokerTotal)

	var validationErr *response.ValidationError
	_, err = f.service.PreviewSplits(f.paymentID, PreviewRequest{Splits: []PreviewSplit{{SplitID: "SPL_other"}}})
	assert.ErrorAs(t, err, &validationErr)

	_, err = f.service.PreviewSplits("PAY_missing", PreviewRequest{})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestPoolUpdateRecalculatesStoredSplits(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.UpdateSplit(f.adaSplit, percents(60, 50, 100))
	require.NoError(t, err)

	_, err = f.deals.UpdateDealPools(f.dealID, split.Pools{
		OriginationUSD: split.Float(20000),
		SiteUSD:        split.Float(5000),
	})
	require.NoError(t, err)

	stored := f.storedSplit(t, f.adaSplit)
	assert.InDelta(t, 12000, stored.OriginationUSD, delta)
	assert.InDelta(t, 2500, stored.SiteUSD, delta)
	// Deal pool cleared, so the category falls back to the payment amount
	assert.InDelta(t, 23000, stored.DealUSD, delta)
	assert.InDelta(t, 37500, stored.BrokerTotal, delta)
}

func TestConcurrentEditsStayConsistent(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := f.adaSplit
			if i%2 == 1 {
				target = f.benSplit
			}
			_, err := f.service.UpdateSplit(target, percents(float64(i), float64(i), float64(i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var records []types.PaymentSplit
	require.NoError(t, f.db.Where("payment_id = ?", f.paymentID).Order("id ASC").Find(&records).Error)
	require.Len(t, records, 2)

	d, err := f.deals.GetDeal(f.dealID)
	require.NoError(t, err)
	want := split.CalculateSplits(types.ToSplits(records), split.Pools{}, d.Pools(), 23000)
	for i, r := range records {
		assert.InDelta(t, want[i].OriginationUSD, r.OriginationUSD, delta)
		assert.InDelta(t, want[i].SiteUSD, r.SiteUSD, delta)
		assert.InDelta(t, want[i].DealUSD, r.DealUSD, delta)
		assert.Equal(t, r.OriginationUSD+r.SiteUSD+r.DealUSD, r.BrokerTotal)
	}
}

func TestSplitHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)

	handlers := NewGinHandlers(f.service)
	r := gin.New()
	r.GET("/payments/:payment_id/splits", handlers.GetPaymentSplitsHandler())
	r.POST("/payments/:payment_id/splits", handlers.AddBrokerHandler())
	r.PUT("/splits/:split_id", handlers.UpdateSplitHandler())
	r.DELETE("/splits/:split_id", handlers.RemoveSplitHandler())
	r.POST("/payments/:payment_id/splits/preview", handlers.PreviewSplitsHandler())

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPut, "/splits/"+f.adaSplit, percents(100, 100, 100))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(http.MethodGet, "/payments/"+f.paymentID+"/splits", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Data types.PaymentSplitsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Data.Validation.IsValid)
	assert.Equal(t, "23000", got.Data.Totals.Total.String())
	assert.Equal(t, f.dealID, got.Data.DealID)

	assert.Equal(t, http.StatusConflict, do(http.MethodPost, "/payments/"+f.paymentID+"/splits", AddBrokerRequest{BrokerID: f.ben}).Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/payments/"+f.paymentID+"/splits", map[string]string{}).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/payments/PAY_missing/splits", nil).Code)
	assert.Equal(t, http.StatusCreated, do(http.MethodPost, "/payments/"+f.paymentID+"/splits/preview", PreviewRequest{}).Code)
	assert.Equal(t, http.StatusOK, do(http.MethodDelete, "/splits/"+f.benSplit, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodDelete, "/splits/"+f.benSplit, nil).Code)
}
