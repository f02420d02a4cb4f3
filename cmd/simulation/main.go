package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/klear-commissions/internal/config"
	"github.com/ksred/klear-commissions/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	numBrokers     = 4
	numDeals       = 6
	numWorkers     = 3
	editsPerSplit  = 2
	editPause      = 250 * time.Millisecond
	defaultBaseURL = "http://localhost:8080"
)

var dealNames = []string{"Harbor Lease", "Pier 9", "Mill Street", "Quay Tower", "Dockside", "North Yard"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) record(d time.Duration, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if err != nil {
		rs.failures++
	}
}

// calculate returns min, max, mean, median, p95 and p99 of the recorded durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient drives the commissions API over HTTP
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

func newSimulationClient(baseURL string, cfg *config.Config) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":     {name: "Authentication"},
			"broker":   {name: "Create Broker"},
			"deal":     {name: "Create Deal"},
			"payments": {name: "Generate Payments"},
			"edit":     {name: "Edit Split"},
			"get":      {name: "Get Splits"},
			"list":     {name: "List Payments"},
		},
	}

	var token struct {
		Token string `json:"jwt_token"`
	}
	err := sc.call("auth", http.MethodPost, "/api/v1/auth/token", map[string]string{
		"api_key":    cfg.Auth.APIKey,
		"api_secret": cfg.Auth.APISecret,
	}, &token)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token.Token

	return sc, nil
}

// call sends body as JSON and decodes the response envelope's data into out
func (sc *simulationClient) call(route, method, path string, body, out interface{}, headers ...string) (err error) {
	start := time.Now()
	defer func() {
		sc.stats[route].record(time.Since(start), err)
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("route", route).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	envelope := struct {
		Data interface{} `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return nil
}

type simulationStats struct {
	mu            sync.Mutex
	deals         int
	payments      int
	edits         int
	failedEdits   int
	validPayments int
	stillInvalid  []string
	totalAmount   float64
}

// randomAllocation returns n percentages that sum to 100, each to two places
func randomAllocation(n int) []float64 {
	weights := make([]float64, n)
	var total float64
	for i := range weights {
		weights[i] = rand.Float64() + 0.1
		total += weights[i]
	}

	out := make([]float64, n)
	var allocated float64
	for i := 0; i < n-1; i++ {
		out[i] = math.Round(weights[i]/total*10000) / 100
		allocated += out[i]
	}
	out[n-1] = math.Round((100-allocated)*100) / 100
	return out
}

// processDeal creates a deal, generates its payments and edits every split
// until each payment is fully allocated
func processDeal(workerID int, sc *simulationClient, brokerIDs []string, stats *simulationStats) {
	logger := log.With().Int("worker_id", workerID).Logger()

	fee := float64(rand.Intn(90000) + 10000)
	req := map[string]interface{}{
		"deal_name":          dealNames[rand.Intn(len(dealNames))],
		"fee_usd":            fee,
		"origination_usd":    math.Round(fee * 0.4),
		"site_usd":           math.Round(fee * 0.2),
		"number_of_payments": rand.Intn(3) + 1,
	}
	var deal types.Deal
	if err := sc.call("deal", http.MethodPost, "/api/v1/deals", req, &deal, "Idempotency-Key", uuid.New().String()); err != nil {
		logger.Error().Err(err).Msg("Failed to create deal")
		return
	}

	// Each deal uses two or three brokers
	rand.Shuffle(len(brokerIDs), func(i, j int) { brokerIDs[i], brokerIDs[j] = brokerIDs[j], brokerIDs[i] })
	assigned := brokerIDs[:rand.Intn(2)+2]

	var list types.DealPaymentsResponse
	if err := sc.call("payments", http.MethodPost, "/api/v1/deals/"+deal.DealID+"/payments",
		map[string]interface{}{"broker_ids": assigned}, &list); err != nil {
		logger.Error().Err(err).Str("deal_id", deal.DealID).Msg("Failed to generate payments")
		return
	}

	stats.mu.Lock()
	stats.deals++
	stats.payments += len(list.Payments)
	stats.totalAmount += fee
	stats.mu.Unlock()

	for _, p := range list.Payments {
		rows := p.Splits.Splits
		for round := 0; round < editsPerSplit; round++ {
			origination := randomAllocation(len(rows))
			site := randomAllocation(len(rows))
			dealShare := randomAllocation(len(rows))

			for i, row := range rows {
				body := map[string]float64{
					"origination_percent": origination[i],
					"site_percent":        site[i],
					"deal_percent":        dealShare[i],
				}
				err := sc.call("edit", http.MethodPut, "/api/v1/splits/"+row.SplitID, body, nil)

				stats.mu.Lock()
				stats.edits++
				if err != nil {
					stats.failedEdits++
				}
				stats.mu.Unlock()

				if err != nil {
					logger.Warn().Err(err).Str("split_id", row.SplitID).Msg("Split edit failed")
				}
				time.Sleep(editPause)
			}
		}

		var current types.PaymentSplitsResponse
		if err := sc.call("get", http.MethodGet, "/api/v1/payments/"+p.PaymentID+"/splits", nil, &current); err != nil {
			logger.Error().Err(err).Str("payment_id", p.PaymentID).Msg("Failed to fetch splits")
			continue
		}

		stats.mu.Lock()
		if current.Validation.IsValid {
			stats.validPayments++
		} else {
			stats.stillInvalid = append(stats.stillInvalid, p.PaymentID+": "+strings.Join(current.Warnings, "; "))
		}
		stats.mu.Unlock()

		logger.Info().
			Str("payment_id", p.PaymentID).
			Str("total", current.Totals.Total.StringFixed(2)).
			Bool("valid", current.Validation.IsValid).
			Msg("Payment splits edited")
	}

	if err := sc.call("list", http.MethodGet, "/api/v1/deals/"+deal.DealID+"/payments", nil, &list); err != nil {
		logger.Error().Err(err).Str("deal_id", deal.DealID).Msg("Failed to list payments")
		return
	}
	logger.Info().
		Str("deal_id", deal.DealID).
		Str("total_amount", list.TotalAmount.StringFixed(2)).
		Str("total_agci", list.TotalAGCI.StringFixed(2)).
		Int("invalid_payments", list.InvalidPayments).
		Msg("Deal processed")
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the split editing simulation against a running commissions API.
// SIM_BASE_URL overrides the default address.
func main() {
	cfg := config.Load()
	baseURL := os.Getenv("SIM_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	simClient, err := newSimulationClient(baseURL, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("base_url", baseURL).Msg("Failed to initialize simulation client")
	}

	var brokerIDs []string
	for i := 0; i < numBrokers; i++ {
		var broker types.Broker
		err := simClient.call("broker", http.MethodPost, "/api/v1/brokers", map[string]string{
			"name": fmt.Sprintf("Sim Broker %d", i+1),
		}, &broker)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create broker")
		}
		brokerIDs = append(brokerIDs, broker.BrokerID)
	}

	log.Info().Int("deals", numDeals).Int("workers", numWorkers).Msg("Starting simulation")

	stats := &simulationStats{}
	start := time.Now()
	deals := make(chan int, numDeals)
	for i := 0; i < numDeals; i++ {
		deals <- i
	}
	close(deals)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			ids := append([]string(nil), brokerIDs...)
			for range deals {
				processDeal(workerID, simClient, ids, stats)
			}
		}(i)
	}
	wg.Wait()

	duration := time.Since(start)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("COMMISSION SPLIT SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Deals:            %d
Payments:         %d
Split edits:      %d
Failed edits:     %d
Valid payments:   %d
Total fees:       $%.2f
Duration:         %v
`, stats.deals, stats.payments, stats.edits, stats.failedEdits, stats.validPayments,
		stats.totalAmount, duration.Round(time.Millisecond))

	for _, line := range stats.stillInvalid {
		fmt.Println("  invalid " + line)
	}

	log.Info().
		Int("payments", stats.payments).
		Int("valid_payments", stats.validPayments).
		Int("failed_edits", stats.failedEdits).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}
