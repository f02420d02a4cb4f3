package split

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// Result pairs calculated splits with their validation.
type Result struct {
	Splits     []PaymentSplit   `json:"splits"`
	Validation ValidationTotals `json:"validation"`
}

// Cache memoizes CalculateSplits + ValidateSplits keyed on a fingerprint of
// the inputs. It holds at most size entries and evicts the oldest first.
type Cache struct {
	mu      sync.Mutex
	size    int
	entries map[string]Result
	order   []string
	hits    int
	misses  int
}

// NewCache returns a cache bounded to size entries. A size below one
// disables memoization.
func NewCache(size int) *Cache {
	return &Cache{
		size:    size,
		entries: make(map[string]Result),
	}
}

// Compute returns the calculated splits and validation for the inputs,
// reusing an earlier result when the inputs are identical.
func (c *Cache) Compute(splits []PaymentSplit, dealAmounts, deal Pools, paymentAmount float64) Result {
	if c == nil || c.size < 1 {
		return compute(splits, dealAmounts, deal, paymentAmount)
	}

	key, err := Fingerprint(splits, dealAmounts, deal, paymentAmount)
	if err != nil {
		return compute(splits, dealAmounts, deal, paymentAmount)
	}

	c.mu.Lock()
	if cached, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return copyResult(cached)
	}
	c.misses++
	c.mu.Unlock()

	result := compute(splits, dealAmounts, deal, paymentAmount)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.size {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.entries[key] = copyResult(result)
		c.order = append(c.order, key)
	}
	return result
}

// Stats reports cache hits and misses.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Fingerprint hashes the calculation inputs. Derived fields on the input
// splits are ignored since they never affect the result.
func Fingerprint(splits []PaymentSplit, dealAmounts, deal Pools, paymentAmount float64) (string, error) {
	type input struct {
		ID          string   `json:"id"`
		PaymentID   string   `json:"payment_id"`
		BrokerID    string   `json:"broker_id"`
		Origination *float64 `json:"o"`
		Site        *float64 `json:"s"`
		Deal        *float64 `json:"d"`
	}
	inputs := make([]input, len(splits))
	for i, s := range splits {
		inputs[i] = input{
			ID:          s.ID,
			PaymentID:   s.PaymentID,
			BrokerID:    s.BrokerID,
			Origination: s.OriginationPercent,
			Site:        s.SitePercent,
			Deal:        s.DealPercent,
		}
	}

	payload, err := json.Marshal(struct {
		Splits        []input `json:"splits"`
		DealAmounts   Pools   `json:"deal_amounts"`
		Deal          Pools   `json:"deal"`
		PaymentAmount float64 `json:"payment_amount"`
	}{inputs, dealAmounts, deal, paymentAmount})
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func compute(splits []PaymentSplit, dealAmounts, deal Pools, paymentAmount float64) Result {
	calculated := CalculateSplits(splits, dealAmounts, deal, paymentAmount)
	return Result{
		Splits:     calculated,
		Validation: ValidateSplits(calculated),
	}
}

// copyResult deep-copies r so cached entries never alias caller data.
func copyResult(r Result) Result {
	out := make([]PaymentSplit, len(r.Splits))
	for i, s := range r.Splits {
		cp := s
		cp.OriginationPercent = clonePercent(s.OriginationPercent)
		cp.SitePercent = clonePercent(s.SitePercent)
		cp.DealPercent = clonePercent(s.DealPercent)
		out[i] = cp
	}
	return Result{Splits: out, Validation: r.Validation}
}
