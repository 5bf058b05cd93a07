package engine

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/tradesim/internal/domain"
)

// minPrice keeps every tracked price strictly positive.
const minPrice int64 = 1

// PriceFeed supplies market prices to the matcher. Refresh advances prices
// and publishes a new snapshot; Snapshot returns the latest one unchanged.
type PriceFeed interface {
	Refresh() PriceSnapshot
	Snapshot() PriceSnapshot
}

// FluctuationPolicy decides the next price of an instrument on refresh.
type FluctuationPolicy interface {
	Next(instrument string, price int64) int64
}

// Static is a FluctuationPolicy that never moves prices.
type Static struct{}

// Next returns price unchanged.
func (Static) Next(_ string, price int64) int64 { return price }

// RandomWalk perturbs each price by a step drawn uniformly from
// [-maxStep, maxStep). With maxStep = 500 this matches a ±$5 random walk.
type RandomWalk struct {
	maxStep int64
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewRandomWalk creates a RandomWalk. A zero seed seeds from the clock.
func NewRandomWalk(maxStep int64, seed int64) *RandomWalk {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomWalk{
		maxStep: maxStep,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Next returns price plus a random step.
func (w *RandomWalk) Next(_ string, price int64) int64 {
	if w.maxStep <= 0 {
		return price
	}
	w.mu.Lock()
	step := w.rng.Int63n(2*w.maxStep) - w.maxStep
	w.mu.Unlock()
	return price + step
}

// Market is the in-process PriceFeed. It tracks a fixed set of instruments
// and is safe for concurrent use by many matchers.
type Market struct {
	mu      sync.Mutex
	prices  map[string]int64
	policy  FluctuationPolicy
	current PriceSnapshot
	now     func() time.Time
}

// NewMarket creates a market tracking symbols, each starting at initial cents.
func NewMarket(symbols []string, initial int64, policy FluctuationPolicy) *Market {
	if policy == nil {
		policy = Static{}
	}
	m := &Market{
		prices: make(map[string]int64, len(symbols)),
		policy: policy,
		now:    time.Now,
	}
	for _, s := range symbols {
		m.prices[s] = clampPrice(initial)
	}
	m.publishLocked()
	return m
}

// Refresh applies the fluctuation policy to every tracked instrument and
// publishes the resulting snapshot.
func (m *Market) Refresh() PriceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Sorted iteration keeps seeded runs reproducible.
	for _, s := range m.symbolsLocked() {
		m.prices[s] = clampPrice(m.policy.Next(s, m.prices[s]))
	}
	return m.publishLocked()
}

// Snapshot returns the most recently published snapshot.
func (m *Market) Snapshot() PriceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetPrice overrides the price of an instrument and publishes a new
// snapshot. Unknown instruments start being tracked.
func (m *Market) SetPrice(instrument string, cents int64) error {
	if !domain.ValidInstrument(instrument) {
		return &domain.ValidationError{Message: fmt.Sprintf("invalid instrument %q", instrument)}
	}
	if cents < minPrice {
		return &domain.ValidationError{Message: "price must be greater than 0"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[instrument] = cents
	m.publishLocked()
	return nil
}

// Tracks reports whether the market has a price for instrument.
func (m *Market) Tracks(instrument string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.prices[instrument]
	return ok
}

func (m *Market) symbolsLocked() []string {
	symbols := make([]string, 0, len(m.prices))
	for s := range m.prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// publishLocked copies the live prices into a fresh snapshot.
func (m *Market) publishLocked() PriceSnapshot {
	prices := make(map[string]int64, len(m.prices))
	for s, p := range m.prices {
		prices[s] = p
	}
	m.current = PriceSnapshot{
		Version: m.current.Version + 1,
		TakenAt: m.now(),
		prices:  prices,
	}
	return m.current
}

func clampPrice(p int64) int64 {
	if p < minPrice {
		return minPrice
	}
	return p
}
