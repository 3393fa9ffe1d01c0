// Package research implements the signal-generation engine (C6
// ResearchEngine): orderbook-driven feature extraction, dynamic
// percentile thresholds, liquidity gating, and confidence scoring.
package research

import "github.com/quantforge/hft/models"

const (
	orderbookHistoryCap = 50
	seriesHistoryCap    = 200
)

// ring is a fixed-capacity append-only float64 buffer; once full, the
// oldest sample is dropped to make room for the newest.
type ring struct {
	buf []float64
	cap int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]float64, 0, capacity), cap: capacity}
}

func (r *ring) push(v float64) {
	if len(r.buf) == r.cap {
		copy(r.buf, r.buf[1:])
		r.buf = r.buf[:len(r.buf)-1]
	}
	r.buf = append(r.buf, v)
}

func (r *ring) values() []float64 { return r.buf }

func (r *ring) last() (float64, bool) {
	if len(r.buf) == 0 {
		return 0, false
	}
	return r.buf[len(r.buf)-1], true
}

// PerSymbolHistory holds the rolling state a single symbol's research
// accumulates across ticks, within one engine. Not safe for concurrent use
// — callers serialize access (the HFT cycle is non-reentrant per engine).
type PerSymbolHistory struct {
	books       []models.Orderbook
	spreadPct   *ring
	depth       *ring
	volume      *ring
	absImbalance *ring
	mids        *ring // mid-price series, used for momentum and volatility
}

func newPerSymbolHistory() *PerSymbolHistory {
	return &PerSymbolHistory{
		spreadPct:    newRing(seriesHistoryCap),
		depth:        newRing(seriesHistoryCap),
		volume:       newRing(seriesHistoryCap),
		absImbalance: newRing(seriesHistoryCap),
		mids:         newRing(seriesHistoryCap),
	}
}

func (h *PerSymbolHistory) appendBook(book models.Orderbook) {
	h.books = append(h.books, book)
	if len(h.books) > orderbookHistoryCap {
		h.books = h.books[len(h.books)-orderbookHistoryCap:]
	}
}

func (h *PerSymbolHistory) previousMid() (float64, bool) {
	return h.mids.last()
}
