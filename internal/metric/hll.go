package metric

import (
	"math"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// hllPrecision gives 2^14 registers, about 0.8% standard error.
const hllPrecision = 14

// HLL is a HyperLogLog distinct-count sketch.
type HLL struct {
	registers []uint8
}

// NewHLL returns an empty sketch.
func NewHLL() *HLL {
	return &HLL{registers: make([]uint8, 1<<hllPrecision)}
}

// Add records one value.
func (h *HLL) Add(key string) {
	x := xxhash.Sum64String(key)
	idx := x >> (64 - hllPrecision)
	w := x<<hllPrecision | 1<<(hllPrecision-1)
	rho := uint8(bits.LeadingZeros64(w) + 1)
	if rho > h.registers[idx] {
		h.registers[idx] = rho
	}
}

// Merge folds other into h.
func (h *HLL) Merge(other *HLL) {
	for i, r := range other.registers {
		if r > h.registers[i] {
			h.registers[i] = r
		}
	}
}

// Count estimates the number of distinct values added, with linear
// counting for small cardinalities.
func (h *HLL) Count() int64 {
	m := float64(len(h.registers))
	var sum float64
	zeros := 0
	for _, r := range h.registers {
		sum += math.Ldexp(1, -int(r))
		if r == 0 {
			zeros++
		}
	}
	alpha := 0.7213 / (1 + 1.079/m)
	e := alpha * m * m / sum
	if e <= 2.5*m && zeros > 0 {
		e = m * math.Log(m/float64(zeros))
	}
	return int64(math.Round(e))
}

