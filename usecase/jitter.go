package usecase

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/AzielCF/az-autopost/pkg/civiltime"
)

// Jitter offsets a nominal slot time by a uniform random amount within
// ±Window, clamped to the nominal civil hour so the slot id never moves.
type Jitter struct {
	Window time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewJitter(window time.Duration, rng *rand.Rand) *Jitter {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Jitter{Window: window, rng: rng}
}

func (j *Jitter) Apply(nominal time.Time) time.Time {
	hourStart := civiltime.HourStart(nominal)
	hourEnd := hourStart.Add(time.Hour - time.Second)

	lo, hi := nominal.Add(-j.Window), nominal.Add(j.Window)
	if lo.Before(hourStart) {
		lo = hourStart
	}
	if hi.After(hourEnd) {
		hi = hourEnd
	}
	span := int64(hi.Sub(lo) / time.Second)
	if span <= 0 {
		return lo
	}

	j.mu.Lock()
	offset := j.rng.Int64N(span + 1)
	j.mu.Unlock()
	return lo.Add(time.Duration(offset) * time.Second)
}
