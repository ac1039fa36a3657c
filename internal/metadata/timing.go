package metadata

import (
	"math"
	"math/big"
	"time"

	crand "crypto/rand"

	"github.com/b4ae-io/b4ae-core/internal/config"
)

// Delay draws a send delay according to strategy, using the CSPRNG
// rather than a predictable PRNG so the delay itself cannot be
// predicted by an observer timing the stream (§4.4).
func Delay(cfg *config.Config) time.Duration {
	maxDelay := time.Duration(cfg.MaxDelayMS) * time.Millisecond
	switch cfg.TimingStrategy {
	case config.TimingUniform:
		return uniformDelay(time.Duration(cfg.MinDelayMS)*time.Millisecond, maxDelay)
	case config.TimingExponential:
		return exponentialDelay(cfg.Lambda, maxDelay)
	case config.TimingNormal:
		return truncatedNormalDelay(float64(cfg.MeanDelayMS), float64(cfg.StdDevMS), maxDelay)
	default:
		return 0
	}
}

func secureUnitFloat() float64 {
	const resolution = 1 << 53
	n, err := crand.Int(crand.Reader, big.NewInt(resolution))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / float64(resolution)
}

func uniformDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	n, err := crand.Int(crand.Reader, big.NewInt(span+1))
	if err != nil {
		return min
	}
	return min + time.Duration(n.Int64())
}

func exponentialDelay(lambda float64, max time.Duration) time.Duration {
	if lambda <= 0 {
		return 0
	}
	u := secureUnitFloat()
	if u <= 0 {
		u = 1e-12
	}
	ms := -math.Log(u) / lambda
	d := time.Duration(ms * float64(time.Millisecond))
	if d > max {
		d = max
	}
	return d
}

func truncatedNormalDelay(mean, stddev float64, max time.Duration) time.Duration {
	// Box-Muller transform driven by the CSPRNG, clipped at max and
	// floored at zero per §4.4's "clipped at max".
	u1 := secureUnitFloat()
	u2 := secureUnitFloat()
	if u1 <= 0 {
		u1 = 1e-12
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	ms := mean + z*stddev
	if ms < 0 {
		ms = 0
	}
	d := time.Duration(ms * float64(time.Millisecond))
	if d > max {
		d = max
	}
	return d
}
