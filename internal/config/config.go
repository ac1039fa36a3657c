// Package config holds the validated configuration surface the B4AE
// core recognizes. Every option here corresponds to an entry in the
// specification's "Configuration surface". client.New runs Validate so
// invalid combinations fail before any key material is touched;
// scheduler.New and metadata.NewProtector take a Config without
// validating it.
package config

import (
	"fmt"
	"time"
)

// SecurityProfile selects a protection level and rotation policy. It
// is not a cryptographic-strength dial -- every profile runs the same
// primitives at NIST Level 5 parameters.
type SecurityProfile int

const (
	ProfileStandard SecurityProfile = iota
	ProfileHigh
	ProfileMaximum
)

func (p SecurityProfile) String() string {
	switch p {
	case ProfileStandard:
		return "standard"
	case ProfileHigh:
		return "high"
	case ProfileMaximum:
		return "maximum"
	default:
		return "unknown"
	}
}

// ProtectionLevel controls which stages of the metadata-protection
// pipeline run.
type ProtectionLevel int

const (
	ProtectionNone ProtectionLevel = iota
	ProtectionBasic
	ProtectionStandard
	ProtectionHigh
	ProtectionMaximum
)

// TimingStrategy selects the distribution used to draw artificial
// delays.
type TimingStrategy int

const (
	TimingNone TimingStrategy = iota
	TimingUniform
	TimingExponential
	TimingNormal
)

// RotationPolicy sets the bounds at which the session layer reports
// that a chain-key rotation is due, on whichever enabled bound is
// reached first. A zero value disables that bound. Reaching a bound
// does not rotate the keys by itself; the session only returns a
// RotationTrigger.
type RotationPolicy struct {
	MessagesCount uint64
	Bytes         uint64
	WallClock     time.Duration
}

// Config is the single validated configuration object threaded through
// the client facade, session layer, and metadata pipeline.
type Config struct {
	SecurityProfile SecurityProfile
	ProtectionLevel ProtectionLevel

	PaddingBlockSize int

	TimingStrategy TimingStrategy
	MinDelayMS     int
	MaxDelayMS     int
	MeanDelayMS    int
	StdDevMS       int
	Lambda         float64

	CoverTrafficRate     float64 // [0,1], floor 0.20 enforced only in v2
	ConstantRateMode     bool
	TargetRateMsgsPerSec float64

	Rotation RotationPolicy

	ReplayWindowBits int
	MaxMessageSize   int
}

// DefaultConfig returns the configuration for ProfileStandard with a
// Basic protection level -- the conservative default a caller gets if
// it constructs nothing itself.
func DefaultConfig() *Config {
	return &Config{
		SecurityProfile:  ProfileStandard,
		ProtectionLevel:  ProtectionBasic,
		PaddingBlockSize: 256,
		TimingStrategy:   TimingNone,
		MinDelayMS:       0,
		MaxDelayMS:       0,
		CoverTrafficRate: 0.0,
		Rotation: RotationPolicy{
			MessagesCount: 10000,
			Bytes:         0,
			WallClock:     0,
		},
		ReplayWindowBits: 1024,
		MaxMessageSize:   1 << 20, // 1 MiB
	}
}

// Validate fails fast on any combination the core cannot safely run
// with. It never mutates c.
func (c *Config) Validate() error {
	if c.PaddingBlockSize <= 0 || c.PaddingBlockSize > 65536 {
		return fmt.Errorf("config: padding_block_size out of range: %d", c.PaddingBlockSize)
	}
	if c.CoverTrafficRate < 0 || c.CoverTrafficRate > 1 {
		return fmt.Errorf("config: cover_traffic_rate must be in [0,1]: %f", c.CoverTrafficRate)
	}
	if c.ReplayWindowBits <= 0 || c.ReplayWindowBits%8 != 0 {
		return fmt.Errorf("config: replay_window_size must be a positive multiple of 8: %d", c.ReplayWindowBits)
	}
	if c.MaxMessageSize <= 0 || c.MaxMessageSize > 1<<20 {
		return fmt.Errorf("config: max_message_size must be in (0, 1MiB]: %d", c.MaxMessageSize)
	}
	switch c.TimingStrategy {
	case TimingNone:
	case TimingUniform:
		if c.MinDelayMS < 0 || c.MaxDelayMS < c.MinDelayMS {
			return fmt.Errorf("config: invalid uniform delay bounds [%d,%d]", c.MinDelayMS, c.MaxDelayMS)
		}
	case TimingExponential:
		if c.Lambda <= 0 {
			return fmt.Errorf("config: exponential timing requires lambda > 0")
		}
	case TimingNormal:
		if c.StdDevMS < 0 || c.MaxDelayMS < c.MeanDelayMS {
			return fmt.Errorf("config: invalid normal delay parameters")
		}
	default:
		return fmt.Errorf("config: unknown timing_strategy: %d", c.TimingStrategy)
	}
	if c.ConstantRateMode && c.TargetRateMsgsPerSec <= 0 {
		return fmt.Errorf("config: constant_rate_mode requires target_rate_msgs_per_sec > 0")
	}
	switch c.SecurityProfile {
	case ProfileStandard, ProfileHigh, ProfileMaximum:
	default:
		return fmt.Errorf("config: unknown security_profile: %d", c.SecurityProfile)
	}
	switch c.ProtectionLevel {
	case ProtectionNone, ProtectionBasic, ProtectionStandard, ProtectionHigh, ProtectionMaximum:
	default:
		return fmt.Errorf("config: unknown protection_level: %d", c.ProtectionLevel)
	}
	return nil
}

// V2CoverTrafficFloor is the minimum fraction of emissions that must be
// dummy traffic under the v2 global scheduler; not configurable below
// this value.
const V2CoverTrafficFloor = 0.20

// EffectiveCoverTrafficRate returns c.CoverTrafficRate clamped to the
// v2 floor when v2 is in effect.
func (c *Config) EffectiveCoverTrafficRate(v2 bool) float64 {
	if v2 && c.CoverTrafficRate < V2CoverTrafficFloor {
		return V2CoverTrafficFloor
	}
	return c.CoverTrafficRate
}
