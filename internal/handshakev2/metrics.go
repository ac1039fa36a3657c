// Metrics for the v2 handshake are kept as plain atomic counters
// rather than promauto package-level vars, per the teacher's
// internal/metrics/metrics.go style of one var per series: the
// counters here additionally need to be read back synchronously to
// compute the amplification-ratio and success-rate gauges on scrape,
// which promauto's fire-and-forget CounterVec does not support without
// a second bookkeeping layer on top of it anyway.
package handshakev2

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics accumulates the counters a deployment should export for its
// v2 handshake traffic: cookie-challenge issuance and verification
// outcomes, replay-set hits, and handshake completion funnel counts.
type Metrics struct {
	challengesIssued        atomic.Uint64
	cookieVerified           atomic.Uint64
	cookieRejectedInvalid    atomic.Uint64
	cookieRejectedExpired    atomic.Uint64
	replaysDetected          atomic.Uint64
	handshakeAttempts        atomic.Uint64
	handshakeCompletions     atomic.Uint64
	modeADowngradeAttempts   atomic.Uint64
	modeBDowngradeAttempts   atomic.Uint64

	negotiationBytesIn  atomic.Uint64
	handshakeBytesOut   atomic.Uint64
}

// NewMetrics constructs a zeroed Metrics ready to register.
func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) RecordChallengeIssued()     { m.challengesIssued.Add(1) }
func (m *Metrics) RecordCookieVerified()      { m.cookieVerified.Add(1) }
func (m *Metrics) RecordCookieRejectedInvalid() { m.cookieRejectedInvalid.Add(1) }
func (m *Metrics) RecordCookieRejectedExpired() { m.cookieRejectedExpired.Add(1) }
func (m *Metrics) RecordReplayDetected()      { m.replaysDetected.Add(1) }
func (m *Metrics) RecordHandshakeAttempt()    { m.handshakeAttempts.Add(1) }
func (m *Metrics) RecordHandshakeCompleted()  { m.handshakeCompletions.Add(1) }
func (m *Metrics) RecordModeDowngradeAttempt(mode byte) {
	if mode == ModeA {
		m.modeADowngradeAttempts.Add(1)
	} else if mode == ModeB {
		m.modeBDowngradeAttempts.Add(1)
	}
}

// RecordNegotiationRoundTrip tracks the bytes crossing the wire for an
// invalid, cookie-rejected attempt against the bytes a full handshake
// would have required, so the amplification-ratio gauge can report
// how much cheaper the cookie check made a spoofed attempt.
func (m *Metrics) RecordNegotiationRoundTrip(bytesIn, bytesOut int) {
	m.negotiationBytesIn.Add(uint64(bytesIn))
	m.handshakeBytesOut.Add(uint64(bytesOut))
}

var (
	descChallengesIssued = prometheus.NewDesc(
		"b4ae_v2_cookie_challenges_issued_total",
		"Total number of v2 cookie challenges issued.", nil, nil)
	descCookieVerified = prometheus.NewDesc(
		"b4ae_v2_cookie_verifications_succeeded_total",
		"Total number of v2 cookies that verified successfully.", nil, nil)
	descCookieRejectedInvalid = prometheus.NewDesc(
		"b4ae_v2_cookie_verifications_failed_total",
		"Total number of v2 cookies rejected as invalid.", nil, nil)
	descCookieRejectedExpired = prometheus.NewDesc(
		"b4ae_v2_cookie_verifications_expired_total",
		"Total number of v2 cookies rejected as expired.", nil, nil)
	descReplaysDetected = prometheus.NewDesc(
		"b4ae_v2_replays_detected_total",
		"Total number of v2 client_random replays detected during negotiation.", nil, nil)
	descHandshakeAttempts = prometheus.NewDesc(
		"b4ae_v2_handshake_attempts_total",
		"Total number of v2 handshake attempts that reached Flight E.", nil, nil)
	descHandshakeCompletions = prometheus.NewDesc(
		"b4ae_v2_handshake_completions_total",
		"Total number of v2 handshakes that completed successfully.", nil, nil)
	descModeDowngrade = prometheus.NewDesc(
		"b4ae_v2_mode_downgrade_attempts_total",
		"Total number of rejected mode-downgrade attempts, by mode.", []string{"mode"}, nil)
	descSuccessRate = prometheus.NewDesc(
		"b4ae_v2_handshake_success_rate",
		"Fraction of handshake attempts that completed, computed on scrape.", nil, nil)
	descAmplificationRatio = prometheus.NewDesc(
		"b4ae_v2_cookie_amplification_ratio",
		"Ratio of bytes a full handshake would cost to bytes a rejected negotiation actually cost, computed on scrape.", nil, nil)
)

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- descChallengesIssued
	ch <- descCookieVerified
	ch <- descCookieRejectedInvalid
	ch <- descCookieRejectedExpired
	ch <- descReplaysDetected
	ch <- descHandshakeAttempts
	ch <- descHandshakeCompletions
	ch <- descModeDowngrade
	ch <- descSuccessRate
	ch <- descAmplificationRatio
}

// Collect implements prometheus.Collector, deriving the success-rate
// and amplification-ratio gauges from the raw counters at scrape time
// rather than maintaining them incrementally.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	attempts := m.handshakeAttempts.Load()
	completions := m.handshakeCompletions.Load()
	bytesIn := m.negotiationBytesIn.Load()
	bytesOut := m.handshakeBytesOut.Load()

	ch <- prometheus.MustNewConstMetric(descChallengesIssued, prometheus.CounterValue, float64(m.challengesIssued.Load()))
	ch <- prometheus.MustNewConstMetric(descCookieVerified, prometheus.CounterValue, float64(m.cookieVerified.Load()))
	ch <- prometheus.MustNewConstMetric(descCookieRejectedInvalid, prometheus.CounterValue, float64(m.cookieRejectedInvalid.Load()))
	ch <- prometheus.MustNewConstMetric(descCookieRejectedExpired, prometheus.CounterValue, float64(m.cookieRejectedExpired.Load()))
	ch <- prometheus.MustNewConstMetric(descReplaysDetected, prometheus.CounterValue, float64(m.replaysDetected.Load()))
	ch <- prometheus.MustNewConstMetric(descHandshakeAttempts, prometheus.CounterValue, float64(attempts))
	ch <- prometheus.MustNewConstMetric(descHandshakeCompletions, prometheus.CounterValue, float64(completions))
	ch <- prometheus.MustNewConstMetric(descModeDowngrade, prometheus.CounterValue, float64(m.modeADowngradeAttempts.Load()), "A")
	ch <- prometheus.MustNewConstMetric(descModeDowngrade, prometheus.CounterValue, float64(m.modeBDowngradeAttempts.Load()), "B")

	var successRate float64
	if attempts > 0 {
		successRate = float64(completions) / float64(attempts)
	}
	ch <- prometheus.MustNewConstMetric(descSuccessRate, prometheus.GaugeValue, successRate)

	var amplification float64
	if bytesIn > 0 {
		amplification = float64(bytesOut) / float64(bytesIn)
	}
	ch <- prometheus.MustNewConstMetric(descAmplificationRatio, prometheus.GaugeValue, amplification)
}
