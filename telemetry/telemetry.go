// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package telemetry is the supervisor's observability surface: a zerolog
// debug channel and a small set of prometheus gauges tracking the
// correlation state, risk factor, cascade stage, and active anomaly count.
// Nothing in here feeds back into the decision pipeline; it only reports
// what the pipeline already decided.
package telemetry

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/shakebs/battsafe/anomaly"
	"github.com/shakebs/battsafe/correlation"
)

// Logger wraps a zerolog.Logger configured for the supervisor's debug
// channel. Construct with NewLogger; the zero value is usable too (it
// just logs nowhere useful), matching zerolog's own zero-value behavior.
type Logger struct {
	zerolog.Logger
}

// NewLogger returns a Logger writing human-readable, timestamped lines to
// w at the given level.
func NewLogger(w *os.File, level zerolog.Level) Logger {
	return Logger{
		Logger: zerolog.New(zerolog.ConsoleWriter{Out: w}).
			Level(level).
			With().Timestamp().Logger(),
	}
}

// Transition logs a correlation state change at warn level, escalations
// and recoveries back into NORMAL alike.
func (l Logger) Transition(prev, next correlation.State) {
	l.Warn().
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("correlation state transition")
}

// Gauges is the supervisor's prometheus surface: current escalation
// level, risk factor, cascade stage, and active anomaly category count.
// Register once at startup; cmd/battsafe calls Update after every
// scheduler tick.
type Gauges struct {
	state        prometheus.Gauge
	riskFactor   prometheus.Gauge
	cascadeStage prometheus.Gauge
	activeCount  prometheus.Gauge
}

// NewGauges creates and registers the supervisor's gauges against reg.
func NewGauges(reg prometheus.Registerer) *Gauges {
	g := &Gauges{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battsafe_state",
			Help: "Current correlation engine state: 0=NORMAL 1=WARNING 2=CRITICAL 3=EMERGENCY.",
		}),
		riskFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battsafe_risk_factor",
			Help: "Bounded risk factor scalar in [0.0, 1.0] from the most recent evaluation.",
		}),
		cascadeStage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battsafe_cascade_stage",
			Help: "Thermal-runaway cascade stage, 0-6, from the estimated hottest-cell core temperature.",
		}),
		activeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battsafe_active_count",
			Help: "Number of simultaneously active anomaly categories, 0-5.",
		}),
	}
	reg.MustRegister(g.state, g.riskFactor, g.cascadeStage, g.activeCount)
	return g
}

// Update refreshes every gauge from the engine's current state and the
// evaluator result that drove it.
func (g *Gauges) Update(state correlation.State, r anomaly.Result) {
	g.state.Set(float64(state))
	g.riskFactor.Set(r.RiskFactor)
	g.cascadeStage.Set(float64(r.CascadeStage))
	g.activeCount.Set(float64(r.ActiveCount))
}
