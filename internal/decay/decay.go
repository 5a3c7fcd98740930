// Package decay implements edge weight decay as pure functions from
// elapsed "time" (hop distance between vector clocks, or a wall-clock
// fallback) to a weight in [0, 1]. Edges are never rewritten; every
// weight is recomputed at query time from the edge's immutable creation
// state.
package decay

import (
	"math"

	"github.com/contextvault/memcore/internal/config"
	"github.com/contextvault/memcore/internal/store"
)

// Curve is a named decay family. Curves are pure: same inputs, same output.
type Curve string

const (
	CurveLinear         Curve = "linear"
	CurveExponential    Curve = "exponential"
	CurveDelayedLinear  Curve = "delayed-linear"
)

// expK solves exp(-k*diesAt) = 0.01 for k, the rate constant used by the
// exponential curve so that weight has decayed to ~1% by diesAt.
func expK(diesAt float64) float64 {
	if diesAt <= 0 {
		return 0
	}
	return -math.Log(0.01) / diesAt
}

// Linear implements linear(t, dies_at) = max(0, 1 - t/dies_at).
func Linear(t, diesAt float64) float64 {
	if diesAt <= 0 {
		return 0
	}
	w := 1 - t/diesAt
	if w < 0 {
		return 0
	}
	return w
}

// Exponential implements exponential(t, dies_at) = exp(-k*t), with k
// chosen so the curve reaches ~0.01 at t = dies_at.
func Exponential(t, diesAt float64) float64 {
	if t < 0 {
		t = 0
	}
	return math.Exp(-expK(diesAt) * t)
}

// DelayedLinear implements delayed_linear(t, dies_at, hold): constant
// 1 until t = hold, then linear to 0 at t = dies_at.
func DelayedLinear(t, diesAt, hold float64) float64 {
	if t <= hold {
		return 1
	}
	remaining := diesAt - hold
	if remaining <= 0 {
		return 0
	}
	return Linear(t-hold, remaining)
}

// Params bundles the curve family and its shape constants for one edge
// direction (forward or backward).
type Params struct {
	Curve   Curve
	DiesAt  float64 // hops
	Hold    float64 // hops, only used by delayed-linear
}

// Evaluate applies p's curve to elapsed time t (in hops).
func (p Params) Evaluate(t float64) float64 {
	switch p.Curve {
	case CurveExponential:
		return Exponential(t, p.DiesAt)
	case CurveDelayedLinear:
		return DelayedLinear(t, p.DiesAt, p.Hold)
	case CurveLinear:
		fallthrough
	default:
		return Linear(t, p.DiesAt)
	}
}

// Model resolves an edge's direction to the correct curve per its degrade rule:
// backward edges use the backward curve, forward edges use the forward
// curve, within-chain uses the backward curve.
type Model struct {
	Forward  Params
	Backward Params
	MsPerHop int64
}

// FromConfig builds a Model from the decay section of the configuration.
func FromConfig(cfg config.DecayConfig) Model {
	return Model{
		Forward: Params{
			Curve:  Curve(cfg.Forward),
			DiesAt: cfg.ForwardDiesAtHops,
			Hold:   cfg.ForwardHoldHops,
		},
		Backward: Params{
			Curve:  Curve(cfg.Backward),
			DiesAt: cfg.BackwardDiesAtHops,
			Hold:   cfg.BackwardHoldHops,
		},
		MsPerHop: cfg.MsPerHop,
	}
}

// paramsFor selects the direction-specific curve for an edge type. Forward
// and team-spawn/brief-style forward-moving edges use the forward curve;
// backward, within-chain, and the remaining backward-moving edge types use
// the backward curve.
func (m Model) paramsFor(edgeType store.EdgeType) Params {
	switch edgeType {
	case store.EdgeForward, store.EdgeTeamSpawn, store.EdgeBrief:
		return m.Forward
	default:
		return m.Backward
	}
}

// hopsFromWallClock maps a wall-clock gap to an equivalent hop count using
// the configured ms-per-hop scale, for use when no reference vector clock
// is available.
func (m Model) hopsFromWallClock(elapsedMs int64) float64 {
	if m.MsPerHop <= 0 {
		return 0
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	return float64(elapsedMs) / float64(m.MsPerHop)
}

// EffectiveWeight computes an edge's current weight given its immutable
// initial weight, its vector clock, the query time, and an optional
// reference clock (e.g. the querying agent's current clock). When ref is
// non-nil, time is measured in hops via VectorClock.Distance; otherwise it
// falls back to wall-clock elapsed time scaled by MsPerHop.
func (m Model) EffectiveWeight(edge *store.Edge, queryTimeMs int64, ref store.VectorClock) float64 {
	params := m.paramsFor(edge.EdgeType)

	var t float64
	if ref != nil && len(edge.VectorClock) > 0 {
		t = float64(edge.VectorClock.Distance(ref))
	} else {
		elapsed := queryTimeMs - edge.CreatedAt.UnixMilli()
		t = m.hopsFromWallClock(elapsed)
	}

	decayFactor := params.Evaluate(t)
	return edge.InitialWeight * decayFactor
}

// LinkBoost applies the diminishing repeat-reference boost,
// link_boost(w, lc) = w * (1 + 0.1 * ln(lc)), used by weighted_outgoing
// queries on top of the decayed weight.
func LinkBoost(weight float64, linkCount int) float64 {
	if linkCount <= 1 {
		return weight
	}
	return weight * (1 + 0.1*math.Log(float64(linkCount)))
}
