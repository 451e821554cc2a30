// Package glicko2 implements the Glicko-2 rating step (Glickman, 2013)
// specialized to one opponent per rating period, which is how the rating
// engine applies it: one completed ranked match at a time, in per-team
// chronological order.
package glicko2

import (
	"errors"
	"math"
)

const (
	DefaultMean       = 1500.0
	DefaultDeviation  = 350.0
	DefaultVolatility = 0.06

	// System constant constraining volatility drift.
	tau = 0.5

	// Conversion between the public scale and the internal Glicko-2 scale.
	scale = 173.7178

	convergence = 1e-6
)

// Outcomes from the rated player's perspective.
const (
	Loss = 0.0
	Draw = 0.5
	Win  = 1.0
)

// Rating is a Glicko-2 triple on the public scale.
type Rating struct {
	Mean       float64
	Deviation  float64
	Volatility float64
}

// Default is the initial rating for a team with no rated matches.
func Default() Rating {
	return Rating{
		Mean:       DefaultMean,
		Deviation:  DefaultDeviation,
		Volatility: DefaultVolatility,
	}
}

var ErrInvalidOutcome = errors.New("outcome must be 0, 0.5 or 1")

// Step applies one rated game against the given opponent and returns the
// player's new rating. The opponent's rating is read, never written; the
// caller runs the same step from the opponent's perspective with the
// mirrored outcome.
func Step(player, opponent Rating, outcome float64) (Rating, error) {
	if outcome != Loss && outcome != Draw && outcome != Win {
		return Rating{}, ErrInvalidOutcome
	}

	mu := (player.Mean - DefaultMean) / scale
	phi := player.Deviation / scale
	muOpp := (opponent.Mean - DefaultMean) / scale
	phiOpp := opponent.Deviation / scale

	g := 1 / math.Sqrt(1+3*phiOpp*phiOpp/(math.Pi*math.Pi))
	e := 1 / (1 + math.Exp(-g*(mu-muOpp)))
	v := 1 / (g * g * e * (1 - e))
	delta := v * g * (outcome - e)

	sigma := newVolatility(player.Volatility, delta, phi, v)

	phiStar := math.Sqrt(phi*phi + sigma*sigma)
	phiNew := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	muNew := mu + phiNew*phiNew*g*(outcome-e)

	return Rating{
		Mean:       muNew*scale + DefaultMean,
		Deviation:  phiNew * scale,
		Volatility: sigma,
	}, nil
}

// newVolatility runs the Illinois-method iteration from the Glicko-2
// reference, solving for the volatility that best explains the observed
// performance delta.
func newVolatility(sigma, delta, phi, v float64) float64 {
	a := math.Log(sigma * sigma)
	f := func(x float64) float64 {
		ex := math.Exp(x)
		num := ex * (delta*delta - phi*phi - v - ex)
		den := 2 * (phi*phi + v + ex) * (phi*phi + v + ex)
		return num/den - (x-a)/(tau*tau)
	}

	bigA := a
	var bigB float64
	if delta*delta > phi*phi+v {
		bigB = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for f(a-k*tau) < 0 {
			k++
		}
		bigB = a - k*tau
	}

	fA, fB := f(bigA), f(bigB)
	for math.Abs(bigB-bigA) > convergence {
		bigC := bigA + (bigA-bigB)*fA/(fB-fA)
		fC := f(bigC)
		if fC*fB <= 0 {
			bigA, fA = bigB, fB
		} else {
			fA /= 2
		}
		bigB, fB = bigC, fC
	}
	return math.Exp(bigA / 2)
}
