package ShallowWater2D

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTendency(t *testing.T) {
	var (
		g                = 2.
		u, v, h          = 1., -2., 10.
		dudx, dudy       = 0.5, 0.25
		dvdx, dvdy       = -1., 3.
		dhdx, dhdy       = 0.125, -0.5
		ku, kv, kh       = Tendency(g, u, v, h, dudx, dudy, dvdx, dvdy, dhdx, dhdy)
		kuE, kvE, khE    = -0.5 + 0.5 - 0.25, 1. + 6. + 1., -5. - 0.125 - 30. - 1.
		zku, zkv, zkh    = Tendency(g, 0, 0, h, 0, 0, 0, 0, 0, 0)
		_, _, khUniformH = Tendency(g, u, v, h, 0, 0, 0, 0, 0, 0)
	)
	assert.Equal(t, kuE, ku)
	assert.Equal(t, kvE, kv)
	assert.Equal(t, khE, kh)
	// At rest over a flat surface nothing moves
	assert.Equal(t, 0., zku)
	assert.Equal(t, 0., zkv)
	assert.Equal(t, 0., zkh)
	assert.Equal(t, 0., khUniformH)
}

func TestScratch(t *testing.T) {
	N := 7
	sc := newScratch(N)
	assert.Equal(t, 15*N, len(sc.arena))
	views := make([][]float64, 0, 15)
	for n := 0; n < 3; n++ {
		views = append(views, sc.dfdx[n], sc.dfdy[n], sc.k[0][n], sc.k[1][n], sc.qNew[n])
	}
	// Every view is N long and cannot grow into its neighbour
	for i, v := range views {
		assert.Equal(t, N, len(v))
		assert.Equal(t, N, cap(v))
		v[0] = float64(i + 1)
	}
	seen := make(map[float64]bool)
	for i := 0; i < len(sc.arena); i += N {
		assert.False(t, seen[sc.arena[i]])
		seen[sc.arena[i]] = true
	}
	assert.Len(t, seen, 15)
}

func TestRK4Update(t *testing.T) {
	// On dq/dt = lambda*q one step must match the degree 4 Taylor polynomial of exp(lambda*dt)
	for _, lambda := range []float64{-1., 0.5, -3.} {
		var (
			dt       = 0.1
			rk       = newRK4Coefficients(dt)
			q0       = 2.
			q, qNew  = q0, 0.
			k, kPrev float64
			z        = lambda * dt
			expected = q0 * (1 + z + z*z/2 + z*z*z/6 + z*z*z*z/24)
		)
		for stage := 0; stage < 4; stage++ {
			k = lambda * q
			rk.Update(stage, &q, &qNew, k, kPrev)
			kPrev = k
		}
		assert.InDelta(t, expected, q, 1.e-14)
		assert.InDelta(t, q0*math.Exp(z), q, 1.e-4)
	}
	{ // Zero tendencies leave the entry untouched
		var (
			rk      = newRK4Coefficients(0.37)
			q, qNew = 10.123, 0.
		)
		for stage := 0; stage < 4; stage++ {
			rk.Update(stage, &q, &qNew, 0, 0)
		}
		assert.Equal(t, 10.123, q)
	}
}
