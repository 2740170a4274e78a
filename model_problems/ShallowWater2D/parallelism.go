package ShallowWater2D

import (
	"fmt"

	"github.com/notargets/goswe/utils"
)

/*
	Work split for the stripe evaluator, with P workers:
		- x derivatives: worker owns rows iy in RowPartitions[np] (a split of Ny), across all ix
		- y derivatives: worker owns columns ix in ColPartitions[np] (a split of Nx), across all iy
		- tendencies and the RK update: worker owns the nodes of its column stripe

	Every worker reads the whole of u, v, h during the stencil pass and writes only its own stripe.
	The tendency pass consumes x derivatives produced by other workers, so a barrier separates the two.
	A second barrier separates the state update from the next stencil pass, which reads neighbours
	updated by other workers.
*/

type stripe struct {
	rows, cols utils.Block
}

func (c *ShallowWater) stripes() (s []stripe) {
	var (
		rows = c.RowPartitions.Blocks()
		cols = c.ColPartitions.Blocks()
	)
	s = make([]stripe, c.ParallelDegree)
	for np := range s {
		s[np] = stripe{rows: rows[np], cols: cols[np]}
	}
	return
}

// nodes is the range of node indices owned by the column stripe
func (s stripe) nodes(Ny int) (iMin, iMax int) {
	return s.cols.Offset * Ny, (s.cols.Offset + s.cols.Length) * Ny
}

func (c *ShallowWater) stripeDerivatives(s stripe, q [3][]float64, sc *scratch) {
	var (
		rowMin, rowMax = s.rows.Offset, s.rows.Offset + s.rows.Length
		colMin, colMax = s.cols.Offset, s.cols.Offset + s.cols.Length
	)
	for n := 0; n < 3; n++ {
		c.grid.DerivativeXRows(q[n], sc.dfdx[n], rowMin, rowMax)
		c.grid.DerivativeYCols(q[n], sc.dfdy[n], colMin, colMax)
	}
}

func (c *ShallowWater) stripeTendency(iMin, iMax int, q [3][]float64, sc *scratch, k [3][]float64) {
	var (
		g          = c.params.Gravity
		u, v, h    = q[0], q[1], q[2]
		dudx, dvdx = sc.dfdx[0], sc.dfdx[1]
		dudy, dvdy = sc.dfdy[0], sc.dfdy[1]
		dhdx, dhdy = sc.dfdx[2], sc.dfdy[2]
		ku, kv, kh = k[0], k[1], k[2]
	)
	for i := iMin; i < iMax; i++ {
		ku[i], kv[i], kh[i] = Tendency(g, u[i], v[i], h[i],
			dudx[i], dudy[i], dvdx[i], dvdy[i], dhdx[i], dhdy[i])
	}
}

// stripeUpdate applies one low storage RK4 stage to the nodes [iMin, iMax)
func (c *ShallowWater) stripeUpdate(stage, iMin, iMax int, rk rk4Coefficients, q [3][]float64, sc *scratch,
	k, kPrev [3][]float64) {
	for n := 0; n < 3; n++ {
		var (
			qD, qNewD = q[n], sc.qNew[n]
			kD, kPD   = k[n], kPrev[n]
		)
		for i := iMin; i < iMax; i++ {
			rk.Update(stage, &qD[i], &qNewD[i], kD[i], kPD[i])
		}
	}
}

// TimeIntegrate runs the RK4 loop with the stripe evaluator on a fixed pool of ParallelDegree workers,
// spawned once for the whole loop
func (c *ShallowWater) TimeIntegrate() (err error) {
	var (
		p       = c.params
		NP      = c.ParallelDegree
		nSteps  = NumSteps(p.Dt, p.FinalTime)
		sc      = newScratch(p.Nx * p.Ny)
		bar     = utils.NewBarrier(NP)
		stripes = c.stripes() // Computed before any worker starts, read only afterward
		q       = [3][]float64{c.u, c.v, c.h}
		rk      = newRK4Coefficients(p.Dt)
	)
	if nSteps == 0 {
		return
	}
	err = utils.RunWorkers(NP, bar, func(myThread int) (err error) {
		var (
			s          = stripes[myThread]
			iMin, iMax = s.nodes(p.Ny)
			k, kPrev   = sc.k[0], sc.k[1]
		)
		for step := 0; step < nSteps; step++ {
			for stage := 0; stage < 4; stage++ {
				c.stripeDerivatives(s, q, sc)
				if err = bar.Await(); err != nil {
					return
				}
				c.stripeTendency(iMin, iMax, q, sc, k)
				c.stripeUpdate(stage, iMin, iMax, rk, q, sc, k, kPrev)
				if err = bar.Await(); err != nil {
					return
				}
				k, kPrev = kPrev, k
			}
			if myThread == 0 {
				// The others cannot pass the next barrier, so the state is stable while we read it
				c.Steps++
				c.Time += p.Dt
				if c.PrintEverySteps > 0 && c.Steps%c.PrintEverySteps == 0 {
					c.PrintUpdate()
				}
			}
		}
		return
	})
	if err != nil {
		err = fmt.Errorf("%w after %d of %d steps: %w", ErrWorkerFailed, c.Steps, nSteps, err)
	}
	return
}

// Tendencies evaluates the right hand side for the current state with the stripe evaluator
func (c *ShallowWater) Tendencies() (k [3][]float64, err error) {
	var (
		N       = c.params.Nx * c.params.Ny
		NP      = c.ParallelDegree
		sc      = newScratch(N)
		bar     = utils.NewBarrier(NP)
		stripes = c.stripes()
		q       = [3][]float64{c.u, c.v, c.h}
	)
	for n := range k {
		k[n] = make([]float64, N)
	}
	err = utils.RunWorkers(NP, bar, func(myThread int) (err error) {
		s := stripes[myThread]
		c.stripeDerivatives(s, q, sc)
		if err = bar.Await(); err != nil {
			return
		}
		iMin, iMax := s.nodes(c.params.Ny)
		c.stripeTendency(iMin, iMax, q, sc, k)
		return
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrWorkerFailed, err)
	}
	return
}
