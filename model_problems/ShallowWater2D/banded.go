package ShallowWater2D

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

/*
	Banded matrix formulation, on the packed state S = [u0,v0,h0, u1,v1,h1, ...]:
		dS/dt = k = -B*dS/dx - C*dS/dy
	For the node starting at i = 3n:
		B (KL = KU = 2)            C (KL = KU = 1)
		row i:   [u  0  g]         row i:   [v  0  0]
		row i+1: [0  u  0]         row i+1: [0  v  g]
		row i+2: [h  0  u]         row i+2: [0  h  v]
	Both are stored in gonum's row major band layout: A[i][j] = Data[i*Stride + KL + j - i].
*/

// PackState interleaves u, v, h into S
func PackState(u, v, h, S []float64) {
	for n := range u {
		S[3*n], S[3*n+1], S[3*n+2] = u[n], v[n], h[n]
	}
}

// UnpackState is the inverse of PackState
func UnpackState(S, u, v, h []float64) {
	for n := range u {
		u[n], v[n], h[n] = S[3*n], S[3*n+1], S[3*n+2]
	}
}

type BandedEvaluator struct {
	grid       *Grid
	g          float64
	mode       DerivativeMode
	dim        int
	B, C       blas64.Band
	dSdx, dSdy []float64
	Dx, Dy     *PackedOperator // Assembled only in SPARSE_DERIVATIVES mode
}

func NewBandedEvaluator(grid *Grid, gravity float64, mode DerivativeMode) (be *BandedEvaluator) {
	dim := 3 * grid.Nx * grid.Ny
	be = &BandedEvaluator{
		grid: grid,
		g:    gravity,
		mode: mode,
		dim:  dim,
		B: blas64.Band{
			Rows: dim, Cols: dim,
			KL: 2, KU: 2,
			Stride: 5,
			Data:   make([]float64, 5*dim),
		},
		C: blas64.Band{
			Rows: dim, Cols: dim,
			KL: 1, KU: 1,
			Stride: 3,
			Data:   make([]float64, 3*dim),
		},
		dSdx: make([]float64, dim),
		dSdy: make([]float64, dim),
	}
	if mode == SPARSE_DERIVATIVES {
		be.Dx, be.Dy = grid.PackedOperators()
	}
	return
}

func (be *BandedEvaluator) derivatives(S []float64) {
	switch be.mode {
	case SPARSE_DERIVATIVES:
		be.Dx.MulVec(be.dSdx, S)
		be.Dy.MulVec(be.dSdy, S)
	default:
		be.grid.PackedDerivatives(S, be.dSdx, be.dSdy)
	}
}

/*
	assemble fills B and C from the current state. The v to h gravity coupling of node n-1 in C is
	written while visiting node n, so the last node never receives it; Evaluate corrects that
	node's v tendency after the products.
*/
func (be *BandedEvaluator) assemble(S []float64) {
	var (
		g      = be.g
		bD, cD = be.B.Data, be.C.Data
	)
	for i := 0; i < be.dim; i += 3 {
		u, v, h := S[i], S[i+1], S[i+2]
		// B: 5 wide, main diagonal at offset 2
		bD[i*5+2] = u
		bD[i*5+4] = g // B[i][i+2]
		bD[(i+1)*5+2] = u
		bD[(i+2)*5+0] = h // B[i+2][i]
		bD[(i+2)*5+2] = u
		// C: 3 wide, main diagonal at offset 1
		cD[i*3+1] = v
		cD[(i+1)*3+1] = v
		cD[(i+2)*3+0] = h // C[i+2][i+1]
		cD[(i+2)*3+1] = v
		if i != 0 {
			cD[(i-2)*3+2] = g // C[i-2][i-1], previous node
		}
	}
}

// Evaluate overwrites k with the tendency of the packed state S
func (be *BandedEvaluator) Evaluate(S, k []float64) {
	var (
		dim  = be.dim
		vec  = func(d []float64) blas64.Vector { return blas64.Vector{N: dim, Inc: 1, Data: d} }
		last = dim - 3
	)
	be.derivatives(S)
	be.assemble(S)
	blas64.Gbmv(blas.NoTrans, -1, be.B, vec(be.dSdx), 0, vec(k))
	blas64.Gbmv(blas.NoTrans, -1, be.C, vec(be.dSdy), 1, vec(k))
	// Boundary correction: the last node's v row lacks its C gravity entry
	k[last+1] = -(S[last]*be.dSdx[last+1] + S[last+1]*be.dSdy[last+1] + be.g*be.dSdy[last+2])
}

// TimeIntegrateBanded runs the RK4 loop sequentially with the banded evaluator
func (c *ShallowWater) TimeIntegrateBanded() (err error) {
	var (
		p      = c.params
		nSteps = NumSteps(p.Dt, p.FinalTime)
		dim    = 3 * p.Nx * p.Ny
		be     = NewBandedEvaluator(c.grid, p.Gravity, p.Derivatives)
		rk     = newRK4Coefficients(p.Dt)
		arena  = make([]float64, 4*dim)
		S      = arena[0*dim : 1*dim]
		SNew   = arena[1*dim : 2*dim]
		k      = arena[2*dim : 3*dim]
		kPrev  = arena[3*dim : 4*dim]
	)
	if nSteps == 0 {
		return
	}
	PackState(c.u, c.v, c.h, S)
	for step := 0; step < nSteps; step++ {
		for stage := 0; stage < 4; stage++ {
			be.Evaluate(S, k)
			for i := 0; i < dim; i++ {
				rk.Update(stage, &S[i], &SNew[i], k[i], kPrev[i])
			}
			k, kPrev = kPrev, k
		}
		c.Steps++
		c.Time += p.Dt
		if c.PrintEverySteps > 0 && c.Steps%c.PrintEverySteps == 0 {
			UnpackState(S, c.u, c.v, c.h)
			c.PrintUpdate()
		}
	}
	UnpackState(S, c.u, c.v, c.h)
	return
}

// BandedTendencies evaluates the right hand side for the current state with the banded evaluator
func (c *ShallowWater) BandedTendencies(mode DerivativeMode) (k [3][]float64) {
	var (
		N  = c.params.Nx * c.params.Ny
		be = NewBandedEvaluator(c.grid, c.params.Gravity, mode)
		S  = make([]float64, 3*N)
		kS = make([]float64, 3*N)
	)
	PackState(c.u, c.v, c.h, S)
	be.Evaluate(S, kS)
	for n := range k {
		k[n] = make([]float64, N)
	}
	UnpackState(kS, k[0], k[1], k[2])
	return
}
