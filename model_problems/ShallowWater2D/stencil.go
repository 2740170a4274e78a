package ShallowWater2D

import (
	"fmt"
	"strings"

	"github.com/notargets/goswe/utils"
)

// StencilWeights are the sixth order central difference weights at offsets StencilOffsets
var (
	StencilWeights = [6]float64{-1. / 60., 3. / 20., -3. / 4., 3. / 4., -3. / 20., 1. / 60.}
	StencilOffsets = [6]int{-3, -2, -1, 1, 2, 3}
)

type DerivativeMode uint8

const (
	STENCIL_DERIVATIVES DerivativeMode = iota // Strided stencil over the packed state
	SPARSE_DERIVATIVES                        // Assembled periodic differentiation operators
)

var DerivativeNames = map[string]DerivativeMode{
	"stencil": STENCIL_DERIVATIVES,
	"sparse":  SPARSE_DERIVATIVES,
}

func (dm DerivativeMode) Print() (txt string) {
	switch dm {
	case STENCIL_DERIVATIVES:
		txt = "strided stencil"
	case SPARSE_DERIVATIVES:
		txt = "sparse differentiation operator"
	default:
		txt = "unknown"
	}
	return
}

func NewDerivativeMode(label string) (dm DerivativeMode, err error) {
	var ok bool
	label = strings.ToLower(label)
	if len(label) == 0 {
		return STENCIL_DERIVATIVES, nil
	}
	if dm, ok = DerivativeNames[label]; !ok {
		err = fmtInvalid("unable to use derivative mode named %s", label)
	}
	return
}

// Stencil is the periodic difference operator along one axis of extent N.
// Nbr[k][i] is the wrapped index of i + StencilOffsets[k].
type Stencil struct {
	N     int
	Scale float64 // 1/spacing
	Nbr   [6][]int
}

func NewStencil(N int, spacing float64) (s *Stencil) {
	s = &Stencil{
		N:     N,
		Scale: 1. / spacing,
	}
	for k, off := range StencilOffsets {
		s.Nbr[k] = make([]int, N)
		for i := 0; i < N; i++ {
			s.Nbr[k][i] = ((i+off)%N + N) % N
		}
	}
	return
}

// Apply takes the neighbour values at offsets -3..+3 (excluding the center).
// Summing antisymmetric pairs makes a constant field difference to exactly zero.
func (s *Stencil) Apply(m3, m2, m1, p1, p2, p3 float64) float64 {
	return s.applyPairs(p1-m1, p2-m2, p3-m3)
}

// applyPairs weights the differences across offsets 1, 2 and 3
func (s *Stencil) applyPairs(d1, d2, d3 float64) float64 {
	return s.Scale * (StencilWeights[3]*d1 + StencilWeights[4]*d2 + StencilWeights[5]*d3)
}

// Grid carries the stencils for both axes of an Nx x Ny field stored with index iy + ix*Ny
type Grid struct {
	Nx, Ny int
	X, Y   *Stencil
}

func NewGrid(Nx, Ny int, dx, dy float64) *Grid {
	return &Grid{
		Nx: Nx,
		Ny: Ny,
		X:  NewStencil(Nx, dx),
		Y:  NewStencil(Ny, dy),
	}
}

// DerivativeXRows fills dfdx for the row stripe iy in [iyMin, iyMax) across every column
func (g *Grid) DerivativeXRows(f, dfdx []float64, iyMin, iyMax int) {
	var (
		Ny  = g.Ny
		nbr = g.X.Nbr
	)
	for ix := 0; ix < g.Nx; ix++ {
		var (
			m3, m2, m1 = nbr[0][ix] * Ny, nbr[1][ix] * Ny, nbr[2][ix] * Ny
			p1, p2, p3 = nbr[3][ix] * Ny, nbr[4][ix] * Ny, nbr[5][ix] * Ny
			base       = ix * Ny
		)
		for iy := iyMin; iy < iyMax; iy++ {
			dfdx[base+iy] = g.X.Apply(f[m3+iy], f[m2+iy], f[m1+iy], f[p1+iy], f[p2+iy], f[p3+iy])
		}
	}
}

// DerivativeYCols fills dfdy for the column stripe ix in [ixMin, ixMax) across every row
func (g *Grid) DerivativeYCols(f, dfdy []float64, ixMin, ixMax int) {
	var (
		Ny  = g.Ny
		nbr = g.Y.Nbr
	)
	for ix := ixMin; ix < ixMax; ix++ {
		col := f[ix*Ny : (ix+1)*Ny]
		out := dfdy[ix*Ny : (ix+1)*Ny]
		for iy := 0; iy < Ny; iy++ {
			out[iy] = g.Y.Apply(col[nbr[0][iy]], col[nbr[1][iy]], col[nbr[2][iy]],
				col[nbr[3][iy]], col[nbr[4][iy]], col[nbr[5][iy]])
		}
	}
}

// Derivatives fills both derivative fields over the whole grid on the calling goroutine
func (g *Grid) Derivatives(f, dfdx, dfdy []float64) {
	g.DerivativeXRows(f, dfdx, 0, g.Ny)
	g.DerivativeYCols(f, dfdy, 0, g.Nx)
}

// PackedDerivatives differentiates the interleaved state S = [u0,v0,h0,u1,...] component by
// component; results are identical to Derivatives applied to each unpacked field.
func (g *Grid) PackedDerivatives(S, dSdx, dSdy []float64) {
	var (
		Ny   = g.Ny
		ldy  = 3 * Ny
		nbrX = g.X.Nbr
		nbrY = g.Y.Nbr
	)
	for ix := 0; ix < g.Nx; ix++ {
		var (
			m3, m2, m1 = nbrX[0][ix] * ldy, nbrX[1][ix] * ldy, nbrX[2][ix] * ldy
			p1, p2, p3 = nbrX[3][ix] * ldy, nbrX[4][ix] * ldy, nbrX[5][ix] * ldy
			base       = ix * ldy
		)
		for iy := 0; iy < Ny; iy++ {
			var (
				iy3        = 3 * iy
				ym3, ym2   = base + 3*nbrY[0][iy], base + 3*nbrY[1][iy]
				ym1, yp1   = base + 3*nbrY[2][iy], base + 3*nbrY[3][iy]
				yp2, yp3   = base + 3*nbrY[4][iy], base + 3*nbrY[5][iy]
				nodeOffset = base + iy3
			)
			for n := 0; n < 3; n++ {
				i := iy3 + n
				dSdx[nodeOffset+n] = g.X.Apply(S[m3+i], S[m2+i], S[m1+i], S[p1+i], S[p2+i], S[p3+i])
				dSdy[nodeOffset+n] = g.Y.Apply(S[ym3+n], S[ym2+n], S[ym1+n], S[yp1+n], S[yp2+n], S[yp3+n])
			}
		}
	}
}

/*
	PackedOperator differentiates the packed state along one axis with assembled periodic operators.
	Pairs[k] holds the difference S(i+k+1) - S(i-k-1) with entries of +-1, so each product is exact
	and the weighted sum matches Stencil.Apply bit for bit. On short axes the two entries of a
	row alias onto one column and cancel.
*/
type PackedOperator struct {
	Pairs   [3]utils.CSR
	stencil *Stencil
	work    [3][]float64
}

func (op *PackedOperator) Dims() (r, c int) { return op.Pairs[0].Dims() }

// At is the weighted operator entry, for inspection only
func (op *PackedOperator) At(i, j int) float64 {
	return op.stencil.applyPairs(op.Pairs[0].At(i, j), op.Pairs[1].At(i, j), op.Pairs[2].At(i, j))
}

// MulVec overwrites dst with the derivative of S, not safe for concurrent use
func (op *PackedOperator) MulVec(dst, S []float64) {
	for k := range op.Pairs {
		op.Pairs[k].MulVec(op.work[k], S)
	}
	d1, d2, d3 := op.work[0], op.work[1], op.work[2]
	for i := range dst {
		dst[i] = op.stencil.applyPairs(d1[i], d2[i], d3[i])
	}
}

// PackedOperators assembles the x and y differentiation operators acting on the packed state.
// The periodic wrap puts entries in the matrix corners, so they are kept sparse rather than banded.
func (g *Grid) PackedOperators() (Dx, Dy *PackedOperator) {
	var (
		Ny  = g.Ny
		dim = 3 * g.Nx * Ny
	)
	Dx = &PackedOperator{stencil: g.X}
	Dy = &PackedOperator{stencil: g.Y}
	for k := 0; k < 3; k++ {
		var (
			// StencilOffsets[2-k] = -(k+1), StencilOffsets[3+k] = k+1
			lo, hi = 2 - k, 3 + k
			ex     = utils.NewDOK(dim, dim, fmt.Sprintf("Ex%d", k+1))
			ey     = utils.NewDOK(dim, dim, fmt.Sprintf("Ey%d", k+1))
		)
		for ix := 0; ix < g.Nx; ix++ {
			for iy := 0; iy < Ny; iy++ {
				var (
					node          = iy + ix*Ny
					xPlus, xMinus = iy + g.X.Nbr[hi][ix]*Ny, iy + g.X.Nbr[lo][ix]*Ny
					yPlus, yMinus = g.Y.Nbr[hi][iy] + ix*Ny, g.Y.Nbr[lo][iy] + ix*Ny
				)
				for n := 0; n < 3; n++ {
					ex.Add(3*node+n, 3*xPlus+n, 1)
					ex.Add(3*node+n, 3*xMinus+n, -1)
					ey.Add(3*node+n, 3*yPlus+n, 1)
					ey.Add(3*node+n, 3*yMinus+n, -1)
				}
			}
		}
		Dx.Pairs[k], Dy.Pairs[k] = ex.ToCSR(), ey.ToCSR()
		Dx.work[k], Dy.work[k] = make([]float64, dim), make([]float64, dim)
	}
	return
}
