package ShallowWater2D

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/goswe/utils"
)

func newTestSolver(t *testing.T, Nx, Ny int, dx, dy float64, modify func(p *Parameters)) (c *ShallowWater) {
	var (
		err error
		p   = DefaultParameters()
	)
	p.Nx, p.Ny, p.Dx, p.Dy = Nx, Ny, dx, dy
	p.ParallelDegree = 1
	if modify != nil {
		modify(&p)
	}
	c, err = NewShallowWater(p, false)
	require.NoError(t, err)
	return
}

func relativeClose(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestNumSteps(t *testing.T) {
	assert.Equal(t, 10, NumSteps(0.01, 0.1))
	assert.Equal(t, 0, NumSteps(0.1, 0))
	assert.Equal(t, 1, NumSteps(0.1, 0.1))
	assert.Equal(t, 251, NumSteps(0.1, 25.1))
	assert.Equal(t, 1000, NumSteps(0.001, 1))
}

func TestParametersValidate(t *testing.T) {
	require.NoError(t, DefaultParameters().Validate())
	cases := map[string]func(p *Parameters){
		"zero Nx":           func(p *Parameters) { p.Nx = 0 },
		"negative Ny":       func(p *Parameters) { p.Ny = -4 },
		"zero dx":           func(p *Parameters) { p.Dx = 0 },
		"NaN dy":            func(p *Parameters) { p.Dy = math.NaN() },
		"zero dt":           func(p *Parameters) { p.Dt = 0 },
		"negative dt":       func(p *Parameters) { p.Dt = -0.1 },
		"infinite dt":       func(p *Parameters) { p.Dt = math.Inf(1) },
		"negative T":        func(p *Parameters) { p.FinalTime = -1 },
		"NaN T":             func(p *Parameters) { p.FinalTime = math.NaN() },
		"too many steps":    func(p *Parameters) { p.Dt, p.FinalTime = 1.e-300, 1 },
		"zero gravity":      func(p *Parameters) { p.Gravity = 0 },
		"negative workers":  func(p *Parameters) { p.ParallelDegree = -1 },
		"unknown evaluator": func(p *Parameters) { p.Evaluator = 7 },
		"unknown mode":      func(p *Parameters) { p.Derivatives = 7 },
		"unknown case 0":    func(p *Parameters) { p.Case = 0 },
		"unknown case 5":    func(p *Parameters) { p.Case = 5 },
	}
	for name, modify := range cases {
		p := DefaultParameters()
		modify(&p)
		err := p.Validate()
		assert.True(t, errors.Is(err, ErrInvalidConfig), "%s: %v", name, err)
		c, err := NewShallowWater(p, false)
		assert.ErrorIs(t, err, ErrInvalidConfig, name)
		assert.Nil(t, c, name)
	}
	{ // T = 0 is a valid, empty run
		p := DefaultParameters()
		p.FinalTime = 0
		assert.NoError(t, p.Validate())
	}
}

func TestEvaluatorType(t *testing.T) {
	for label, expected := range map[string]EvaluatorType{
		"": STRIPE, "Stripe": STRIPE, "stencil": STRIPE, "BANDED": BANDED, "blas": BANDED,
	} {
		et, err := NewEvaluatorType(label)
		require.NoError(t, err, label)
		assert.Equal(t, expected, et, label)
	}
	_, err := NewEvaluatorType("gpu")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, "unknown", EvaluatorType(5).Print())
	assert.Equal(t, "Banded matrix (BLAS Gbmv)", BANDED.Print())
}

func TestParallelDegree(t *testing.T) {
	c := newTestSolver(t, 10, 7, 1, 1, func(p *Parameters) { p.ParallelDegree = 0 })
	assert.Equal(t, runtime.NumCPU(), c.ParallelDegree)
	c.SetParallelDegree(3)
	assert.Equal(t, 3, c.ParallelDegree)
	s := c.stripes()
	require.Len(t, s, 3)
	// Columns split Nx = 10, rows split Ny = 7
	var colTotal, rowTotal int
	for np, st := range s {
		assert.Equal(t, colTotal, st.cols.Offset, "worker %d", np)
		assert.Equal(t, rowTotal, st.rows.Offset, "worker %d", np)
		colTotal += st.cols.Length
		rowTotal += st.rows.Length
	}
	assert.Equal(t, 10, colTotal)
	assert.Equal(t, 7, rowTotal)
	iMin, iMax := s[1].nodes(7)
	assert.Equal(t, 4*7, iMin)
	assert.Equal(t, 7*7, iMax)
}

func TestInitialConditions(t *testing.T) {
	{ // X bump: varies with x only, peak at Nx/2
		c := newTestSolver(t, 40, 6, 1, 1, func(p *Parameters) { p.Case = X_BUMP })
		assert.Equal(t, 11., c.H()[0+20*6])
		for ix := 0; ix < 40; ix++ {
			for iy := 1; iy < 6; iy++ {
				assert.Equal(t, c.H()[ix*6], c.H()[iy+ix*6])
			}
		}
		assert.InDelta(t, BaseHeight, c.H()[0], 1.e-12)
	}
	{ // Y bump: varies with y only, peak at Ny/2
		c := newTestSolver(t, 5, 30, 1, 1, func(p *Parameters) { p.Case = Y_BUMP })
		assert.Equal(t, 11., c.H()[15])
		for ix := 1; ix < 5; ix++ {
			for iy := 0; iy < 30; iy++ {
				assert.Equal(t, c.H()[iy], c.H()[iy+ix*30])
			}
		}
		// Width is Nx/4 = 1.25
		assert.Equal(t, BaseHeight+math.Exp(-4./1.25), c.H()[17])
	}
	{ // Bumps sit at fixed coordinates, independent of the grid extents
		c := newTestSolver(t, 100, 100, 1, 1, func(p *Parameters) { p.Case = SINGLE_BUMP })
		assert.Equal(t, 11., c.H()[50+50*100])
		assert.InDelta(t, BaseHeight+math.Exp(-2./25.), c.H()[51+49*100], 1.e-14)
		c = newTestSolver(t, 100, 100, 1, 1, func(p *Parameters) { p.Case = DOUBLE_BUMP })
		assert.InDelta(t, 11., c.H()[25+25*100], 1.e-12)
		assert.InDelta(t, 11., c.H()[75+75*100], 1.e-12)
		assert.InDelta(t, BaseHeight, c.H()[50+50*100], 1.e-12)
		for i := range c.U() {
			require.Equal(t, 0., c.U()[i])
			require.Equal(t, 0., c.V()[i])
		}
	}
	assert.Equal(t, "unknown initial condition", InitType(0).Print())
	assert.Equal(t, "Single 2D bump at (50,50)", SINGLE_BUMP.Print())
}

func TestSetState(t *testing.T) {
	c := newTestSolver(t, 3, 2, 1, 1, nil)
	u := []float64{1, 2, 3, 4, 5, 6}
	v := []float64{6, 5, 4, 3, 2, 1}
	h := []float64{9, 9, 9, 9, 9, 9}
	require.NoError(t, c.SetState(u, v, h))
	assert.Equal(t, u, c.U())
	assert.Equal(t, v, c.V())
	assert.Equal(t, h, c.H())
	u[0] = 100 // Copied, not aliased
	assert.Equal(t, 1., c.U()[0])
	assert.ErrorIs(t, c.SetState(u[:5], v, h), ErrInvalidConfig)
	assert.Equal(t, 54., c.Mass())
	def := DefaultParameters()
	assert.Equal(t, def.Dt, c.TimeStep())
	assert.Equal(t, def.FinalTime, c.FinalTime())
	assert.Equal(t, X_BUMP, c.InitType())
	assert.Equal(t, [2]int{3, 2}, [2]int{c.Nx(), c.Ny()})
	assert.Equal(t, [2]float64{1, 1}, [2]float64{c.Dx(), c.Dy()})
}

func TestSteadyState(t *testing.T) {
	for _, evaluator := range []EvaluatorType{STRIPE, BANDED} {
		for _, mode := range []DerivativeMode{STENCIL_DERIVATIVES, SPARSE_DERIVATIVES} {
			for _, NP := range []int{1, 3} {
				var (
					Nx, Ny = 11, 8
					N      = Nx * Ny
				)
				c := newTestSolver(t, Nx, Ny, 0.7, 1.3, func(p *Parameters) {
					p.Evaluator, p.Derivatives, p.ParallelDegree = evaluator, mode, NP
					p.Dt, p.FinalTime = 0.05, 1
				})
				u, v, h := make([]float64, N), make([]float64, N), make([]float64, N)
				for i := range h {
					h[i] = 10.375
				}
				require.NoError(t, c.SetState(u, v, h))
				require.NoError(t, c.Solve())
				assert.Equal(t, 20, c.Steps)
				assert.InDelta(t, 1., c.Time, 1.e-12)
				assert.Equal(t, u, c.U())
				assert.Equal(t, v, c.V())
				assert.Equal(t, h, c.H())
			}
		}
	}
}

func TestZeroLengthRun(t *testing.T) {
	for _, evaluator := range []EvaluatorType{STRIPE, BANDED} {
		c := newTestSolver(t, 12, 12, 1, 1, func(p *Parameters) {
			p.Evaluator, p.FinalTime, p.Case = evaluator, 0, DOUBLE_BUMP
		})
		h0 := append([]float64{}, c.H()...)
		require.NoError(t, c.Solve())
		assert.Equal(t, 0, c.Steps)
		assert.Equal(t, h0, c.H())
	}
}

func TestCrossEvaluatorAgreement(t *testing.T) {
	for _, ext := range [][2]int{{12, 9}, {7, 16}, {4, 5}} {
		var (
			Nx, Ny = ext[0], ext[1]
			N      = Nx * Ny
			rng    = rand.New(rand.NewSource(int64(7*Nx + Ny)))
		)
		c := newTestSolver(t, Nx, Ny, 0.7, 1.3, nil)
		require.NoError(t, c.SetState(randomField(rng, N, 0, 1), randomField(rng, N, 0, 1),
			randomField(rng, N, 10, 1)))
		reference, err := c.Tendencies()
		require.NoError(t, err)
		for _, NP := range []int{2, 3, 5, 16} {
			c.SetParallelDegree(NP)
			k, err := c.Tendencies()
			require.NoError(t, err)
			// Stripe results do not depend on the worker count
			assert.Equal(t, reference, k, "Nx=%d, Ny=%d, NP=%d", Nx, Ny, NP)
		}
		for _, mode := range []DerivativeMode{STENCIL_DERIVATIVES, SPARSE_DERIVATIVES} {
			kB := c.BandedTendencies(mode)
			for n := 0; n < 3; n++ {
				for i := 0; i < N; i++ {
					require.True(t, relativeClose(reference[n][i], kB[n][i], 1.e-10),
						"Nx=%d, Ny=%d, %s, field %d, node %d: stripe %v, banded %v",
						Nx, Ny, mode.Print(), n, i, reference[n][i], kB[n][i])
				}
			}
		}
		// Assembled operators differentiate exactly like the strided stencil
		assert.Equal(t, c.BandedTendencies(STENCIL_DERIVATIVES), c.BandedTendencies(SPARSE_DERIVATIVES))
	}
}

func TestWorkerFailure(t *testing.T) {
	var (
		Nx, Ny = 9, 7
		N      = Nx * Ny
	)
	c := newTestSolver(t, Nx, Ny, 1, 1, func(p *Parameters) {
		p.Dt, p.FinalTime, p.ParallelDegree = 0.01, 0.1, 3
	})
	// A short height field sends the worker owning the last row out of range
	c.h = c.h[:N-1]
	err := c.TimeIntegrate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkerFailed)
	assert.NotErrorIs(t, err, utils.ErrBarrierBroken)
	assert.Contains(t, err.Error(), "after 0 of 10 steps")
	assert.Contains(t, err.Error(), "index out of range")
	assert.Equal(t, 0, c.Steps)

	_, err = c.Tendencies()
	assert.ErrorIs(t, err, ErrWorkerFailed)

	err = c.Solve()
	assert.ErrorIs(t, err, ErrWorkerFailed)
	assert.NotErrorIs(t, err, ErrDiverged)
}

func TestBandedLastNode(t *testing.T) {
	// A height gradient along y at the last node drives its v tendency through gravity
	var (
		Nx, Ny = 4, 8
		N      = Nx * Ny
		rng    = rand.New(rand.NewSource(11))
	)
	c := newTestSolver(t, Nx, Ny, 1, 1, nil)
	h := randomField(rng, N, 10, 1)
	require.NoError(t, c.SetState(make([]float64, N), make([]float64, N), h))
	kB := c.BandedTendencies(STENCIL_DERIVATIVES)
	var (
		dhdx, dhdy = make([]float64, N), make([]float64, N)
		g          = c.Gravity()
	)
	c.grid.Derivatives(h, dhdx, dhdy)
	assert.NotEqual(t, 0., dhdy[N-1])
	assert.InDelta(t, -g*dhdy[N-1], kB[1][N-1], 1.e-12)
	assert.InDelta(t, -g*dhdy[0], kB[1][0], 1.e-12)
}

func TestMassConservation(t *testing.T) {
	type run struct {
		Nx, Ny     int
		dx, dy, dt float64
		T          float64
		init       InitType
		evaluator  EvaluatorType
		mode       DerivativeMode
		NP         int
	}
	for _, r := range []run{
		{20, 20, 1, 1, 0.01, 0.1, SINGLE_BUMP, STRIPE, STENCIL_DERIVATIVES, 4},
		{20, 20, 1, 1, 0.01, 0.1, SINGLE_BUMP, BANDED, STENCIL_DERIVATIVES, 1},
		{40, 40, 2.5, 2.5, 0.01, 0.1, DOUBLE_BUMP, STRIPE, STENCIL_DERIVATIVES, 3},
		{40, 40, 2.5, 2.5, 0.01, 0.1, DOUBLE_BUMP, BANDED, SPARSE_DERIVATIVES, 1},
		{32, 24, 1, 1, 0.02, 0.2, X_BUMP, STRIPE, STENCIL_DERIVATIVES, 5},
		{24, 32, 1, 1, 0.02, 0.2, Y_BUMP, BANDED, STENCIL_DERIVATIVES, 1},
	} {
		c := newTestSolver(t, r.Nx, r.Ny, r.dx, r.dy, func(p *Parameters) {
			p.Dt, p.FinalTime, p.Case = r.dt, r.T, r.init
			p.Evaluator, p.Derivatives, p.ParallelDegree = r.evaluator, r.mode, r.NP
		})
		m0 := c.Mass()
		require.NoError(t, c.Solve())
		assert.Equal(t, 10, c.Steps)
		assert.InDelta(t, 0., (c.Mass()-m0)/m0, 1.e-12, "%+v", r)
		assert.False(t, math.IsNaN(c.Mass()))
	}
}

func TestStripeBandedRunsAgree(t *testing.T) {
	runs := make([]*ShallowWater, 0, 3)
	for _, cfg := range []struct {
		evaluator EvaluatorType
		mode      DerivativeMode
		NP        int
	}{{STRIPE, STENCIL_DERIVATIVES, 4}, {BANDED, STENCIL_DERIVATIVES, 1}, {BANDED, SPARSE_DERIVATIVES, 1}} {
		c := newTestSolver(t, 40, 40, 2.5, 2.5, func(p *Parameters) {
			p.Dt, p.FinalTime, p.Case = 0.01, 0.1, DOUBLE_BUMP
			p.Evaluator, p.Derivatives, p.ParallelDegree = cfg.evaluator, cfg.mode, cfg.NP
		})
		require.NoError(t, c.Solve())
		runs = append(runs, c)
	}
	ref := runs[0]
	for _, c := range runs[1:] {
		for i := range ref.H() {
			require.True(t, relativeClose(ref.U()[i], c.U()[i], 1.e-9), "u[%d]", i)
			require.True(t, relativeClose(ref.V()[i], c.V()[i], 1.e-9), "v[%d]", i)
			require.True(t, relativeClose(ref.H()[i], c.H()[i], 1.e-9), "h[%d]", i)
		}
	}
	// The bumps start to spread, so the run is not trivially at rest
	assert.Less(t, ref.H()[10+10*40], 11.)
}

func TestWriteFile(t *testing.T) {
	c := newTestSolver(t, 2, 3, 0.5, 2, nil)
	require.NoError(t, c.SetState(
		[]float64{0, 1, 2, 3, 4, 5},
		[]float64{-1, -2, -3, -4, -5, -6},
		[]float64{10, 10.5, 11, 11.5, 12, 12.5}))
	var buf bytes.Buffer
	require.NoError(t, c.WriteFile(&buf))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"0\t0\t0\t-1\t10",
		"0\t2\t1\t-2\t10.5",
		"0\t4\t2\t-3\t11",
		"0.5\t0\t3\t-4\t11.5",
		"0.5\t2\t4\t-5\t12",
		"0.5\t4\t5\t-6\t12.5",
	}, lines)
	{ // Round trip through the file system
		path := filepath.Join(t.TempDir(), DefaultOutputFile)
		require.NoError(t, c.WriteFileTo(path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, buf.String(), string(data))
		err = c.WriteFileTo(filepath.Join(t.TempDir(), "missing", "dir", "out.txt"))
		assert.Error(t, err)
	}
}

func TestDiverged(t *testing.T) {
	// Far beyond the stability limit of RK4 for gravity waves on a unit grid
	c := newTestSolver(t, 16, 16, 1, 1, func(p *Parameters) {
		p.Dt, p.FinalTime, p.Case = 5, 500, X_BUMP
	})
	err := c.Solve()
	assert.ErrorIs(t, err, ErrDiverged)
}
