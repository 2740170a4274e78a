package ShallowWater2D

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/goswe/utils"
)

// StandardGravity is the gravitational acceleration used unless a run overrides it
const StandardGravity = 9.81

// MaxSteps bounds T/dt; beyond it t += dt stops advancing t in float64
const MaxSteps = 1 << 40

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrWorkerFailed  = errors.New("worker failed during integration")
	ErrDiverged      = errors.New("solution diverged")
)

type EvaluatorType uint8

const (
	STRIPE EvaluatorType = iota // Multithreaded finite difference stencil
	BANDED                      // Sequential banded matrix formulation
)

var EvaluatorNames = map[string]EvaluatorType{
	"stripe":  STRIPE,
	"stencil": STRIPE,
	"banded":  BANDED,
	"blas":    BANDED,
}

var EvaluatorPrintNames = []string{"Stripe parallel stencil", "Banded matrix (BLAS Gbmv)"}

func (et EvaluatorType) Print() (txt string) {
	if int(et) >= len(EvaluatorPrintNames) {
		return "unknown"
	}
	return EvaluatorPrintNames[et]
}

func NewEvaluatorType(label string) (et EvaluatorType, err error) {
	var ok bool
	label = strings.ToLower(label)
	if len(label) == 0 {
		return STRIPE, nil
	}
	if et, ok = EvaluatorNames[label]; !ok {
		err = fmtInvalid("unable to use evaluator named %s", label)
	}
	return
}

func fmtInvalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Parameters are fixed for the life of a run
type Parameters struct {
	Dt, FinalTime  float64
	Nx, Ny         int
	Dx, Dy         float64
	Gravity        float64
	Case           InitType
	ParallelDegree int // Zero selects one worker per hardware thread
	Evaluator      EvaluatorType
	Derivatives    DerivativeMode // Banded evaluator only
}

func DefaultParameters() Parameters {
	return Parameters{
		Dt:        0.1,
		FinalTime: 25.1,
		Nx:        100,
		Ny:        100,
		Dx:        1,
		Dy:        1,
		Gravity:   StandardGravity,
		Case:      X_BUMP,
	}
}

// Validate runs before any allocation so bad extents never reach make()
func (p Parameters) Validate() (err error) {
	invalid := fmtInvalid
	switch {
	case p.Nx <= 0 || p.Ny <= 0:
		return invalid("grid extents must be positive, have Nx = %d, Ny = %d", p.Nx, p.Ny)
	case !(p.Dx > 0) || !(p.Dy > 0):
		return invalid("grid spacing must be positive, have dx = %v, dy = %v", p.Dx, p.Dy)
	case !(p.Dt > 0) || math.IsInf(p.Dt, 0):
		return invalid("time step must be positive, have dt = %v", p.Dt)
	case !(p.FinalTime >= 0) || math.IsInf(p.FinalTime, 0):
		return invalid("integration time must be non-negative, have T = %v", p.FinalTime)
	case p.FinalTime/p.Dt > MaxSteps:
		return invalid("T/dt = %v exceeds the step limit %v", p.FinalTime/p.Dt, float64(MaxSteps))
	case !(p.Gravity > 0):
		return invalid("gravity must be positive, have g = %v", p.Gravity)
	case p.ParallelDegree < 0:
		return invalid("parallel degree must be non-negative, have %d", p.ParallelDegree)
	case p.Evaluator > BANDED:
		return invalid("unknown evaluator %d", p.Evaluator)
	case p.Derivatives > SPARSE_DERIVATIVES:
		return invalid("unknown derivative mode %d", p.Derivatives)
	}
	if _, ok := InitFunctions[p.Case]; !ok {
		return invalid("initial condition must be one of 1..4, have %d", p.Case)
	}
	return
}

type ShallowWater struct {
	params          Parameters
	u, v, h         []float64 // Nx*Ny, index = iy + ix*Ny
	grid            *Grid
	ParallelDegree  int
	ColPartitions   *utils.PartitionMap // Over Nx: y-derivative and tendency ownership
	RowPartitions   *utils.PartitionMap // Over Ny: x-derivative ownership
	Steps           int                 // Completed time steps
	Time            float64             // Integrated time
	Elapsed         time.Duration
	verbose         bool
	PrintEverySteps int // Progress line cadence when verbose, zero prints only start and end
}

func NewShallowWater(p Parameters, verbose bool) (c *ShallowWater, err error) {
	if err = p.Validate(); err != nil {
		return
	}
	c = &ShallowWater{
		params:  p,
		grid:    NewGrid(p.Nx, p.Ny, p.Dx, p.Dy),
		verbose: verbose,
	}
	c.SetParallelDegree(p.ParallelDegree)
	c.InitializeSolution()
	if verbose {
		fmt.Printf("Shallow Water Equations in 2 Dimensions\n")
		fmt.Printf("Solving %s on a %d x %d periodic grid, dx = %8.5f, dy = %8.5f\n",
			p.Case.Print(), p.Nx, p.Ny, p.Dx, p.Dy)
		fmt.Printf("Algorithm: %s\n", p.Evaluator.Print())
		if p.Evaluator == STRIPE {
			fmt.Printf("Using %d go routines in parallel\n", c.ParallelDegree)
		} else {
			fmt.Printf("Derivatives: %s, BLAS: %s\n", p.Derivatives.Print(), utils.BLASImplementation)
		}
	}
	return
}

// SetParallelDegree fixes the worker count and both partition tables for the life of the run
func (c *ShallowWater) SetParallelDegree(ProcLimit int) {
	if ProcLimit != 0 {
		c.ParallelDegree = ProcLimit
	} else {
		c.ParallelDegree = runtime.NumCPU()
	}
	c.ColPartitions = utils.NewPartitionMap(c.ParallelDegree, c.params.Nx)
	c.RowPartitions = utils.NewPartitionMap(c.ParallelDegree, c.params.Ny)
}

// SetState replaces the fields, e.g. to restart from an externally persisted snapshot
func (c *ShallowWater) SetState(u, v, h []float64) (err error) {
	N := c.params.Nx * c.params.Ny
	if len(u) != N || len(v) != N || len(h) != N {
		return fmt.Errorf("%w: state fields must have %d entries, have %d, %d, %d",
			ErrInvalidConfig, N, len(u), len(v), len(h))
	}
	copy(c.u, u)
	copy(c.v, v)
	copy(c.h, h)
	return
}

func (c *ShallowWater) TimeStep() float64  { return c.params.Dt }
func (c *ShallowWater) FinalTime() float64 { return c.params.FinalTime }
func (c *ShallowWater) Nx() int            { return c.params.Nx }
func (c *ShallowWater) Ny() int            { return c.params.Ny }
func (c *ShallowWater) Dx() float64        { return c.params.Dx }
func (c *ShallowWater) Dy() float64        { return c.params.Dy }
func (c *ShallowWater) Gravity() float64   { return c.params.Gravity }
func (c *ShallowWater) InitType() InitType { return c.params.Case }
func (c *ShallowWater) Params() Parameters { return c.params }

// U, V and H expose the fields read only; callers must not modify them
func (c *ShallowWater) U() []float64 { return c.u }
func (c *ShallowWater) V() []float64 { return c.v }
func (c *ShallowWater) H() []float64 { return c.h }

// NumSteps counts the steps taken by the loop "t = dt; while t < T + dt/2; t += dt".
// The half step tolerance absorbs drift in the accumulated time.
func NumSteps(Dt, FinalTime float64) (steps int) {
	for t := Dt; t < FinalTime+Dt/2; t += Dt {
		steps++
	}
	return
}

// Solve integrates from the current state to FinalTime with the configured evaluator
func (c *ShallowWater) Solve() (err error) {
	c.PrintInitialization()
	start := time.Now()
	switch c.params.Evaluator {
	case BANDED:
		err = c.TimeIntegrateBanded()
	default:
		err = c.TimeIntegrate()
	}
	c.Elapsed += time.Since(start)
	if err != nil {
		return
	}
	if utils.IsNan([3][]float64{c.u, c.v, c.h}) {
		return fmt.Errorf("%w: NaN in the state after %d steps, reduce the time step", ErrDiverged, c.Steps)
	}
	c.PrintFinal()
	return
}

// Mass is the discrete integral of h over the periodic domain
func (c *ShallowWater) Mass() float64 {
	return floats.Sum(c.h) * c.params.Dx * c.params.Dy
}

func (c *ShallowWater) PrintInitialization() {
	if !c.verbose {
		return
	}
	fmt.Printf("Solving until finaltime = %8.5f with dt = %8.5f (%d steps)\n",
		c.params.FinalTime, c.params.Dt, NumSteps(c.params.Dt, c.params.FinalTime))
	fmt.Printf("    iter    time")
	fmt.Printf("       Mass       Hmin       Hmax     |U|max     |V|max\n")
	c.PrintUpdate()
}

func (c *ShallowWater) PrintUpdate() {
	if !c.verbose {
		return
	}
	format := "%11.4e"
	fmt.Printf("%8d%8.4f", c.Steps, c.Time)
	fmt.Printf(format, c.Mass())
	fmt.Printf(format, floats.Min(c.h))
	fmt.Printf(format, floats.Max(c.h))
	fmt.Printf(format, floats.Norm(c.u, math.Inf(1)))
	fmt.Printf(format, floats.Norm(c.v, math.Inf(1)))
	fmt.Printf("\n")
}

func (c *ShallowWater) PrintFinal() {
	if !c.verbose {
		return
	}
	c.PrintUpdate()
	nodes := c.params.Nx * c.params.Ny
	if c.Steps > 0 {
		rate := float64(c.Elapsed.Microseconds()) / (float64(nodes * c.Steps))
		fmt.Printf("\nRate of execution = %8.5f us/(node*iteration) over %d iterations\n", rate, c.Steps)
	}
	fmt.Printf("%s\n", utils.GetMemUsage())
}
