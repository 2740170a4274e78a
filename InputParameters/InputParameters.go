package InputParameters

import (
	"fmt"
	"strconv"

	"github.com/ghodss/yaml"

	"github.com/notargets/goswe/model_problems/ShallowWater2D"
)

// Parameters obtained from the YAML input file. Numeric fields left out of the file are nil and fall
// back to the solver defaults, an explicit zero is kept and validated.
// ghodss/yaml converts to JSON before decoding, so the keys are carried by json tags.
type InputParametersSWE struct {
	Title          string   `json:"Title"`
	TimeStep       *float64 `json:"TimeStep"`
	FinalTime      *float64 `json:"FinalTime"`
	Nx             *int     `json:"Nx"`
	Ny             *int     `json:"Ny"`
	Dx             *float64 `json:"Dx"`
	Dy             *float64 `json:"Dy"`
	Gravity        *float64 `json:"Gravity"`
	InitType       string   `json:"InitType"`       // XBump, YBump, SingleBump, DoubleBump or 1..4
	Evaluator      string   `json:"Evaluator"`      // stripe or banded
	DerivativeMode string   `json:"DerivativeMode"` // stencil or sparse, banded evaluator only
	ProcLimit      int      `json:"ProcLimit"`      // 0 is one worker per hardware thread
	OutputFile     string   `json:"OutputFile"`
	PrintEvery     int      `json:"PrintEvery"`
}

func (ip *InputParametersSWE) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func optFloat(format string, f *float64) string {
	if f == nil {
		return "default"
	}
	return fmt.Sprintf(format, *f)
}

func optInt(i *int) string {
	if i == nil {
		return "default"
	}
	return strconv.Itoa(*i)
}

func (ip *InputParametersSWE) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("%s\t\t= TimeStep\n", optFloat("%8.5f", ip.TimeStep))
	fmt.Printf("%s\t\t= FinalTime\n", optFloat("%8.5f", ip.FinalTime))
	fmt.Printf("[%s x %s]\t\t= Grid Extents\n", optInt(ip.Nx), optInt(ip.Ny))
	fmt.Printf("[%s, %s]\t\t= Grid Spacing\n", optFloat("%g", ip.Dx), optFloat("%g", ip.Dy))
	fmt.Printf("%s\t\t= Gravity\n", optFloat("%8.5f", ip.Gravity))
	fmt.Printf("[%s]\t\t= InitType\n", ip.InitType)
	fmt.Printf("[%s]\t\t= Evaluator\n", ip.Evaluator)
	fmt.Printf("[%s]\t\t= Derivative Mode\n", ip.DerivativeMode)
	fmt.Printf("[%d]\t\t\t= Proc Limit\n", ip.ProcLimit)
	fmt.Printf("[%s]\t\t= Output File\n", ip.OutputFile)
}

// Parameters merges the file values over ShallowWater2D.DefaultParameters and validates the result
func (ip *InputParametersSWE) Parameters() (p ShallowWater2D.Parameters, err error) {
	p = ShallowWater2D.DefaultParameters()
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{ip.TimeStep, &p.Dt}, {ip.FinalTime, &p.FinalTime},
		{ip.Dx, &p.Dx}, {ip.Dy, &p.Dy}, {ip.Gravity, &p.Gravity},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	if ip.Nx != nil {
		p.Nx = *ip.Nx
	}
	if ip.Ny != nil {
		p.Ny = *ip.Ny
	}
	p.ParallelDegree = ip.ProcLimit
	if p.Case, err = ShallowWater2D.NewInitType(ip.InitType); err != nil {
		return
	}
	if p.Evaluator, err = ShallowWater2D.NewEvaluatorType(ip.Evaluator); err != nil {
		return
	}
	if p.Derivatives, err = ShallowWater2D.NewDerivativeMode(ip.DerivativeMode); err != nil {
		return
	}
	err = p.Validate()
	return
}
