package ShallowWater2D

import (
	"math"
	"strconv"
	"strings"
)

type InitType uint8

const (
	X_BUMP      InitType = iota + 1 // Height bump varying along x only
	Y_BUMP                          // Height bump varying along y only
	SINGLE_BUMP                     // One 2D bump centered at (50,50)
	DOUBLE_BUMP                     // Two 2D bumps at (25,25) and (75,75)
)

const BaseHeight = 10.

var InitPrintNames = map[InitType]string{
	X_BUMP:      "X varying bump",
	Y_BUMP:      "Y varying bump",
	SINGLE_BUMP: "Single 2D bump at (50,50)",
	DOUBLE_BUMP: "Two 2D bumps at (25,25) and (75,75)",
}

var InitNames = map[string]InitType{
	"xbump":      X_BUMP,
	"ybump":      Y_BUMP,
	"singlebump": SINGLE_BUMP,
	"doublebump": DOUBLE_BUMP,
}

// NewInitType accepts a profile name, e.g. "SingleBump", or its number 1..4
func NewInitType(label string) (it InitType, err error) {
	var (
		ok bool
		n  int
	)
	label = strings.ToLower(strings.TrimSpace(label))
	if len(label) == 0 {
		return X_BUMP, nil
	}
	if it, ok = InitNames[label]; ok {
		return
	}
	if n, err = strconv.Atoi(label); err == nil && n >= int(X_BUMP) && n <= int(DOUBLE_BUMP) {
		return InitType(n), nil
	}
	return 0, fmtInvalid("unable to use initial condition named %s", label)
}

func (it InitType) Print() (txt string) {
	var ok bool
	if txt, ok = InitPrintNames[it]; !ok {
		txt = "unknown initial condition"
	}
	return
}

// HeightFunction returns the initial height at (x,y) on an Nx x Ny grid
type HeightFunction func(x, y float64, Nx, Ny int) float64

func bump2D(x, y, xc, yc float64) float64 {
	return math.Exp(-((x-xc)*(x-xc) + (y-yc)*(y-yc)) / 25.)
}

var InitFunctions = map[InitType]HeightFunction{
	X_BUMP: func(x, _ float64, Nx, _ int) float64 {
		xc := float64(Nx) / 2.
		return BaseHeight + math.Exp(-(x-xc)*(x-xc)/(float64(Nx)/4.))
	},
	// The y bump is centered on Ny/2 but takes its width from Nx/4, like the x bump
	Y_BUMP: func(_, y float64, Nx, Ny int) float64 {
		yc := float64(Ny) / 2.
		return BaseHeight + math.Exp(-(y-yc)*(y-yc)/(float64(Nx)/4.))
	},
	SINGLE_BUMP: func(x, y float64, _, _ int) float64 {
		return BaseHeight + bump2D(x, y, 50, 50)
	},
	DOUBLE_BUMP: func(x, y float64, _, _ int) float64 {
		return BaseHeight + bump2D(x, y, 25, 25) + bump2D(x, y, 75, 75)
	},
}

// InitializeSolution allocates the fields, u = v = 0 and h from the selected profile
func (c *ShallowWater) InitializeSolution() {
	var (
		p     = c.params
		N     = p.Nx * p.Ny
		hFunc = InitFunctions[p.Case]
	)
	c.u = make([]float64, N)
	c.v = make([]float64, N)
	c.h = make([]float64, N)
	for ix := 0; ix < p.Nx; ix++ {
		x := float64(ix) * p.Dx
		for iy := 0; iy < p.Ny; iy++ {
			y := float64(iy) * p.Dy
			c.h[iy+ix*p.Ny] = hFunc(x, y, p.Nx, p.Ny)
		}
	}
	c.Steps, c.Time = 0, 0
}
