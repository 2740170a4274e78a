/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/goswe/InputParameters"
	"github.com/notargets/goswe/model_problems/ShallowWater2D"
)

type Model2D struct {
	ICFile     string
	OutputFile string
	PrintEvery int
	Profile    string // cpu, mem or empty
	Perf       bool
	Verbose    bool
	ProcLimit  int
}

const exampleFile = `
########################################
Title: "Single bump"
TimeStep: 0.01
FinalTime: 0.1
Nx: 20
Ny: 20
Dx: 1.
Dy: 1.
InitType: SingleBump # XBump, YBump, SingleBump, DoubleBump or 1..4
Evaluator: stripe # Can be "banded"
DerivativeMode: stencil # Can be "sparse", used by the banded evaluator
OutputFile: Output.txt
########################################
`

// TwoDCmd represents the 2D command
var TwoDCmd = &cobra.Command{
	Use:   "2D",
	Short: "Two dimensional shallow water solver on a periodic grid",
	Long: `
Two dimensional shallow water solver, reads an optional YAML input file, integrates
to the final time and writes the tab separated state to the output file.
Command line flags override the values in the input file.` + "\n\nExample File:" + exampleFile,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
			ip  *InputParameters.InputParametersSWE
		)
		m2d := &Model2D{
			Verbose:   viper.GetBool("verbose"),
			ProcLimit: viper.GetInt("procLimit"),
		}
		m2d.ICFile, _ = cmd.Flags().GetString("inputConditionsFile")
		m2d.OutputFile, _ = cmd.Flags().GetString("outputFile")
		m2d.PrintEvery, _ = cmd.Flags().GetInt("printEvery")
		m2d.Profile, _ = cmd.Flags().GetString("profile")
		m2d.Perf, _ = cmd.Flags().GetBool("perf")
		if ip, err = processInput(m2d); err == nil {
			if err = applyOverrides(cmd, m2d, ip); err == nil {
				err = Run2D(m2d, ip)
			}
		}
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(TwoDCmd)
	addTwoDFlags(TwoDCmd)
}

func addTwoDFlags(cmd *cobra.Command) {
	def := ShallowWater2D.DefaultParameters()
	cmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- TimeStep, FinalTime\n\t- Nx, Ny, Dx, Dy\n\t- InitType")
	cmd.Flags().StringP("outputFile", "o", "", "file receiving the final state, default "+ShallowWater2D.DefaultOutputFile)
	cmd.Flags().IntP("printEvery", "s", 0, "print a progress line every N steps when verbose")
	cmd.Flags().Float64("dt", def.Dt, "time step")
	cmd.Flags().Float64("finalTime", def.FinalTime, "FinalTime - the target end time for the sim")
	cmd.Flags().Int("nx", def.Nx, "grid extent along x")
	cmd.Flags().Int("ny", def.Ny, "grid extent along y")
	cmd.Flags().Float64("dx", def.Dx, "grid spacing along x")
	cmd.Flags().Float64("dy", def.Dy, "grid spacing along y")
	cmd.Flags().Float64("gravity", def.Gravity, "gravitational acceleration")
	cmd.Flags().StringP("initType", "c", "XBump", "initial condition: XBump, YBump, SingleBump, DoubleBump or 1..4")
	cmd.Flags().StringP("evaluator", "e", "stripe", "right hand side evaluator: stripe or banded")
	cmd.Flags().String("derivatives", "stencil", "banded evaluator derivatives: stencil or sparse")
	cmd.Flags().String("profile", "", "write a pprof profile of the run: cpu or mem")
	cmd.Flags().Bool("perf", false, "count CPU instructions of the integration on the calling thread (linux)")
}

func processInput(m2d *Model2D) (ip *InputParameters.InputParametersSWE, err error) {
	ip = &InputParameters.InputParametersSWE{}
	switch m2d.Profile {
	case "", "cpu", "mem":
	default:
		return nil, fmt.Errorf("unknown profile type %s, must be cpu or mem", m2d.Profile)
	}
	if len(m2d.ICFile) != 0 {
		var data []byte
		if data, err = os.ReadFile(m2d.ICFile); err != nil {
			return nil, err
		}
		if err = ip.Parse(data); err != nil {
			return nil, fmt.Errorf("unable to parse %s: %w", m2d.ICFile, err)
		}
	}
	return
}

// applyOverrides copies every flag set on the command line over the input file values
func applyOverrides(cmd *cobra.Command, m2d *Model2D, ip *InputParameters.InputParametersSWE) (err error) {
	flags := cmd.Flags()
	// A changed flag always wins, including an explicit zero
	floats := map[string]**float64{
		"dt": &ip.TimeStep, "finalTime": &ip.FinalTime, "dx": &ip.Dx, "dy": &ip.Dy, "gravity": &ip.Gravity,
	}
	for name, dst := range floats {
		if flags.Changed(name) {
			var val float64
			if val, err = flags.GetFloat64(name); err != nil {
				return
			}
			*dst = &val
		}
	}
	ints := map[string]**int{"nx": &ip.Nx, "ny": &ip.Ny}
	for name, dst := range ints {
		if flags.Changed(name) {
			var val int
			if val, err = flags.GetInt(name); err != nil {
				return
			}
			*dst = &val
		}
	}
	strs := map[string]*string{
		"initType": &ip.InitType, "evaluator": &ip.Evaluator, "derivatives": &ip.DerivativeMode,
		"outputFile": &ip.OutputFile,
	}
	for name, dst := range strs {
		if flags.Changed(name) {
			if *dst, err = flags.GetString(name); err != nil {
				return
			}
		}
	}
	if m2d.ProcLimit != 0 {
		ip.ProcLimit = m2d.ProcLimit
	}
	if m2d.PrintEvery == 0 {
		m2d.PrintEvery = ip.PrintEvery
	}
	m2d.OutputFile = ip.OutputFile
	return
}

func Run2D(m2d *Model2D, ip *InputParameters.InputParametersSWE) (err error) {
	var (
		p ShallowWater2D.Parameters
		c *ShallowWater2D.ShallowWater
	)
	if m2d.Verbose {
		ip.Print()
	}
	if p, err = ip.Parameters(); err != nil {
		return
	}
	switch m2d.Profile {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	}
	if c, err = ShallowWater2D.NewShallowWater(p, m2d.Verbose); err != nil {
		return
	}
	c.PrintEverySteps = m2d.PrintEvery
	if m2d.Perf {
		err = solveWithCounters(c)
	} else {
		err = c.Solve()
	}
	if err != nil {
		return
	}
	return c.WriteFileTo(m2d.OutputFile)
}
