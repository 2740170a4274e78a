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
	"runtime"

	perf "github.com/hodgesds/perf-utils"

	"github.com/notargets/goswe/model_problems/ShallowWater2D"
)

// solveWithCounters runs the integration pinned to one OS thread and reports its instruction count.
// Only the calling thread is counted, so the figure covers the banded evaluator in full and the
// stripe evaluator's coordination only.
func solveWithCounters(c *ShallowWater2D.ShallowWater) (err error) {
	var (
		pv *perf.ProfileValue
	)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if pv, err = perf.CPUInstructions(c.Solve); err != nil {
		return
	}
	nodeSteps := float64(c.Nx() * c.Ny() * c.Steps)
	fmt.Printf("CPU instructions = %d", pv.Value)
	if nodeSteps > 0 {
		fmt.Printf(", %8.2f per (node*iteration)", float64(pv.Value)/nodeSteps)
	}
	fmt.Printf("\n")
	return
}
