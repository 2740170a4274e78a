package ShallowWater2D

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// DefaultOutputFile receives the final state when no other path is configured
const DefaultOutputFile = "Output.txt"

/*
	WriteFile emits one line per node, x outer and y inner:
		x	y	u	v	h
	with x = ix*dx and y = iy*dy
*/
func (c *ShallowWater) WriteFile(w io.Writer) (err error) {
	var (
		Nx, Ny = c.params.Nx, c.params.Ny
		dx, dy = c.params.Dx, c.params.Dy
		bw     = bufio.NewWriter(w)
	)
	for ix := 0; ix < Nx; ix++ {
		for iy := 0; iy < Ny; iy++ {
			i := iy + ix*Ny
			if _, err = fmt.Fprintf(bw, "%v\t%v\t%v\t%v\t%v\n",
				float64(ix)*dx, float64(iy)*dy, c.u[i], c.v[i], c.h[i]); err != nil {
				return
			}
		}
	}
	return bw.Flush()
}

// WriteFileTo creates (or truncates) the file at path and writes the state into it
func (c *ShallowWater) WriteFileTo(path string) (err error) {
	var (
		file *os.File
	)
	if len(path) == 0 {
		path = DefaultOutputFile
	}
	if file, err = os.Create(path); err != nil {
		return fmt.Errorf("unable to create output file %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	if err = c.WriteFile(file); err != nil {
		return fmt.Errorf("unable to write output file %s: %w", path, err)
	}
	if c.verbose {
		fmt.Printf("Wrote %d nodes to %s\n", c.params.Nx*c.params.Ny, path)
	}
	return
}
