package ShallowWater2D

/*
	Shallow water equations in non-conservative form:
		du/dt = -u*du/dx - v*du/dy - g*dh/dx
		dv/dt = -u*dv/dx - v*dv/dy - g*dh/dy
		dh/dt = -h*du/dx - u*dh/dx - h*dv/dy - v*dh/dy
*/
func Tendency(g, u, v, h, dudx, dudy, dvdx, dvdy, dhdx, dhdy float64) (ku, kv, kh float64) {
	ku = -u*dudx - v*dudy - g*dhdx
	kv = -u*dvdx - v*dvdy - g*dhdy
	kh = -h*dudx - u*dhdx - h*dvdy - v*dhdy
	return
}

// scratch is the integrator's working memory, one allocation carved into views per phase
type scratch struct {
	arena      []float64
	dfdx, dfdy [3][]float64    // Derivatives of u, v, h
	k          [2][3][]float64 // Current and previous stage tendencies, swapped every stage
	qNew       [3][]float64    // RK4 accumulator
}

func newScratch(N int) (sc *scratch) {
	var (
		offset int
	)
	sc = &scratch{
		arena: make([]float64, 15*N),
	}
	next := func() (v []float64) {
		v = sc.arena[offset : offset+N : offset+N]
		offset += N
		return
	}
	for n := 0; n < 3; n++ {
		sc.dfdx[n] = next()
		sc.dfdy[n] = next()
		sc.k[0][n] = next()
		sc.k[1][n] = next()
		sc.qNew[n] = next()
	}
	return
}

// RK4 low storage coefficients: combination weights and the intermediate stage multipliers
type rk4Coefficients struct {
	a [4]float64 // dt/6, dt/3, dt/3, dt/6
	b [3]float64 // dt/2, dt/2, dt
}

func newRK4Coefficients(dt float64) rk4Coefficients {
	return rk4Coefficients{
		a: [4]float64{dt / 6, dt / 3, dt / 3, dt / 6},
		b: [3]float64{dt / 2, dt / 2, dt},
	}
}

/*
	Update advances one RK4 stage at a single entry, given the stage tendency k and the previous
	stage tendency kPrev. After stage 0..2, q holds the input of the next stage evaluation and
	qNew accumulates q0 + sum(a_i*k_i); stage 3 completes the step:
		stage 0: qNew = q + a0*k1,  q = q0 + dt/2*k1
		stage 1: qNew += a1*k2,     q = q0 + dt/2*k2
		stage 2: qNew += a2*k3,     q = q0 + dt*k3
		stage 3: q = qNew + a3*k4
*/
func (rk rk4Coefficients) Update(stage int, q, qNew *float64, k, kPrev float64) {
	switch stage {
	case 0:
		*qNew = *q + rk.a[0]*k
		*q += rk.b[0] * k
	case 1, 2:
		*qNew += rk.a[stage] * k
		*q += rk.b[stage]*k - rk.b[stage-1]*kPrev
	case 3:
		*q = *qNew + rk.a[3]*k
	}
}
