package solver

// bogackiShampine23 advances (t, y) by dt using the Bogacki-Shampine 3(2)
// embedded Runge-Kutta pair: a 3rd-order solution used to advance the
// state, and the 2nd-order embedded estimate subtracted from it to yield
// a local error estimate for step-size control.
func bogackiShampine23(sys *System, t, dt float64, y []complex128) ([]complex128, []complex128, error) {
	k1, err := sys.RHS(t, y)
	if err != nil {
		return nil, nil, err
	}

	y2 := addScaled(y, k1, dt*0.5)
	k2, err := sys.RHS(t+0.5*dt, y2)
	if err != nil {
		return nil, nil, err
	}

	y3 := addScaled(y, k2, dt*0.75)
	k3, err := sys.RHS(t+0.75*dt, y3)
	if err != nil {
		return nil, nil, err
	}

	y4 := addScaledN(y, []scaledTerm{
		{k1, dt * 2.0 / 9.0},
		{k2, dt * 1.0 / 3.0},
		{k3, dt * 4.0 / 9.0},
	})
	k4, err := sys.RHS(t+dt, y4)
	if err != nil {
		return nil, nil, err
	}

	y5 := y4 // the 3rd-order solution equals y4 exactly for this tableau (FSAL)

	yEmbedded := addScaledN(y, []scaledTerm{
		{k1, dt * 7.0 / 24.0},
		{k2, dt * 1.0 / 4.0},
		{k3, dt * 1.0 / 3.0},
		{k4, dt * 1.0 / 8.0},
	})

	errEst := make([]complex128, len(y5))
	for i := range errEst {
		errEst[i] = y5[i] - yEmbedded[i]
	}

	return y5, errEst, nil
}

type scaledTerm struct {
	v     []complex128
	scale float64
}

func addScaled(y, k []complex128, scale float64) []complex128 {
	out := make([]complex128, len(y))
	for i := range y {
		out[i] = y[i] + complex(scale, 0)*k[i]
	}
	return out
}

func addScaledN(y []complex128, terms []scaledTerm) []complex128 {
	out := append([]complex128(nil), y...)
	for _, term := range terms {
		for i := range out {
			out[i] += complex(term.scale, 0) * term.v[i]
		}
	}
	return out
}
