package lmd

import (
	"math"
	"testing"
	"time"

	"github.com/gonum/floats"
)

func TestTargetKindString(t *testing.T) {
	for kind, exp := range map[TargetKind]string{OrbitTarget: "orbit", InterceptTarget: "intercept", RendezvousTarget: "rendezvous"} {
		if kind.String() != exp {
			t.Fatalf("expected %s, got %s", exp, kind)
		}
	}
	assertPanic(t, func() {
		_ = TargetKind(9).String()
	})
}

func TestTargetValidate(t *testing.T) {
	iss := NewOrbitFromOE(Earth.Radius+420e3, 0.0005, 51.6, 120, 60, 0, Earth)
	cases := []struct {
		name string
		spec TargetSpec
		ok   bool
	}{
		{"leo orbit", NewOrbitTarget(Earth.Radius+400e3, 0.001, 51.6), true},
		{"full orbit", NewFullOrbitTarget(Earth.Radius+400e3, 0.001, 51.6, 40, 30), true},
		{"unconstrained", TargetSpec{Kind: OrbitTarget}, false},
		{"buried sma", NewOrbitTarget(6000e3, 0, 28.5), false},
		{"hyperbolic ecc", NewOrbitTarget(7000e3, 1.2, 28.5), false},
		{"intercept", NewInterceptTarget(iss, 3600), true},
		{"orbitless intercept", TargetSpec{Kind: InterceptTarget, TOF: 3600}, false},
		{"no tof", NewInterceptTarget(iss, 0), false},
		{"rendezvous", NewRendezvousTarget(iss, 3600), true},
		{"orbitless rendezvous", TargetSpec{Kind: RendezvousTarget, TOF: 3600}, false},
		{"unknown kind", TargetSpec{Kind: TargetKind(7)}, false},
	}
	for _, c := range cases {
		if err := c.spec.Validate(); (err == nil) != c.ok {
			t.Fatalf("%s: unexpected validation result %v", c.name, err)
		}
	}
}

func TestResidualCount(t *testing.T) {
	iss := NewOrbitFromOE(Earth.Radius+420e3, 0.0005, 51.6, 120, 60, 0, Earth)
	if n := NewOrbitTarget(7e6, 0, 45).ResidualCount(); n != 3 {
		t.Fatalf("expected 3 residuals, got %d", n)
	}
	if n := NewFullOrbitTarget(7e6, 0, 45, 10, 20).ResidualCount(); n != 5 {
		t.Fatalf("expected 5 residuals, got %d", n)
	}
	incOnly := TargetSpec{Kind: OrbitTarget, Inc: Deg2rad(51.6), UseInc: true}
	if n := incOnly.ResidualCount(); n != 1 {
		t.Fatalf("expected 1 residual, got %d", n)
	}
	if n := NewInterceptTarget(iss, 3600).ResidualCount(); n != 3 {
		t.Fatalf("expected 3 intercept residuals, got %d", n)
	}
	if n := NewRendezvousTarget(iss, 3600).ResidualCount(); n != 6 {
		t.Fatalf("expected 6 rendezvous residuals, got %d", n)
	}
	assertPanic(t, func() {
		TargetSpec{Kind: TargetKind(7)}.ResidualCount()
	})
}

func TestTolerance(t *testing.T) {
	iss := NewOrbitFromOE(Earth.Radius+420e3, 0.0005, 51.6, 120, 60, 0, Earth)
	if tol := NewOrbitTarget(7e6, 0, 45).Tolerance(); tol != 1.0 {
		t.Fatalf("expected a 1 km orbit tolerance, got %f", tol)
	}
	if tol := NewInterceptTarget(iss, 3600).Tolerance(); tol != 1000 {
		t.Fatalf("expected the position tolerance, got %f", tol)
	}
	spec := NewRendezvousTarget(iss, 3600)
	spec.PosTolerance = 250
	if tol := spec.Tolerance(); tol != 250 {
		t.Fatalf("expected the overridden tolerance, got %f", tol)
	}
}

func TestAngleDiff(t *testing.T) {
	cases := []struct {
		a, b, exp float64
	}{
		{0.3, 0.1, 0.2},
		{-0.1, 0.1, -0.2},
		{0.1, 2*math.Pi - 0.1, 0.2},
		{2*math.Pi - 0.1, 0.1, -0.2},
		{3 * math.Pi / 2, 0, -math.Pi / 2},
		{0, 0, 0},
	}
	for _, c := range cases {
		if got := angleDiff(c.a, c.b); !floats.EqualWithinAbs(got, c.exp, 1e-12) {
			t.Fatalf("angleDiff(%f, %f) = %f, expected %f", c.a, c.b, got, c.exp)
		}
	}
}

func TestOrbitResiduals(t *testing.T) {
	a := Earth.Radius + 500e3
	o := NewOrbitFromOE(a, 0.01, 45, 60, 30, 40, Earth)
	final := StateFromOrbit(o, 1000, missionStart)

	// A state on the target orbit leaves no residuals.
	onTarget := NewFullOrbitTarget(a, 0.01, 45, 60, 30)
	for i, r := range onTarget.Residuals(final) {
		if math.Abs(r) > 1e-2 {
			t.Fatalf("residual %d is %f for a state on the target orbit", i, r)
		}
	}

	// Offsets show up in the documented order with the documented scales.
	off := NewFullOrbitTarget(a-1000, 0.01-0.005, 44, 58, 33)
	res := off.Residuals(final)
	if len(res) != 5 {
		t.Fatalf("expected 5 residuals, got %d", len(res))
	}
	exp := []float64{
		1000 * smaResidualScale,
		0.005 * shapeResidualScale,
		Deg2rad(1) * shapeResidualScale,
		Deg2rad(2) * shapeResidualScale,
		-Deg2rad(3) * shapeResidualScale,
	}
	for i := range exp {
		if !floats.EqualWithinAbs(res[i], exp[i], 1e-2) {
			t.Fatalf("residual %d is %f, expected %f", i, res[i], exp[i])
		}
	}

	// Masking drops entries without reordering the survivors.
	off.UseSMA = false
	res = off.Residuals(final)
	if len(res) != 4 || !floats.EqualWithinAbs(res[0], exp[1], 1e-2) {
		t.Fatalf("unexpected masked residuals %+v", res)
	}
}

func TestInterceptResiduals(t *testing.T) {
	o := NewOrbitFromOE(Earth.Radius+420e3, 0.0005, 51.6, 120, 60, 0, Earth)
	spec := NewInterceptTarget(o, 600)
	tgt := spec.StateAt(spec.TOF)

	res := spec.Residuals(tgt)
	if len(res) != 3 || !floats.Equal(res, []float64{0, 0, 0}) {
		t.Fatalf("expected exact zero residuals at the target, got %+v", res)
	}

	shifted := NewState([]float64{tgt.R[0] + 1000, tgt.R[1], tgt.R[2]}, tgt.V, tgt.Mass, tgt.Epoch)
	res = spec.Residuals(shifted)
	if !floats.EqualWithinAbs(res[0], 1000, 1e-6) || res[1] != 0 || res[2] != 0 {
		t.Fatalf("expected a pure x miss, got %+v", res)
	}
}

func TestRendezvousResiduals(t *testing.T) {
	o := NewOrbitFromOE(Earth.Radius+420e3, 0.0005, 51.6, 120, 60, 0, Earth)
	spec := NewRendezvousTarget(o, 600)
	tgt := spec.StateAt(spec.TOF)

	res := spec.Residuals(tgt)
	if len(res) != 6 {
		t.Fatalf("expected 6 residuals, got %d", len(res))
	}
	for i, r := range res {
		if r != 0 {
			t.Fatalf("residual %d is %f at the target", i, r)
		}
	}

	// A velocity miss is stretched by the orbital time scale.
	a, _, _, _, _, _, _, _, _ := o.Elements()
	τ := math.Sqrt(math.Pow(a, 3) / Earth.GM())
	shifted := NewState(tgt.R, []float64{tgt.V[0], tgt.V[1], tgt.V[2] + 1}, tgt.Mass, tgt.Epoch)
	res = spec.Residuals(shifted)
	if !floats.EqualWithinRel(res[5], τ, 1e-9) {
		t.Fatalf("expected a scaled velocity miss of %f, got %f", τ, res[5])
	}

	// A degenerate target orbit falls back to a nominal LEO time scale.
	hyper := NewOrbitFromRV([]float64{7e6, 0, 0}, []float64{0, 12000, 0}, Earth)
	hyperSpec := NewRendezvousTarget(hyper, 600)
	hTgt := hyperSpec.StateAt(hyperSpec.TOF)
	hShifted := NewState(hTgt.R, []float64{hTgt.V[0], hTgt.V[1], hTgt.V[2] + 1}, hTgt.Mass, hTgt.Epoch)
	τFallback := math.Sqrt(math.Pow(rendezvousFallbackSMA, 3) / Earth.GM())
	if res = hyperSpec.Residuals(hShifted); !floats.EqualWithinRel(res[5], τFallback, 1e-9) {
		t.Fatalf("expected the fallback time scale %f, got %f", τFallback, res[5])
	}
}

func TestTargetStateAt(t *testing.T) {
	o := NewOrbitFromOE(Earth.Radius+420e3, 0.0005, 51.6, 120, 60, 0, Earth)
	spec := NewInterceptTarget(o, 1800)

	R, V := o.RV()
	st := spec.StateAt(0)
	if !floats.Equal(st.R, R) || !floats.Equal(st.V, V) {
		t.Fatal("advancing by zero must return the reference state")
	}

	st = spec.StateAt(1800)
	if r := st.RNorm(); r < 6.7e6 || r > 6.9e6 {
		t.Fatalf("the advanced target left its orbit: r=%f", r)
	}
	if v := norm(st.V); v < 7.5e3 || v > 7.8e3 {
		t.Fatalf("unexpected advanced target speed %f", v)
	}
}

func TestTargetOrbitFromTLE(t *testing.T) {
	line1 := "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	line2 := "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
	// Half an hour past the TLE epoch.
	dt := time.Date(2008, 9, 20, 13, 0, 0, 0, time.UTC)

	o, err := TargetOrbitFromTLE(line1, line2, dt)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	a, e, i, _, _, _, _, _, _ := o.Elements()
	if a < 6.6e6 || a > 7.0e6 {
		t.Fatalf("SGP4 returned a non ISS semi major axis of %f m", a)
	}
	if e > 0.01 {
		t.Fatalf("SGP4 returned a non ISS eccentricity of %f", e)
	}
	if math.Abs(Rad2deg(i)-51.64) > 0.5 {
		t.Fatalf("SGP4 returned a non ISS inclination of %f°", Rad2deg(i))
	}

	for _, c := range []struct{ l1, l2 string }{
		{"1 25544U", line2},
		{line1, "2 25544"},
		{"9" + line1[1:], line2},
		{line1, "9" + line2[1:]},
	} {
		if _, err := TargetOrbitFromTLE(c.l1, c.l2, dt); err == nil {
			t.Fatalf("expected an error for lines %q and %q", c.l1, c.l2)
		}
	}
}
