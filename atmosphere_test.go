package lmd

import (
	"math"
	"testing"

	"github.com/gonum/floats"
)

// geometricAlt inverts the geopotential conversion used by the tables.
func geometricAlt(h float64) float64 {
	return h * geopotentialRadius / (geopotentialRadius - h)
}

func TestAtmosphereSeaLevel(t *testing.T) {
	T, P, ρ := AtmosphereAt(0)
	if !floats.EqualWithinAbs(T, 288.15, 1e-9) {
		t.Fatalf("sea level temperature is %f K", T)
	}
	if !floats.EqualWithinAbs(P, 101325, 1e-6) {
		t.Fatalf("sea level pressure is %f Pa", P)
	}
	if !floats.EqualWithinRel(ρ, 1.225, 1e-3) {
		t.Fatalf("sea level density is %f kg/m^3", ρ)
	}
	// Below sea level clamps to the sea level values.
	Tb, Pb, _ := AtmosphereAt(-200)
	if Tb != T || Pb != P {
		t.Fatalf("below ground not clamped: T=%f P=%f", Tb, Pb)
	}
}

func TestAtmosphereTables(t *testing.T) {
	// Published values at 25 and 60 km geopotential.
	T, P, _ := AtmosphereAt(geometricAlt(25000))
	if !floats.EqualWithinAbs(T, 221.65, 1e-6) || !floats.EqualWithinRel(P, 2511.02, 1e-3) {
		t.Fatalf("25 km incorrect: T=%f P=%f", T, P)
	}
	T, P, _ = AtmosphereAt(geometricAlt(60000))
	if !floats.EqualWithinAbs(T, 245.45, 1e-6) || !floats.EqualWithinRel(P, 20.31, 1e-3) {
		t.Fatalf("60 km incorrect: T=%f P=%f", T, P)
	}
}

func TestAtmosphereContinuity(t *testing.T) {
	// Temperature and pressure must be continuous across every layer boundary
	// and across the handoff to the exponential tail.
	for _, base := range []float64{11000, 20000, 32000, 47000, 51000, 71000, 84852} {
		Tb, Pb, _ := AtmosphereAt(geometricAlt(base) - 2)
		Ta, Pa, _ := AtmosphereAt(geometricAlt(base) + 2)
		if !floats.EqualWithinRel(Tb, Ta, 1e-3) {
			t.Fatalf("temperature jumps at %f m: %f vs %f", base, Tb, Ta)
		}
		if !floats.EqualWithinRel(Pb, Pa, 1e-2) {
			t.Fatalf("pressure jumps at %f m: %f vs %f", base, Pb, Pa)
		}
	}
	// Pressure decreases monotonically with altitude.
	prev := math.Inf(1)
	for alt := 0.5; alt < 120e3; alt += 500 {
		_, P, _ := AtmosphereAt(alt)
		if P >= prev {
			t.Fatalf("pressure not decreasing at %f m", alt)
		}
		prev = P
	}
}

func TestDensity(t *testing.T) {
	if Density(KarmanAltitude+1) != 0 {
		t.Fatal("density not zero above the Karman line")
	}
	if Density(80e3) <= 0 {
		t.Fatal("density zero below the Karman line")
	}
	if d0, d10 := Density(0), Density(10e3); d10 >= d0 {
		t.Fatalf("density not decreasing: %f at 10 km vs %f at sea level", d10, d0)
	}
}

func TestDensityExtended(t *testing.T) {
	if DensityExtended(extendedCutoffAltitude+1) != 0 {
		t.Fatal("extended density not zero above the cutoff")
	}
	// Below the handoff altitude the extended model matches the tables.
	if DensityExtended(30e3) != Density(30e3) {
		t.Fatal("extended model diverges from the tables below the handoff")
	}
	// Continuous with the tables at the handoff.
	if !floats.EqualWithinRel(DensityExtended(extendedBaseAltitude), DensityExtended(extendedBaseAltitude+1e-3), 1e-4) {
		t.Fatal("extended density jumps at the handoff")
	}
	// Still nonzero where the plain model has given up.
	if DensityExtended(150e3) <= 0 {
		t.Fatal("extended density zero at 150 km")
	}
	if DensityExtended(150e3) >= DensityExtended(120e3) {
		t.Fatal("extended density not decreasing")
	}
}
