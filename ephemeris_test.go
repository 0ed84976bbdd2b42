package lmd

import (
	"math"
	"testing"
	"time"

	"github.com/gonum/floats"
	"github.com/soniakeys/meeus/julian"
)

func TestSunPosition(t *testing.T) {
	// Example 25.a of Meeus: 1992 October 13 at 0h, R = 0.99766 AU.
	jd := julian.TimeToJD(time.Date(1992, 10, 13, 0, 0, 0, 0, time.UTC))
	R := SunPositionECI(jd)
	if !floats.EqualWithinRel(norm(R), 0.99766*AU, 1e-4) {
		t.Fatalf("Sun distance is %f AU", norm(R)/AU)
	}
	// Mid October the Sun sits below the equator.
	if R[2] >= 0 {
		t.Fatal("Sun above the equator in October")
	}
	// At the June solstice the declination reaches the obliquity.
	jd = julian.TimeToJD(time.Date(2026, 6, 21, 8, 0, 0, 0, time.UTC))
	R = SunPositionECI(jd)
	if dec := math.Asin(R[2] / norm(R)); !floats.EqualWithinAbs(dec, EclipticObliquity, 0.01) {
		t.Fatalf("solstice declination is %f degrees", Rad2deg(dec))
	}
}

func TestMoonPosition(t *testing.T) {
	// Example 47.a of Meeus: 1992 April 12 at 0h, Δ = 368409.7 km.
	jd := julian.TimeToJD(time.Date(1992, 4, 12, 0, 0, 0, 0, time.UTC))
	R := MoonPositionECI(jd)
	if !floats.EqualWithinRel(norm(R), 368409.7e3, 2e-4) {
		t.Fatalf("Moon distance is %f km", norm(R)/1e3)
	}
	// The Moon never strays more than about 29 degrees from the equator.
	if dec := math.Abs(math.Asin(R[2] / norm(R))); dec > Deg2rad(29) {
		t.Fatalf("Moon declination is %f degrees", Rad2deg(dec))
	}
}

func TestBodyPosition(t *testing.T) {
	jd := julian.TimeToJD(time.Date(2026, 3, 21, 12, 0, 0, 0, time.UTC))
	sun := BodyPositionECI(Sun, jd)
	if sunNorm := norm(sun); sunNorm < 0.98*AU || sunNorm > 1.02*AU {
		t.Fatalf("Sun distance out of range: %f AU", sunNorm/AU)
	}
	moon := BodyPositionECI(Moon, jd)
	if moonNorm := norm(moon); moonNorm < 356e6 || moonNorm > 407e6 {
		t.Fatalf("Moon distance out of range: %f km", moonNorm/1e3)
	}
	assertPanic(t, func() { BodyPositionECI(Earth, jd) })
}
