package lmd

import (
	"fmt"
	"math"

	"github.com/soniakeys/meeus/base"
	"github.com/soniakeys/meeus/moonposition"
	"github.com/soniakeys/meeus/nutation"
	"github.com/soniakeys/meeus/solar"
)

// SunPositionECI returns the geocentric position of the Sun in meters in the
// equatorial ECI frame at the provided Julian date. This uses the low accuracy
// solar theory of Meeus chapter 25, which is plenty for perturbation work: the
// acceleration from the Sun is already six orders of magnitude below two body
// gravity in LEO.
func SunPositionECI(jd float64) []float64 {
	T := base.J2000Century(jd)
	s, _ := solar.True(T)
	r := solar.Radius(T) * AU
	sλ, cλ := math.Sincos(s.Rad())
	// The Sun stays in the ecliptic plane at this level of accuracy.
	return ecliptic2Equatorial([]float64{r * cλ, r * sλ, 0}, jd)
}

// MoonPositionECI returns the geocentric position of the Moon in meters in the
// equatorial ECI frame at the provided Julian date, from the abridged ELP-2000/82
// theory of Meeus chapter 47.
func MoonPositionECI(jd float64) []float64 {
	λ, β, Δ := moonposition.Position(jd)
	r := Δ * 1e3 // km to m
	sβ, cβ := math.Sincos(β.Rad())
	sλ, cλ := math.Sincos(λ.Rad())
	return ecliptic2Equatorial([]float64{r * cβ * cλ, r * cβ * sλ, r * sβ}, jd)
}

// BodyPositionECI returns the geocentric position of the provided third body in
// meters. Panics on bodies without an ephemeris since that is a programmer error.
func BodyPositionECI(b CelestialObject, jd float64) []float64 {
	switch b.Name {
	case "Sun":
		return SunPositionECI(jd)
	case "Moon":
		return MoonPositionECI(jd)
	default:
		panic(fmt.Errorf("no ephemeris for %s", b))
	}
}

// ecliptic2Equatorial rotates an ecliptic-of-date vector onto the equator by the
// mean obliquity.
func ecliptic2Equatorial(v []float64, jd float64) []float64 {
	ε := nutation.MeanObliquity(jd).Rad()
	return MxV33(R1(-ε), v)
}
