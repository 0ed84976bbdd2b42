package lmd

import (
	"fmt"
	"strings"
)

const (
	// AU is one astronomical unit in meters.
	AU = 1.495978707e11
	// EclipticObliquity is the J2000 mean obliquity of the ecliptic in radians.
	EclipticObliquity = 0.4090928
)

// CelestialObject defines a celestial object.
// Note: only the bodies relevant to geocentric launch and orbit work are defined.
type CelestialObject struct {
	Name    string
	Radius  float64 // mean equatorial radius, m
	a       float64 // semi-major axis of this body's orbit about its parent, m
	μ       float64 // gravitational parameter, m^3/s^2
	RotRate float64 // sidereal rotation rate, rad/s
	J2      float64
	J3      float64
	J4      float64
}

// GM returns μ (which is unexported because it's a lowercase letter)
func (c CelestialObject) GM() float64 {
	return c.μ
}

// J returns the zonal harmonic J_n factor for the provided n.
// Only J2 through J4 are supported.
func (c CelestialObject) J(n uint8) float64 {
	switch n {
	case 2:
		return c.J2
	case 3:
		return c.J3
	case 4:
		return c.J4
	default:
		return 0.0
	}
}

// String implements the Stringer interface.
func (c CelestialObject) String() string {
	return c.Name + " body"
}

// Equals returns whether the provided celestial object is the same.
func (c *CelestialObject) Equals(b CelestialObject) bool {
	return c.Name == b.Name && c.Radius == b.Radius && c.a == b.a && c.μ == b.μ && c.J2 == b.J2
}

// CelestialObjectFromString returns the object from its name.
func CelestialObjectFromString(name string) (CelestialObject, error) {
	switch strings.ToLower(name) {
	case "earth":
		return Earth, nil
	case "moon":
		return Moon, nil
	case "sun":
		return Sun, nil
	default:
		return CelestialObject{}, fmt.Errorf("undefined body '%s'", name)
	}
}

/* Definitions */

// Sun is our closest star.
var Sun = CelestialObject{"Sun", 6.9634e8, -1, 1.32712440018e20, 0, 0, 0, 0}

// Earth is home.
var Earth = CelestialObject{"Earth", 6378137.0, AU, 3.986004418e14, 7.2921159e-5, 1.08262668e-3, -2.5324e-6, -1.6204e-6}

// Moon is a convenient third body: close enough to matter in high orbits.
var Moon = CelestialObject{"Moon", 1737400.0, 384400e3, 4.9028e12, 0, 2.027e-4, 0, 0}
