package lmd

import (
	"fmt"
	"time"
)

// Frame denotes the reference frame in which a Cartesian state is expressed.
type Frame uint8

const (
	// ECI is the Earth centered inertial frame (equatorial, J2000-ish).
	ECI Frame = iota
	// ECEF is the Earth centered Earth fixed frame.
	ECEF
	// PQW is the perifocal frame of the current orbit.
	PQW
)

// String implements the Stringer interface.
func (f Frame) String() string {
	switch f {
	case ECI:
		return "ECI"
	case ECEF:
		return "ECEF"
	case PQW:
		return "PQW"
	default:
		panic(fmt.Errorf("unknown frame %d", f))
	}
}

// State is the translational state of a vehicle: position and velocity vectors,
// total mass, and the epoch at which these are valid. The attitude fields are
// carried through untouched since the dynamics here are three degrees of freedom.
type State struct {
	R, V  []float64 // m and m/s
	Mass  float64   // kg
	Epoch time.Time
	Frame Frame
	// Attitude, scalar first. All zeros means unset.
	Quaternion [4]float64
	// Body rates in rad/s about the body axes.
	BodyRate [3]float64
}

// NewState returns an ECI state from the provided vectors, mass and epoch.
func NewState(R, V []float64, mass float64, epoch time.Time) State {
	return State{R: R, V: V, Mass: mass, Epoch: epoch, Frame: ECI}
}

// StateFromOrbit converts the provided orbit to a Cartesian ECI state.
func StateFromOrbit(o *Orbit, mass float64, epoch time.Time) State {
	R, V := o.RV()
	return NewState([]float64{R[0], R[1], R[2]}, []float64{V[0], V[1], V[2]}, mass, epoch)
}

// Orbit converts this state to osculating orbital elements about Earth.
func (s State) Orbit() *Orbit {
	return NewOrbitFromRV(s.R, s.V, Earth)
}

// Vector returns this state as the seven element vector used by the integrators:
// position, velocity, mass.
func (s State) Vector() []float64 {
	return []float64{s.R[0], s.R[1], s.R[2], s.V[0], s.V[1], s.V[2], s.Mass}
}

// StateFromVector rebuilds a state from a seven element integration vector.
func StateFromVector(x []float64, epoch time.Time) State {
	return NewState([]float64{x[0], x[1], x[2]}, []float64{x[3], x[4], x[5]}, x[6], epoch)
}

// RNorm returns the norm of the position vector.
func (s State) RNorm() float64 {
	return norm(s.R)
}

// VNorm returns the norm of the velocity vector.
func (s State) VNorm() float64 {
	return norm(s.V)
}

// Altitude returns the geocentric altitude above the mean equatorial radius.
func (s State) Altitude() float64 {
	return norm(s.R) - Earth.Radius
}

// String implements the Stringer interface.
func (s State) String() string {
	return fmt.Sprintf("%s@%s R=%+v m V=%+v m/s m=%.1f kg", s.Frame, s.Epoch.Format(time.RFC3339), s.R, s.V, s.Mass)
}
