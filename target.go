package lmd

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

const (
	// smaResidualScale converts a semi major axis miss in meters to kilometers
	// so that the residual entries share a comparable magnitude.
	smaResidualScale = 1e-3
	// shapeResidualScale brings eccentricity and angle misses to the same
	// magnitude as the kilometer entries.
	shapeResidualScale = 1e4
	// targetAdvanceStep is the RK4 step used to move an intercept target along
	// its orbit, s.
	targetAdvanceStep = 60.0
	// rendezvousFallbackSMA stands in for the target period scaling when the
	// target orbit is degenerate.
	rendezvousFallbackSMA = Earth.Radius + 400e3
)

// TargetKind selects what the launch must achieve.
type TargetKind uint8

const (
	// OrbitTarget asks for orbital elements.
	OrbitTarget TargetKind = iota
	// InterceptTarget asks to be at the target position at arrival.
	InterceptTarget
	// RendezvousTarget asks to match position and velocity at arrival.
	RendezvousTarget
)

// String implements the Stringer interface.
func (k TargetKind) String() string {
	switch k {
	case OrbitTarget:
		return "orbit"
	case InterceptTarget:
		return "intercept"
	case RendezvousTarget:
		return "rendezvous"
	default:
		panic(fmt.Errorf("unknown target kind %d", k))
	}
}

// TargetSpec is the objective of a launch. For orbit targets each element is
// individually maskable, so an under-determined solve (say inclination only) is
// perfectly legal. Intercept and rendezvous targets chase a body on a known
// orbit instead.
type TargetSpec struct {
	Kind TargetKind

	// Orbit elements, in meters and radians.
	SMA, Ecc, Inc, RAAN, ArgPeriapsis float64
	// Element mask. Only the enabled elements contribute residuals.
	UseSMA, UseEcc, UseInc, UseRAAN, UseArgPeriapsis bool

	// Intercept and rendezvous.
	TargetOrbit  *Orbit
	TOF          float64 // nominal time from liftoff to arrival, s
	PosTolerance float64 // m
	VelTolerance float64 // m/s
}

// NewOrbitTarget returns an orbit target on semi major axis, eccentricity and
// inclination. The semi major axis is in meters and the inclination in degrees.
func NewOrbitTarget(a, e, i float64) TargetSpec {
	return TargetSpec{Kind: OrbitTarget, SMA: a, Ecc: e, Inc: Deg2rad(i), UseSMA: true, UseEcc: true, UseInc: true}
}

// NewFullOrbitTarget additionally constrains the RAAN and the argument of
// periapsis, both in degrees.
func NewFullOrbitTarget(a, e, i, Ω, ω float64) TargetSpec {
	t := NewOrbitTarget(a, e, i)
	t.RAAN = Deg2rad(Ω)
	t.ArgPeriapsis = Deg2rad(ω)
	t.UseRAAN = true
	t.UseArgPeriapsis = true
	return t
}

// NewInterceptTarget returns an intercept of the provided orbit after the
// provided time of flight in seconds.
func NewInterceptTarget(o *Orbit, tof float64) TargetSpec {
	return TargetSpec{Kind: InterceptTarget, TargetOrbit: o, TOF: tof, PosTolerance: 1000, VelTolerance: 1}
}

// NewRendezvousTarget is an intercept which also matches the target velocity.
func NewRendezvousTarget(o *Orbit, tof float64) TargetSpec {
	t := NewInterceptTarget(o, tof)
	t.Kind = RendezvousTarget
	return t
}

// Validate checks the target for configuration errors.
func (t TargetSpec) Validate() error {
	switch t.Kind {
	case OrbitTarget:
		if !t.UseSMA && !t.UseEcc && !t.UseInc && !t.UseRAAN && !t.UseArgPeriapsis {
			return fmt.Errorf("orbit target constrains nothing")
		}
		if t.UseSMA && t.SMA < Earth.Radius {
			return fmt.Errorf("target semi major axis %.0f m is below the surface", t.SMA)
		}
		if t.UseEcc && (t.Ecc < 0 || t.Ecc >= 1) {
			return fmt.Errorf("target eccentricity %f must be in [0,1)", t.Ecc)
		}
	case InterceptTarget, RendezvousTarget:
		if t.TargetOrbit == nil {
			return fmt.Errorf("%s target needs a target orbit", t.Kind)
		}
		if t.TOF <= 0 {
			return fmt.Errorf("%s target needs a positive time of flight", t.Kind)
		}
	default:
		return fmt.Errorf("unknown target kind %d", t.Kind)
	}
	return nil
}

// ResidualCount returns the dimension of the residual vector, which only counts
// the constrained quantities.
func (t TargetSpec) ResidualCount() int {
	switch t.Kind {
	case OrbitTarget:
		n := 0
		for _, use := range []bool{t.UseSMA, t.UseEcc, t.UseInc, t.UseRAAN, t.UseArgPeriapsis} {
			if use {
				n++
			}
		}
		return n
	case InterceptTarget:
		return 3
	case RendezvousTarget:
		return 6
	default:
		panic(fmt.Errorf("unknown target kind %d", t.Kind))
	}
}

// Tolerance returns the default convergence threshold on the residual norm for
// this kind of target: about a kilometer of semi major axis for orbit targets,
// and the position tolerance for the chasing modes.
func (t TargetSpec) Tolerance() float64 {
	if t.Kind == OrbitTarget {
		return 1.0
	}
	return t.PosTolerance
}

// Residuals computes the scaled miss vector of a flown trajectory. For the
// chasing modes the target is advanced from its reference state by the
// configured time of flight. Entries appear in a fixed order so the Jacobian
// columns stay meaningful across iterations.
func (t TargetSpec) Residuals(final State) []float64 {
	switch t.Kind {
	case OrbitTarget:
		o := final.Orbit()
		a, e, i, Ω, ω, _, _, _, _ := o.Elements()
		res := make([]float64, 0, 5)
		if t.UseSMA {
			res = append(res, (a-t.SMA)*smaResidualScale)
		}
		if t.UseEcc {
			res = append(res, (e-t.Ecc)*shapeResidualScale)
		}
		if t.UseInc {
			res = append(res, angleDiff(i, t.Inc)*shapeResidualScale)
		}
		if t.UseRAAN {
			res = append(res, angleDiff(Ω, t.RAAN)*shapeResidualScale)
		}
		if t.UseArgPeriapsis {
			res = append(res, angleDiff(ω, t.ArgPeriapsis)*shapeResidualScale)
		}
		return res
	case InterceptTarget:
		tgt := t.StateAt(t.TOF)
		return []float64{final.R[0] - tgt.R[0], final.R[1] - tgt.R[1], final.R[2] - tgt.R[2]}
	case RendezvousTarget:
		tgt := t.StateAt(t.TOF)
		// Velocity misses are stretched by the orbital time scale so that they
		// are commensurable with the position entries.
		a, _, _, _, _, _, _, _, _ := t.TargetOrbit.Elements()
		if a < 1e6 {
			a = rendezvousFallbackSMA
		}
		τ := math.Sqrt(math.Pow(a, 3) / Earth.μ)
		return []float64{
			final.R[0] - tgt.R[0], final.R[1] - tgt.R[1], final.R[2] - tgt.R[2],
			(final.V[0] - tgt.V[0]) * τ, (final.V[1] - tgt.V[1]) * τ, (final.V[2] - tgt.V[2]) * τ,
		}
	default:
		panic(fmt.Errorf("unknown target kind %d", t.Kind))
	}
}

// StateAt advances the target orbit by the elapsed seconds under J2 and returns
// the resulting state. Sixty second RK4 steps keep this cheap enough for the
// finite difference loop while staying well inside the residual tolerances.
func (t TargetSpec) StateAt(elapsed float64) State {
	x0 := StateFromOrbit(t.TargetOrbit, 1, time.Time{}).Vector()
	perts := Perturbations{Jn: 2}
	deriv := func(τ float64, f []float64) []float64 {
		fDot := make([]float64, 7)
		fDot[0] = f[3]
		fDot[1] = f[4]
		fDot[2] = f[5]
		r3 := math.Pow(norm(f[:3]), 3)
		fDot[3] = -Earth.μ * f[0] / r3
		fDot[4] = -Earth.μ * f[1] / r3
		fDot[5] = -Earth.μ * f[2] / r3
		pert := perts.Perturb(StateFromVector(f, time.Time{}), 0)
		for i := 0; i < 7; i++ {
			fDot[i] += pert[i]
		}
		return fDot
	}
	x := RK4Fixed(deriv, 0, x0, elapsed, targetAdvanceStep)
	return StateFromVector(x, time.Time{})
}

// angleDiff returns the signed smallest difference between two angles.
func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d < -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// TargetOrbitFromTLE builds a target orbit from two line elements, propagated
// with SGP4 to the provided date time. The lines are validated first because
// the SGP4 library terminates the process on malformed input.
func TargetOrbitFromTLE(line1, line2 string, dt time.Time) (*Orbit, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if len(line1) != 69 || line1[0] != '1' {
		return nil, fmt.Errorf("TLE line 1 must be 69 characters starting with '1'")
	}
	if len(line2) != 69 || line2[0] != '2' {
		return nil, fmt.Errorf("TLE line 2 must be 69 characters starting with '2'")
	}
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed: code=%d %s", sat.Error, sat.ErrorStr)
	}
	dt = dt.UTC()
	pos, vel := satellite.Propagate(sat, dt.Year(), int(dt.Month()), dt.Day(), dt.Hour(), dt.Minute(), dt.Second())
	R := []float64{pos.X * 1e3, pos.Y * 1e3, pos.Z * 1e3}
	V := []float64{vel.X * 1e3, vel.Y * 1e3, vel.Z * 1e3}
	if math.IsNaN(norm(R)) || norm(R) < Earth.Radius {
		return nil, fmt.Errorf("sgp4 propagation returned an unusable state")
	}
	return NewOrbitFromRV(R, V, Earth), nil
}
