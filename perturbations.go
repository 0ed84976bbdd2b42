package lmd

import (
	"fmt"
	"math"
	"strings"
)

const (
	// srpPressure1AU is the solar radiation pressure at one AU in N/m^2.
	srpPressure1AU = 4.56e-6
	// dragDensityFloor is the density below which drag is not worth computing.
	dragDensityFloor = 1e-20
	// dragVelocityFloor avoids dividing a near zero relative velocity by its norm.
	dragVelocityFloor = 1.0
)

// Perturbations defines which perturbing accelerations act on top of the point
// mass gravity of Earth.
type Perturbations struct {
	Jn        uint8                               // Zonal harmonics to be used (only up to 4 supported)
	Bodies    []CelestialObject                   // Third bodies pulling on the vehicle
	Drag      bool                                // Atmospheric drag from the co-rotating atmosphere
	SRP       bool                                // Cannonball solar radiation pressure
	Cd        float64                             // Drag coefficient
	DragArea  float64                             // Drag reference area, m^2
	Cr        float64                             // SRP reflectivity coefficient
	SRPArea   float64                             // SRP reference area, m^2
	Arbitrary func(s State, jd float64) []float64 // Additional arbitrary perturbation
}

func (p Perturbations) isEmpty() bool {
	return p.Jn <= 1 && len(p.Bodies) == 0 && !p.Drag && !p.SRP && p.Arbitrary == nil
}

// Perturb returns the perturbing state vector for the provided state. Indices 3
// through 5 carry the acceleration components; an Arbitrary perturbation may
// fill any of the seven.
func (p Perturbations) Perturb(s State, jd float64) []float64 {
	pert := make([]float64, 7)
	if p.isEmpty() {
		return pert
	}
	if p.Jn > 1 {
		for i, a := range accelJ2(s.R, Earth) {
			pert[i+3] += a
		}
		if p.Jn >= 3 {
			for i, a := range accelJ3(s.R, Earth) {
				pert[i+3] += a
			}
		}
		if p.Jn >= 4 {
			for i, a := range accelJ4(s.R, Earth) {
				pert[i+3] += a
			}
		}
	}
	for _, body := range p.Bodies {
		for i, a := range accelThirdBody(s.R, body, jd) {
			pert[i+3] += a
		}
	}
	if p.Drag {
		for i, a := range p.accelDrag(s) {
			pert[i+3] += a
		}
	}
	if p.SRP {
		for i, a := range p.accelSRP(s, jd) {
			pert[i+3] += a
		}
	}
	if p.Arbitrary != nil {
		// Add the arbitrary perturbations.
		arbs := p.Arbitrary(s, jd)
		for i := 0; i < 7; i++ {
			pert[i] += arbs[i]
		}
	}
	return pert
}

// Acceleration returns the total acceleration in m/s^2 on the provided state:
// point mass gravity plus every enabled perturbation.
func (p Perturbations) Acceleration(s State, jd float64) []float64 {
	r3 := math.Pow(norm(s.R), 3)
	accel := []float64{-Earth.μ * s.R[0] / r3, -Earth.μ * s.R[1] / r3, -Earth.μ * s.R[2] / r3}
	pert := p.Perturb(s, jd)
	for i := 0; i < 3; i++ {
		accel[i] += pert[i+3]
	}
	return accel
}

// AccelBreakdown itemizes each acceleration contribution at a given state, which
// is handy when deciding which fidelity a scenario actually needs.
type AccelBreakdown struct {
	TwoBody, J2, J3, J4, ThirdBody, Drag, SRP, Total []float64
}

// String implements the Stringer interface, printing magnitudes only.
func (b AccelBreakdown) String() string {
	return fmt.Sprintf("twobody=%.3e J2=%.3e J3=%.3e J4=%.3e thirdbody=%.3e drag=%.3e srp=%.3e total=%.3e (m/s^2)",
		norm(b.TwoBody), norm(b.J2), norm(b.J3), norm(b.J4), norm(b.ThirdBody), norm(b.Drag), norm(b.SRP), norm(b.Total))
}

// Breakdown computes each enabled contribution separately.
func (p Perturbations) Breakdown(s State, jd float64) AccelBreakdown {
	var b AccelBreakdown
	r3 := math.Pow(norm(s.R), 3)
	b.TwoBody = []float64{-Earth.μ * s.R[0] / r3, -Earth.μ * s.R[1] / r3, -Earth.μ * s.R[2] / r3}
	b.J2 = make([]float64, 3)
	b.J3 = make([]float64, 3)
	b.J4 = make([]float64, 3)
	b.ThirdBody = make([]float64, 3)
	b.Drag = make([]float64, 3)
	b.SRP = make([]float64, 3)
	if p.Jn >= 2 {
		b.J2 = accelJ2(s.R, Earth)
	}
	if p.Jn >= 3 {
		b.J3 = accelJ3(s.R, Earth)
	}
	if p.Jn >= 4 {
		b.J4 = accelJ4(s.R, Earth)
	}
	for _, body := range p.Bodies {
		for i, a := range accelThirdBody(s.R, body, jd) {
			b.ThirdBody[i] += a
		}
	}
	if p.Drag {
		b.Drag = p.accelDrag(s)
	}
	if p.SRP {
		b.SRP = p.accelSRP(s, jd)
	}
	b.Total = make([]float64, 3)
	for i := 0; i < 3; i++ {
		b.Total[i] = b.TwoBody[i] + b.J2[i] + b.J3[i] + b.J4[i] + b.ThirdBody[i] + b.Drag[i] + b.SRP[i]
	}
	return b
}

// accelJ2 returns the J2 acceleration about the provided body.
// (computed via SageMath: https://cloud.sagemath.com/projects/1fb6b227-1832-4f82-a05c-7e45614c00a2/files/j2perts.sagews)
func accelJ2(R []float64, body CelestialObject) []float64 {
	x := R[0]
	y := R[1]
	z := R[2]
	z2 := math.Pow(R[2], 2)
	z3 := math.Pow(R[2], 3)
	r2 := math.Pow(R[0], 2) + math.Pow(R[1], 2) + z2
	r252 := math.Pow(r2, 5/2.)
	r272 := math.Pow(r2, 7/2.)
	accJ2 := (3 / 2.) * body.J(2) * math.Pow(body.Radius, 2) * body.μ
	return []float64{
		accJ2 * (5*x*z2/r272 - x/r252),
		accJ2 * (5*y*z2/r272 - y/r252),
		accJ2 * (5*z3/r272 - 3*z/r252),
	}
}

// accelJ3 returns the J3 acceleration about the provided body.
// (computed via SageMath: https://cloud.sagemath.com/#projects/1fb6b227-1832-4f82-a05c-7e45614c00a2/files/j3perts.sagews)
func accelJ3(R []float64, body CelestialObject) []float64 {
	x := R[0]
	y := R[1]
	z := R[2]
	z2 := math.Pow(R[2], 2)
	z3 := math.Pow(R[2], 3)
	z4 := math.Pow(R[2], 4)
	r2 := math.Pow(R[0], 2) + math.Pow(R[1], 2) + z2
	r252 := math.Pow(r2, 5/2.)
	r272 := math.Pow(r2, 7/2.)
	r292 := math.Pow(r2, 9/2.)
	accJ3 := body.J(3) * math.Pow(body.Radius, 3) * body.μ
	return []float64{
		(5 / 2.) * accJ3 * (7*x*z3/r292 - 3*x*z/r272),
		(5 / 2.) * accJ3 * (7*y*z3/r292 - 3*y*z/r272),
		0.5 * accJ3 * (35*z4/r292 - 30*z2/r272 + 3/r252),
	}
}

// accelJ4 returns the J4 acceleration about the provided body, from the closed
// form of the same potential (cf. Vallado section 8.6).
func accelJ4(R []float64, body CelestialObject) []float64 {
	x := R[0]
	y := R[1]
	z := R[2]
	z2 := math.Pow(R[2], 2)
	z3 := math.Pow(R[2], 3)
	z4 := math.Pow(R[2], 4)
	z5 := math.Pow(R[2], 5)
	r2 := math.Pow(R[0], 2) + math.Pow(R[1], 2) + z2
	r272 := math.Pow(r2, 7/2.)
	r292 := math.Pow(r2, 9/2.)
	r2112 := math.Pow(r2, 11/2.)
	accJ4 := (15 / 8.) * body.J(4) * math.Pow(body.Radius, 4) * body.μ
	return []float64{
		accJ4 * (x/r272 - 14*x*z2/r292 + 21*x*z4/r2112),
		accJ4 * (y/r272 - 14*y*z2/r292 + 21*y*z4/r2112),
		accJ4 * (5*z/r272 - (70/3.)*z3/r292 + 21*z5/r2112),
	}
}

// accelThirdBody returns the differential acceleration from the provided third
// body: its pull on the vehicle minus its pull on Earth itself.
func accelThirdBody(R []float64, b CelestialObject, jd float64) []float64 {
	bodyR := BodyPositionECI(b, jd)
	Δ := make([]float64, 3) // vehicle to third body
	for i := 0; i < 3; i++ {
		Δ[i] = bodyR[i] - R[i]
	}
	ΔNorm3 := math.Pow(norm(Δ), 3)
	bodyNorm3 := math.Pow(norm(bodyR), 3)
	accel := make([]float64, 3)
	for i := 0; i < 3; i++ {
		accel[i] = b.μ * (Δ[i]/ΔNorm3 - bodyR[i]/bodyNorm3)
	}
	return accel
}

// accelDrag returns the drag acceleration from an atmosphere co-rotating with
// Earth. Outside the 0 to 200 km window, or when the relative velocity or the
// density are negligible, there is nothing to compute.
func (p Perturbations) accelDrag(s State) []float64 {
	accel := make([]float64, 3)
	alt := s.Altitude()
	if alt <= 0 || alt >= extendedCutoffAltitude {
		return accel
	}
	// v_rel = v - ω x r with ω along +Z.
	vRel := []float64{s.V[0] + EarthRotationRate*s.R[1], s.V[1] - EarthRotationRate*s.R[0], s.V[2]}
	vMag := norm(vRel)
	if vMag <= dragVelocityFloor {
		return accel
	}
	ρ := DensityExtended(alt)
	if ρ <= dragDensityFloor {
		return accel
	}
	coef := -0.5 * ρ * p.Cd * p.DragArea / s.Mass * vMag
	for i := 0; i < 3; i++ {
		accel[i] = coef * vRel[i]
	}
	return accel
}

// accelSRP returns the cannonball solar radiation pressure acceleration, scaled
// by the inverse square of the Sun distance and zeroed inside the cylindrical
// Earth shadow.
func (p Perturbations) accelSRP(s State, jd float64) []float64 {
	accel := make([]float64, 3)
	sunR := SunPositionECI(jd)
	sHat := unit(sunR)
	proj := dot(s.R, sHat)
	if proj < 0 {
		// Anti-Sun side: check the shadow cylinder.
		perp := make([]float64, 3)
		for i := 0; i < 3; i++ {
			perp[i] = s.R[i] - proj*sHat[i]
		}
		if norm(perp) < Earth.Radius {
			return accel
		}
	}
	Δ := make([]float64, 3) // Sun to vehicle, SRP pushes away from the Sun
	for i := 0; i < 3; i++ {
		Δ[i] = s.R[i] - sunR[i]
	}
	ΔNorm := norm(Δ)
	mag := srpPressure1AU * p.Cr * p.SRPArea / s.Mass * math.Pow(AU/ΔNorm, 2)
	for i := 0; i < 3; i++ {
		accel[i] = mag * Δ[i] / ΔNorm
	}
	return accel
}

// PerturbationsFromPreset returns one of the named perturbation sets. The drag
// and SRP presets assume a generic satellite: Cd of 2.2 over 10 m^2 and Cr of
// 1.3 over 20 m^2.
func PerturbationsFromPreset(name string) (Perturbations, error) {
	switch strings.ToLower(name) {
	case "two_body_only":
		return Perturbations{}, nil
	case "j2_only":
		return Perturbations{Jn: 2}, nil
	case "full_harmonics":
		return Perturbations{Jn: 4}, nil
	case "full_fidelity":
		return Perturbations{Jn: 4, Bodies: []CelestialObject{Moon, Sun}, Drag: true, SRP: true, Cd: 2.2, DragArea: 10, Cr: 1.3, SRPArea: 20}, nil
	case "leo_satellite":
		return Perturbations{Jn: 3, Drag: true, Cd: 2.2, DragArea: 10}, nil
	case "geo_satellite":
		return Perturbations{Jn: 2, Bodies: []CelestialObject{Moon, Sun}, SRP: true, Cr: 1.3, SRPArea: 20}, nil
	default:
		return Perturbations{}, fmt.Errorf("undefined perturbation preset '%s'", name)
	}
}
