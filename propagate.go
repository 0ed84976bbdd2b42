package lmd

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ChristopherRabotin/ode"
	kitlog "github.com/go-kit/kit/log"
	"github.com/soniakeys/meeus/julian"
)

const (
	// StepSize is the default step size of orbital propagation.
	StepSize = 10 * time.Second
)

/* Handles the orbital phase propagations. */

// OrbitMission propagates an orbit under a perturbation set. The ascent phase
// has its own stepper; this one takes over once a vehicle or target is on orbit.
type OrbitMission struct {
	Orbit                      *Orbit // As pointer because the orbit changes during propagation.
	Mass                       float64
	StartDT, StopDT, CurrentDT time.Time
	perts                      Perturbations
	step                       time.Duration
	startJD                    float64
	stopChan                   chan (bool)
	logger                     kitlog.Logger
	done, collided             bool
}

// NewOrbitMission is the same as NewPreciseOrbitMission with the default step size.
func NewOrbitMission(o *Orbit, mass float64, start, end time.Time, perts Perturbations) *OrbitMission {
	return NewPreciseOrbitMission(o, mass, start, end, perts, StepSize)
}

// NewPreciseOrbitMission returns a new OrbitMission instance with a custom time step.
func NewPreciseOrbitMission(o *Orbit, mass float64, start, end time.Time, perts Perturbations, step time.Duration) *OrbitMission {
	// Must switch to UTC as all ephemeris data is in UTC.
	if start.Location() != time.UTC {
		start = start.UTC()
	}
	if end.Location() != time.UTC {
		end = end.UTC()
	}
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	klog = kitlog.With(klog, "subsys", "astro")
	a := &OrbitMission{o, mass, start, end, start, perts, step, julian.TimeToJD(start), make(chan (bool), 1), klog, false, false}
	if end.Before(start) {
		a.logger.Log("level", "warning", "message", "end date before start date")
	}
	return a
}

// SetLogger changes the logger, mostly to quiet this mission down during sweeps.
func (a *OrbitMission) SetLogger(l kitlog.Logger) {
	if l == nil {
		l = kitlog.NewNopLogger()
	}
	a.logger = l
}

// LogStatus returns the status of the propagation.
func (a *OrbitMission) LogStatus() {
	a.logger.Log("level", "info", "date", a.CurrentDT, "orbit", a.Orbit)
}

// PropagateUntil propagates until the given time is reached.
func (a *OrbitMission) PropagateUntil(dt time.Time) {
	a.StopDT = dt
	a.Propagate()
}

// Propagate starts the propagation.
func (a *OrbitMission) Propagate() {
	a.LogStatus()
	vInit := a.Orbit.VNorm()
	ode.NewRK4(0, a.step.Seconds(), a).Solve() // Blocking.
	vFinal := a.Orbit.VNorm()
	a.done = true
	duration := a.CurrentDT.Sub(a.StartDT)
	durStr := duration.String()
	if duration.Hours() > 24 {
		durStr += fmt.Sprintf(" (~%.3fd)", duration.Hours()/24)
	}
	a.logger.Log("level", "notice", "status", "finished", "duration", durStr, "Δv(m/s)", math.Abs(vFinal-vInit))
	a.LogStatus()
}

// StopPropagation is used to stop the propagation before it is completed.
func (a *OrbitMission) StopPropagation() {
	a.stopChan <- true
}

// Stop implements the stop call of the integrator. To stop the propagation, call StopPropagation().
func (a *OrbitMission) Stop(t float64) bool {
	select {
	case <-a.stopChan:
		return true // Stop because there is a request to stop.
	default:
		a.CurrentDT = a.CurrentDT.Add(a.step)
		if a.CurrentDT.Sub(a.StopDT).Nanoseconds() > 0 {
			return true // Stop, we've reached the end of the simulation.
		}
	}
	return false
}

// GetState returns the state for the integrator.
func (a *OrbitMission) GetState() (s []float64) {
	s = make([]float64, 7)
	R, V := a.Orbit.RV()
	for i := 0; i < 3; i++ {
		s[i] = R[i]
		s[i+3] = V[i]
	}
	s[6] = a.Mass
	return
}

// SetState sets the updated state.
func (a *OrbitMission) SetState(t float64, s []float64) {
	R := []float64{s[0], s[1], s[2]}
	V := []float64{s[3], s[4], s[5]}
	*a.Orbit = *NewOrbitFromRV(R, V, a.Orbit.Origin) // Deref is important.
	a.Mass = s[6]

	// Orbit sanity checks and warnings.
	if !a.collided && a.Orbit.RNorm() < a.Orbit.Origin.Radius {
		a.collided = true
		a.logger.Log("level", "critical", "collided", a.Orbit.Origin.Name, "dt", a.CurrentDT, "r", a.Orbit.RNorm(), "radius", a.Orbit.Origin.Radius)
	} else if a.collided && a.Orbit.RNorm() > a.Orbit.Origin.Radius*1.1 {
		// Now further from the 10% dead zone
		a.collided = false
		a.logger.Log("level", "critical", "revived", a.Orbit.Origin.Name, "dt", a.CurrentDT)
	}
}

// Func is the integration function in Cartesian elements.
func (a *OrbitMission) Func(t float64, f []float64) (fDot []float64) {
	fDot = make([]float64, 7) // init return vector
	r3 := math.Pow(norm(f[:3]), 3)
	// d\vec{R}/dt
	fDot[0] = f[3]
	fDot[1] = f[4]
	fDot[2] = f[5]
	// d\vec{V}/dt
	fDot[3] = -a.Orbit.Origin.μ * f[0] / r3
	fDot[4] = -a.Orbit.Origin.μ * f[1] / r3
	fDot[5] = -a.Orbit.Origin.μ * f[2] / r3
	// dm/dt: no propulsion on orbit, maneuvers are applied by the ascent stepper.
	fDot[6] = 0

	state := StateFromVector(f, a.CurrentDT)
	pert := a.perts.Perturb(state, a.startJD+t/86400)
	for i := 0; i < 7; i++ {
		fDot[i] += pert[i]
		if math.IsNaN(fDot[i]) {
			r, v := a.Orbit.RV()
			panic(fmt.Errorf("fDot[%d]=NaN @ dt=%s\ncur:%s\nR=%+v\tV=%+v", i, a.CurrentDT, a.Orbit, r, v))
		}
	}
	return
}
