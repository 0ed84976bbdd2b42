package lmd

import (
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/meeus/julian"
)

const (
	// pitchRefTime anchors the first stage pitch polynomial: its normalized
	// time runs from this many seconds after liftoff to the reference burnout.
	pitchRefTime = 10.0
	// pitchRefAltS1 is the reference altitude for the first stage burn time used
	// to normalize the pitch polynomial argument.
	pitchRefAltS1 = 30e3
	// pitchRefAltS2 is the same for the upper stages.
	pitchRefAltS2 = 150e3
	// burnRefAlt is the reference altitude for the total powered flight duration.
	burnRefAlt = 80e3
	// insertionPad extends the flight time of a closed loop ascent so the coast
	// and the circularization burn fit after an early main engine cutoff.
	insertionPad = 900.0
	// insertionBisections bounds the cutoff bisection within one step.
	insertionBisections = 45
	// insertionPeriapsisAlt is the periapsis altitude above which a trajectory
	// counts as orbital.
	insertionPeriapsisAlt = 100e3
	// insertionMaxEcc is the eccentricity below which a trajectory counts as orbital.
	insertionMaxEcc = 0.5
	// abortAltitude is how far below the surface a trajectory may dive before the
	// propagation gives up. Keeping it deep keeps the residuals smooth for the
	// finite differences of lofted-but-failed trajectories.
	abortAltitude = -100e3
)

// FlightPhase tags where in the ascent sequence a state belongs.
type FlightPhase uint8

const (
	// PreLaunch is on the pad.
	PreLaunch FlightPhase = iota
	// VerticalAscent is the initial straight up climb.
	VerticalAscent
	// GravityTurn is powered flight with the pitch program running.
	GravityTurn
	// Coasting is unpowered flight between the main engine cutoff and the
	// circularization burn, or any engines off arc of an open loop flight.
	Coasting
	// Circularization is the prograde burn that raises the periapsis.
	Circularization
	// Orbital means the insertion checks have passed.
	Orbital
	// Ballistic is unpowered flight that has not passed the insertion checks.
	Ballistic
	// ManeuverPhase is a scheduled finite burn.
	ManeuverPhase
)

// String implements the Stringer interface.
func (p FlightPhase) String() string {
	switch p {
	case PreLaunch:
		return "PRE_LAUNCH"
	case VerticalAscent:
		return "VERTICAL_ASCENT"
	case GravityTurn:
		return "GRAVITY_TURN"
	case Coasting:
		return "COAST"
	case Circularization:
		return "CIRCULARIZATION"
	case Orbital:
		return "ORBITAL"
	case Ballistic:
		return "BALLISTIC"
	case ManeuverPhase:
		return "MANEUVER"
	default:
		panic(fmt.Errorf("unknown flight phase %d", p))
	}
}

// ascent machine modes. The public FlightPhase labels derive from these plus
// the altitude.
const (
	modePowered = iota
	modeCoast
	modeCirc
	modeOrbital
	modeBallistic
)

// Maneuver is a scheduled delta-v spread evenly over a finite burn window. The
// delta-v is expressed in the ECI frame and the vehicle mass is left untouched.
type Maneuver struct {
	Start    float64   // s after liftoff
	Duration float64   // s
	ΔV       []float64 // m/s in ECI
}

func (m Maneuver) active(t float64) bool {
	return t >= m.Start && t < m.Start+m.Duration
}

// Controls is the full set of launch controls the targeting loop adjusts.
// Pitch angles are measured from the local vertical, so zero means straight up.
type Controls struct {
	Azimuth     float64    // rad, from north toward east
	PitchS1     [3]float64 // pitch polynomial for the first stage
	PitchS2     [3]float64 // pitch polynomial for the upper stages
	YawS1       [2]float64 // yaw polynomial for the first stage
	YawS2       [2]float64 // yaw polynomial for the upper stages
	Coast       float64    // coast duration between cutoff and circularization, s
	EpochOffset float64    // launch delay against the reference epoch, s
}

// NumControls is the dimension of the control vector.
const NumControls = 13

// Vector flattens the controls in the order the solver differentiates them.
func (c Controls) Vector() []float64 {
	return []float64{c.Azimuth,
		c.PitchS1[0], c.PitchS1[1], c.PitchS1[2],
		c.PitchS2[0], c.PitchS2[1], c.PitchS2[2],
		c.YawS1[0], c.YawS1[1],
		c.YawS2[0], c.YawS2[1],
		c.Coast, c.EpochOffset}
}

// ControlsFromVector is the inverse of Vector.
func ControlsFromVector(x []float64) Controls {
	if len(x) != NumControls {
		panic(fmt.Errorf("control vector must have %d entries, not %d", NumControls, len(x)))
	}
	return Controls{Azimuth: x[0],
		PitchS1: [3]float64{x[1], x[2], x[3]},
		PitchS2: [3]float64{x[4], x[5], x[6]},
		YawS1:   [2]float64{x[7], x[8]},
		YawS2:   [2]float64{x[9], x[10]},
		Coast:   x[11], EpochOffset: x[12]}
}

// String implements the Stringer interface.
func (c Controls) String() string {
	return fmt.Sprintf("az=%.2f° pitch1=%+v pitch2=%+v yaw1=%+v yaw2=%+v coast=%.1fs offset=%.1fs",
		c.Azimuth/deg2rad, c.PitchS1, c.PitchS2, c.YawS1, c.YawS2, c.Coast, c.EpochOffset)
}

// AscentConfig sets the fidelity of an ascent propagation and the staging of
// its guidance machine.
type AscentConfig struct {
	Perts           Perturbations
	AtmosphericStep float64 // s, while below the Kármán line
	VacuumStep      float64 // s, above it
	// TurnStartAlt ends the vertical climb: below it the pitch and yaw programs
	// are overridden to zero.
	TurnStartAlt float64 // m
	// FrameSwitchSpeed and FrameSwitchAlt gate the downrange reference: above
	// both, steering angles apply against the horizontal velocity instead of
	// the launch azimuth.
	FrameSwitchSpeed float64 // m/s
	FrameSwitchAlt   float64 // m
	// CutoffApoapsis and CutoffPeriapsis, both as radii from the center of the
	// Earth, arm the closed loop insertion logic: the last stage shuts down
	// when the osculating apoapsis reaches CutoffApoapsis, coasts, relights
	// prograde, and shuts down for good when the periapsis reaches
	// CutoffPeriapsis. Zero for both flies the stages to depletion instead.
	CutoffApoapsis  float64 // m
	CutoffPeriapsis float64 // m
	// MaxFlightTime caps the propagation. Zero derives the cap from the
	// reference burn times, the coast and, for closed loop flights, a pad for
	// the circularization.
	MaxFlightTime float64 // s
	Maneuvers     []Maneuver
	SampleEvery   float64 // s between recorded trajectory samples, 0 disables
}

// DefaultAscentConfig matches the fidelity a launch targeting run needs: J2,
// a kilometer of vertical climb, and the velocity frame handover of a typical
// pitch over.
func DefaultAscentConfig() AscentConfig {
	return AscentConfig{
		Perts:            Perturbations{Jn: 2},
		AtmosphericStep:  0.5,
		VacuumStep:       5.0,
		TurnStartAlt:     1000,
		FrameSwitchSpeed: 500,
		FrameSwitchAlt:   1000,
	}
}

// insertionCheck reports whether the closed loop cutoff is armed.
func (cfg AscentConfig) insertionCheck() bool {
	return cfg.CutoffApoapsis > 0 && cfg.CutoffPeriapsis > 0
}

func (cfg AscentConfig) validate() {
	if cfg.AtmosphericStep <= 0 || cfg.VacuumStep <= 0 {
		panic("config ascent steps must be positive")
	}
	if cfg.TurnStartAlt < 0 {
		panic("config TurnStartAlt must not be negative")
	}
	if (cfg.CutoffApoapsis > 0) != (cfg.CutoffPeriapsis > 0) {
		panic("config insertion cutoff needs both apsis thresholds")
	}
	if cfg.CutoffApoapsis > 0 && cfg.CutoffPeriapsis > cfg.CutoffApoapsis {
		panic("config insertion cutoff periapsis exceeds its apoapsis")
	}
}

// AscentEvent is a timestamped milestone of the flown trajectory.
type AscentEvent struct {
	T        float64 // s after liftoff
	Name     string
	Altitude float64 // m
}

// TrajectorySample is one recorded point of the flown trajectory.
type TrajectorySample struct {
	T     float64 // s after liftoff
	R, V  []float64
	Mass  float64
	Phase FlightPhase
	Q     float64 // dynamic pressure, Pa
}

// AscentResult is everything the targeting loop and the caller need to know
// about one flown ascent.
type AscentResult struct {
	Final         State
	Phase         FlightPhase
	Events        []AscentEvent
	MaxQ          float64 // Pa
	MaxQTime      float64 // s after liftoff
	Aborted       bool
	Inserted      bool
	FuelRemaining []float64 // per stage, kg; separated stages report zero
	StageSepTime  float64   // first staging, s after liftoff (0 if none)
	MECOTime      float64   // closed loop main engine cutoff, s (0 if none)
	SECOTime      float64   // closed loop circularization cutoff, s (0 if none)
	BurnoutTime   float64   // last engines off, s after liftoff
	// MECOState is the state at the main engine cutoff, nil when the flight
	// never reached the apoapsis threshold.
	MECOState  *State
	Trajectory []TrajectorySample
}

// ascentLeg carries what every derivative evaluation of one flight shares.
type ascentLeg struct {
	v         LaunchVehicle
	ctrl      Controls
	perts     Perturbations
	jd0       float64
	refOrigin []float64 // pitch program origin per stage, s
	denoms    []float64 // pitch program normalization per stage, s
	turnAlt   float64
	fsSpeed   float64
	fsAlt     float64
}

// PropagateAscent flies the vehicle from the pad with the provided controls
// and returns the resulting trajectory. With the insertion cutoffs armed the
// flight runs the closed loop sequence: gravity turn, main engine cutoff on
// the apoapsis threshold, coast, prograde circularization, and a final cutoff
// on the periapsis threshold. Without them every stage burns to depletion.
// The function is stateless: every call rebuilds the whole simulation, so
// concurrent calls with different controls do not share anything.
func PropagateAscent(v LaunchVehicle, site LaunchSite, epoch time.Time, ctrl Controls, cfg AscentConfig) AscentResult {
	cfg.validate()
	launchDT := epoch.UTC().Add(time.Duration(ctrl.EpochOffset * float64(time.Second)))
	jd0 := julian.TimeToJD(launchDT)
	R0, V0 := site.ECI(launchDT)
	x := []float64{R0[0], R0[1], R0[2], V0[0], V0[1], V0[2], v.LiftoffMass()}

	check := cfg.insertionCheck()
	tEnd := cfg.MaxFlightTime
	if tEnd == 0 {
		tEnd = ctrl.Coast
		for _, s := range v.Stages {
			tEnd += s.BurnTime(burnRefAlt)
		}
		if check {
			tEnd += insertionPad
		}
	}

	// Steering normalization: the first stage pitch program runs from the end
	// of the vertical climb to a burn time referenced at 30 km, the upper
	// stages over their vacuum-ish burn times from the cumulative reference
	// burnout of the stages below.
	leg := &ascentLeg{v: v, ctrl: ctrl, perts: cfg.Perts, jd0: jd0,
		turnAlt: cfg.TurnStartAlt, fsSpeed: cfg.FrameSwitchSpeed, fsAlt: cfg.FrameSwitchAlt}
	leg.perts.Drag = false // the ascent models its own drag against the rotating atmosphere
	leg.refOrigin = make([]float64, len(v.Stages))
	leg.denoms = make([]float64, len(v.Stages))
	cum := 0.0
	for i, s := range v.Stages {
		leg.refOrigin[i] = cum
		if i == 0 {
			cum = s.BurnTime(pitchRefAltS1)
			leg.denoms[i] = cum - pitchRefTime
			if leg.denoms[i] <= 0 {
				leg.denoms[i] = 1
			}
		} else {
			leg.denoms[i] = s.BurnTime(pitchRefAltS2)
			cum += leg.denoms[i]
		}
	}

	res := AscentResult{Phase: PreLaunch, FuelRemaining: make([]float64, len(v.Stages))}
	fuel := make([]float64, len(v.Stages))
	burned := make([]float64, len(v.Stages))
	for i, s := range v.Stages {
		fuel[i] = s.Propellant
	}
	res.Events = append(res.Events, AscentEvent{0, "liftoff", site.Altitude})

	stage := 0
	mode := modePowered
	coastEnd := 0.0
	turned := false
	t := 0.0
	lastSample := math.Inf(-1)
	for t < tEnd-1e-9 {
		alt := norm(x[:3]) - Earth.Radius
		if alt < abortAltitude {
			res.Aborted = true
			res.Events = append(res.Events, AscentEvent{t, "abort", alt})
			break
		}
		if mode == modeOrbital {
			break
		}

		mnv := activeManeuver(cfg.Maneuvers, t)
		switch {
		case mnv != nil:
			res.Phase = ManeuverPhase
		case mode == modePowered && alt < cfg.TurnStartAlt:
			res.Phase = VerticalAscent
		case mode == modePowered:
			res.Phase = GravityTurn
		case mode == modeCoast:
			res.Phase = Coasting
		case mode == modeCirc:
			res.Phase = Circularization
		default: // ballistic, possibly in a usable orbit on an open loop flight
			if orbitInserted(StateFromVector(x, time.Time{})) {
				if !res.Inserted {
					res.Inserted = true
					res.Events = append(res.Events, AscentEvent{t, "orbital insertion", alt})
				}
				res.Phase = Orbital
			} else {
				res.Phase = Ballistic
			}
		}
		if mode == modePowered && !turned && alt >= cfg.TurnStartAlt {
			turned = true
			res.Events = append(res.Events, AscentEvent{t, "gravity turn start", alt})
		}

		// Dynamic pressure against the rotating atmosphere.
		q := 0.0
		if alt > 0 && alt < extendedCutoffAltitude {
			vRel := []float64{x[3] + EarthRotationRate*x[1], x[4] - EarthRotationRate*x[0], x[5]}
			q = 0.5 * DensityExtended(alt) * dot(vRel, vRel)
			if q > res.MaxQ {
				res.MaxQ = q
				res.MaxQTime = t
			}
		}
		if cfg.SampleEvery > 0 && t-lastSample >= cfg.SampleEvery-1e-9 {
			lastSample = t
			res.Trajectory = append(res.Trajectory, TrajectorySample{t, []float64{x[0], x[1], x[2]}, []float64{x[3], x[4], x[5]}, x[6], res.Phase, q})
		}

		dt := cfg.VacuumStep
		if alt < KarmanAltitude {
			dt = cfg.AtmosphericStep
		}
		if mode == modeCoast {
			if t+dt > coastEnd {
				dt = coastEnd - t
			}
			if dt < 1e-9 {
				mode = modeCirc
				res.Events = append(res.Events, AscentEvent{t, "circularization ignition", alt})
				continue
			}
		}
		if t+dt > tEnd {
			dt = tEnd - t
		}
		if dt < 1e-9 {
			break
		}

		burning := (mode == modePowered || mode == modeCirc) && stage < len(v.Stages) && fuel[stage] > 0

		// Closed loop cutoff, level triggered: a flight already past the
		// apoapsis threshold when the last stage is lit shuts down at once.
		if check && mode == modePowered && burning && stage == len(v.Stages)-1 {
			if NewOrbitFromRV(x[:3], x[3:6], Earth).Apoapsis() >= cfg.CutoffApoapsis {
				mode = modeCoast
				coastEnd = t + ctrl.Coast
				res.MECOTime = t
				meco := StateFromVector(x, launchDT.Add(time.Duration(t*float64(time.Second))))
				res.MECOState = &meco
				res.Events = append(res.Events, AscentEvent{t, "MECO", alt})
				continue
			}
		}

		if burning {
			st := v.Stages[stage]
			deriv := leg.deriv(stage, true, mode == modeCirc, mnv)
			ttb := fuel[stage] / st.MassFlowRate(alt)
			if st.BurnLimit > 0 {
				if rem := st.BurnLimit - burned[stage]; rem < ttb {
					ttb = rem
				}
			}
			if ttb < dt {
				// Split the step exactly at burnout, then drop the stage with
				// whatever propellant its burn limit left in it.
				if ttb > 1e-9 {
					before := x[6]
					x = RK4Step(deriv, t, x, ttb)
					fuel[stage] -= before - x[6]
					burned[stage] += ttb
					t += ttb
					alt = norm(x[:3]) - Earth.Radius
				}
				x[6] -= st.DryMass + math.Max(fuel[stage], 0)
				fuel[stage] = 0
				if stage < len(v.Stages)-1 {
					if res.StageSepTime == 0 {
						res.StageSepTime = t
					}
					res.Events = append(res.Events, AscentEvent{t, fmt.Sprintf("stage %d separation", stage+1), alt})
				} else {
					res.BurnoutTime = t
					res.Events = append(res.Events, AscentEvent{t, "engine cutoff", alt})
					mode = modeBallistic
				}
				stage++
				continue
			}
			before := x[6]
			next := RK4Step(deriv, t, x, dt)
			if check && stage == len(v.Stages)-1 {
				if mode == modePowered && NewOrbitFromRV(next[:3], next[3:6], Earth).Apoapsis() >= cfg.CutoffApoapsis {
					cut, h := insertionCrossing(deriv, t, x, dt, false, cfg.CutoffApoapsis)
					fuel[stage] -= before - cut[6]
					burned[stage] += h
					x = cut
					t += h
					mode = modeCoast
					coastEnd = t + ctrl.Coast
					res.MECOTime = t
					meco := StateFromVector(x, launchDT.Add(time.Duration(t*float64(time.Second))))
					res.MECOState = &meco
					res.Events = append(res.Events, AscentEvent{t, "MECO", norm(x[:3]) - Earth.Radius})
					continue
				}
				if mode == modeCirc && NewOrbitFromRV(next[:3], next[3:6], Earth).Periapsis() >= cfg.CutoffPeriapsis {
					cut, h := insertionCrossing(deriv, t, x, dt, true, cfg.CutoffPeriapsis)
					fuel[stage] -= before - cut[6]
					burned[stage] += h
					x = cut
					t += h
					mode = modeOrbital
					res.SECOTime = t
					res.BurnoutTime = t
					res.Inserted = true
					res.Events = append(res.Events, AscentEvent{t, "SECO", norm(x[:3]) - Earth.Radius})
					continue
				}
			}
			fuel[stage] -= before - next[6]
			if fuel[stage] < 0 {
				fuel[stage] = 0
			}
			burned[stage] += dt
			x = next
		} else {
			x = RK4Step(leg.deriv(stage, false, false, mnv), t, x, dt)
		}
		t += dt
	}

	copy(res.FuelRemaining, fuel)
	res.Final = StateFromVector(x, launchDT.Add(time.Duration(t*float64(time.Second))))
	if res.BurnoutTime == 0 && stage >= len(v.Stages) {
		res.BurnoutTime = t
	}
	if !res.Aborted {
		switch {
		case mode == modeOrbital:
			res.Phase = Orbital
			res.Inserted = true
		case !check && orbitInserted(res.Final):
			res.Phase = Orbital
			if !res.Inserted {
				res.Inserted = true
				res.Events = append(res.Events, AscentEvent{t, "orbital insertion", res.Final.Altitude()})
			}
		}
	}
	if cfg.SampleEvery > 0 {
		res.Trajectory = append(res.Trajectory, TrajectorySample{t, res.Final.R, res.Final.V, res.Final.Mass, res.Phase, 0})
	}
	return res
}

// insertionCrossing bisects the step length at which the osculating apsis
// first reaches the threshold, re-integrating the partial step from the same
// starting state each time, and returns the state at the crossing along with
// the step length taken.
func insertionCrossing(f DerivFunc, t float64, x []float64, dt float64, periapsis bool, threshold float64) ([]float64, float64) {
	lo, hi := 0.0, dt
	for iter := 0; iter < insertionBisections && hi-lo > 1e-8; iter++ {
		mid := 0.5 * (lo + hi)
		trial := RK4Step(f, t, x, mid)
		o := NewOrbitFromRV(trial[:3], trial[3:6], Earth)
		apsis := o.Apoapsis()
		if periapsis {
			apsis = o.Periapsis()
		}
		if apsis >= threshold {
			hi = mid
		} else {
			lo = mid
		}
	}
	return RK4Step(f, t, x, hi), hi
}

// activeManeuver returns the scheduled maneuver covering time t, if any.
func activeManeuver(ms []Maneuver, t float64) *Maneuver {
	for i := range ms {
		if ms[i].active(t) {
			return &ms[i]
		}
	}
	return nil
}

// orbitInserted checks the open loop insertion criteria: periapsis comfortably
// above the atmosphere and an eccentricity that still looks like an orbit.
func orbitInserted(s State) bool {
	o := s.Orbit()
	_, e, _, _, _, _, _, _, _ := o.Elements()
	return o.Periapsis()-Earth.Radius > insertionPeriapsisAlt && e < insertionMaxEcc
}

// deriv builds the seven state derivative for the current flight segment. A
// prograde segment thrusts along the velocity and ignores the steering
// programs.
func (leg *ascentLeg) deriv(stage int, burning, prograde bool, mnv *Maneuver) DerivFunc {
	return func(t float64, f []float64) []float64 {
		fDot := make([]float64, 7)
		fDot[0] = f[3]
		fDot[1] = f[4]
		fDot[2] = f[5]
		r3 := math.Pow(norm(f[:3]), 3)
		fDot[3] = -Earth.μ * f[0] / r3
		fDot[4] = -Earth.μ * f[1] / r3
		fDot[5] = -Earth.μ * f[2] / r3

		state := StateFromVector(f, time.Time{})
		pert := leg.perts.Perturb(state, leg.jd0+t/86400)
		for i := 0; i < 7; i++ {
			fDot[i] += pert[i]
		}

		alt := norm(f[:3]) - Earth.Radius
		if burning && stage < len(leg.v.Stages) {
			st := leg.v.Stages[stage]
			var dir []float64
			if prograde {
				if norm(f[3:6]) > 1 {
					dir = unit(f[3:6])
				} else {
					dir = unit(f[:3])
				}
			} else {
				pitch, yaw := leg.ctrl.steeringAngles(t, alt, stage, leg.refOrigin, leg.denoms, leg.turnAlt)
				dir = thrustDirection(f[:3], f[3:6], alt, pitch, yaw, leg.ctrl.Azimuth, leg.fsSpeed, leg.fsAlt)
			}
			acc := st.Thrust / f[6]
			fDot[3] += acc * dir[0]
			fDot[4] += acc * dir[1]
			fDot[5] += acc * dir[2]
			fDot[6] = -st.MassFlowRate(alt)
		}
		if alt >= 0 && leg.v.DragCd > 0 && leg.v.DragArea > 0 {
			if ρ := DensityExtended(alt); ρ > 1e-15 {
				vRel := []float64{f[3] + EarthRotationRate*f[1], f[4] - EarthRotationRate*f[0], f[5]}
				if vm := norm(vRel); vm > 1 {
					k := 0.5 * ρ * vm * leg.v.DragCd * leg.v.DragArea / f[6]
					fDot[3] -= k * vRel[0]
					fDot[4] -= k * vRel[1]
					fDot[5] -= k * vRel[2]
				}
			}
		}
		if mnv != nil && mnv.active(t) {
			for i := 0; i < 3; i++ {
				fDot[3+i] += mnv.ΔV[i] / mnv.Duration
			}
		}
		return fDot
	}
}

// steeringAngles evaluates the pitch and yaw programs at flight time t. Below
// the turn start altitude the vehicle holds vertical; afterwards each stage
// runs its polynomial on a normalized reference burn time.
func (c Controls) steeringAngles(t, alt float64, stage int, refOrigin, denoms []float64, turnAlt float64) (pitch, yaw float64) {
	if alt < turnAlt {
		return 0, 0
	}
	if stage == 0 {
		τ := clamp((t-pitchRefTime)/denoms[0], 0, 1)
		pitch = clamp(c.PitchS1[0]+c.PitchS1[1]*τ+c.PitchS1[2]*τ*τ, 0, math.Pi/2)
		yaw = c.YawS1[0] + c.YawS1[1]*τ
		return
	}
	τ := clamp((t-refOrigin[stage])/denoms[stage], 0, 1)
	pitch = clamp(c.PitchS2[0]+c.PitchS2[1]*τ+c.PitchS2[2]*τ*τ, 0, math.Pi/2)
	yaw = c.YawS2[0] + c.YawS2[1]*τ
	return
}

// thrustDirection builds the unit thrust vector from the pitch and yaw angles.
// The downrange basis vector follows the horizontal component of the inertial
// velocity once the vehicle is moving fast and high enough, and the launch
// azimuth before that.
func thrustDirection(R, V []float64, alt, pitch, yaw, azimuth, fsSpeed, fsAlt float64) []float64 {
	rHat := unit(R)
	var dHat []float64
	if norm(V) > fsSpeed && alt > fsAlt {
		vHoriz := make([]float64, 3)
		vr := dot(V, rHat)
		for i := 0; i < 3; i++ {
			vHoriz[i] = V[i] - vr*rHat[i]
		}
		if norm(vHoriz) > 1 {
			dHat = unit(vHoriz)
		}
	}
	if dHat == nil {
		east := unit(cross([]float64{0, 0, 1}, R))
		north := cross(rHat, east)
		sAz, cAz := math.Sincos(azimuth)
		dHat = make([]float64, 3)
		for i := 0; i < 3; i++ {
			dHat[i] = sAz*east[i] + cAz*north[i]
		}
	}
	cHat := cross(rHat, dHat)
	sp, cp := math.Sincos(pitch)
	sy, cy := math.Sincos(yaw)
	dir := make([]float64, 3)
	for i := 0; i < 3; i++ {
		dir[i] = cp*rHat[i] + sp*(cy*dHat[i]+sy*cHat[i])
	}
	return unit(dir)
}
