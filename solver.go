package lmd

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/gonum/matrix/mat64"
)

const (
	// lmDampingInit seeds the Levenberg-Marquardt damping factor.
	lmDampingInit = 0.01
	// lmShrink and lmGrow rescale the damping after an accepted or rejected
	// iteration.
	lmShrink = 0.3
	lmGrow   = 5.0
	// lmDampingMin and lmDampingMax bound the damping factor.
	lmDampingMin = 1e-10
	lmDampingMax = 1e6
	// lineSearchMinα is the smallest fraction of the correction tried before an
	// iteration counts as rejected.
	lineSearchMinα = 1.0 / 256.0
	// stallLimit is how many consecutive rejected iterations are tolerated
	// before the least bad trial step is taken anyway to leave the stall.
	stallLimit = 3
	// solverCrashAltitude rejects trial steps whose trajectory dove this far
	// below the surface.
	solverCrashAltitude = -50e3
	// gradientStepNorm is the control space length of the fallback descent step.
	gradientStepNorm = 0.005
	// pivotε is the Gaussian elimination degeneracy threshold.
	pivotε = 1e-15
	// guessRate bounds and steps of the two pass sweep over the first stage
	// pitch rate of the generated guess.
	guessRateLo         = 0.5
	guessRateHi         = 2.1
	guessRateCoarseStep = 0.1
	guessRateFineSpan   = 0.08
	guessRateFineStep   = 0.02
)

// fdFloors is the smallest magnitude used to size the finite difference
// perturbation of each control: radians for the angular entries, seconds for
// the coast and epoch offset.
var fdFloors = [NumControls]float64{0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 10, 10}

// correctionCaps bounds how far a single Newton step may move each control.
var correctionCaps = [NumControls]float64{0.15, 0.05, 0.20, 0.20, 0.15, 0.50, 0.50, 0.05, 0.05, 0.05, 0.05, 200, 60}

// SolverConfig tunes the differential corrector.
type SolverConfig struct {
	MaxIterations int
	FDStep        float64 // relative finite difference perturbation
	Tolerance     float64 // residual norm threshold, 0 selects the target default
	// FreeControls marks which control vector entries the solver may adjust.
	// Fixed entries keep their initial guess value through every iteration.
	FreeControls [NumControls]bool
	Ascent       AscentConfig
	// OnIteration, when set, is called once per iteration with the running
	// residual norm, for progress reporting from interactive callers.
	OnIteration func(iter int, residualNorm float64)
}

// DefaultSolverConfig frees every control except the launch epoch offset.
func DefaultSolverConfig() SolverConfig {
	cfg := SolverConfig{MaxIterations: 50, FDStep: 5e-4, Ascent: DefaultAscentConfig()}
	for i := range cfg.FreeControls {
		cfg.FreeControls[i] = true
	}
	cfg.FreeControls[NumControls-1] = false // launch when scheduled unless asked otherwise
	return cfg
}

// Solution is the outcome of a solve or of an open loop evaluation. It is a
// plain value: nothing in it is shared with the solver that produced it.
type Solution struct {
	Controls     Controls
	Converged    bool
	Iterations   int
	ResidualNorm float64
	Residuals    []float64
	Status       string
	ΔV           float64 // rocket equation estimate over the whole flight, m/s
	FinalOrbit   *Orbit
	PosError     float64 // m, chasing modes only
	VelError     float64 // m/s, chasing modes only
	Ascent       AscentResult
}

// Solver adjusts launch controls until a flown ascent meets the target. Every
// evaluation propagates a fresh trajectory, so distinct Solver values may run
// concurrently.
type Solver struct {
	Vehicle LaunchVehicle
	Site    LaunchSite
	Epoch   time.Time
	Target  TargetSpec
	Config  SolverConfig
	logger  kitlog.Logger
}

// NewSolver returns a solver with the default configuration.
func NewSolver(vehicle LaunchVehicle, site LaunchSite, epoch time.Time, target TargetSpec) *Solver {
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	klog = kitlog.With(klog, "subsys", "solver", "site", site.Name)
	return &Solver{Vehicle: vehicle, Site: site, Epoch: epoch.UTC(), Target: target, Config: DefaultSolverConfig(), logger: klog}
}

// SetLogger changes the logger, mostly to quiet the solver down during sweeps.
func (s *Solver) SetLogger(l kitlog.Logger) {
	if l == nil {
		l = kitlog.NewNopLogger()
	}
	s.logger = l
}

func (s *Solver) validate() error {
	if err := s.Vehicle.Validate(); err != nil {
		return err
	}
	if err := s.Target.Validate(); err != nil {
		return err
	}
	if s.Config.MaxIterations <= 0 {
		return errors.New("config MaxIterations must be positive")
	}
	if s.Config.FDStep <= 0 {
		return errors.New("config FDStep must be positive")
	}
	nFree := len(s.freeIndices())
	if nFree == 0 {
		return errors.New("config frees no controls")
	}
	if nCon := s.Target.ResidualCount(); nCon > nFree {
		return fmt.Errorf("%d constraints exceed the %d free controls", nCon, nFree)
	}
	return nil
}

func (s *Solver) freeIndices() []int {
	idx := make([]int, 0, NumControls)
	for i, free := range s.Config.FreeControls {
		if free {
			idx = append(idx, i)
		}
	}
	return idx
}

// ascentConfig returns the effective ascent configuration: for an orbit
// target with a constrained semi major axis the closed loop insertion cutoffs
// are derived from the target apsides unless the caller already set them. The
// chasing modes keep the open loop depletion flight, whose endpoint the
// residuals compare against the advanced target.
func (s *Solver) ascentConfig() AscentConfig {
	cfg := s.Config.Ascent
	if s.Target.Kind == OrbitTarget && s.Target.UseSMA && !cfg.insertionCheck() && cfg.CutoffApoapsis == 0 && cfg.CutoffPeriapsis == 0 {
		cfg.CutoffApoapsis = s.Target.SMA * (1 + s.Target.Ecc)
		cfg.CutoffPeriapsis = s.Target.SMA * (1 - s.Target.Ecc)
	}
	return cfg
}

func (s *Solver) fly(ctrl Controls) AscentResult {
	return PropagateAscent(s.Vehicle, s.Site, s.Epoch, ctrl, s.ascentConfig())
}

// Solve runs the differential corrector from the generated initial guess.
func (s *Solver) Solve() (Solution, error) {
	return s.SolveFrom(s.DefaultGuess())
}

// SolveFrom runs the differential corrector from the provided controls. When
// the iteration budget runs out, the Solution carries Converged false and the
// best visited controls; errors are reserved for configuration problems.
func (s *Solver) SolveFrom(guess Controls) (Solution, error) {
	if err := s.validate(); err != nil {
		return Solution{}, err
	}
	tol := s.Config.Tolerance
	if tol == 0 {
		tol = s.Target.Tolerance()
	}
	free := s.freeIndices()
	nCon := s.Target.ResidualCount()
	s.logger.Log("level", "info", "status", "solving", "mode", s.Target.Kind, "constraints", nCon, "free", len(free), "tol", tol)

	ctrl := guess
	λ := lmDampingInit
	fails := 0
	sol := Solution{Controls: ctrl, Status: fmt.Sprintf("did not converge after %d iterations", s.Config.MaxIterations)}
	var best struct {
		norm   float64
		ctrl   Controls
		res    AscentResult
		resids []float64
	}

	for iter := 0; iter < s.Config.MaxIterations; iter++ {
		res := s.fly(ctrl)
		r := s.Target.Residuals(res.Final)
		rNorm := norm(r)
		if iter == 0 || rNorm < best.norm {
			best.norm, best.ctrl, best.res, best.resids = rNorm, ctrl, res, r
		}
		if s.Config.OnIteration != nil {
			s.Config.OnIteration(iter, rNorm)
		}
		s.logger.Log("level", "debug", "iter", iter, "|r|", fmt.Sprintf("%.4e", rNorm), "λ", fmt.Sprintf("%.1e", λ), "alt(km)", fmt.Sprintf("%.1f", res.Final.Altitude()/1e3), "phase", res.Phase)
		if rNorm < tol {
			sol.Converged = true
			sol.Iterations = iter
			sol.ResidualNorm = rNorm
			sol.Residuals = r
			sol.Controls = ctrl
			sol.Status = "converged"
			s.finishSolution(&sol, res)
			s.logger.Log("level", "notice", "status", "converged", "iterations", iter, "|r|", fmt.Sprintf("%.4e", rNorm), "Δv(m/s)", fmt.Sprintf("%.1f", sol.ΔV))
			return sol, nil
		}

		// One damped correction per iteration, walked back along a halving
		// line search until it improves the residual norm.
		J := s.jacobian(ctrl, r, free)
		dx := solveLinearSystem(J, r, λ)
		scaled := make([]float64, len(dx))
		accepted := false
		var trial struct {
			ok     bool
			norm   float64
			ctrl   Controls
			res    AscentResult
			resids []float64
		}
		for α := 1.0; α >= lineSearchMinα-1e-12; α *= 0.5 {
			for j := range dx {
				scaled[j] = α * dx[j]
			}
			cTest := applyCorrection(ctrl, scaled, free)
			resTest := s.fly(cTest)
			if resTest.Final.Altitude() < solverCrashAltitude {
				continue
			}
			rTest := s.Target.Residuals(resTest.Final)
			tNorm := norm(rTest)
			if !trial.ok || tNorm < trial.norm {
				trial.ok, trial.norm, trial.ctrl, trial.res, trial.resids = true, tNorm, cTest, resTest, rTest
			}
			if tNorm < rNorm {
				ctrl = cTest
				if tNorm < best.norm {
					best.norm, best.ctrl, best.res, best.resids = tNorm, cTest, resTest, rTest
				}
				λ = math.Max(λ*lmShrink, lmDampingMin)
				accepted = true
				fails = 0
				break
			}
		}
		if !accepted {
			fails++
			λ = math.Min(λ*lmGrow, lmDampingMax)
			switch {
			case !trial.ok:
				// Every fraction of the step crashed: take a short steepest
				// descent step instead.
				g := make([]float64, len(free))
				for j := range free {
					for i, ri := range r {
						g[j] += J[i][j] * ri
					}
				}
				if gNorm := norm(g); gNorm > 1e-10 {
					for j := range g {
						g[j] *= gradientStepNorm / gNorm
					}
					ctrl = applyCorrection(ctrl, g, free)
				}
				s.logger.Log("level", "warning", "iter", iter, "status", "line search crashed, gradient fallback")
			case fails >= stallLimit:
				// Accept the least bad step to move off a stalled point.
				ctrl = trial.ctrl
				fails = 0
				s.logger.Log("level", "warning", "iter", iter, "status", "stalled, accepting worse step", "|r|", fmt.Sprintf("%.4e", trial.norm))
			}
		}
		sol.Iterations = iter + 1
		sol.ResidualNorm = rNorm
	}

	sol.Controls = best.ctrl
	sol.ResidualNorm = best.norm
	sol.Residuals = best.resids
	s.finishSolution(&sol, best.res)
	s.logger.Log("level", "warning", "status", "not converged", "iterations", sol.Iterations, "|r|", fmt.Sprintf("%.4e", best.norm))
	return sol, nil
}

// Evaluate flies the provided controls open loop, without any correction, and
// scores them against the target.
func (s *Solver) Evaluate(ctrl Controls) Solution {
	res := s.fly(ctrl)
	r := s.Target.Residuals(res.Final)
	sol := Solution{Controls: ctrl, Residuals: r, ResidualNorm: norm(r), Status: "open loop evaluation"}
	s.finishSolution(&sol, res)
	return sol
}

// finishSolution fills the derived fields of a solution from its final flown
// trajectory, re-flying once with sampling enabled if the solve itself ran
// without.
func (s *Solver) finishSolution(sol *Solution, res AscentResult) {
	if s.Config.Ascent.SampleEvery == 0 {
		cfg := s.ascentConfig()
		cfg.SampleEvery = 10
		res = PropagateAscent(s.Vehicle, s.Site, s.Epoch, sol.Controls, cfg)
	}
	sol.Ascent = res
	sol.FinalOrbit = res.Final.Orbit()
	if m0, mf := s.Vehicle.LiftoffMass(), res.Final.Mass; mf > 0 && m0 > mf {
		sol.ΔV = s.Vehicle.MeanVacuumIsp() * g0 * math.Log(m0/mf)
	}
	if s.Target.Kind != OrbitTarget {
		tgt := s.Target.StateAt(s.Target.TOF)
		dr := make([]float64, 3)
		dv := make([]float64, 3)
		for i := 0; i < 3; i++ {
			dr[i] = res.Final.R[i] - tgt.R[i]
			dv[i] = res.Final.V[i] - tgt.V[i]
		}
		sol.PosError = norm(dr)
		sol.VelError = norm(dv)
	}
}

// DefaultGuess builds the initial controls: azimuth from the spherical launch
// triangle against the geocentric pad latitude, a two pass sweep over the
// first stage pitch rate with the coast aimed at the apoapsis passage, and
// for the chasing modes a Lambert refinement of the final pitch and the coast.
func (s *Solver) DefaultGuess() Controls {
	targetInc := s.Target.Inc
	targetSMA := s.Target.SMA
	targetEcc := s.Target.Ecc
	if s.Target.Kind != OrbitTarget && s.Target.TargetOrbit != nil {
		a, e, i, _, _, _, _, _, _ := s.Target.TargetOrbit.Elements()
		targetInc, targetSMA, targetEcc = i, a, e
	}
	c := DefaultControls(targetInc, s.Site.GeocentricLatitude())

	if targetSMA > 0 {
		best := c
		bestCost := math.Inf(1)
		for k := guessRateLo; k <= guessRateHi+1e-9; k += guessRateCoarseStep {
			if cost, g, ok := s.turnCost(c, k, targetSMA, targetEcc); ok && cost < bestCost {
				bestCost, best = cost, g
			}
		}
		// Tighten around the coarse winner.
		center := best.PitchS1[1]
		for k := center - guessRateFineSpan; k <= center+guessRateFineSpan+1e-9; k += guessRateFineStep {
			if cost, g, ok := s.turnCost(c, k, targetSMA, targetEcc); ok && cost < bestCost {
				bestCost, best = cost, g
			}
		}
		c = best
		s.logger.Log("level", "debug", "status", "guess sweep", "turn", fmt.Sprintf("%.2f", c.PitchS1[1]), "coast", fmt.Sprintf("%.1f", c.Coast), "cost", fmt.Sprintf("%.3e", bestCost))
	}

	if s.Target.Kind != OrbitTarget {
		// Aim the burnout velocity along a Lambert arc to the intercept point.
		insertion := s.fly(c)
		flight := insertion.Final.Epoch.Sub(s.Epoch).Seconds()
		coastTOF := s.Target.TOF - flight
		if coastTOF > 60 {
			tgt := s.Target.StateAt(s.Target.TOF)
			Vi, _, _, err := Lambert(mat64.NewVector(3, insertion.Final.R), mat64.NewVector(3, tgt.R),
				time.Duration(coastTOF*float64(time.Second)), TTypeAuto, Earth)
			if err != nil {
				s.logger.Log("level", "warning", "status", "lambert guess failed", "err", err)
			} else {
				v1 := []float64{Vi.At(0, 0), Vi.At(1, 0), Vi.At(2, 0)}
				rHat := unit(insertion.Final.R)
				vRadial := dot(v1, rHat)
				vHoriz := math.Sqrt(math.Max(0, dot(v1, v1)-vRadial*vRadial))
				finalPitch := clamp(math.Atan2(vHoriz, vRadial), 0, math.Pi/2)
				c.PitchS2[1] = math.Max(0, finalPitch-c.PitchS2[0])
				c.PitchS2[2] = 0
				c.Coast = math.Max(0, coastTOF-300)
			}
		}
	}
	return c
}

// turnCost builds a guess candidate around the provided first stage pitch
// rate, carrying the first stage burnout pitch into the upper stage program,
// and scores it in the residual scaling. With the insertion cutoff armed the
// candidate's coast comes from a probe flight: the time from the main engine
// cutoff to the apoapsis passage, less half the estimated circularization
// burn. Open loop candidates score the reached orbit shape directly.
func (s *Solver) turnCost(base Controls, k, targetSMA, targetEcc float64) (float64, Controls, bool) {
	g := base
	g.PitchS1[1] = k
	g.PitchS2[0] = clamp(g.PitchS1[0]+k+g.PitchS1[2], 0.1, math.Pi/2)
	res := s.fly(g)
	if s.ascentConfig().insertionCheck() {
		if res.MECOState == nil {
			return 0, g, false
		}
		o := res.MECOState.Orbit()
		a, _, _, _, _, _, _, _, _ := o.Elements()
		ra := o.Apoapsis()
		vApo := math.Sqrt(math.Max(Earth.μ*(2/ra-1/a), 0))
		vCirc := math.Sqrt(math.Max(Earth.μ*(2/ra-1/targetSMA), 0))
		tBurn := math.Max(vCirc-vApo, 0) * res.MECOState.Mass / s.Vehicle.Stages[len(s.Vehicle.Stages)-1].Thrust
		g.Coast = math.Max(o.TimeToApoapsis()-0.5*tBurn, 0)
		full := s.fly(g)
		r := s.Target.Residuals(full.Final)
		return dot(r, r), g, true
	}
	if res.Final.Altitude() < 0 {
		return 0, g, false
	}
	a, e, _, _, _, _, _, _, _ := res.Final.Orbit().Elements()
	if a < Earth.Radius || e > 0.95 {
		return 0, g, false
	}
	Δa := (a - targetSMA) * smaResidualScale
	Δe := (e - targetEcc) * shapeResidualScale
	return Δa*Δa + Δe*Δe, g, true
}

// DefaultControls is the standard gravity turn guess: launch azimuth from the
// spherical triangle sin(az) = cos(inc)/cos(lat), a vertical start with a
// strong first stage turn, and a gentle push toward horizontal on the upper
// stage. The latitude should be geocentric, matching the inertial frame the
// reached inclination is measured in. Angles in radians.
func DefaultControls(targetInc, siteLat float64) Controls {
	sinAz := 0.0
	if math.Abs(math.Cos(siteLat)) > 1e-10 {
		sinAz = math.Cos(targetInc) / math.Cos(siteLat)
	}
	az := wrapTo2Pi(math.Asin(clamp(sinAz, -1, 1)))
	return Controls{
		Azimuth: az,
		PitchS1: [3]float64{0, 1.1, 0.3},
		PitchS2: [3]float64{1.4, 0.3, 0},
	}
}

// jacobian estimates the residual sensitivity to each free control by forward
// finite differences. The perturbation is relative with a per control floor so
// that zero valued controls still move.
func (s *Solver) jacobian(ctrl Controls, r0 []float64, free []int) [][]float64 {
	J := make([][]float64, len(r0))
	for i := range J {
		J[i] = make([]float64, len(free))
	}
	x0 := ctrl.Vector()
	for j, idx := range free {
		h := s.Config.FDStep * math.Max(math.Abs(x0[idx]), fdFloors[idx])
		xp := make([]float64, NumControls)
		copy(xp, x0)
		xp[idx] += h
		res := s.fly(ControlsFromVector(xp))
		rp := s.Target.Residuals(res.Final)
		for i := range r0 {
			J[i][j] = (rp[i] - r0[i]) / h
		}
	}
	return J
}

// solveLinearSystem solves J dx = r for square, under and over determined
// shapes. The square path is Gaussian elimination with partial pivoting where
// a degenerate pivot zeroes its component instead of failing; the rectangular
// paths scale the normal matrix diagonal by one plus the Levenberg-Marquardt
// factor and reduce to the square path. The multiplicative damping stays
// meaningful whatever the magnitude of the Jacobian entries, and a column
// with no residual effect yields a zero step component rather than an error.
func solveLinearSystem(J [][]float64, r []float64, damping float64) []float64 {
	m := len(J)
	n := len(J[0])
	dx := make([]float64, n)
	switch {
	case m == n:
		A := make([][]float64, m)
		for i := 0; i < m; i++ {
			A[i] = make([]float64, n+1)
			copy(A[i], J[i])
			A[i][n] = r[i]
		}
		for col := 0; col < n; col++ {
			maxRow := col
			maxVal := math.Abs(A[col][col])
			for row := col + 1; row < m; row++ {
				if v := math.Abs(A[row][col]); v > maxVal {
					maxVal = v
					maxRow = row
				}
			}
			if maxRow != col {
				A[col], A[maxRow] = A[maxRow], A[col]
			}
			if math.Abs(A[col][col]) < pivotε {
				continue
			}
			for row := col + 1; row < m; row++ {
				factor := A[row][col] / A[col][col]
				for k := col; k <= n; k++ {
					A[row][k] -= factor * A[col][k]
				}
			}
		}
		for i := n - 1; i >= 0; i-- {
			if math.Abs(A[i][i]) < pivotε {
				dx[i] = 0
				continue
			}
			sum := A[i][n]
			for j := i + 1; j < n; j++ {
				sum -= A[i][j] * dx[j]
			}
			dx[i] = sum / A[i][i]
		}
	case m < n:
		// Minimum norm step dx = Jᵀ(JJᵀ + λI)⁻¹ r.
		JJT := make([][]float64, m)
		for i := 0; i < m; i++ {
			JJT[i] = make([]float64, m)
			for k := 0; k < m; k++ {
				sum := 0.0
				for j := 0; j < n; j++ {
					sum += J[i][j] * J[k][j]
				}
				JJT[i][k] = sum
			}
			JJT[i][i] *= 1 + damping
		}
		y := solveLinearSystem(JJT, r, 0)
		for j := 0; j < n; j++ {
			sum := 0.0
			for i := 0; i < m; i++ {
				sum += J[i][j] * y[i]
			}
			dx[j] = sum
		}
	default:
		// Least squares step from the damped normal equations.
		JTJ := make([][]float64, n)
		JTr := make([]float64, n)
		for i := 0; i < n; i++ {
			JTJ[i] = make([]float64, n)
			for j := 0; j < n; j++ {
				sum := 0.0
				for k := 0; k < m; k++ {
					sum += J[k][i] * J[k][j]
				}
				JTJ[i][j] = sum
			}
			for k := 0; k < m; k++ {
				JTr[i] += J[k][i] * r[k]
			}
			JTJ[i][i] *= 1 + damping
		}
		dx = solveLinearSystem(JTJ, JTr, 0)
	}
	return dx
}

// applyCorrection takes a Newton step against the correction. Each component
// is clamped to a per control limit first, and the resulting controls to their
// physical bounds after.
func applyCorrection(ctrl Controls, dx []float64, free []int) Controls {
	x := ctrl.Vector()
	for j, idx := range free {
		x[idx] -= clamp(dx[j], -correctionCaps[idx], correctionCaps[idx])
	}
	c := ControlsFromVector(x)
	c.PitchS1[0] = clamp(c.PitchS1[0], 0, 0.3)
	c.PitchS1[1] = clamp(c.PitchS1[1], 0, 2.5)
	c.PitchS1[2] = clamp(c.PitchS1[2], -1, 2)
	c.PitchS2[0] = clamp(c.PitchS2[0], 0.1, math.Pi/2)
	c.PitchS2[1] = clamp(c.PitchS2[1], -2, 6)
	c.PitchS2[2] = clamp(c.PitchS2[2], -6, 4)
	for i := 0; i < 2; i++ {
		c.YawS1[i] = clamp(c.YawS1[i], -0.3, 0.3)
		c.YawS2[i] = clamp(c.YawS2[i], -0.3, 0.3)
	}
	c.Azimuth = wrapTo2Pi(c.Azimuth)
	if c.Coast < 0 {
		c.Coast = 0
	}
	return c
}
