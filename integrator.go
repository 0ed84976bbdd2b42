package lmd

import "math"

// DerivFunc is the derivative signature shared by all the integrators here:
// given the independent variable and the state, return dx/dt.
type DerivFunc func(t float64, x []float64) []float64

// RK4Step performs a single classical Runge-Kutta step of size h from t and
// returns the new state. The state may be of any dimension.
func RK4Step(f DerivFunc, t float64, x []float64, h float64) []float64 {
	n := len(x)
	tState := make([]float64, n)
	k1 := f(t, x)
	for i := 0; i < n; i++ {
		tState[i] = x[i] + 0.5*h*k1[i]
	}
	k2 := f(t+0.5*h, tState)
	for i := 0; i < n; i++ {
		tState[i] = x[i] + 0.5*h*k2[i]
	}
	k3 := f(t+0.5*h, tState)
	for i := 0; i < n; i++ {
		tState[i] = x[i] + h*k3[i]
	}
	k4 := f(t+h, tState)
	newState := make([]float64, n)
	for i := 0; i < n; i++ {
		newState[i] = x[i] + (h/6)*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return newState
}

// RK4Fixed integrates from t0 to tEnd with fixed steps of size h, shortening
// only the final step so that the integration lands exactly on tEnd.
func RK4Fixed(f DerivFunc, t0 float64, x0 []float64, tEnd, h float64) []float64 {
	if h <= 0 {
		panic("step size must be positive")
	}
	x := make([]float64, len(x0))
	copy(x, x0)
	t := t0
	for t < tEnd {
		step := h
		if t+step > tEnd {
			step = tEnd - t
		}
		x = RK4Step(f, t, x, step)
		t += step
	}
	return x
}

// AdaptiveConfig drives the embedded Dormand-Prince 4(5) integrator.
type AdaptiveConfig struct {
	MinStep     float64 // smallest step the controller may take, s
	MaxStep     float64 // largest step the controller may take, s
	InitialStep float64 // first attempted step, s
	Tolerance   float64 // relative and absolute tolerance on the scaled error
	Safety      float64 // shrink factor applied to the optimal step estimate
	MaxSteps    uint64  // step budget before the integration gives up
}

// DefaultAdaptiveConfig is a general purpose configuration.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{MinStep: 0.1, MaxStep: 86400, InitialStep: 1.0, Tolerance: 1e-10, Safety: 0.9, MaxSteps: 1000000}
}

// EarthOrbitConfig keeps steps short enough for LEO to GEO work.
func EarthOrbitConfig() AdaptiveConfig {
	return AdaptiveConfig{MinStep: 0.1, MaxStep: 300, InitialStep: 1.0, Tolerance: 1e-10, Safety: 0.9, MaxSteps: 1000000}
}

// InterplanetaryConfig allows day-long steps on quiet heliocentric legs.
func InterplanetaryConfig() AdaptiveConfig {
	return AdaptiveConfig{MinStep: 1.0, MaxStep: 86400, InitialStep: 60.0, Tolerance: 1e-9, Safety: 0.9, MaxSteps: 1000000}
}

// FlybyConfig tightens everything for fast dynamics near a body.
func FlybyConfig() AdaptiveConfig {
	return AdaptiveConfig{MinStep: 0.01, MaxStep: 600, InitialStep: 1.0, Tolerance: 1e-12, Safety: 0.9, MaxSteps: 1000000}
}

func (cfg AdaptiveConfig) validate() {
	if cfg.MinStep <= 0 || cfg.MaxStep < cfg.MinStep {
		panic("config step bounds must satisfy 0 < MinStep <= MaxStep")
	}
	if cfg.InitialStep <= 0 {
		panic("config InitialStep must be positive")
	}
	if cfg.Tolerance <= 0 {
		panic("config Tolerance must be positive")
	}
	if cfg.Safety <= 0 || cfg.Safety >= 1 {
		panic("config Safety must be in (0,1)")
	}
	if cfg.MaxSteps == 0 {
		panic("config MaxSteps must be positive")
	}
}

// AdaptiveStats reports what the step controller did. FloorWarnings counts the
// steps whose error estimate was still too large at MinStep: those steps are
// accepted anyway, since rejecting a step that cannot shrink would spin forever.
type AdaptiveStats struct {
	Steps         uint64
	Rejected      uint64
	FloorWarnings uint64
	Complete      bool    // whether tEnd was reached within the step budget
	LastStep      float64 // step size when the integration ended, s
}

// Dormand-Prince 4(5) coefficients.
var (
	dpC = [7]float64{0, 1 / 5., 3 / 10., 4 / 5., 8 / 9., 1, 1}
	dpA = [7][6]float64{
		{},
		{1 / 5.},
		{3 / 40., 9 / 40.},
		{44 / 45., -56 / 15., 32 / 9.},
		{19372 / 6561., -25360 / 2187., 64448 / 6561., -212 / 729.},
		{9017 / 3168., -355 / 33., 46732 / 5247., 49 / 176., -5103 / 18656.},
		{35 / 384., 0, 500 / 1113., 125 / 192., -2187 / 6784., 11 / 84.},
	}
	dpB5 = [7]float64{35 / 384., 0, 500 / 1113., 125 / 192., -2187 / 6784., 11 / 84., 0}
	dpB4 = [7]float64{5179 / 57600., 0, 7571 / 16695., 393 / 640., -92097 / 339200., 187 / 2100., 1 / 40.}
)

// AdaptiveSample is one accepted step of an adaptive integration.
type AdaptiveSample struct {
	T float64
	X []float64
}

// AdaptiveTrajectory integrates the provided derivative function from t0 to
// tEnd with the embedded Dormand-Prince 4(5) pair, adapting the step to the
// configured tolerance. Every accepted step is recorded, so consecutive samples
// are never more than MaxStep apart. The first sample is the initial state.
func AdaptiveTrajectory(f DerivFunc, t0 float64, x0 []float64, tEnd float64, cfg AdaptiveConfig) ([]AdaptiveSample, AdaptiveStats) {
	cfg.validate()
	if tEnd < t0 {
		panic("adaptive integration must move forward in time")
	}
	n := len(x0)
	x := make([]float64, n)
	copy(x, x0)
	t := t0
	h := math.Min(cfg.InitialStep, cfg.MaxStep)
	var stats AdaptiveStats
	samples := []AdaptiveSample{{t0, x}}
	k := make([][]float64, 7)
	for t < tEnd {
		if stats.Steps >= cfg.MaxSteps {
			stats.LastStep = h
			return samples, stats
		}
		if t+h > tEnd {
			h = tEnd - t
		}
		// Evaluate the seven stages.
		tState := make([]float64, n)
		k[0] = f(t, x)
		for s := 1; s < 7; s++ {
			for i := 0; i < n; i++ {
				acc := x[i]
				for j := 0; j < s; j++ {
					acc += h * dpA[s][j] * k[j][i]
				}
				tState[i] = acc
			}
			k[s] = f(t+dpC[s]*h, tState)
		}
		// Fifth order solution and scaled RMS error against the fourth order one.
		x5 := make([]float64, n)
		errSum := 0.0
		for i := 0; i < n; i++ {
			var d5, d4 float64
			for s := 0; s < 7; s++ {
				d5 += dpB5[s] * k[s][i]
				d4 += dpB4[s] * k[s][i]
			}
			x5[i] = x[i] + h*d5
			scale := cfg.Tolerance + cfg.Tolerance*math.Max(math.Abs(x[i]), math.Abs(x5[i]))
			Δ := h * (d5 - d4) / scale
			errSum += Δ * Δ
		}
		errNorm := math.Sqrt(errSum / float64(n))
		atFloor := h <= cfg.MinStep+1e-15
		if errNorm <= 1 || atFloor {
			if errNorm > 1 {
				// Cannot shrink any further: accept and warn rather than loop.
				stats.FloorWarnings++
			}
			t += h
			x = x5
			stats.Steps++
			samples = append(samples, AdaptiveSample{t, x})
		} else {
			stats.Rejected++
		}
		// Step size controller, fifth order gain.
		factor := 5.0
		if errNorm > 0 {
			factor = cfg.Safety * math.Pow(errNorm, -1/5.)
			if factor > 5 {
				factor = 5
			} else if factor < 0.1 {
				factor = 0.1
			}
		}
		h = clamp(h*factor, cfg.MinStep, cfg.MaxStep)
	}
	stats.Complete = true
	stats.LastStep = h
	return samples, stats
}

// Adaptive is AdaptiveTrajectory without the sample bookkeeping: it returns
// only the state at tEnd, or wherever the step budget ran out.
func Adaptive(f DerivFunc, t0 float64, x0 []float64, tEnd float64, cfg AdaptiveConfig) ([]float64, AdaptiveStats) {
	samples, stats := AdaptiveTrajectory(f, t0, x0, tEnd, cfg)
	return samples[len(samples)-1].X, stats
}
