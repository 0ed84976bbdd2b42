package main

import (
	"flag"
	"log"
	"math"
	"time"

	"github.com/orbitalarena/lmd"
)

// This code only reads a scenario file, runs the targeting solver and reports.

const dateFormat = "2006-01-02 15:04:05"

var (
	scenario string
	export   string
	verbose  bool
)

func init() {
	flag.StringVar(&scenario, "scenario", "", "launch scenario TOML file")
	flag.StringVar(&export, "export", "", "write the solved trajectory to this CSV file")
	flag.BoolVar(&verbose, "verbose", false, "log every solver evaluation")
}

func main() {
	flag.Parse()
	if scenario == "" {
		log.Fatal("no scenario provided")
	}
	sc, err := lmd.LoadScenario(scenario)
	if err != nil {
		log.Fatalf("[NOK] %s", err)
	}
	log.Printf("[info] scenario `%s`", sc.Name)
	log.Printf("[info] %s", sc.Vehicle)
	log.Printf("[info] from %s at %s", sc.Site, sc.Epoch.Format(dateFormat))

	solver := sc.NewSolver()
	if !verbose {
		solver.SetLogger(nil)
		solver.Config.OnIteration = func(iter int, rNorm float64) {
			log.Printf("[info] iteration %02d |r| = %.4e", iter, rNorm)
		}
	}
	sol, err := solver.Solve()
	if err != nil {
		log.Fatalf("[NOK] %s", err)
	}

	tag := "[OK]"
	if !sol.Converged {
		tag = "[NOK]"
	}
	log.Printf("%s %s (%d iterations, |r| = %.4e)", tag, sol.Status, sol.Iterations, sol.ResidualNorm)
	for _, ev := range sol.Ascent.Events {
		log.Printf("[info] +%07.1f s %-16s alt %.1f km", ev.T, ev.Name, ev.Altitude/1e3)
	}
	log.Printf("[info] max-Q %.1f kPa at +%.1f s", sol.Ascent.MaxQ/1e3, sol.Ascent.MaxQTime)
	a, e, i, Ω, ω, _, _, _, _ := sol.FinalOrbit.Elements()
	log.Printf("[info] achieved a=%.3f km e=%.5f i=%.4f° Ω=%.4f° ω=%.4f°", a/1e3, e, lmd.Rad2deg(i), lmd.Rad2deg(Ω), lmd.Rad2deg(ω))
	log.Printf("[info] controls: %s", sol.Controls)
	log.Printf("[info] Δv %.1f m/s", sol.ΔV)
	if sol.PosError > 0 {
		log.Printf("[info] miss distance %.1f m, velocity gap %.2f m/s", sol.PosError, sol.VelError)
	}
	if sol.Converged {
		coastCheck(sol.FinalOrbit, sol.Ascent.Final.Mass)
	}

	if export != "" {
		launchDT := sc.Epoch.Add(time.Duration(sol.Controls.EpochOffset * float64(time.Second)))
		if err := lmd.ExportTrajectoryFile(export, sc.Name, launchDT, sol.Ascent); err != nil {
			log.Fatalf("[NOK] export: %s", err)
		}
		log.Printf("[info] trajectory written to %s", export)
	}
}

// coastCheck flies the achieved orbit for one revolution under J2 with the
// adaptive integrator and reports how far the altitude and perigee wander.
// A clean insertion stays within a few kilometers over a revolution.
func coastCheck(o *lmd.Orbit, mass float64) {
	period := o.Period().Seconds()
	if period <= 0 {
		return
	}
	perts := lmd.Perturbations{Jn: 2}
	deriv := func(t float64, x []float64) []float64 {
		dx := make([]float64, 7)
		dx[0], dx[1], dx[2] = x[3], x[4], x[5]
		r := math.Sqrt(x[0]*x[0] + x[1]*x[1] + x[2]*x[2])
		r3 := r * r * r
		μ := lmd.Earth.GM()
		dx[3] = -μ * x[0] / r3
		dx[4] = -μ * x[1] / r3
		dx[5] = -μ * x[2] / r3
		pert := perts.Perturb(lmd.StateFromVector(x, time.Time{}), 0)
		for i := range dx {
			dx[i] += pert[i]
		}
		return dx
	}
	x0 := lmd.StateFromOrbit(o, mass, time.Time{}).Vector()
	samples, stats := lmd.AdaptiveTrajectory(deriv, 0, x0, period, lmd.EarthOrbitConfig())
	if !stats.Complete {
		log.Printf("[NOK] coast check ran out of steps after %d", stats.Steps)
		return
	}
	altMin, altMax := math.Inf(1), math.Inf(-1)
	for _, s := range samples {
		alt := math.Sqrt(s.X[0]*s.X[0]+s.X[1]*s.X[1]+s.X[2]*s.X[2]) - lmd.Earth.Radius
		altMin = math.Min(altMin, alt)
		altMax = math.Max(altMax, alt)
	}
	end := lmd.StateFromVector(samples[len(samples)-1].X, time.Time{}).Orbit()
	drift := end.Periapsis() - o.Periapsis()
	log.Printf("[info] coast check: one rev (%.0f s) in %d steps, altitude %.1f-%.1f km, perigee drift %+.2f km",
		period, stats.Steps, altMin/1e3, altMax/1e3, drift/1e3)
}
