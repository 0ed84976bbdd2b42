package main

import (
	"flag"
	"fmt"
	"log"
	"runtime"

	"github.com/dgravesa/go-parallel/parallel"
	"github.com/orbitalarena/lmd"
)

// Scan of the launch control space: flies a grid of azimuth offsets and stage
// two pitch rates around the scenario guess and reports the reached orbit per
// cell, either open loop or through the full solver.

var (
	scenario  string
	azSpan    float64
	azSteps   int
	rateMin   float64
	rateMax   float64
	rateSteps int
	solve     bool
	numCPUs   int
)

func init() {
	flag.StringVar(&scenario, "scenario", "", "launch scenario TOML file")
	flag.Float64Var(&azSpan, "azspan", 10, "azimuth span around the guess, degrees")
	flag.IntVar(&azSteps, "azsteps", 11, "azimuth grid points")
	flag.Float64Var(&rateMin, "ratemin", 0.3, "stage two pitch rate lower bound")
	flag.Float64Var(&rateMax, "ratemax", 2.5, "stage two pitch rate upper bound")
	flag.IntVar(&rateSteps, "ratesteps", 12, "pitch rate grid points")
	flag.BoolVar(&solve, "solve", false, "run the full solver from each cell instead of a single flight")
	flag.IntVar(&numCPUs, "cpus", runtime.NumCPU(), "goroutines to spread the grid over")
}

func main() {
	flag.Parse()
	if scenario == "" {
		log.Fatal("no scenario provided")
	}
	if azSteps < 1 || rateSteps < 1 || numCPUs < 1 {
		log.Fatal("grid and cpu counts must be positive")
	}

	// One scenario copy per goroutine so the solves share nothing at all.
	solvers := make([]*lmd.Solver, numCPUs)
	var base lmd.Controls
	for i := range solvers {
		sc, err := lmd.LoadScenario(scenario)
		if err != nil {
			log.Fatalf("[NOK] %s", err)
		}
		solvers[i] = sc.NewSolver()
		solvers[i].SetLogger(nil)
		solvers[i].Config.Ascent.SampleEvery = 60
		if i == 0 {
			log.Printf("[info] scenario `%s`: %s", sc.Name, sc.Vehicle)
			base = solvers[0].DefaultGuess()
		}
	}

	type cell struct {
		azDeg, rate      float64
		aKm, ecc, incDeg float64
		rNorm            float64
		converged        bool
		iterations       int
	}
	n := azSteps * rateSteps
	cells := make([]cell, n)
	log.Printf("[info] scanning %d cells on %d CPUs", n, numCPUs)

	parallel.WithNumGoroutines(numCPUs).For(n, func(i, grID int) {
		s := solvers[grID]
		azDeg := gridVal(-azSpan/2, azSpan/2, azSteps, i/rateSteps)
		rate := gridVal(rateMin, rateMax, rateSteps, i%rateSteps)
		ctrl := base
		ctrl.Azimuth = base.Azimuth + lmd.Deg2rad(azDeg)
		ctrl.PitchS2[1] = rate
		var sol lmd.Solution
		if solve {
			solved, err := s.SolveFrom(ctrl)
			if err != nil {
				log.Fatalf("[NOK] %s", err)
			}
			sol = solved
		} else {
			sol = s.Evaluate(ctrl)
		}
		a, e, inc, _, _, _, _, _, _ := sol.FinalOrbit.Elements()
		cells[i] = cell{azDeg: azDeg, rate: rate, aKm: a / 1e3, ecc: e, incDeg: lmd.Rad2deg(inc),
			rNorm: sol.ResidualNorm, converged: sol.Converged, iterations: sol.Iterations}
	})

	fmt.Println("az_offset_deg,s2_rate,a_km,ecc,inc_deg,residual,converged,iterations")
	nConv := 0
	for _, c := range cells {
		if c.converged {
			nConv++
		}
		fmt.Printf("%+.2f,%.2f,%.2f,%.5f,%.3f,%.4e,%v,%d\n", c.azDeg, c.rate, c.aKm, c.ecc, c.incDeg, c.rNorm, c.converged, c.iterations)
	}
	if solve {
		log.Printf("[info] %d/%d cells converged", nConv, n)
	}
	log.Println("[info] Done")
}

func gridVal(min, max float64, steps, i int) float64 {
	if steps == 1 {
		return (min + max) / 2
	}
	return min + (max-min)*float64(i)/float64(steps-1)
}
