package lmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// controlIndex maps the scenario file names of the launch controls to their
// position in the control vector.
var controlIndex = map[string]int{
	"azimuth":      0,
	"pitch_s1_0":   1,
	"pitch_s1_1":   2,
	"pitch_s1_2":   3,
	"pitch_s2_0":   4,
	"pitch_s2_1":   5,
	"pitch_s2_2":   6,
	"yaw_s1_0":     7,
	"yaw_s1_1":     8,
	"yaw_s2_0":     9,
	"yaw_s2_1":     10,
	"coast":        11,
	"epoch_offset": 12,
}

// Scenario binds a vehicle, a launch site, an epoch and a target into one
// solvable case.
type Scenario struct {
	Name    string
	Vehicle LaunchVehicle
	Site    LaunchSite
	Epoch   time.Time
	Target  TargetSpec
	Solver  SolverConfig
}

// NewSolver returns a solver for this scenario.
func (sc Scenario) NewSolver() *Solver {
	s := NewSolver(sc.Vehicle, sc.Site, sc.Epoch, sc.Target)
	s.Config = sc.Solver
	return s
}

// stageConf mirrors one [[vehicle.stages]] table. Thrust in newtons, masses in
// kilograms, specific impulses and the optional burn limit in seconds.
type stageConf struct {
	Name   string  `mapstructure:"name"`
	Thrust float64 `mapstructure:"thrust"`
	Dry    float64 `mapstructure:"dry"`
	Prop   float64 `mapstructure:"prop"`
	IspSL  float64 `mapstructure:"isp_sl"`
	IspVac float64 `mapstructure:"isp_vac"`
	Burn   float64 `mapstructure:"burn"`
}

// LoadScenario reads a TOML scenario file:
//
//	[scenario]
//	name = "leo demo"
//	epoch = 2026-03-21T12:00:00Z
//
//	[vehicle]
//	name = "Medium-2"
//	payload = 4500.0            # kg
//	cd = 0.4                    # stack drag coefficient
//	drag_area = 100.0           # m^2
//
//	[[vehicle.stages]]
//	name = "S1"
//	thrust = 4.5e6              # N
//	dry = 20e3                  # kg
//	prop = 280e3                # kg
//	isp_sl = 295.0              # s
//	isp_vac = 320.0             # s
//
//	[site]                      # a well known pad name, or lat_deg/lon_deg/alt
//	name = "Cape Canaveral"
//
//	[target]
//	mode = "orbit"              # orbit | intercept | rendezvous
//	sma_km = 6778.0
//	ecc = 0.001
//	inc_deg = 28.5
//
// The chasing modes take a two line `tle` array or full elements plus `tof`
// in seconds. Optional [solver] and [perturbations] tables override the
// defaults key by key.
func LoadScenario(path string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("scenario %s: %s", path, err)
	}
	sc := Scenario{Name: v.GetString("scenario.name")}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	epoch := v.GetTime("scenario.epoch")
	if epoch.IsZero() {
		return nil, fmt.Errorf("scenario %s: scenario.epoch is missing or not a date time", sc.Name)
	}
	sc.Epoch = epoch.UTC()

	var stages []stageConf
	if err := v.UnmarshalKey("vehicle.stages", &stages); err != nil {
		return nil, fmt.Errorf("scenario %s: vehicle.stages: %s", sc.Name, err)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("scenario %s: no [[vehicle.stages]] defined", sc.Name)
	}
	sc.Vehicle = LaunchVehicle{Name: v.GetString("vehicle.name"), Payload: v.GetFloat64("vehicle.payload"),
		DragCd: DefaultDragCd, DragArea: DefaultDragArea}
	if v.IsSet("vehicle.cd") {
		sc.Vehicle.DragCd = v.GetFloat64("vehicle.cd")
	}
	if v.IsSet("vehicle.drag_area") {
		sc.Vehicle.DragArea = v.GetFloat64("vehicle.drag_area")
	}
	for i, st := range stages {
		name := st.Name
		if name == "" {
			name = fmt.Sprintf("stage %d", i+1)
		}
		sc.Vehicle.Stages = append(sc.Vehicle.Stages, Stage{Name: name, Thrust: st.Thrust, DryMass: st.Dry, Propellant: st.Prop, IspSL: st.IspSL, IspVac: st.IspVac, BurnLimit: st.Burn})
	}
	if err := sc.Vehicle.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %s", sc.Name, err)
	}

	// Full coordinates win over a well known pad name.
	switch {
	case v.IsSet("site.lat_deg"):
		name := v.GetString("site.name")
		if name == "" {
			name = "scenario site"
		}
		sc.Site = NewLaunchSite(name, v.GetFloat64("site.lat_deg"), v.GetFloat64("site.lon_deg"), v.GetFloat64("site.alt"))
	case v.IsSet("site.name"):
		site, err := SiteFromString(v.GetString("site.name"))
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %s", sc.Name, err)
		}
		sc.Site = site
	default:
		return nil, fmt.Errorf("scenario %s: [site] needs a name or lat_deg/lon_deg", sc.Name)
	}

	target, err := targetFromConf(v, sc.Epoch)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %s", sc.Name, err)
	}
	sc.Target = target

	cfg := DefaultSolverConfig()
	if v.IsSet("solver.max_iterations") {
		cfg.MaxIterations = v.GetInt("solver.max_iterations")
	}
	if v.IsSet("solver.tolerance") {
		cfg.Tolerance = v.GetFloat64("solver.tolerance")
	}
	if v.IsSet("solver.fd_step") {
		cfg.FDStep = v.GetFloat64("solver.fd_step")
	}
	if v.IsSet("solver.atmospheric_step") {
		cfg.Ascent.AtmosphericStep = v.GetFloat64("solver.atmospheric_step")
	}
	if v.IsSet("solver.vacuum_step") {
		cfg.Ascent.VacuumStep = v.GetFloat64("solver.vacuum_step")
	}
	if v.IsSet("solver.sample_every") {
		cfg.Ascent.SampleEvery = v.GetFloat64("solver.sample_every")
	}
	if v.IsSet("solver.turn_start_alt") {
		cfg.Ascent.TurnStartAlt = v.GetFloat64("solver.turn_start_alt")
	}
	if v.IsSet("solver.frame_switch_speed") {
		cfg.Ascent.FrameSwitchSpeed = v.GetFloat64("solver.frame_switch_speed")
	}
	if v.IsSet("solver.frame_switch_alt") {
		cfg.Ascent.FrameSwitchAlt = v.GetFloat64("solver.frame_switch_alt")
	}
	// Explicit cutoff radii override the thresholds derived from the target.
	if v.IsSet("solver.cutoff_apoapsis_km") {
		cfg.Ascent.CutoffApoapsis = v.GetFloat64("solver.cutoff_apoapsis_km") * 1e3
	}
	if v.IsSet("solver.cutoff_periapsis_km") {
		cfg.Ascent.CutoffPeriapsis = v.GetFloat64("solver.cutoff_periapsis_km") * 1e3
	}
	if v.IsSet("solver.max_flight_time") {
		cfg.Ascent.MaxFlightTime = v.GetFloat64("solver.max_flight_time")
	}
	for _, name := range v.GetStringSlice("solver.free") {
		idx, ok := controlIndex[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("scenario %s: unknown control %q", sc.Name, name)
		}
		cfg.FreeControls[idx] = true
	}
	for _, name := range v.GetStringSlice("solver.fixed") {
		idx, ok := controlIndex[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("scenario %s: unknown control %q", sc.Name, name)
		}
		cfg.FreeControls[idx] = false
	}

	if v.IsSet("perturbations.jn") {
		cfg.Ascent.Perts.Jn = uint8(v.GetInt("perturbations.jn"))
	}
	if v.IsSet("perturbations.drag") {
		cfg.Ascent.Perts.Drag = v.GetBool("perturbations.drag")
	}
	if v.IsSet("perturbations.cd") {
		cfg.Ascent.Perts.Cd = v.GetFloat64("perturbations.cd")
	}
	if v.IsSet("perturbations.drag_area") {
		cfg.Ascent.Perts.DragArea = v.GetFloat64("perturbations.drag_area")
	}
	if v.IsSet("perturbations.srp") {
		cfg.Ascent.Perts.SRP = v.GetBool("perturbations.srp")
	}
	if v.IsSet("perturbations.cr") {
		cfg.Ascent.Perts.Cr = v.GetFloat64("perturbations.cr")
	}
	if v.IsSet("perturbations.srp_area") {
		cfg.Ascent.Perts.SRPArea = v.GetFloat64("perturbations.srp_area")
	}
	for _, name := range v.GetStringSlice("perturbations.bodies") {
		body, err := CelestialObjectFromString(name)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %s", sc.Name, err)
		}
		cfg.Ascent.Perts.Bodies = append(cfg.Ascent.Perts.Bodies, body)
	}
	sc.Solver = cfg
	return &sc, nil
}

func targetFromConf(v *viper.Viper, epoch time.Time) (TargetSpec, error) {
	mode := strings.ToLower(v.GetString("target.mode"))
	switch mode {
	case "", "orbit":
		if !v.IsSet("target.sma_km") {
			return TargetSpec{}, errors.New("[target] needs sma_km")
		}
		t := NewOrbitTarget(v.GetFloat64("target.sma_km")*1e3, v.GetFloat64("target.ecc"), v.GetFloat64("target.inc_deg"))
		if v.IsSet("target.raan_deg") {
			t.RAAN = Deg2rad(v.GetFloat64("target.raan_deg"))
			t.UseRAAN = true
		}
		if v.IsSet("target.argp_deg") {
			t.ArgPeriapsis = Deg2rad(v.GetFloat64("target.argp_deg"))
			t.UseArgPeriapsis = true
		}
		return t, nil
	case "intercept", "rendezvous":
		orbit, err := targetOrbitFromConf(v, epoch)
		if err != nil {
			return TargetSpec{}, err
		}
		t := NewInterceptTarget(orbit, v.GetFloat64("target.tof"))
		if mode == "rendezvous" {
			t.Kind = RendezvousTarget
		}
		if v.IsSet("target.pos_tolerance") {
			t.PosTolerance = v.GetFloat64("target.pos_tolerance")
		}
		if v.IsSet("target.vel_tolerance") {
			t.VelTolerance = v.GetFloat64("target.vel_tolerance")
		}
		return t, nil
	default:
		return TargetSpec{}, fmt.Errorf("unknown target mode %q", v.GetString("target.mode"))
	}
}

func targetOrbitFromConf(v *viper.Viper, epoch time.Time) (*Orbit, error) {
	if tle := v.GetStringSlice("target.tle"); len(tle) > 0 {
		if len(tle) != 2 {
			return nil, fmt.Errorf("target.tle needs exactly two lines, got %d", len(tle))
		}
		return TargetOrbitFromTLE(tle[0], tle[1], epoch)
	}
	if !v.IsSet("target.sma_km") {
		return nil, errors.New("[target] needs a tle or orbital elements")
	}
	return NewOrbitFromOE(v.GetFloat64("target.sma_km")*1e3, v.GetFloat64("target.ecc"), v.GetFloat64("target.inc_deg"),
		v.GetFloat64("target.raan_deg"), v.GetFloat64("target.argp_deg"), v.GetFloat64("target.nu_deg"), Earth), nil
}
