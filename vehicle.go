package lmd

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// ispBlendAltitude is the altitude at which an engine reaches its vacuum Isp.
	// Below it the specific impulse is blended linearly from the sea level value.
	ispBlendAltitude = 40e3
)

// Stage is one serial stage of a launch vehicle.
type Stage struct {
	Name       string
	Thrust     float64 // vacuum thrust, N
	DryMass    float64 // kg
	Propellant float64 // kg
	IspSL      float64 // sea level specific impulse, s
	IspVac     float64 // vacuum specific impulse, s
	// BurnLimit optionally caps the burn duration in seconds. Zero means the
	// stage burns until the propellant runs out; a shorter limit shuts the
	// stage down early and the unburned propellant is discarded with it.
	BurnLimit float64
}

// TotalMass returns the fueled mass of this stage.
func (s Stage) TotalMass() float64 {
	return s.DryMass + s.Propellant
}

// EffectiveIsp returns the specific impulse at the provided altitude, blending
// linearly from sea level to vacuum over the first forty kilometers.
func (s Stage) EffectiveIsp(altitude float64) float64 {
	frac := clamp(altitude/ispBlendAltitude, 0, 1)
	return s.IspSL + (s.IspVac-s.IspSL)*frac
}

// MassFlowRate returns the propellant consumption in kg/s at full throttle at
// the provided altitude.
func (s Stage) MassFlowRate(altitude float64) float64 {
	return s.Thrust / (s.EffectiveIsp(altitude) * g0)
}

// BurnTime returns how long the stage burns at full throttle, evaluated with
// the mass flow rate at the provided reference altitude and capped by the burn
// limit if one is set.
func (s Stage) BurnTime(altitude float64) float64 {
	t := s.Propellant / s.MassFlowRate(altitude)
	if s.BurnLimit > 0 && s.BurnLimit < t {
		return s.BurnLimit
	}
	return t
}

// String implements the Stringer interface.
func (s Stage) String() string {
	return fmt.Sprintf("%s: %.0f kN, %.1f t (%.1f t dry), Isp %.0f/%.0f s", s.Name, s.Thrust/1e3, s.TotalMass()/1e3, s.DryMass/1e3, s.IspSL, s.IspVac)
}

const (
	// DefaultDragCd is the drag coefficient assumed when a vehicle does not
	// declare one. Launchers fly a much lower Cd than the tumbling-satellite
	// value used for orbit decay work.
	DefaultDragCd = 0.4
	// DefaultDragArea is the frontal area matching DefaultDragCd, m^2.
	DefaultDragArea = 100.0
)

// LaunchVehicle is a serially staged rocket with a payload on top.
type LaunchVehicle struct {
	Name    string
	Stages  []Stage
	Payload float64 // kg
	// DragCd and DragArea size the atmospheric drag of the ascending stack.
	// Zero for either disables drag entirely.
	DragCd   float64
	DragArea float64 // m^2
}

// LiftoffMass returns the fully fueled mass on the pad.
func (v LaunchVehicle) LiftoffMass() float64 {
	m := v.Payload
	for _, s := range v.Stages {
		m += s.TotalMass()
	}
	return m
}

// MassAboveStage returns the mass sitting on top of stage i: every later stage
// fully fueled, plus the payload.
func (v LaunchVehicle) MassAboveStage(i int) float64 {
	m := v.Payload
	for j := i + 1; j < len(v.Stages); j++ {
		m += v.Stages[j].TotalMass()
	}
	return m
}

// MeanVacuumIsp returns the stage-averaged vacuum specific impulse, used for
// the equivalent delta-v bookkeeping of a flown trajectory.
func (v LaunchVehicle) MeanVacuumIsp() float64 {
	if len(v.Stages) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range v.Stages {
		sum += s.IspVac
	}
	return sum / float64(len(v.Stages))
}

// Validate checks that the vehicle is physically meaningful. These are
// configuration errors, so they surface immediately rather than mid-solve.
func (v LaunchVehicle) Validate() error {
	if len(v.Stages) == 0 {
		return fmt.Errorf("vehicle %s has no stages", v.Name)
	}
	if v.Payload < 0 {
		return fmt.Errorf("vehicle %s has negative payload mass", v.Name)
	}
	for i, s := range v.Stages {
		if s.Thrust <= 0 {
			return fmt.Errorf("vehicle %s stage %d has non-positive thrust", v.Name, i+1)
		}
		if s.DryMass <= 0 || s.Propellant <= 0 {
			return fmt.Errorf("vehicle %s stage %d has non-positive masses", v.Name, i+1)
		}
		if s.IspSL <= 0 || s.IspVac < s.IspSL {
			return fmt.Errorf("vehicle %s stage %d needs 0 < IspSL <= IspVac", v.Name, i+1)
		}
		if s.BurnLimit < 0 {
			return fmt.Errorf("vehicle %s stage %d has a negative burn limit", v.Name, i+1)
		}
	}
	if v.DragCd < 0 || v.DragArea < 0 {
		return fmt.Errorf("vehicle %s has negative drag properties", v.Name)
	}
	return nil
}

// String implements the Stringer interface.
func (v LaunchVehicle) String() string {
	return fmt.Sprintf("%s: %d stages, %.1f t at liftoff, %.1f t payload", v.Name, len(v.Stages), v.LiftoffMass()/1e3, v.Payload/1e3)
}

// LaunchSite is a geodetic launch location on the WGS84 ellipsoid.
type LaunchSite struct {
	Name        string
	LatΦ, Longθ float64 // these are stored in radians!
	Altitude    float64 // m above the ellipsoid
}

// NewLaunchSite returns a new launch site. Angles in degrees.
func NewLaunchSite(name string, latΦ, longθ, altitude float64) LaunchSite {
	return LaunchSite{name, latΦ * deg2rad, longθ * deg2rad, altitude}
}

// ECEF returns the Earth fixed position of the pad.
func (l LaunchSite) ECEF() []float64 {
	return Geodetic2ECEF(l.Altitude, l.LatΦ, l.Longθ)
}

// ECI returns the inertial position and velocity of the pad at the provided
// time. The velocity is purely from Earth rotation.
func (l LaunchSite) ECI(dt time.Time) (R, V []float64) {
	R = ECEF2ECI(l.ECEF(), GMST(dt))
	V = cross([]float64{0, 0, EarthRotationRate}, R)
	return
}

// GeocentricLatitude returns the latitude of the pad as seen from the center
// of the Earth. On the WGS84 ellipsoid this sits a few arc minutes below the
// geodetic latitude, which matters for the launch azimuth of a low altitude
// target.
func (l LaunchSite) GeocentricLatitude() float64 {
	R := l.ECEF()
	return math.Asin(R[2] / norm(R))
}

// String implements the Stringer interface.
func (l LaunchSite) String() string {
	return fmt.Sprintf("%s (%.4f, %.4f); alt = %.0f m", l.Name, l.LatΦ/deg2rad, l.Longθ/deg2rad, l.Altitude)
}

/* Well known launch sites. */

var (
	// CapeCanaveral is the SLC-40 pad.
	CapeCanaveral = NewLaunchSite("Cape Canaveral SLC-40", 28.562106, -80.577180, 3)
	// Vandenberg is the SLC-4E pad, for high inclinations.
	Vandenberg = NewLaunchSite("Vandenberg SLC-4E", 34.632093, -120.610829, 100)
	// Kourou is the ELA-3 pad, nearly on the equator.
	Kourou = NewLaunchSite("Kourou ELA-3", 5.239380, -52.768487, 0)
	// Baikonur is the historic site 1/5 pad.
	Baikonur = NewLaunchSite("Baikonur Site 1/5", 45.920278, 63.342222, 90)
)

// MinInclination returns the lowest direct-injection inclination reachable from
// this site, which is simply its latitude.
func (l LaunchSite) MinInclination() float64 {
	return math.Abs(l.LatΦ)
}

// SiteFromString returns a well known launch site by name. Matching is case
// insensitive and accepts any prefix of the full pad name.
func SiteFromString(name string) (LaunchSite, error) {
	for _, site := range []LaunchSite{CapeCanaveral, Vandenberg, Kourou, Baikonur} {
		if strings.EqualFold(site.Name, name) || strings.HasPrefix(strings.ToLower(site.Name), strings.ToLower(name)) {
			return site, nil
		}
	}
	return LaunchSite{}, fmt.Errorf("unknown launch site %q", name)
}
