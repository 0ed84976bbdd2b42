package lmd

import "math"

const (
	// g0 is standard gravity, used for Isp conversions and the barometric formulas.
	g0 = 9.80665
	// airGasConstant is the specific gas constant of dry air in J/(kg.K).
	airGasConstant = 287.058
	// geopotentialRadius converts geometric to geopotential altitude.
	geopotentialRadius = 6356766.0
	// atmTopGeopotential is the top of the layered tables in geopotential meters,
	// roughly 86 km geometric.
	atmTopGeopotential = 84852.0
	// KarmanAltitude is the conventional edge of space in meters. The plain
	// Density model returns zero above it.
	KarmanAltitude = 100e3
	// extendedCutoffAltitude is where the extended density model gives up: the
	// exponential tail is below 1e-11 kg/m^3 there and drag no longer matters.
	extendedCutoffAltitude = 200e3
	// extendedScaleHeight is the e-folding height of the upper atmosphere tail.
	extendedScaleHeight = 7400.0
	// extendedBaseAltitude is where the extended model switches from the layer
	// tables to the exponential tail.
	extendedBaseAltitude = 50e3
)

// atmLayer is one layer of the US Standard Atmosphere 1976: base geopotential
// altitude, pressure and temperature at that base, and the temperature lapse
// rate within the layer (zero for isothermal layers).
type atmLayer struct {
	baseAlt  float64
	basePres float64
	baseTemp float64
	lapse    float64
}

// usStd76 holds the published layer bases up to 84852 m geopotential.
var usStd76 = []atmLayer{
	{0, 101325, 288.15, -0.0065},
	{11000, 22632.1, 216.65, 0},
	{20000, 5474.89, 216.65, 0.001},
	{32000, 868.02, 228.65, 0.0028},
	{47000, 110.91, 270.65, 0},
	{51000, 66.939, 270.65, -0.0028},
	{71000, 3.9564, 214.65, -0.002},
}

// AtmosphereAt returns the temperature (K), pressure (Pa) and density (kg/m^3)
// of the US Standard Atmosphere 1976 at the provided geometric altitude in
// meters. Altitudes at or below sea level return the sea level values so that
// integrator overshoots below the reference ellipsoid stay finite.
func AtmosphereAt(altitude float64) (T, P, ρ float64) {
	if altitude <= 0 {
		T, P = 288.15, 101325
		return T, P, P / (airGasConstant * T)
	}
	// The tables are defined against geopotential altitude.
	h := geopotentialRadius * altitude / (geopotentialRadius + altitude)
	if h > atmTopGeopotential {
		// Isothermal exponential tail above the tables.
		T = 186.87
		P = 0.373 * math.Exp(-(h-atmTopGeopotential)/6500)
		ρ = P / (airGasConstant * T)
		return
	}
	layer := usStd76[0]
	for _, l := range usStd76 {
		if h < l.baseAlt {
			break
		}
		layer = l
	}
	Δh := h - layer.baseAlt
	if layer.lapse == 0 {
		T = layer.baseTemp
		P = layer.basePres * math.Exp(-g0*Δh/(airGasConstant*T))
	} else {
		T = layer.baseTemp + layer.lapse*Δh
		P = layer.basePres * math.Pow(T/layer.baseTemp, -g0/(layer.lapse*airGasConstant))
	}
	ρ = P / (airGasConstant * T)
	return
}

// Density returns the atmospheric density in kg/m^3, and zero above the Kármán
// line where the standard tables are no longer meaningful.
func Density(altitude float64) float64 {
	if altitude > KarmanAltitude {
		return 0
	}
	_, _, ρ := AtmosphereAt(altitude)
	return ρ
}

// extendedBaseDensity anchors the exponential tail to the layer tables.
var extendedBaseDensity = func() float64 {
	_, _, ρ := AtmosphereAt(extendedBaseAltitude)
	return ρ
}()

// DensityExtended returns the atmospheric density in kg/m^3 with an exponential
// extension above 50 km so that drag on very low orbits decays smoothly instead
// of cutting off at the table edge. Above 200 km it returns zero.
func DensityExtended(altitude float64) float64 {
	if altitude > extendedCutoffAltitude {
		return 0
	}
	if altitude <= extendedBaseAltitude {
		_, _, ρ := AtmosphereAt(altitude)
		return ρ
	}
	return extendedBaseDensity * math.Exp(-(altitude-extendedBaseAltitude)/extendedScaleHeight)
}
