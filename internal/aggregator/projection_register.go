package aggregator

import "github.com/mpifr-bdr/reynard/internal/sensor"

// init populates the Projection Table with the 46 stable aggregator
// sensors (spec.md §6). Each has a declared type, unit, default and a
// projection function over the raw telemetry record — the same
// explicit Register-at-init idiom the corpus uses for its capturer and
// plugin factories, generalized here from factories to projections.
func init() {
	simpleFloat("lmst", "h", "local mean sidereal time", "lmst")
	simpleFloat("ha", "h", "hour angle", "ha")
	simpleString("utc", "UTC timestamp", "utc")
	simpleFloat("mjd", "d", "modified Julian date", "mjd")

	Register(Projection{
		Name: "observing", Kind: sensor.KindBool, Description: "telescope is actively observing",
		Project: func(raw RawRecord) (sensor.Value, bool) { return boolField(raw, "observing") },
	})
	Register(Projection{
		Name: "scannum", Kind: sensor.KindInt, Description: "current scan number",
		Project: func(raw RawRecord) (sensor.Value, bool) { return intField(raw, "scannum") },
	})
	Register(Projection{
		Name: "subscannum", Kind: sensor.KindInt, Description: "current sub-scan number",
		Project: func(raw RawRecord) (sensor.Value, bool) { return intField(raw, "subscannum") },
	})
	Register(Projection{
		Name: "nsubscan", Kind: sensor.KindInt, Description: "declared number of sub-scans for this scan",
		Project: func(raw RawRecord) (sensor.Value, bool) { return intField(raw, "nsubscan") },
	})

	simpleFloat("time-remaining", "s", "time remaining in current scan", "time_remaining")
	simpleFloat("time-elapsed", "s", "time elapsed in current scan", "time_elapsed")
	simpleString("source-name", "pointed source name", "source_name")

	simpleFloat("azimuth", "deg", "antenna azimuth", "azimuth")
	simpleFloat("azimuth-offset", "deg", "azimuth pointing offset", "azimuth_offset")
	simpleFloat("azimuth-drive-speed", "deg/s", "azimuth drive speed", "azimuth_drive_speed")
	simpleFloat("elevation", "deg", "antenna elevation", "elevation")
	simpleFloat("elevation-offset", "deg", "elevation pointing offset", "elevation_offset")
	simpleFloat("elevation-drive-speed", "deg/s", "elevation drive speed", "elevation_drive_speed")

	simpleFloat("ra", "h", "right ascension, current epoch", "ra")
	simpleFloat("dec", "deg", "declination, current epoch", "dec")
	simpleFloat("ra-1950", "h", "right ascension, epoch 1950", "ra_1950")
	simpleFloat("dec-1950", "deg", "declination, epoch 1950", "dec_1950")
	simpleFloat("glong", "deg", "galactic longitude", "glong")
	simpleFloat("glat", "deg", "galactic latitude", "glat")
	simpleFloat("elong", "deg", "ecliptic longitude", "elong")
	simpleFloat("elat", "deg", "ecliptic latitude", "elat")

	simpleFloat("frequency", "MHz", "receiver centre frequency", "frequency")
	simpleString("receiver", "active receiver name", "receiver")
	simpleFloat("focus", "mm", "secondary focus position", "focus")

	simpleFloat("air-pressure", "hPa", "ambient air pressure", "air_pressure")
	simpleFloat("humidity", "%", "relative humidity", "humidity")
	simpleFloat("air-temperature", "C", "ambient air temperature", "air_temperature")
	simpleFloat("wind-speed", "m/s", "wind speed", "wind_speed")
	simpleFloat("wind-direction", "deg", "wind direction", "wind_direction")
	simpleFloat("refraction-constant", "", "atmospheric refraction constant", "refraction_constant")
	simpleFloat("dew-point", "C", "dew point", "dew_point")

	simpleFloat("nula", "deg", "pointing model NU La term", "nula")
	simpleFloat("nule", "deg", "pointing model NU Le term", "nule")
	simpleFloat("coll", "deg", "collimation error term", "coll")

	simpleFloat("x-lin", "mm", "subreflector X linear position", "x_lin")
	simpleFloat("y-lin", "mm", "subreflector Y linear position", "y_lin")
	simpleFloat("z-lin", "mm", "subreflector Z linear position", "z_lin")
	simpleFloat("x-rot", "deg", "subreflector X rotation", "x_rot")
	simpleFloat("y-rot", "deg", "subreflector Y rotation", "y_rot")
	simpleFloat("z-rot", "deg", "subreflector Z rotation", "z_rot")

	simpleFloat("pol-angle", "deg", "receiver polarization angle", "pol_angle")
	simpleString("project", "active project code", "project")
}
