package lmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"
)

// ExportTrajectoryCSV writes the sampled trajectory of a flown ascent to w.
// The header carries the launch date and the flight events as comment lines,
// then one record per sample: seconds after liftoff, ECI position in meters,
// ECI velocity in m/s, mass in kg, dynamic pressure in Pa, flight phase,
// altitude and semi major axis in km, eccentricity, inclination in degrees.
func ExportTrajectoryCSV(w io.Writer, name string, launch time.Time, res AscentResult) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Trajectory of %s\n", name)
	fmt.Fprintf(bw, "# Launch (UTC): %s\n", launch.UTC().Format("2006-01-02 15:04:05"))
	for _, ev := range res.Events {
		fmt.Fprintf(bw, "# +%08.1f s %-16s alt %.1f km\n", ev.T, ev.Name, ev.Altitude/1e3)
	}
	fmt.Fprintf(bw, "t,x,y,z,vx,vy,vz,mass,q,phase,alt,a,e,i\n")
	for _, s := range res.Trajectory {
		a, e, i, _, _, _, _, _, _ := NewOrbitFromRV(s.R, s.V, Earth).Elements()
		alt := (norm(s.R) - Earth.Radius) / 1e3
		fmt.Fprintf(bw, "%.1f,%.1f,%.1f,%.1f,%.3f,%.3f,%.3f,%.1f,%.1f,%s,%.2f,%.2f,%.5f,%.3f\n",
			s.T, s.R[0], s.R[1], s.R[2], s.V[0], s.V[1], s.V[2], s.Mass, s.Q, s.Phase, alt, a/1e3, e, Rad2deg(i))
	}
	return bw.Flush()
}

// ExportTrajectoryFile writes the sampled trajectory to the named CSV file.
func ExportTrajectoryFile(filename, name string, launch time.Time, res AscentResult) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err = ExportTrajectoryCSV(f, name, launch, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
