package lmd

import (
	"strings"
	"testing"

	"github.com/gonum/floats"
)

func TestCelestialObject(t *testing.T) {
	for _, object := range []CelestialObject{Sun, Earth, Moon} {
		var i uint8
		for i = 1; i < 6; i++ {
			if i == 2 && object.J(i) != object.J2 {
				t.Fatalf("J2 not returned for %s", object)
			} else if i == 3 && object.J(i) != object.J3 {
				t.Fatalf("J3 not returned for %s", object)
			} else if i == 4 && object.J(i) != object.J4 {
				t.Fatalf("J4 not returned for %s", object)
			} else if (i < 2 || i > 4) && object.J(i) != 0 {
				t.Fatalf("J(%d) = %f != 0 for %s", i, object.J(i), object)
			} else {
				t.Logf("[OK] J(%d) %s", i, object)
			}
		}
	}
}

func TestCelestialFromString(t *testing.T) {
	for _, object := range []CelestialObject{Sun, Earth, Moon} {
		found, err := CelestialObjectFromString(strings.ToUpper(object.Name))
		if err != nil {
			t.Fatalf("could not look up %s: %s", object.Name, err)
		}
		if !found.Equals(object) {
			t.Fatalf("%s did not survive the name round trip", object.Name)
		}
	}
	if _, err := CelestialObjectFromString("Krypton"); err == nil {
		t.Fatal("expected an error for an undefined body")
	}
}

func TestCelestialValues(t *testing.T) {
	if !floats.EqualWithinRel(Earth.GM(), 3.986004418e14, 1e-12) {
		t.Fatal("Earth GM changed")
	}
	if Earth.Radius != 6378137.0 {
		t.Fatal("Earth radius changed")
	}
	if !floats.EqualWithinRel(Earth.J(2), 1.08262668e-3, 1e-12) {
		t.Fatal("Earth J2 changed")
	}
	if Earth.String() != "Earth body" {
		t.Fatalf("unexpected Stringer output %q", Earth.String())
	}
	if Sun.GM() <= Earth.GM() || Earth.GM() <= Moon.GM() {
		t.Fatal("GM ordering is off")
	}
	if Earth.RotRate != EarthRotationRate {
		t.Fatal("Earth rotation rates differ")
	}
}
