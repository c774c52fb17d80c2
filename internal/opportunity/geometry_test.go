package opportunity

import (
	"math"
	"testing"
	"time"
)

func TestElevationDegrees(t *testing.T) {
	observer := Vec3{X: EarthRadiusKm}

	// Directly overhead.
	if deg := ElevationDegrees(observer, Vec3{X: EarthRadiusKm + 500}); math.Abs(deg-90) > 1e-9 {
		t.Fatalf("expected 90 degrees overhead, got %v", deg)
	}

	// On the local horizontal plane: exactly 0 degrees.
	if deg := ElevationDegrees(observer, Vec3{X: EarthRadiusKm, Y: 1000}); math.Abs(deg) > 1e-9 {
		t.Fatalf("expected 0 degrees on the horizon, got %v", deg)
	}

	// Behind the observer's horizon.
	if deg := ElevationDegrees(observer, Vec3{X: -7000}); deg >= 0 {
		t.Fatalf("expected negative elevation below the horizon, got %v", deg)
	}

	// Degenerate inputs fall back to overhead rather than NaN.
	if deg := ElevationDegrees(observer, observer); deg != 90 {
		t.Fatalf("expected 90 for coincident points, got %v", deg)
	}
}

func TestGeodeticToECEF(t *testing.T) {
	p := GeodeticToECEF(0, 0)
	if math.Abs(p.X-EarthRadiusKm) > 1e-6 || math.Abs(p.Y) > 1e-6 || math.Abs(p.Z) > 1e-6 {
		t.Fatalf("equator/prime meridian must sit on +X, got %+v", p)
	}

	p = GeodeticToECEF(90, 0)
	if math.Abs(p.Z-EarthRadiusKm) > 1e-6 || math.Abs(p.X) > 1e-6 {
		t.Fatalf("north pole must sit on +Z, got %+v", p)
	}

	// Every surface point sits on the sphere.
	p = GeodeticToECEF(-33.4, 151.2)
	if math.Abs(p.Norm()-EarthRadiusKm) > 1e-6 {
		t.Fatalf("surface point off the sphere: norm %v", p.Norm())
	}
}

func TestInEarthShadow(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sun := sunDirectionECI(at)

	scale := func(v Vec3, k float64) Vec3 {
		return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
	}

	// Directly behind the Earth on the anti-sun axis: umbra.
	if !inEarthShadow(scale(sun, -7000), at) {
		t.Fatalf("anti-sun position must be shadowed")
	}

	// Between the Earth and the Sun: lit.
	if inEarthShadow(scale(sun, 7000), at) {
		t.Fatalf("sun-side position must be lit")
	}

	// Night side but far outside the shadow cylinder: lit.
	perp := Vec3{X: -sun.Y, Y: sun.X}
	off := scale(sun, -7000)
	off = off.Sub(scale(perp, -20000/perp.Norm()))
	if inEarthShadow(off, at) {
		t.Fatalf("position outside the shadow cylinder must be lit")
	}
}

func TestSunDirectionIsUnit(t *testing.T) {
	for _, at := range []time.Time{
		time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	} {
		sun := sunDirectionECI(at)
		if math.Abs(sun.Norm()-1) > 1e-9 {
			t.Fatalf("sun direction at %s is not unit: %v", at, sun.Norm())
		}
	}
}
