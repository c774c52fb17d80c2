package opportunity

import (
	"math"
	"time"
)

// EarthRadiusKm is the mean Earth radius used for all visibility and
// shadow geometry (kilometres).
const EarthRadiusKm = 6371.0

// Vec3 is an ECEF- or ECI-style vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// ElevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}

	r := observer.Norm()
	if r == 0 {
		return 90
	}
	zenith := Vec3{
		X: observer.X / r,
		Y: observer.Y / r,
		Z: observer.Z / r,
	}

	cosGamma := v.Dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	gammaDeg := math.Acos(cosGamma) * 180.0 / math.Pi

	return 90.0 - gammaDeg
}

// GeodeticToECEF converts a surface location to an ECEF position on the
// spherical Earth model, in kilometres. Good enough for visibility windows;
// the ellipsoidal correction is well below the sampling resolution.
func GeodeticToECEF(latDeg, lonDeg float64) Vec3 {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0
	cosLat := math.Cos(lat)
	return Vec3{
		X: EarthRadiusKm * cosLat * math.Cos(lon),
		Y: EarthRadiusKm * cosLat * math.Sin(lon),
		Z: EarthRadiusKm * math.Sin(lat),
	}
}

// sunDirectionECI returns the unit vector from Earth to the Sun in ECI
// coordinates using the low-precision solar ephemeris (accurate to about
// 0.01 degrees, far more than shadow windows need).
func sunDirectionECI(t time.Time) Vec3 {
	// Julian centuries since J2000.
	const j2000 = 2451545.0
	jd := float64(t.UTC().Unix())/86400.0 + 2440587.5
	T := (jd - j2000) / 36525.0

	// Mean longitude and mean anomaly of the Sun, degrees.
	L := math.Mod(280.460+36000.771*T, 360.0)
	g := math.Mod(357.528+35999.050*T, 360.0) * math.Pi / 180.0

	// Ecliptic longitude with equation-of-centre correction, radians.
	lambda := (L + 1.915*math.Sin(g) + 0.020*math.Sin(2*g)) * math.Pi / 180.0

	// Obliquity of the ecliptic, radians.
	eps := (23.439 - 0.0000004*(jd-j2000)) * math.Pi / 180.0

	return Vec3{
		X: math.Cos(lambda),
		Y: math.Cos(eps) * math.Sin(lambda),
		Z: math.Sin(eps) * math.Sin(lambda),
	}
}

// inEarthShadow reports whether an ECI position sits inside the Earth's
// cylindrical umbra. The cylinder model ignores the penumbra, which is a
// few seconds of transition at orbital speeds.
func inEarthShadow(posECI Vec3, t time.Time) bool {
	sun := sunDirectionECI(t)

	// Anything on the day side of the terminator plane is lit.
	along := posECI.Dot(sun)
	if along >= 0 {
		return false
	}

	// Distance from the anti-sun axis.
	axial := Vec3{X: sun.X * along, Y: sun.Y * along, Z: sun.Z * along}
	radial := posECI.Sub(axial)
	return radial.Norm() < EarthRadiusKm
}
