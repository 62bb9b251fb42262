// Package camera provides the orthographic cameras depth maps are rendered
// from.
package camera

import (
	gomath "math"

	"github.com/Faultbox/meshdepth/pkg/math"
)

// OrbitCamera looks at the origin from a point on a horizontal circle, with
// Y up. Yaw 0 places the eye on +Z.
type OrbitCamera struct {
	Yaw      float64 // Horizontal angle (radians)
	Distance float64 // Distance from the origin

	// Orthographic view volume
	ViewWidth float64
	Aspect    float64 // Height / width
	Near, Far float64 // Clip planes along the view axis
}

// NewOrbitCamera creates a camera for an image of width x height pixels.
func NewOrbitCamera(yaw, distance, viewWidth float64, width, height int, near, far float64) OrbitCamera {
	return OrbitCamera{
		Yaw:       yaw,
		Distance:  distance,
		ViewWidth: viewWidth,
		Aspect:    float64(height) / float64(width),
		Near:      near,
		Far:       far,
	}
}

// Position returns the camera position in world space.
func (c OrbitCamera) Position() math.Vec3 {
	return math.Vec3{
		X: float32(c.Distance * gomath.Sin(c.Yaw)),
		Y: 0,
		Z: float32(c.Distance * gomath.Cos(c.Yaw)),
	}
}

// ViewMatrix returns the view matrix for this camera.
func (c OrbitCamera) ViewMatrix() math.Mat4 {
	up := math.Vec3{X: 0, Y: 1, Z: 0}
	return math.LookAt(c.Position(), math.Vec3{}, up)
}

// HalfExtents returns half the width and height of the view volume.
func (c OrbitCamera) HalfExtents() (halfW, halfH float64) {
	halfW = c.ViewWidth / 2
	return halfW, halfW * c.Aspect
}

// ProjectionMatrix returns the orthographic projection for this camera.
func (c OrbitCamera) ProjectionMatrix() math.Mat4 {
	hw, hh := c.HalfExtents()
	return math.Ortho(-float32(hw), float32(hw), -float32(hh), float32(hh), float32(c.Near), float32(c.Far))
}

// ToScreen maps a view-space point to pixel coordinates with row 0 at the
// top, and returns its depth in front of the eye.
func (c OrbitCamera) ToScreen(p [3]float32, width, height int) (x, y, depth float64) {
	hw, hh := c.HalfExtents()
	x = (float64(p[0]) + hw) / (2 * hw) * float64(width)
	y = (hh - float64(p[1])) / (2 * hh) * float64(height)
	return x, y, -float64(p[2])
}
