package math

// Mat4 is a column-major 4x4 matrix as OpenGL expects it: element
// col*4+row. The view and projection matrices built here are affine, so the
// last row is always (0, 0, 0, 1).
type Mat4 [16]float32

// Ortho maps the view-space box [left,right]x[bottom,top]x[-near,-far] onto
// the NDC cube. Depth grows from -1 at the near plane to 1 at the far plane.
func Ortho(left, right, bottom, top, near, far float32) Mat4 {
	w, h, d := right-left, top-bottom, far-near

	var m Mat4
	m[0] = 2 / w
	m[5] = 2 / h
	m[10] = -2 / d
	m[12] = -(right + left) / w
	m[13] = -(top + bottom) / h
	m[14] = -(far + near) / d
	m[15] = 1
	return m
}

// LookAt builds the view matrix of an eye at eye looking at center. View
// space is right-handed: +X right, +Y up, and the eye looks down -Z.
func LookAt(eye, center, up Vec3) Mat4 {
	fwd := center.Sub(eye).Normalize()
	right := fwd.Cross(up).Normalize()
	trueUp := right.Cross(fwd)

	var m Mat4
	for i, axis := range [3]Vec3{right, trueUp, fwd.Scale(-1)} {
		m[i] = axis.X
		m[4+i] = axis.Y
		m[8+i] = axis.Z
		m[12+i] = -axis.Dot(eye)
	}
	m[15] = 1
	return m
}

// TransformPoint applies m to the point p.
func (m Mat4) TransformPoint(p [3]float32) [3]float32 {
	var out [3]float32
	for row := range out {
		out[row] = m[row]*p[0] + m[4+row]*p[1] + m[8+row]*p[2] + m[12+row]
	}
	return out
}

// Ptr returns a pointer to the first element for OpenGL uniform uploads.
func (m *Mat4) Ptr() *float32 {
	return &m[0]
}
