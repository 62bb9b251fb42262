// Package framebuffer provides OpenGL framebuffer utilities for offscreen rendering.
package framebuffer

import (
	"fmt"
	gomath "math"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// DepthTarget is an offscreen render target that keeps the view depth of
// each pixel as a 32-bit float, with an optional normal attachment. A
// depth renderbuffer does the hidden surface test.
type DepthTarget struct {
	fbo           uint32
	depthTexture  uint32
	normalTexture uint32
	depthRBO      uint32
	width         int32
	height        int32
}

// New creates a target with the specified dimensions.
func New(width, height int32, normals bool) (*DepthTarget, error) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	fb := &DepthTarget{
		width:  width,
		height: height,
	}

	if err := fb.create(normals); err != nil {
		return nil, fmt.Errorf("creating framebuffer: %w", err)
	}

	return fb, nil
}

func (fb *DepthTarget) create(normals bool) error {
	// Create framebuffer object
	gl.GenFramebuffers(1, &fb.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, fb.fbo)

	// View depth attachment
	fb.depthTexture = fb.floatTexture(gl.R32F, gl.RED)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, fb.depthTexture, 0)
	drawBuffers := []uint32{gl.COLOR_ATTACHMENT0}

	if normals {
		// RGB32F is not color-renderable in every 4.1 core driver.
		fb.normalTexture = fb.floatTexture(gl.RGBA32F, gl.RGBA)
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT1, gl.TEXTURE_2D, fb.normalTexture, 0)
		drawBuffers = append(drawBuffers, gl.COLOR_ATTACHMENT1)
	}
	gl.DrawBuffers(int32(len(drawBuffers)), &drawBuffers[0])

	// Create depth renderbuffer attachment
	gl.GenRenderbuffers(1, &fb.depthRBO)
	gl.BindRenderbuffer(gl.RENDERBUFFER, fb.depthRBO)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, fb.width, fb.height)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, fb.depthRBO)

	// Check framebuffer completeness
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	if status != gl.FRAMEBUFFER_COMPLETE {
		fb.Destroy()
		return fmt.Errorf("framebuffer incomplete: 0x%x", status)
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	return nil
}

func (fb *DepthTarget) floatTexture(internalFormat int32, format uint32) uint32 {
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internalFormat, fb.width, fb.height, 0, format, gl.FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	return tex
}

// Bind makes this framebuffer the current render target and clears it:
// depth to +Inf, normals to zero.
func (fb *DepthTarget) Bind() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, fb.fbo)
	gl.Viewport(0, 0, fb.width, fb.height)

	inf := float32(gomath.Inf(1))
	clearDepth := [4]float32{inf, inf, inf, inf}
	gl.ClearBufferfv(gl.COLOR, 0, &clearDepth[0])
	if fb.normalTexture != 0 {
		var zero [4]float32
		gl.ClearBufferfv(gl.COLOR, 1, &zero[0])
	}
	gl.Clear(gl.DEPTH_BUFFER_BIT)
}

// Unbind restores the default framebuffer.
func (fb *DepthTarget) Unbind() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
}

// ReadDepth reads the view depth attachment. Rows are flipped so row 0 is
// the top of the image (OpenGL has origin at bottom-left).
func (fb *DepthTarget) ReadDepth() []float32 {
	return fb.read(gl.COLOR_ATTACHMENT0, gl.RED, 1)
}

// ReadNormals reads the normal attachment, three components per pixel, or
// nil if the target has none.
func (fb *DepthTarget) ReadNormals() []float32 {
	if fb.normalTexture == 0 {
		return nil
	}
	return dropAlpha(fb.read(gl.COLOR_ATTACHMENT1, gl.RGBA, 4))
}

func (fb *DepthTarget) read(attachment, format uint32, components int) []float32 {
	w, h := int(fb.width), int(fb.height)
	raw := make([]float32, w*h*components)

	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, fb.fbo)
	gl.ReadBuffer(attachment)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 4)
	gl.ReadPixels(0, 0, fb.width, fb.height, format, gl.FLOAT, gl.Ptr(raw))
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)

	return flipRows(raw, w*components)
}

// flipRows reverses the row order of a tightly packed image.
func flipRows(raw []float32, row int) []float32 {
	h := len(raw) / row
	out := make([]float32, len(raw))
	for y := 0; y < h; y++ {
		src := (h - 1 - y) * row
		copy(out[y*row:(y+1)*row], raw[src:src+row])
	}
	return out
}

// dropAlpha packs RGBA pixels into RGB.
func dropAlpha(rgba []float32) []float32 {
	out := make([]float32, 0, len(rgba)/4*3)
	for i := 0; i+3 < len(rgba); i += 4 {
		out = append(out, rgba[i], rgba[i+1], rgba[i+2])
	}
	return out
}

// Destroy releases all OpenGL resources.
func (fb *DepthTarget) Destroy() {
	if fb.fbo != 0 {
		gl.DeleteFramebuffers(1, &fb.fbo)
		fb.fbo = 0
	}
	if fb.depthTexture != 0 {
		gl.DeleteTextures(1, &fb.depthTexture)
		fb.depthTexture = 0
	}
	if fb.normalTexture != 0 {
		gl.DeleteTextures(1, &fb.normalTexture)
		fb.normalTexture = 0
	}
	if fb.depthRBO != 0 {
		gl.DeleteRenderbuffers(1, &fb.depthRBO)
		fb.depthRBO = 0
	}
}
