// Package glrender draws depth buffers with OpenGL in a hidden window.
package glrender

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdepth/internal/depth"
	"github.com/Faultbox/meshdepth/internal/engine/framebuffer"
	"github.com/Faultbox/meshdepth/internal/engine/raster"
	"github.com/Faultbox/meshdepth/internal/engine/shader"
	"github.com/Faultbox/meshdepth/internal/engine/window"
	"github.com/Faultbox/meshdepth/pkg/formats"
	"github.com/Faultbox/meshdepth/pkg/math"
)

//go:embed shaders/depth.vert
var depthVertexShader string

//go:embed shaders/depth.frag
var depthFragmentShader string

// ErrClosed is returned by Render after Close.
var ErrClosed = errors.New("renderer closed")

// Renderer owns an OpenGL context on a dedicated OS thread. Render may be
// called from any goroutine; calls are served one at a time.
type Renderer struct {
	cfg     raster.Config
	log     *zap.Logger
	jobs    chan job
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

type job struct {
	vertices []float32
	faces    []uint32
	angle    depth.CameraAngle
	reply    chan result
}

type result struct {
	buf *depth.DepthBuffer
	err error
}

// New creates the GL context and returns once it is ready to draw. The
// camera is described by the same Config as the software rasterizer.
func New(cfg raster.Config, log *zap.Logger) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := &Renderer{
		cfg:     cfg,
		log:     log,
		jobs:    make(chan job),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	ready := make(chan error, 1)
	go r.loop(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return r, nil
}

// Render draws the mesh as seen from angle.
func (r *Renderer) Render(ctx context.Context, vertices []float32, faces []uint32, angle depth.CameraAngle) (*depth.DepthBuffer, error) {
	if err := raster.CheckMesh(vertices, faces); err != nil {
		return nil, err
	}
	if !hasArea(vertices, faces) {
		return nil, fmt.Errorf("%w: zero-area mesh", depth.ErrRenderFailure)
	}

	j := job{vertices: vertices, faces: faces, angle: angle, reply: make(chan result, 1)}
	select {
	case r.jobs <- j:
	case <-r.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-j.reply:
		return res.buf, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases the GL context. Pending Render calls fail with ErrClosed.
func (r *Renderer) Close() {
	r.once.Do(func() { close(r.done) })
	<-r.stopped
}

func (r *Renderer) loop(ready chan<- error) {
	defer close(r.stopped)

	// OpenGL calls must stay on the thread that owns the context
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c, err := newGLContext(r.cfg, r.log)
	if err != nil {
		ready <- err
		return
	}
	defer c.destroy()
	ready <- nil

	for {
		select {
		case j := <-r.jobs:
			buf, err := c.draw(j.vertices, j.faces, j.angle)
			j.reply <- result{buf: buf, err: err}
		case <-r.done:
			return
		}
	}
}

// glContext holds the GL objects; it is only touched from the loop thread.
type glContext struct {
	cfg     raster.Config
	win     *window.Window
	target  *framebuffer.DepthTarget
	program uint32
	uView   int32
	uProj   int32
	vao     uint32
	posVBO  uint32
	normVBO uint32
	ebo     uint32
}

func newGLContext(cfg raster.Config, log *zap.Logger) (*glContext, error) {
	win, err := window.New(window.Config{
		Title:  "meshdepth",
		Width:  cfg.Width,
		Height: cfg.Height,
		Hidden: true,
	}, log)
	if err != nil {
		return nil, err
	}
	c := &glContext{cfg: cfg, win: win}

	if err := gl.Init(); err != nil {
		c.destroy()
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	if c.program, err = shader.CompileProgram(depthVertexShader, depthFragmentShader); err != nil {
		c.destroy()
		return nil, fmt.Errorf("failed to create shader program: %w", err)
	}
	if c.uView, err = shader.Uniform(c.program, "uView"); err != nil {
		c.destroy()
		return nil, err
	}
	if c.uProj, err = shader.Uniform(c.program, "uProjection"); err != nil {
		c.destroy()
		return nil, err
	}

	if c.target, err = framebuffer.New(int32(cfg.Width), int32(cfg.Height), cfg.Normals); err != nil {
		c.destroy()
		return nil, err
	}

	gl.GenVertexArrays(1, &c.vao)
	gl.BindVertexArray(c.vao)

	gl.GenBuffers(1, &c.posVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, c.posVBO)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, 3*4, 0)
	gl.EnableVertexAttribArray(0)

	gl.GenBuffers(1, &c.normVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, c.normVBO)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, 3*4, 0)

	gl.GenBuffers(1, &c.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, c.ebo)

	gl.BindVertexArray(0)
	return c, nil
}

func (c *glContext) draw(vertices []float32, faces []uint32, angle depth.CameraAngle) (*depth.DepthBuffer, error) {
	cfg := c.cfg
	cam := cfg.Camera(angle)
	view := cam.ViewMatrix()
	proj := cam.ProjectionMatrix()

	gl.UseProgram(c.program)
	gl.UniformMatrix4fv(c.uView, 1, false, view.Ptr())
	gl.UniformMatrix4fv(c.uProj, 1, false, proj.Ptr())

	gl.BindVertexArray(c.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, c.posVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STREAM_DRAW)
	if cfg.Normals {
		normals := formats.VertexNormals(vertices, faces)
		gl.BindBuffer(gl.ARRAY_BUFFER, c.normVBO)
		gl.BufferData(gl.ARRAY_BUFFER, len(normals)*4, gl.Ptr(normals), gl.STREAM_DRAW)
		gl.EnableVertexAttribArray(1)
	} else {
		gl.DisableVertexAttribArray(1)
		gl.VertexAttrib3f(1, 0, 0, 0)
	}
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(faces)*4, gl.Ptr(faces), gl.STREAM_DRAW)

	c.target.Bind()
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Disable(gl.CULL_FACE)
	gl.DrawElementsWithOffset(gl.TRIANGLES, int32(len(faces)), gl.UNSIGNED_INT, 0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		c.target.Unbind()
		gl.BindVertexArray(0)
		return nil, fmt.Errorf("%w: GL error 0x%x", depth.ErrRenderFailure, code)
	}

	buf := &depth.DepthBuffer{
		Width:   cfg.Width,
		Height:  cfg.Height,
		Depth:   c.target.ReadDepth(),
		Normals: c.target.ReadNormals(),
	}
	c.target.Unbind()
	gl.BindVertexArray(0)

	if buf.UpdateExtrema() == 0 {
		return nil, fmt.Errorf("%w: nothing visible from %s", depth.ErrRenderFailure, angle.Label)
	}
	return buf, nil
}

func (c *glContext) destroy() {
	if c.ebo != 0 {
		gl.DeleteBuffers(1, &c.ebo)
	}
	if c.normVBO != 0 {
		gl.DeleteBuffers(1, &c.normVBO)
	}
	if c.posVBO != 0 {
		gl.DeleteBuffers(1, &c.posVBO)
	}
	if c.vao != 0 {
		gl.DeleteVertexArrays(1, &c.vao)
	}
	if c.target != nil {
		c.target.Destroy()
	}
	if c.program != 0 {
		gl.DeleteProgram(c.program)
	}
	c.win.Close()
}

// hasArea reports whether any face spans a non-zero area.
func hasArea(vertices []float32, faces []uint32) bool {
	vert := func(i uint32) math.Vec3 {
		return math.Vec3{X: vertices[3*i], Y: vertices[3*i+1], Z: vertices[3*i+2]}
	}
	for f := 0; f+2 < len(faces); f += 3 {
		v0 := vert(faces[f])
		if vert(faces[f+1]).Sub(v0).Cross(vert(faces[f+2]).Sub(v0)).Length() > 0 {
			return true
		}
	}
	return false
}
