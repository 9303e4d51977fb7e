// Package fracture splits explicit hierarchical meshes into chunks. Three
// drivers share one pattern: cutting surfaces are built as BSPs from
// planar grid meshes, intersected with a chunk's BSP to cut off a child,
// and subtracted to leave the remainder. Slicing cuts along a grid of
// axis planes, Voronoi splitting cuts along site bisectors, and chipping
// cuts stencil cutouts into the faces of a mesh.
package fracture

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/chazu/shatter/pkg/bsp"
	"github.com/chazu/shatter/pkg/ehm"
	"github.com/go-gl/mathgl/mgl64"
)

// Severity ranks driver messages.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityDebug
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityDebug:
		return "debug"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// level is the verbosity needed to see a message. Errors and warnings
// are always shown.
func (s Severity) level() int {
	if s <= SeverityWarning {
		return 0
	}
	return int(s) - 1
}

// MessageFunc receives driver messages.
type MessageFunc func(severity Severity, msg string)

// DefaultLogger forwards messages to the standard logger.
func DefaultLogger(severity Severity, msg string) {
	log.Printf("[fracture] %s: %s", severity, msg)
}

// Context carries the state shared by the drivers of one fracture job:
// the random source, BSP settings and message routing. A Context is not
// safe for concurrent use; concurrent jobs each get their own.
type Context struct {
	Rand            *rand.Rand
	Tolerances      bsp.Tolerances
	BuildParameters bsp.BuildParameters

	MicrogridSize    uint32
	MeshMode         ehm.MeshMode
	IslandGeneration bool
	RemoveTJunctions bool

	// Verbosity admits info messages at 1 and debug messages at 2.
	Verbosity int
	Logger    MessageFunc
}

// NewContext returns a context with default settings and a random source
// seeded with seed.
func NewContext(seed int64) *Context {
	return &Context{
		Rand:            rand.New(rand.NewSource(seed)),
		Tolerances:      bsp.DefaultTolerances(),
		BuildParameters: bsp.DefaultBuildParameters(),
		MicrogridSize:   65536,
		MeshMode:        ehm.MeshModeAutomatic,
		Logger:          DefaultLogger,
	}
}

// Reseed restarts the random source. Every top-level driver reseeds, so
// a fracture is reproducible from its seed.
func (c *Context) Reseed(seed int64) {
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(seed))
		return
	}
	c.Rand.Seed(seed)
}

// SetMeshProcessingParameters copies p into c.
func (c *Context) SetMeshProcessingParameters(p MeshProcessingParameters) {
	c.IslandGeneration = p.IslandGeneration
	c.RemoveTJunctions = p.RemoveTJunctions
	c.MicrogridSize = p.MicrogridSize
	c.MeshMode = p.MeshMode
	c.Verbosity = p.Verbosity
}

func (c *Context) messagef(severity Severity, format string, args ...any) {
	if c.Logger == nil || severity.level() > c.Verbosity {
		return
	}
	c.Logger(severity, fmt.Sprintf(format, args...))
}

func (c *Context) warnf(format string, args ...any) {
	c.messagef(SeverityWarning, format, args...)
}

// bspSettings returns the settings for rebuilding part BSPs.
func (c *Context) bspSettings(seed int64) ehm.BSPSettings {
	s := ehm.DefaultBSPSettings()
	s.Seed = seed
	s.MicrogridSize = c.MicrogridSize
	s.Mode = c.MeshMode
	s.Tolerances = c.Tolerances
	s.Params = c.BuildParameters
	s.Logf = c.warnf
	return s
}

// newBSP returns an all-space BSP sharing the internal transform it.
func (c *Context) newBSP(it mgl64.Mat4) *bsp.BSP {
	b := bsp.NewWithTransform(it)
	b.SetLogger(c.warnf)
	return b
}

// cuttingParams returns build parameters for a cutting surface BSP that
// must share the internal transform it.
func (c *Context) cuttingParams(it mgl64.Mat4) bsp.BuildParameters {
	p := c.BuildParameters
	p.Rand = c.Rand
	p.InternalTransform = it
	return p
}

// uniform returns a value uniformly distributed in [lo, hi).
func (c *Context) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*c.Rand.Float64()
}
