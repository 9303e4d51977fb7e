package cutout

import (
	"fmt"
	"io"

	"github.com/chazu/shatter/pkg/binio"
)

const setVersion uint32 = 1

// Serialize writes s to w.
func (s *Set) Serialize(w io.Writer) error {
	bw := binio.NewWriter(w)
	bw.U32(setVersion)
	bw.U32(uint32(len(s.Cutouts)))
	for _, c := range s.Cutouts {
		bw.U32(uint32(len(c.Vertices)))
		for _, v := range c.Vertices {
			bw.Vec3(v)
		}
		bw.U32(uint32(len(c.ConvexLoops)))
		for _, l := range c.ConvexLoops {
			bw.U32(uint32(len(l.PolyVerts)))
			for _, pv := range l.PolyVerts {
				bw.U16(pv.Index)
				bw.U16(pv.Flags)
			}
		}
	}
	bw.Bool(s.Periodic)
	bw.Vec2(s.Dimensions)
	if err := bw.Err(); err != nil {
		return fmt.Errorf("cutout: serialize: %w", err)
	}
	return nil
}

// Deserialize replaces s with a set read from r. On error s is unchanged.
func (s *Set) Deserialize(r io.Reader) error {
	br := binio.NewReader(r)
	version := br.U32()
	if br.Err() == nil && version != setVersion {
		br.SetErr(fmt.Errorf("%w: cutout set version %d", binio.ErrVersion, version))
	}
	var ns Set
	n := br.Count(binio.MaxCount)
	for i := 0; i < n && br.Err() == nil; i++ {
		var c Cutout
		nv := br.Count(binio.MaxCount)
		for j := 0; j < nv && br.Err() == nil; j++ {
			c.Vertices = append(c.Vertices, br.Vec3())
		}
		nl := br.Count(binio.MaxCount)
		for j := 0; j < nl && br.Err() == nil; j++ {
			var l ConvexLoop
			np := br.Count(binio.MaxCount)
			for k := 0; k < np && br.Err() == nil; k++ {
				pv := PolyVert{Index: br.U16(), Flags: br.U16()}
				if int(pv.Index) >= len(c.Vertices) {
					br.SetErr(fmt.Errorf("cutout: loop vertex %d out of range", pv.Index))
				}
				l.PolyVerts = append(l.PolyVerts, pv)
			}
			c.ConvexLoops = append(c.ConvexLoops, l)
		}
		ns.Cutouts = append(ns.Cutouts, c)
	}
	ns.Periodic = br.Bool()
	ns.Dimensions = br.Vec2()
	if err := br.Err(); err != nil {
		return fmt.Errorf("cutout: deserialize: %w", err)
	}
	*s = ns
	return nil
}
