// Package geometry holds 3D bounding boxes and the bird's-eye-view overlap
// tests used to post-process detections.
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// BoundingBox3D is a 7-DOF box with a class label and detection score.
//
//   - Center: box centre (metres, sensor frame)
//   - Size: X is length along heading, Y is width, Z is height (metres)
//   - Yaw: rotation around the Z axis (radians)
type BoundingBox3D struct {
	Center     r3.Vec
	Size       r3.Vec
	Yaw        float64
	Label      int
	LabelClass string
	Confidence float64
}

// Point2 is a point in the bird's-eye (x, y) plane.
type Point2 struct {
	X, Y float64
}

// String returns a compact description of the box.
func (b BoundingBox3D) String() string {
	return fmt.Sprintf("%s(%d) c=(%.2f,%.2f,%.2f) s=(%.2f,%.2f,%.2f) yaw=%.2f conf=%.3f",
		b.LabelClass, b.Label, b.Center.X, b.Center.Y, b.Center.Z,
		b.Size.X, b.Size.Y, b.Size.Z, b.Yaw, b.Confidence)
}

// Volume returns length * width * height.
func (b BoundingBox3D) Volume() float64 {
	return b.Size.X * b.Size.Y * b.Size.Z
}

// BEVArea returns the footprint area in the bird's-eye plane.
func (b BoundingBox3D) BEVArea() float64 {
	return b.Size.X * b.Size.Y
}

// BEVCorners returns the four footprint corners in counter-clockwise order.
func (b BoundingBox3D) BEVCorners() [4]Point2 {
	cos, sin := math.Cos(b.Yaw), math.Sin(b.Yaw)
	hl, hw := b.Size.X/2, b.Size.Y/2

	local := [4]Point2{{hl, hw}, {-hl, hw}, {-hl, -hw}, {hl, -hw}}
	var out [4]Point2
	for i, p := range local {
		out[i] = Point2{
			X: b.Center.X + p.X*cos - p.Y*sin,
			Y: b.Center.Y + p.X*sin + p.Y*cos,
		}
	}
	return out
}

// Contains reports whether p lies inside the box.
func (b BoundingBox3D) Contains(p r3.Vec) bool {
	d := r3.Sub(p, b.Center)
	cos, sin := math.Cos(-b.Yaw), math.Sin(-b.Yaw)
	lx := d.X*cos - d.Y*sin
	ly := d.X*sin + d.Y*cos
	return math.Abs(lx) <= b.Size.X/2 && math.Abs(ly) <= b.Size.Y/2 && math.Abs(d.Z) <= b.Size.Z/2
}
