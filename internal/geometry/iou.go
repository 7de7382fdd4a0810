package geometry

import "math"

// BEVIoU returns the intersection over union of the rotated footprints of a and b.
func BEVIoU(a, b BoundingBox3D) float64 {
	inter := bevIntersection(a, b)
	union := a.BEVArea() + b.BEVArea() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// IoU3D extends BEVIoU with the overlap along Z.
func IoU3D(a, b BoundingBox3D) float64 {
	zOverlap := math.Min(a.Center.Z+a.Size.Z/2, b.Center.Z+b.Size.Z/2) -
		math.Max(a.Center.Z-a.Size.Z/2, b.Center.Z-b.Size.Z/2)
	if zOverlap <= 0 {
		return 0
	}
	inter := bevIntersection(a, b) * zOverlap
	union := a.Volume() + b.Volume() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func bevIntersection(a, b BoundingBox3D) float64 {
	ca, cb := a.BEVCorners(), b.BEVCorners()
	return polygonArea(clipConvex(ca[:], cb[:]))
}

// clipConvex clips subject against the convex counter-clockwise polygon clip
// (Sutherland-Hodgman).
func clipConvex(subject, clip []Point2) []Point2 {
	out := append([]Point2(nil), subject...)
	for i := range clip {
		if len(out) == 0 {
			return nil
		}
		a, b := clip[i], clip[(i+1)%len(clip)]
		in := out
		out = make([]Point2, 0, len(in)+2)
		for j := range in {
			cur, prev := in[j], in[(j+len(in)-1)%len(in)]
			curIn, prevIn := side(a, b, cur) >= 0, side(a, b, prev) >= 0
			switch {
			case curIn && prevIn:
				out = append(out, cur)
			case curIn:
				out = append(out, intersect(prev, cur, a, b), cur)
			case prevIn:
				out = append(out, intersect(prev, cur, a, b))
			}
		}
	}
	return out
}

// side is positive when p is left of the directed edge a->b.
func side(a, b, p Point2) float64 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}

func intersect(p, q, a, b Point2) Point2 {
	sp, sq := side(a, b, p), side(a, b, q)
	t := sp / (sp - sq)
	return Point2{X: p.X + t*(q.X-p.X), Y: p.Y + t*(q.Y-p.Y)}
}

// polygonArea is the shoelace area of a simple polygon.
func polygonArea(poly []Point2) float64 {
	if len(poly) < 3 {
		return 0
	}
	var sum float64
	for i := range poly {
		j := (i + 1) % len(poly)
		sum += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return math.Abs(sum) / 2
}
