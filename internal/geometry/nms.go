package geometry

import "sort"

// NMS performs class-aware non-maximum suppression on the bird's-eye plane.
// Boxes are visited in order of decreasing confidence; a box is dropped when
// its BEV IoU with an already kept box of the same label exceeds threshold.
// At most topK boxes are returned when topK > 0.
func NMS(boxes []BoundingBox3D, threshold float64, topK int) []BoundingBox3D {
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return boxes[order[i]].Confidence > boxes[order[j]].Confidence
	})

	kept := make([]BoundingBox3D, 0, len(boxes))
	for _, idx := range order {
		cand := boxes[idx]
		suppressed := false
		for _, k := range kept {
			if k.Label == cand.Label && BEVIoU(k, cand) > threshold {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		kept = append(kept, cand)
		if topK > 0 && len(kept) == topK {
			break
		}
	}
	return kept
}
