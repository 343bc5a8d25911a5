package rectify

import "image"

// OrderCorners arranges four quadrilateral vertices into canonical
// top-left, top-right, bottom-right, bottom-left order. Two independent
// sort keys pin the pairs: ascending x+y identifies top-left and
// bottom-right, ascending y-x identifies top-right and bottom-left.
func OrderCorners(pts []image.Point) [4]image.Point {
	var ordered [4]image.Point
	if len(pts) < 4 {
		return ordered
	}

	tl, br := pts[0], pts[0]
	tr, bl := pts[0], pts[0]
	for _, p := range pts[:4] {
		if p.X+p.Y < tl.X+tl.Y {
			tl = p
		}
		if p.X+p.Y > br.X+br.Y {
			br = p
		}
		if p.Y-p.X < tr.Y-tr.X {
			tr = p
		}
		if p.Y-p.X > bl.Y-bl.X {
			bl = p
		}
	}

	ordered[0] = tl
	ordered[1] = tr
	ordered[2] = br
	ordered[3] = bl
	return ordered
}
