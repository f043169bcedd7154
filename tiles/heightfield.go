package tiles

import "math"

// HeightField is a grid of elevation samples in meters. Row 0 is the
// southern (v = 0) edge of the tile.
type HeightField struct {
	Cols, Rows int
	Heights    []float32
}

// NewHeightField allocates a zeroed cols x rows grid
func NewHeightField(cols, rows int) *HeightField {
	return &HeightField{
		Cols:    cols,
		Rows:    rows,
		Heights: make([]float32, cols*rows),
	}
}

// At returns the sample at column c, row r.
func (h *HeightField) At(c, r int) float32 {
	return h.Heights[r*h.Cols+c]
}

// Set stores a sample at column c, row r.
func (h *HeightField) Set(c, r int, v float32) {
	h.Heights[r*h.Cols+c] = v
}

// Sample interpolates bilinearly at unit coordinates (u, v).
func (h *HeightField) Sample(u, v float64) float32 {
	if h.Cols == 0 || h.Rows == 0 {
		return 0
	}
	x := clamp01(u) * float64(h.Cols-1)
	y := clamp01(v) * float64(h.Rows-1)

	c0 := int(math.Floor(x))
	r0 := int(math.Floor(y))
	c1 := min(c0+1, h.Cols-1)
	r1 := min(r0+1, h.Rows-1)
	fx := float32(x - float64(c0))
	fy := float32(y - float64(r0))

	top := h.At(c0, r0)*(1-fx) + h.At(c1, r0)*fx
	bottom := h.At(c0, r1)*(1-fx) + h.At(c1, r1)*fx
	return top*(1-fy) + bottom*fy
}

// GeoHeightField pairs a height field with its geographic extent
type GeoHeightField struct {
	Field  *HeightField
	Extent Extent
}

// Mosaic resamples fields onto a size x size grid covering key. The first
// field containing a sample point wins; points covered by no field are 0.
// It returns nil when there is nothing to mosaic.
func Mosaic(fields []GeoHeightField, key TileKey, size int) *HeightField {
	if len(fields) == 0 || size < 2 {
		return nil
	}

	out := NewHeightField(size, size)
	for r := 0; r < size; r++ {
		v := float64(r) / float64(size-1)
		for c := 0; c < size; c++ {
			u := float64(c) / float64(size-1)
			lat, lon := key.LatLon(u, v)
			for _, f := range fields {
				if f.Field == nil || !f.Extent.Contains(lat, lon) {
					continue
				}
				fu, fv := f.Extent.Normalize(lat, lon)
				out.Set(c, r, f.Field.Sample(fu, fv))
				break
			}
		}
	}
	return out
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
