package tiles

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"oceansurface/core"
)

// Procedural is a deterministic data source that synthesises elevation from
// layered trigonometric noise. It serves as mask layer, bathymetry layer
// and map at the same time, with map tiles in ProfileGeodetic.
type Procedural struct {
	TileSize    int           // samples per tile side
	MaxMapLevel int           // deepest level served by the map
	Amplitude   float64       // meters at noise value 1
	Latency     time.Duration // simulated fetch latency
}

// NewProcedural returns a source with 17x17 tiles and map tiles down to level 6.
func NewProcedural() *Procedural {
	return &Procedural{
		TileSize:    17,
		MaxMapLevel: 6,
		Amplitude:   6000,
	}
}

// ElevationAt returns the elevation in meters at a latitude/longitude in degrees.
func (p *Procedural) ElevationAt(lat, lon float64) float64 {
	pos := core.LatLonToUnit(lat, lon)
	x, y, z := pos[0], pos[1], pos[2]

	// Continental-scale features (very low frequency)
	continental := terrainNoise(x*1.5, y*1.5, z*1.5)
	// Regional features (medium frequency)
	regional := terrainNoise(x*4, y*4, z*4) * 0.5
	// Local features (high frequency)
	local := terrainNoise(x*10, y*10, z*10) * 0.2
	// Fine detail
	detail := terrainNoise(x*25, y*25, z*25) * 0.05

	total := continental + regional + local + detail
	if total < 0 {
		// ocean basins are deeper than land is high
		return total * p.Amplitude
	}
	return total * p.Amplitude * 0.6
}

// CreateImage renders a water mask: opaque ocean blue below sea level,
// transparent over land. Row 0 is the northern edge.
func (p *Procedural) CreateImage(ctx context.Context, key TileKey) (image.Image, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	n := p.TileSize
	img := image.NewNRGBA(image.Rect(0, 0, n, n))
	for row := 0; row < n; row++ {
		v := 1 - float64(row)/float64(n-1)
		for col := 0; col < n; col++ {
			lat, lon := key.LatLon(float64(col)/float64(n-1), v)
			if p.ElevationAt(lat, lon) < 0 {
				img.SetNRGBA(col, row, color.NRGBA{R: 0, G: 64, B: 128, A: 255})
			}
		}
	}
	return img, nil
}

// CreateHeightField samples the tile on a TileSize grid.
func (p *Procedural) CreateHeightField(ctx context.Context, key TileKey) (*HeightField, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.sample(key), nil
}

// IntersectingTiles returns the geodetic map tiles overlapping key at
// min(key.Level, MaxMapLevel).
func (p *Procedural) IntersectingTiles(key TileKey) []TileKey {
	level := min(key.Level, p.MaxMapLevel)
	per := 1 << level
	size := geodeticSpan / float64(per)
	cols := GeodeticColumns * per
	rows := GeodeticRows * per

	e := key.Extent()
	c0 := clampInt(int(math.Floor((e.West+180)/size)), 0, cols-1)
	c1 := clampInt(int(math.Ceil((e.East+180)/size))-1, 0, cols-1)
	r0 := clampInt(int(math.Floor((e.South+90)/size)), 0, rows-1)
	r1 := clampInt(int(math.Ceil((e.North+90)/size))-1, 0, rows-1)

	var keys []TileKey
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			keys = append(keys, TileKey{
				Profile: ProfileGeodetic,
				Face:    (r/per)*GeodeticColumns + c/per,
				Level:   level,
				X:       c % per,
				Y:       r % per,
			})
		}
	}
	return keys
}

// HeightField serves a geodetic map tile.
func (p *Procedural) HeightField(ctx context.Context, key TileKey) (*HeightField, error) {
	if key.Profile != ProfileGeodetic {
		return nil, fmt.Errorf("procedural map: unsupported profile %s", key.Profile)
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.sample(key), nil
}

// SurfaceImage renders an n x n swell pattern that tiles seamlessly, used
// as the repeating detail texture of the whole surface.
func (p *Procedural) SurfaceImage(n int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, n, n))
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			u := 2 * math.Pi * float64(col) / float64(n)
			v := 2 * math.Pi * float64(row) / float64(n)
			w := (math.Sin(u*3+v) + math.Sin(v*5-u*2)*0.5 + math.Cos(u*7+v*4)*0.25) / 1.75
			shade := uint8(160 + 60*w)
			img.SetNRGBA(col, row, color.NRGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	return img
}

func (p *Procedural) sample(key TileKey) *HeightField {
	n := p.TileSize
	hf := NewHeightField(n, n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			lat, lon := key.LatLon(float64(c)/float64(n-1), float64(r)/float64(n-1))
			hf.Set(c, r, float32(p.ElevationAt(lat, lon)))
		}
	}
	return hf
}

func (p *Procedural) wait(ctx context.Context) error {
	if p.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terrainNoise combines a few sine waves into smooth varied terrain
func terrainNoise(x, y, z float64) float64 {
	n1 := math.Sin(x*3.14159) * math.Cos(y*2.71828) * math.Sin(z*1.41421)
	n2 := math.Sin(x*1.73205) * math.Sin(y*2.23607) * math.Cos(z*3.16227)
	n3 := math.Cos(x*2.44949) * math.Sin(y*1.61803) * math.Sin(z*2.64575)
	return (n1 + n2*0.5 + n3*0.25) / 1.75
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
