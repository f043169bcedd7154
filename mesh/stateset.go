package mesh

import (
	"image"
	"image/color"

	"oceansurface/tiles"
)

// Texture units used by the ocean state sets.
const (
	UnitTile        = 0 // per-tile mask or elevation
	UnitSurface     = 1 // shared repeating surface detail
	MaxTextureUnits = 2
)

// Filter selects texture sampling
type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
	FilterLinearMipmapLinear
)

// Wrap selects texture addressing
type Wrap int

const (
	WrapClampToEdge Wrap = iota
	WrapRepeat
)

// Texture is an image plus sampling parameters. It is never modified after
// construction, so draw lists can share it across goroutines.
type Texture struct {
	Image                image.Image
	MinFilter, MagFilter Filter
	WrapS, WrapT         Wrap
	UnrefImageAfterApply bool
}

// NewTileTexture wraps a per-tile image.
func NewTileTexture(img image.Image) *Texture {
	return &Texture{
		Image:     img,
		MinFilter: FilterNearest,
		MagFilter: FilterLinear,
		WrapS:     WrapClampToEdge,
		WrapT:     WrapClampToEdge,
	}
}

// NewSurfaceTexture wraps the repeating surface detail image.
func NewSurfaceTexture(img image.Image) *Texture {
	return &Texture{
		Image:     img,
		MinFilter: FilterLinearMipmapLinear,
		MagFilter: FilterLinear,
		WrapS:     WrapRepeat,
		WrapT:     WrapRepeat,
	}
}

// StateSet holds the texture bindings a diamond renders with. Every change
// bumps the revision so holders of an older revision can tell they are stale.
type StateSet struct {
	textures [MaxTextureUnits]*Texture
	revision uint64
}

// SetTexture binds t to unit.
func (s *StateSet) SetTexture(unit int, t *Texture) {
	s.textures[unit] = t
}

// Texture returns the texture bound to unit, or nil.
func (s *StateSet) Texture(unit int) *Texture {
	return s.textures[unit]
}

// Dirty bumps the revision.
func (s *StateSet) Dirty() {
	s.revision++
}

// Revision returns the current revision
func (s *StateSet) Revision() uint64 {
	return s.revision
}

// OutOfSyncWith reports whether rev is older than the current revision.
func (s *StateSet) OutOfSyncWith(rev uint64) bool {
	return s.revision != rev
}

// Sync records the current revision in rev.
func (s *StateSet) Sync(rev *uint64) {
	*rev = s.revision
}

// textureFromResult turns a fetch payload into a tile texture. Empty
// payloads yield nil.
func textureFromResult(r tiles.Result) *Texture {
	switch res := r.(type) {
	case tiles.ImageResult:
		if res.Image == nil {
			return nil
		}
		return NewTileTexture(res.Image)
	case tiles.HeightFieldResult:
		if res.Field == nil {
			return nil
		}
		return elevationTexture(res.Field)
	case tiles.MosaicResult:
		if res.Field == nil {
			return nil
		}
		return elevationTexture(res.Field)
	}
	return nil
}

func elevationTexture(hf *tiles.HeightField) *Texture {
	t := NewTileTexture(heightFieldImage(hf))
	t.UnrefImageAfterApply = true
	return t
}

// heightFieldImage encodes elevation as 16-bit luminance offset by 32768,
// one meter per step. Image row 0 is the northern edge, so height field rows
// are flipped.
func heightFieldImage(hf *tiles.HeightField) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, hf.Cols, hf.Rows))
	for i, h := range hf.Heights {
		col := i % hf.Cols
		row := i / hf.Cols
		img.SetGray16(col, hf.Rows-1-row, color.Gray16{Y: encodeElevation(h)})
	}
	return img
}

func encodeElevation(h float32) uint16 {
	if h < -32768 {
		h = -32768
	} else if h > 32767 {
		h = 32767
	}
	return uint16(32768 + int32(int16(h)))
}
