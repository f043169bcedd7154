//go:build opengl
// +build opengl

package opengl

import (
	"image"
	"image/draw"

	"github.com/go-gl/gl/v4.3-core/gl"

	"oceansurface/mesh"
)

// textureCache keeps one GL texture per mesh.Texture and releases the ones a
// draw list stops referencing.
type textureCache struct {
	ids  map[*mesh.Texture]uint32
	used map[*mesh.Texture]bool
}

func newTextureCache() *textureCache {
	return &textureCache{
		ids:  make(map[*mesh.Texture]uint32),
		used: make(map[*mesh.Texture]bool),
	}
}

// bind makes t current on unit, uploading it on first use.
func (c *textureCache) bind(unit uint32, t *mesh.Texture) {
	id, ok := c.ids[t]
	if !ok {
		id = uploadTexture(t)
		c.ids[t] = id
	}
	c.used[t] = true
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(gl.TEXTURE_2D, id)
}

// sweep deletes textures not bound since the previous sweep.
func (c *textureCache) sweep() {
	for t, id := range c.ids {
		if !c.used[t] {
			gl.DeleteTextures(1, &id)
			delete(c.ids, t)
		}
	}
	clear(c.used)
}

func (c *textureCache) release() {
	for t, id := range c.ids {
		gl.DeleteTextures(1, &id)
		delete(c.ids, t)
	}
}

func uploadTexture(t *mesh.Texture) uint32 {
	img := toNRGBA(t.Image)
	size := img.Bounds().Size()

	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(size.X), int32(size.Y), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))

	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, glFilter(t.MinFilter))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, glFilter(t.MagFilter))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, glWrap(t.WrapS))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, glWrap(t.WrapT))
	if t.MinFilter == mesh.FilterLinearMipmapLinear {
		gl.GenerateMipmap(gl.TEXTURE_2D)
	}
	return id
}

// toNRGBA converts img to tightly packed 8-bit RGBA. Row 0 of the image is
// the northern edge, which GL treats as v=0, so rows are flipped.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	src := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	out := image.NewNRGBA(src.Bounds())
	for y := 0; y < b.Dy(); y++ {
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], src.Pix[(b.Dy()-1-y)*src.Stride:(b.Dy()-y)*src.Stride])
	}
	return out
}

func glFilter(f mesh.Filter) int32 {
	switch f {
	case mesh.FilterNearest:
		return gl.NEAREST
	case mesh.FilterLinearMipmapLinear:
		return gl.LINEAR_MIPMAP_LINEAR
	}
	return gl.LINEAR
}

func glWrap(w mesh.Wrap) int32 {
	if w == mesh.WrapRepeat {
		return gl.REPEAT
	}
	return gl.CLAMP_TO_EDGE
}
