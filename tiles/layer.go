package tiles

import (
	"context"
	"image"
)

// ImageLayer supplies mask imagery. A nil image with a nil error means the
// layer has no data for the key.
type ImageLayer interface {
	CreateImage(ctx context.Context, key TileKey) (image.Image, error)
}

// ElevationLayer supplies bathymetry. The context carries cancellation and
// stands in for a progress callback.
type ElevationLayer interface {
	CreateHeightField(ctx context.Context, key TileKey) (*HeightField, error)
}

// Map is an elevation source with its own tiling; keys from another profile
// are served by mosaicking the map tiles that intersect them.
type Map interface {
	IntersectingTiles(key TileKey) []TileKey
	HeightField(ctx context.Context, key TileKey) (*HeightField, error)
}

// Result is the payload of a completed fetch. Exactly one of ImageResult,
// HeightFieldResult or MosaicResult.
type Result interface {
	isResult()
}

// ImageResult carries mask imagery; Image is nil when the layer had none.
type ImageResult struct {
	Image image.Image
}

// HeightFieldResult carries bathymetry from an ElevationLayer.
type HeightFieldResult struct {
	Field *HeightField
}

// MosaicResult carries elevation assembled from Map tiles.
type MosaicResult struct {
	Field   *HeightField
	Sources int
}

func (ImageResult) isResult()       {}
func (HeightFieldResult) isResult() {}
func (MosaicResult) isResult()      {}
