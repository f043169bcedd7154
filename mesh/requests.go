package mesh

import (
	"context"
	"fmt"
	"log"

	"oceansurface/tasks"
	"oceansurface/tiles"
)

// RequestKind says which source a diamond's image fetch reads from.
type RequestKind int

const (
	// ImageRequest reads the mask layer.
	ImageRequest RequestKind = iota
	// ElevationLayerRequest reads the bathymetry layer.
	ElevationLayerRequest
	// ElevationRequest mosaics tiles from the elevation map.
	ElevationRequest
)

func (k RequestKind) String() string {
	switch k {
	case ImageRequest:
		return "image"
	case ElevationLayerRequest:
		return "elevation-layer"
	case ElevationRequest:
		return "elevation"
	}
	return fmt.Sprintf("RequestKind(%d)", int(k))
}

// Layers are the data sources a Manager fetches tile imagery from. The first
// non-nil source in field order is used.
type Layers struct {
	Mask       tiles.ImageLayer
	Bathymetry tiles.ElevationLayer
	Map        tiles.Map
}

// Empty reports whether no source is configured.
func (l Layers) Empty() bool {
	return l.Mask == nil && l.Bathymetry == nil && l.Map == nil
}

type imageRequest struct {
	kind RequestKind
	task *tasks.Request[tiles.Result]
}

// newImageRequest builds the fetch for key from the first available source,
// or returns nil if there is none.
func newImageRequest(l Layers, key tiles.TileKey, mosaicSize int) *imageRequest {
	name := key.String()
	switch {
	case l.Mask != nil:
		layer := l.Mask
		return &imageRequest{
			kind: ImageRequest,
			task: tasks.NewRequest(name, func(ctx context.Context) tiles.Result {
				img, err := layer.CreateImage(ctx, key)
				if err != nil {
					log.Printf("%s: mask: %v", key, err)
					return nil
				}
				return tiles.ImageResult{Image: img}
			}),
		}

	case l.Bathymetry != nil:
		layer := l.Bathymetry
		return &imageRequest{
			kind: ElevationLayerRequest,
			task: tasks.NewRequest(name, func(ctx context.Context) tiles.Result {
				hf, err := layer.CreateHeightField(ctx, key)
				if err != nil {
					log.Printf("%s: bathymetry: %v", key, err)
					return nil
				}
				return tiles.HeightFieldResult{Field: hf}
			}),
		}

	case l.Map != nil:
		m := l.Map
		return &imageRequest{
			kind: ElevationRequest,
			task: tasks.NewRequest(name, func(ctx context.Context) tiles.Result {
				return mosaicElevation(ctx, m, key, mosaicSize)
			}),
		}
	}
	return nil
}

// mosaicElevation assembles elevation for key from the map tiles that
// intersect it. Tiles that fail to load are skipped.
func mosaicElevation(ctx context.Context, m tiles.Map, key tiles.TileKey, size int) tiles.Result {
	var fields []tiles.GeoHeightField
	for _, k := range m.IntersectingTiles(key) {
		if ctx.Err() != nil {
			return nil
		}
		hf, err := m.HeightField(ctx, k)
		if err != nil {
			log.Printf("%s: map tile %s: %v", key, k, err)
			continue
		}
		if hf != nil {
			fields = append(fields, tiles.GeoHeightField{Field: hf, Extent: k.Extent()})
		}
	}
	return tiles.MosaicResult{Field: tiles.Mosaic(fields, key, size), Sources: len(fields)}
}
