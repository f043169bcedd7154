package mesh

import (
	"errors"
	"fmt"
)

// Defaults for Options.
const (
	MaxActiveLevel  = 12
	MaxJobsPerFrame = 4
)

// ErrInvalidOptions wraps every Options validation failure.
var ErrInvalidOptions = errors.New("mesh: invalid options")

// Options is the per-instance configuration of a Manager.
type Options struct {
	// SeaLevel displaces every vertex along its normal, in meters.
	SeaLevel float64

	// Diamonds below MinActiveLevel are always split; diamonds never split
	// past MaxActiveLevel.
	MinActiveLevel int
	MaxActiveLevel int

	// MaxJobsPerFrame caps the split, merge and image queues independently.
	MaxJobsPerFrame int

	// Screen-space error thresholds in pixels. A leaf splits above
	// SplitThreshold; a split diamond merges below MergeThreshold.
	SplitThreshold float64
	MergeThreshold float64

	// DirtyQueue defers state-set changes to the dirty phase of Update.
	DirtyQueue bool

	// MosaicSize is the grid size of elevation mosaicked from a Map.
	MosaicSize int

	Verbose bool
}

// DefaultOptions returns the stock configuration
func DefaultOptions() Options {
	return Options{
		MinActiveLevel:  1,
		MaxActiveLevel:  MaxActiveLevel,
		MaxJobsPerFrame: MaxJobsPerFrame,
		SplitThreshold:  24,
		MergeThreshold:  12,
		DirtyQueue:      true,
		MosaicSize:      17,
	}
}

// Validate checks ranges and threshold ordering.
func (o Options) Validate() error {
	switch {
	case o.MaxJobsPerFrame < 1:
		return fmt.Errorf("%w: maxJobsPerFrame %d < 1", ErrInvalidOptions, o.MaxJobsPerFrame)
	case o.MinActiveLevel < 0:
		return fmt.Errorf("%w: minActiveLevel %d < 0", ErrInvalidOptions, o.MinActiveLevel)
	case o.MaxActiveLevel < o.MinActiveLevel:
		return fmt.Errorf("%w: maxActiveLevel %d < minActiveLevel %d", ErrInvalidOptions, o.MaxActiveLevel, o.MinActiveLevel)
	case o.MergeThreshold >= o.SplitThreshold:
		return fmt.Errorf("%w: mergeThreshold %.2f must be below splitThreshold %.2f", ErrInvalidOptions, o.MergeThreshold, o.SplitThreshold)
	case o.MosaicSize < 2:
		return fmt.Errorf("%w: mosaicSize %d < 2", ErrInvalidOptions, o.MosaicSize)
	}
	return nil
}
