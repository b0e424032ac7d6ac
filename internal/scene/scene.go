package scene

import "math"

// Scene is a named sub-range of an asset, described by start and end
// timings in seconds. The timings come from an external source; the
// engine only consumes the two numbers.
type Scene struct {
	StartSeconds float64
	EndSeconds   float64
}

// Range is an inclusive segment index range. The initialization segment
// is always fetched in addition, regardless of Start.
type Range struct {
	Start int
	End   int
}

// Count returns the number of data segments in the range.
func (r Range) Count() int {
	return r.End - r.Start + 1
}

// Resolver converts download requests into concrete segment ranges
// using the timing constants of a parsed manifest.
type Resolver struct {
	SegmentDuration      float64
	TotalSegments        int
	TotalDurationSeconds float64
}

// Whole covers the full asset. The end index is the over-estimated
// total segment count, whose 404 is tolerated downstream.
func (r Resolver) Whole() Range {
	return Range{Start: 0, End: r.TotalSegments}
}

// FromOverride applies explicit start/end indices; a negative value
// keeps the corresponding whole-asset boundary.
func (r Resolver) FromOverride(start, end int) Range {
	rng := r.Whole()
	if start >= 0 {
		rng.Start = start
	}
	if end >= 0 {
		rng.End = end
	}
	return rng
}

// FromScene converts a scene's timings into segment indices, widening
// the window by padding seconds on both sides, clamped to the asset.
//
// Rounding is asymmetric on purpose: the start floors and the end
// ceils, because including one extra boundary segment at the tail is
// always safe while starting late never is.
func (r Resolver) FromScene(sc Scene, paddingSeconds float64) Range {
	start := sc.StartSeconds
	end := sc.EndSeconds
	if paddingSeconds > 0 {
		start -= paddingSeconds
		end += paddingSeconds
	}
	if start < 0 {
		start = 0
	}
	if end > r.TotalDurationSeconds {
		end = r.TotalDurationSeconds
	}
	return Range{
		Start: int(math.Floor(start / r.SegmentDuration)),
		End:   int(math.Ceil(end / r.SegmentDuration)),
	}
}
