package media

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"dashdl/internal/dash"
)

// InitSegment is the pseudo-index of a representation's initialization
// segment.
const InitSegment = -1

// Extensions used by the segment URL convention and the on-disk layout.
const (
	// WireExt is the extension segments carry at the delivery CDN.
	WireExt = ".mp4d"
	// DiskExt is the extension segments are stored with locally.
	DiskExt = ".mp4"
)

// SegmentName returns the canonical segment name without extension:
// "{type}i_{id}" for the initialization segment, "{type}_{id}_{index}"
// for a data segment.
func SegmentName(t dash.MediaType, streamID string, index int) string {
	if index == InitSegment {
		return fmt.Sprintf("%si_%s", t.Prefix(), streamID)
	}
	return fmt.Sprintf("%s_%s_%d", t.Prefix(), streamID, index)
}

// SegmentURL builds the delivery URL for a segment.
func SegmentURL(baseStreamURL string, t dash.MediaType, streamID string, index int) string {
	return baseStreamURL + "/" + SegmentName(t, streamID, index) + WireExt
}

// ParseSegmentIndex extracts the numeric segment index from a segment
// file path. It returns InitSegment for an initialization segment and
// ok=false for paths that do not follow the naming convention. Indices
// are unbounded in digit count, which is why assembly must never fall
// back to a lexical sort.
func ParseSegmentIndex(path string) (index int, ok bool) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(name, "_")
	switch len(parts) {
	case 2:
		// "{type}i_{id}"
		if strings.HasSuffix(parts[0], "i") {
			return InitSegment, true
		}
		return 0, false
	case 3:
		// "{type}_{id}_{index}"
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
