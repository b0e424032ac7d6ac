package dash

import (
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrManifestMalformed indicates the manifest document is missing data
// this engine requires, such as segment template timing attributes.
var ErrManifestMalformed = errors.New("manifest malformed")

// MediaType distinguishes the two stream kinds this engine downloads.
type MediaType string

const (
	Audio MediaType = "audio"
	Video MediaType = "video"
)

// Prefix returns the single-letter segment name prefix for the type.
func (t MediaType) Prefix() string {
	if t == Audio {
		return "a"
	}
	return "v"
}

// Representation is one selectable quality variant parsed from a
// manifest. Height is only meaningful for video.
type Representation struct {
	StreamID string
	Type     MediaType
	Height   int
}

// Manifest holds the values derived from one parsed manifest document.
// BaseStreamURL and TotalSegments are recomputed whenever the manifest
// is refreshed; everything else is stable across refreshes.
type Manifest struct {
	// BaseStreamURL is the signed delivery URL with its final path
	// element stripped; segment URLs are built underneath it.
	BaseStreamURL string
	// SegmentDuration is the fixed data segment duration in seconds.
	SegmentDuration float64
	// TotalSegments is ceil(duration / SegmentDuration). This is an
	// over-estimate by construction: a 404 on exactly this index is
	// expected and tolerated downstream.
	TotalSegments int
	// VideoLadder lists the video representations in ascending height
	// order. Heights are unique within a manifest.
	VideoLadder []Representation
	// AudioCandidates lists the audio representations ordered from
	// highest associated quality to lowest, mirroring the video ladder.
	AudioCandidates []Representation
}

// AvailableHeights returns the sorted heights of the video ladder.
func (m *Manifest) AvailableHeights() []int {
	heights := make([]int, len(m.VideoLadder))
	for i, rep := range m.VideoLadder {
		heights[i] = rep.Height
	}
	return heights
}

// Parse decodes a manifest document and computes the derived values.
// totalDurationSeconds comes from the external metadata source, not from
// the manifest itself.
func Parse(data []byte, baseStreamURL string, totalDurationSeconds float64) (*Manifest, error) {
	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestMalformed, err)
	}

	videoSets := mpd.setsByMime(MimeVideo)
	if len(videoSets) == 0 {
		return nil, fmt.Errorf("%w: no %s adaptation set", ErrManifestMalformed, MimeVideo)
	}

	segmentDuration, err := segmentDurationFrom(videoSets)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		BaseStreamURL:   baseStreamURL,
		SegmentDuration: segmentDuration,
		TotalSegments:   int(math.Ceil(totalDurationSeconds / segmentDuration)),
	}

	for _, set := range videoSets {
		for _, rep := range set.Representations {
			manifest.VideoLadder = append(manifest.VideoLadder, Representation{
				StreamID: rep.ID,
				Type:     Video,
				Height:   rep.Height,
			})
		}
	}
	if len(manifest.VideoLadder) == 0 {
		return nil, fmt.Errorf("%w: no video representations", ErrManifestMalformed)
	}
	sort.Slice(manifest.VideoLadder, func(i, j int) bool {
		return manifest.VideoLadder[i].Height < manifest.VideoLadder[j].Height
	})

	manifest.AudioCandidates = audioCandidates(&mpd, manifest.VideoLadder)
	if len(manifest.AudioCandidates) == 0 {
		return nil, fmt.Errorf("%w: no audio representations", ErrManifestMalformed)
	}

	return manifest, nil
}

// segmentDurationFrom reads duration/timescale from the video segment
// template. Both attributes must be present and positive.
func segmentDurationFrom(videoSets []*AdaptationSet) (float64, error) {
	for _, set := range videoSets {
		template := set.SegmentTemplate
		if template.Duration > 0 && template.Timescale > 0 {
			return template.Duration / template.Timescale, nil
		}
	}
	return 0, fmt.Errorf("%w: segment template missing duration or timescale", ErrManifestMalformed)
}

// audioCandidates collects the audio representations and orders them
// from highest associated quality to lowest. Audio representations are
// paired with the video ladder by stream ID, so the probe order mirrors
// video height descending; unpaired entries keep manifest order and
// come last.
func audioCandidates(mpd *MPD, ladder []Representation) []Representation {
	heightByID := make(map[string]int, len(ladder))
	for _, rep := range ladder {
		heightByID[rep.StreamID] = rep.Height
	}

	var candidates []Representation
	for _, set := range mpd.setsByMime(MimeAudio) {
		for _, rep := range set.Representations {
			candidates = append(candidates, Representation{
				StreamID: rep.ID,
				Type:     Audio,
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return heightByID[candidates[i].StreamID] > heightByID[candidates[j].StreamID]
	})
	return candidates
}
