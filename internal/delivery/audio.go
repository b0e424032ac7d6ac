package delivery

import (
	"context"
	"errors"
	"fmt"

	"dashdl/internal/dash"
	"dashdl/internal/media"
)

// ErrNoValidAudioStream indicates every audio candidate failed the
// decode-validity probe.
var ErrNoValidAudioStream = errors.New("no valid audio stream found")

// SelectAudio finds a structurally valid audio representation. Some
// audio representations are decoder-rejected despite being well-formed
// manifest entries, so each candidate is probed with its initialization
// segment plus one data segment from the middle of the asset before it
// is accepted. Candidates are tried from highest associated quality to
// lowest; the two extra downloads per rejected candidate are a
// deliberate cost.
func (s *Session) SelectAudio(ctx context.Context, probe media.ProbeFunc) (dash.Representation, error) {
	manifest := s.Manifest()
	probeIndex := manifest.TotalSegments / 2

	for _, candidate := range manifest.AudioCandidates {
		initBytes, err := s.client.FetchSegment(ctx,
			media.SegmentURL(manifest.BaseStreamURL, dash.Audio, candidate.StreamID, media.InitSegment))
		if err != nil {
			return dash.Representation{}, fmt.Errorf("probing audio stream %s: %w", candidate.StreamID, err)
		}
		dataBytes, err := s.client.FetchSegment(ctx,
			media.SegmentURL(manifest.BaseStreamURL, dash.Audio, candidate.StreamID, probeIndex))
		if err != nil {
			return dash.Representation{}, fmt.Errorf("probing audio stream %s: %w", candidate.StreamID, err)
		}

		if probe(append(initBytes, dataBytes...)) {
			return candidate, nil
		}
		s.logger.Debugf("skipping corrupt audio stream %s", candidate.StreamID)
	}
	return dash.Representation{}, ErrNoValidAudioStream
}
