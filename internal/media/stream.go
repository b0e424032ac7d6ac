package media

import (
	"fmt"
	"path/filepath"
	"sync"

	"dashdl/internal/dash"
)

// Stream is the capability set shared by the audio and video variants:
// a representation, an assembled output path, and the set of segment
// files downloaded so far.
//
// AddSegment is called concurrently by fetch workers; SegmentPaths is
// read by the assembler once downloading has finished.
type Stream interface {
	Representation() dash.Representation
	Path() string
	AddSegment(path string)
	SegmentPaths() []string
}

type baseStream struct {
	rep  dash.Representation
	path string

	mu       sync.Mutex
	seen     map[string]struct{}
	segments []string
}

func (s *baseStream) Representation() dash.Representation {
	return s.rep
}

func (s *baseStream) Path() string {
	return s.path
}

// AddSegment records a downloaded segment path. The collection behaves
// as a set: recording the same path twice, as a forced re-download
// does, keeps a single entry.
func (s *baseStream) AddSegment(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[path]; ok {
		return
	}
	s.seen[path] = struct{}{}
	s.segments = append(s.segments, path)
}

func (s *baseStream) SegmentPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.segments))
	copy(out, s.segments)
	return out
}

// AudioStream is the audio variant of a media stream.
type AudioStream struct {
	baseStream
}

// VideoStream is the video variant of a media stream.
type VideoStream struct {
	baseStream
	Height int
}

// NewAudio creates the runtime stream for an audio representation.
func NewAudio(rep dash.Representation, workDir string) *AudioStream {
	return &AudioStream{baseStream: newBase(rep, workDir)}
}

// NewVideo creates the runtime stream for a video representation.
func NewVideo(rep dash.Representation, workDir string) *VideoStream {
	return &VideoStream{baseStream: newBase(rep, workDir), Height: rep.Height}
}

func newBase(rep dash.Representation, workDir string) baseStream {
	name := fmt.Sprintf("%s_%s%s", rep.Type.Prefix(), rep.StreamID, DiskExt)
	return baseStream{rep: rep, path: filepath.Join(workDir, name)}
}
