package media

import (
	"bytes"
	"errors"
	"io"

	mp4 "github.com/yapingcat/gomedia/go-mp4"
)

// ProbeFunc reports whether a buffer of media bytes demuxes cleanly.
// The fetcher and the audio selector take it as a dependency so tests
// can substitute a deterministic probe.
type ProbeFunc func(data []byte) bool

// IsValidMedia feeds the bytes through an MP4 demuxer and reports
// whether every packet can be read back out. Structurally corrupt
// representations pass manifest-level checks but fail here.
//
// Callers probe the concatenation of a representation's initialization
// segment and one data segment; the data segment cannot be demuxed
// without the decode context carried by the init segment.
func IsValidMedia(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	demuxer := mp4.CreateMp4Demuxer(bytes.NewReader(data))
	if _, err := demuxer.ReadHead(); err != nil {
		return false
	}
	for {
		_, err := demuxer.ReadPacket()
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			return false
		}
	}
}
