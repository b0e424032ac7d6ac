package config

import (
	"fmt"
	"os"
)

// Stream selection policy values for TargetHeight.
const (
	// HeightLowest selects the smallest available resolution.
	HeightLowest = 0
	// HeightHighest selects the largest available resolution.
	HeightHighest = -1
)

// TargetStream restricts a run to a single stream type.
type TargetStream string

const (
	// TargetBoth downloads audio and video and muxes them.
	TargetBoth TargetStream = ""
	// TargetAudio downloads only the audio stream.
	TargetAudio TargetStream = "audio"
	// TargetVideo downloads only the video stream.
	TargetVideo TargetStream = "video"
)

// Options holds the fully processed configuration for one download run.
type Options struct {
	// AssetID identifies the asset at the delivery endpoint.
	AssetID string
	// ContentType is the delivery endpoint's content-type path component,
	// e.g. "straight" in https://straight.example-cdn/straight/deliver.
	ContentType string
	// DeliveryHost is the host suffix of the delivery endpoint.
	DeliveryHost string
	// TotalDurationSeconds is the asset's total duration as reported by
	// the metadata source.
	TotalDurationSeconds float64

	// TargetHeight selects the video resolution: HeightHighest,
	// HeightLowest, or a concrete pixel height.
	TargetHeight int
	// ForceResolution makes a missing exact TargetHeight fatal instead of
	// falling back to the nearest lower height.
	ForceResolution bool
	// Target restricts the run to one stream type.
	Target TargetStream

	// StartSegment and EndSegment override the computed segment range.
	// Negative values mean "not set".
	StartSegment int
	EndSegment   int

	// SceneStartSeconds and SceneEndSeconds select a sub-range of the
	// asset by timing. Supplied by an external scene source. Negative
	// values mean "not set".
	SceneStartSeconds float64
	SceneEndSeconds   float64
	// ScenePaddingSeconds widens the scene symmetrically, clamped to the
	// asset duration.
	ScenePaddingSeconds float64

	// OutputDir receives the final muxed file.
	OutputDir string
	// WorkDir holds the per-asset working directory with raw segments.
	WorkDir string
	// OutputName is the base name (without extension) of the final file.
	OutputName string

	// Threads is the per-stream segment download concurrency.
	Threads int
	// OverwriteExisting re-downloads segments already present on disk.
	OverwriteExisting bool
	// KeepSegments leaves raw segment files in place after a run.
	KeepSegments bool
	// AggressiveCleanup deletes each segment file right after it has been
	// concatenated instead of during the final cleanup pass.
	AggressiveCleanup bool
	// ValidityCheck probes every saved data segment and re-downloads it
	// once on a failed probe.
	ValidityCheck bool

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// DefaultThreads is the per-stream download concurrency used when none
// is configured. Kept small to avoid remote-side throttling.
const DefaultThreads = 5

// ApplyDefaults fills unset fields with their defaults.
func (o *Options) ApplyDefaults() {
	if o.Threads < 1 {
		o.Threads = DefaultThreads
	}
	if o.OutputDir == "" {
		o.OutputDir, _ = os.Getwd()
	}
	if o.WorkDir == "" {
		o.WorkDir = o.OutputDir
	}
	if o.OutputName == "" {
		o.OutputName = o.AssetID
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
}

// Validate checks the options for inconsistencies that would make a run
// impossible. It must be called after ApplyDefaults.
func (o *Options) Validate() error {
	if o.AssetID == "" {
		return fmt.Errorf("asset ID must not be empty")
	}
	if o.ContentType == "" {
		return fmt.Errorf("content type must not be empty")
	}
	if o.DeliveryHost == "" {
		return fmt.Errorf("delivery host must not be empty")
	}
	if o.TotalDurationSeconds <= 0 {
		return fmt.Errorf("total duration must be positive, got %v", o.TotalDurationSeconds)
	}
	switch o.Target {
	case TargetBoth, TargetAudio, TargetVideo:
	default:
		return fmt.Errorf("invalid target stream %q", o.Target)
	}
	if o.StartSegment >= 0 && o.EndSegment >= 0 && o.EndSegment < o.StartSegment {
		return fmt.Errorf("end segment %d precedes start segment %d", o.EndSegment, o.StartSegment)
	}
	if (o.SceneStartSeconds >= 0) != (o.SceneEndSeconds >= 0) {
		return fmt.Errorf("scene start and scene end must be supplied together")
	}
	if o.HasScene() && o.SceneEndSeconds < o.SceneStartSeconds {
		return fmt.Errorf("scene end %v precedes scene start %v", o.SceneEndSeconds, o.SceneStartSeconds)
	}
	return nil
}

// HasScene reports whether an external scene sub-range was supplied.
func (o *Options) HasScene() bool {
	return o.SceneStartSeconds >= 0 && o.SceneEndSeconds >= 0
}

// HasRangeOverride reports whether explicit segment indices were supplied.
func (o *Options) HasRangeOverride() bool {
	return o.StartSegment >= 0 || o.EndSegment >= 0
}
