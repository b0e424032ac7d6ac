package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"dashdl/internal/assemble"
	"dashdl/internal/config"
	"dashdl/internal/dash"
	"dashdl/internal/delivery"
	"dashdl/internal/fetch"
	"dashdl/internal/logger"
	"dashdl/internal/media"
	"dashdl/internal/mux"
	"dashdl/internal/scene"
	"dashdl/internal/store"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36"

type silencer interface {
	Silent() bool
}

// Downloader owns the lifecycle of one download run: acquire manifest,
// select streams, resolve the segment range, fetch both streams
// concurrently, assemble, and hand off to the external muxer.
type Downloader struct {
	opts   *config.Options
	logger logger.Logger

	// Client, Muxer and Probe may be replaced before Run; tests inject
	// fakes here.
	Client *delivery.Client
	Muxer  *mux.Muxer
	Probe  media.ProbeFunc

	silent bool
}

// New creates a downloader for the given options.
func New(opts *config.Options, log logger.Logger) *Downloader {
	silent := false
	if s, ok := log.(silencer); ok {
		silent = s.Silent()
	}
	return &Downloader{
		opts:   opts,
		logger: log,
		Client: delivery.NewClient(log, defaultUserAgent),
		Muxer:  mux.New(log),
		Probe:  media.IsValidMedia,
		silent: silent,
	}
}

// Run executes the whole download. On failure it aborts without
// cleaning up already-downloaded segments: leaving them in place is
// what makes a re-run resume instead of restart.
func (d *Downloader) Run(ctx context.Context) error {
	opts := d.opts
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return err
	}
	d.logState()

	if opts.Target == config.TargetBoth {
		if err := d.Muxer.Check(); err != nil {
			return err
		}
	}

	// The output dir must exist before any download work is spent:
	// finalize is the very last step and must not be the one to find
	// out it has nowhere to write.
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir %s: %w", opts.OutputDir, err)
	}

	endpoint := delivery.Endpoint{ContentType: opts.ContentType, Host: opts.DeliveryHost}
	session, err := delivery.Open(ctx, d.Client, d.logger, endpoint, opts.AssetID, opts.TotalDurationSeconds)
	if err != nil {
		return fmt.Errorf("acquiring manifest: %w", err)
	}
	manifest := session.Manifest()
	d.logger.Infof("Available video resolutions: %v", manifest.AvailableHeights())
	d.logger.Infof("Total segments: %d", manifest.TotalSegments+1) // +1 for the init segment

	st, err := store.Open(d.logger, opts.WorkDir, opts.AssetID)
	if err != nil {
		return err
	}

	streams, videoHeight, err := d.selectStreams(ctx, session, st)
	if err != nil {
		return err
	}

	rng := d.resolveRange(manifest)
	d.logger.Infof("Downloading segments %d - %d", rng.Start, rng.End)

	if err := d.fetchStreams(ctx, session, st, streams, rng); err != nil {
		return err
	}
	if err := d.assembleStreams(streams); err != nil {
		return err
	}

	outputPath := d.outputPath(videoHeight)
	if err := d.finalize(ctx, streams, outputPath); err != nil {
		return err
	}

	d.cleanup(st, streams)
	d.logger.Infof("Success: %s", outputPath)
	return nil
}

// selectStreams picks the representations to download according to the
// target-stream mode and builds their runtime streams.
func (d *Downloader) selectStreams(ctx context.Context, session *delivery.Session, st *store.Store) ([]media.Stream, int, error) {
	opts := d.opts
	manifest := session.Manifest()

	var streams []media.Stream
	videoHeight := 0

	if opts.Target != config.TargetVideo {
		rep, err := session.SelectAudio(ctx, d.Probe)
		if err != nil {
			return nil, 0, fmt.Errorf("selecting audio stream: %w", err)
		}
		d.logger.Debugf("selected audio stream %s", rep.StreamID)
		streams = append(streams, media.NewAudio(rep, st.Dir()))
	}
	if opts.Target != config.TargetAudio {
		targetHeight := opts.TargetHeight
		switch targetHeight {
		case config.HeightHighest:
			targetHeight = dash.HeightHighest
		case config.HeightLowest:
			targetHeight = dash.HeightLowest
		}
		rep, err := dash.SelectVideo(manifest.VideoLadder, targetHeight, opts.ForceResolution)
		if err != nil {
			return nil, 0, fmt.Errorf("selecting video stream: %w", err)
		}
		d.logger.Debugf("selected video stream %s (%dp)", rep.StreamID, rep.Height)
		videoHeight = rep.Height
		streams = append(streams, media.NewVideo(rep, st.Dir()))
	}
	return streams, videoHeight, nil
}

// resolveRange converts the configured request into a concrete segment
// range: explicit overrides win, then an external scene sub-range, then
// the whole asset.
func (d *Downloader) resolveRange(manifest *dash.Manifest) scene.Range {
	opts := d.opts
	resolver := scene.Resolver{
		SegmentDuration:      manifest.SegmentDuration,
		TotalSegments:        manifest.TotalSegments,
		TotalDurationSeconds: opts.TotalDurationSeconds,
	}
	switch {
	case opts.HasRangeOverride():
		return resolver.FromOverride(opts.StartSegment, opts.EndSegment)
	case opts.HasScene():
		return resolver.FromScene(scene.Scene{
			StartSeconds: opts.SceneStartSeconds,
			EndSeconds:   opts.SceneEndSeconds,
		}, opts.ScenePaddingSeconds)
	default:
		return resolver.Whole()
	}
}

// fetchStreams downloads every stream concurrently. The streams are
// independent: one stream's failure does not cancel the other, but any
// failure aborts the run before assembly.
func (d *Downloader) fetchStreams(ctx context.Context, session *delivery.Session, st *store.Store, streams []media.Stream, rng scene.Range) error {
	fetcher := fetch.New(d.Client, session, st, d.logger)
	fetcher.Threads = d.opts.Threads
	fetcher.Overwrite = d.opts.OverwriteExisting
	fetcher.ValidityCheck = d.opts.ValidityCheck
	fetcher.Probe = d.Probe
	fetcher.Silent = d.silent

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, stream := range streams {
		wg.Add(1)
		go func(s media.Stream) {
			defer wg.Done()
			effective, err := fetcher.FetchStream(ctx, s, rng)
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("%s stream: %w", s.Representation().Type, err))
				mu.Unlock()
				return
			}
			d.logger.Debugf("%s stream complete, effective segments %d-%d",
				s.Representation().Type, effective.Start, effective.End)
		}(stream)
	}
	wg.Wait()
	return result.ErrorOrNil()
}

// assembleStreams concatenates each stream's segments, in parallel.
func (d *Downloader) assembleStreams(streams []media.Stream) error {
	assembler := assemble.New(d.logger)
	assembler.Aggressive = d.opts.AggressiveCleanup
	assembler.Silent = d.silent

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, stream := range streams {
		wg.Add(1)
		go func(s media.Stream) {
			defer wg.Done()
			if err := assembler.Assemble(s); err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("assembling %s stream: %w", s.Representation().Type, err))
				mu.Unlock()
			}
		}(stream)
	}
	wg.Wait()
	return result.ErrorOrNil()
}

// finalize muxes audio and video into the output container, or renames
// the single assembled stream when only one was requested. A muxed file
// is never produced from an incomplete segment set: every earlier error
// has already aborted the run.
func (d *Downloader) finalize(ctx context.Context, streams []media.Stream, outputPath string) error {
	if len(streams) == 2 {
		d.logger.Infof("Muxing streams with ffmpeg")
		if err := d.Muxer.Mux(ctx, streams[0].Path(), streams[1].Path(), outputPath); err != nil {
			return err
		}
		return nil
	}

	if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale output %s: %w", outputPath, err)
	}
	if err := os.Rename(streams[0].Path(), outputPath); err != nil {
		return fmt.Errorf("moving %s stream to output: %w", streams[0].Representation().Type, err)
	}
	return nil
}

// cleanup deletes the per-asset working files after a successful run.
// Failures here are warnings: the output file already exists.
func (d *Downloader) cleanup(st *store.Store, streams []media.Stream) {
	if d.opts.KeepSegments {
		return
	}
	var result *multierror.Error
	for _, stream := range streams {
		if err := st.RemoveAll(stream.SegmentPaths()); err != nil {
			result = multierror.Append(result, err)
		}
		if err := st.Remove(stream.Path()); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := st.RemoveDirIfEmpty(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		d.logger.Warnf("work folder cleanup: %v", err)
		return
	}
	d.logger.Infof("Deleted temp files")
}

func (d *Downloader) outputPath(videoHeight int) string {
	name := d.opts.OutputName
	if d.opts.Target != config.TargetBoth {
		name = fmt.Sprintf("[%s] %s", d.opts.Target, name)
	}
	if videoHeight > 0 {
		name = fmt.Sprintf("%s %dp", name, videoHeight)
	}
	return filepath.Join(d.opts.OutputDir, name+media.DiskExt)
}

func (d *Downloader) logState() {
	opts := d.opts
	d.logger.Infof("Asset: %s", opts.AssetID)
	d.logger.Infof("Threads: %d", opts.Threads)
	d.logger.Infof("Output dir: %s", opts.OutputDir)
	d.logger.Infof("Work dir: %s", opts.WorkDir)
	if opts.Target != config.TargetBoth {
		d.logger.Infof("Target stream: %s", opts.Target)
	}
	if opts.AggressiveCleanup {
		d.logger.Infof("Aggressive cleanup enabled, segments will be deleted during assembly")
	}
	switch opts.TargetHeight {
	case config.HeightHighest:
		d.logger.Infof("Target resolution: Highest")
	case config.HeightLowest:
		d.logger.Infof("Target resolution: Lowest")
	default:
		d.logger.Infof("Target resolution: %d", opts.TargetHeight)
	}
}
