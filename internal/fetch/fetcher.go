package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"dashdl/internal/dash"
	"dashdl/internal/delivery"
	"dashdl/internal/logger"
	"dashdl/internal/media"
	"dashdl/internal/scene"
	"dashdl/internal/store"
)

// errPastEnd marks the tolerated case of a 404 on exactly the
// over-estimated final segment index. It shrinks the effective range
// instead of failing the stream.
var errPastEnd = errors.New("segment index past effective end")

// Fetcher downloads the segments of one or more streams using a
// bounded worker pool per stream. Failures on a segment cancel the
// stream's sibling tasks; an expired signed URL triggers a single
// manifest refresh shared by every in-flight task.
type Fetcher struct {
	client  *delivery.Client
	session *delivery.Session
	store   *store.Store
	logger  logger.Logger

	// Threads is the worker pool size per stream.
	Threads int
	// Overwrite forces re-downloading segments already on disk.
	Overwrite bool
	// ValidityCheck probes every data segment against the stream's
	// initialization segment after saving, re-downloading once on a
	// failed probe. Trades throughput for end-to-end integrity.
	ValidityCheck bool
	// Probe is the decode-validity probe used by ValidityCheck.
	Probe media.ProbeFunc
	// Silent suppresses the progress bar.
	Silent bool
}

// New creates a fetcher bound to a delivery session and a segment store.
func New(client *delivery.Client, session *delivery.Session, st *store.Store, log logger.Logger) *Fetcher {
	return &Fetcher{
		client:  client,
		session: session,
		store:   st,
		logger:  log,
		Threads: 1,
		Probe:   media.IsValidMedia,
	}
}

// FetchStream downloads the initialization segment plus every data
// segment in rng for the stream. It returns the effective range, which
// shrinks by one at the tail when the over-estimated final segment
// turns out not to exist.
func (f *Fetcher) FetchStream(ctx context.Context, stream media.Stream, rng scene.Range) (scene.Range, error) {
	rep := stream.Representation()
	f.logger.Debugf("downloading %s stream, id %s, segments %d-%d", rep.Type, rep.StreamID, rng.Start, rng.End)

	// The initialization segment comes first and synchronously: every
	// data segment depends on its decode context.
	initBytes, err := f.fetchSegment(ctx, stream, media.InitSegment, f.Overwrite, f.ValidityCheck)
	if err != nil {
		return rng, fmt.Errorf("%s initialization segment: %w", rep.Type, err)
	}

	bar := f.newBar(rep.Type, rng.Count()+1)
	_ = bar.Add(1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		errMu.Unlock()
	}

	var effectiveEnd atomic.Int64
	effectiveEnd.Store(int64(rng.End))

	workers := f.Threads
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				if ctx.Err() != nil {
					continue
				}
				err := f.fetchData(ctx, stream, index, initBytes)
				switch {
				case errors.Is(err, errPastEnd):
					f.logger.Debugf("last segment %d is 404, skipping", index)
					effectiveEnd.Store(int64(index - 1))
					_ = bar.Add(1)
				case err != nil:
					fail(fmt.Errorf("%s segment %d: %w", rep.Type, index, err))
				default:
					_ = bar.Add(1)
				}
			}
		}()
	}

feed:
	for index := rng.Start; index <= rng.End; index++ {
		select {
		case jobs <- index:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	_ = bar.Finish()

	if firstErr != nil {
		return rng, firstErr
	}
	rng.End = int(effectiveEnd.Load())
	return rng, nil
}

// fetchData downloads one data segment, applying the optional validity
// re-check: a failed probe deletes the segment and re-downloads it once
// with a forced overwrite; a second failure is fatal.
func (f *Fetcher) fetchData(ctx context.Context, stream media.Stream, index int, initBytes []byte) error {
	data, err := f.fetchSegment(ctx, stream, index, f.Overwrite, f.ValidityCheck)
	if err != nil || !f.ValidityCheck {
		return err
	}

	if f.Probe(concat(initBytes, data)) {
		return nil
	}
	rep := stream.Representation()
	f.logger.Infof("%s segment %d failed the validity probe, re-downloading", rep.Type, index)

	data, err = f.fetchSegment(ctx, stream, index, true, true)
	if err != nil {
		return err
	}
	if !f.Probe(concat(initBytes, data)) {
		return fmt.Errorf("segment %s invalid after re-download",
			media.SegmentName(rep.Type, rep.StreamID, index))
	}
	return nil
}

// fetchSegment performs one segment fetch with the recovery protocol
// for expired authorization: on a 403, acquire the shared refresh gate,
// refresh the manifest at most once per failure burst, and retry the
// fetch against the refreshed base URL. A second 403 is fatal.
func (f *Fetcher) fetchSegment(ctx context.Context, stream media.Stream, index int, overwrite, wantBytes bool) ([]byte, error) {
	data, manifest, err := f.fetchOnce(ctx, stream, index, overwrite, wantBytes)
	if !errors.Is(err, delivery.ErrForbidden) {
		return data, err
	}

	rep := stream.Representation()
	f.logger.Debugf("%s segment %d forbidden, requesting manifest refresh",
		rep.Type, index)
	if rerr := f.session.RefreshIfStale(ctx, manifest); rerr != nil {
		return nil, fmt.Errorf("manifest refresh: %w", rerr)
	}

	data, _, err = f.fetchOnce(ctx, stream, index, overwrite, wantBytes)
	if errors.Is(err, delivery.ErrForbidden) {
		return nil, fmt.Errorf("still forbidden after manifest refresh: %w", err)
	}
	return data, err
}

// fetchOnce performs a single fetch attempt. It re-reads the manifest
// from the session so a refresh that happened while this task waited on
// the gate is observed, never a cached base URL.
func (f *Fetcher) fetchOnce(ctx context.Context, stream media.Stream, index int, overwrite, wantBytes bool) ([]byte, *dash.Manifest, error) {
	manifest := f.session.Manifest()
	rep := stream.Representation()
	name := media.SegmentName(rep.Type, rep.StreamID, index)

	if !overwrite && f.store.Has(name) {
		f.logger.Debugf("%s found on disk", name)
		stream.AddSegment(f.store.SegmentPath(name))
		if !wantBytes {
			return nil, manifest, nil
		}
		data, err := f.store.Read(name)
		return data, manifest, err
	}

	data, err := f.client.FetchSegment(ctx, media.SegmentURL(manifest.BaseStreamURL, rep.Type, rep.StreamID, index))
	if err != nil {
		if errors.Is(err, delivery.ErrNotFound) && index == manifest.TotalSegments {
			// The segment count is a ceiling over-estimate; the final
			// index is allowed to be missing.
			return nil, manifest, errPastEnd
		}
		return nil, manifest, err
	}

	path, err := f.store.Write(name, data)
	if err != nil {
		return nil, manifest, err
	}
	stream.AddSegment(path)
	f.logger.Debugf("%s saved to disk (%s)", name, humanize.Bytes(uint64(len(data))))
	return data, manifest, nil
}

func (f *Fetcher) newBar(t dash.MediaType, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(fmt.Sprintf("%s download", t)),
		progressbar.OptionSetVisibility(!f.Silent),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
