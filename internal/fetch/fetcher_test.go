package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashdl/internal/dash"
	"dashdl/internal/delivery"
	"dashdl/internal/logger"
	"dashdl/internal/media"
	"dashdl/internal/scene"
	"dashdl/internal/store"
)

const testManifest = `<MPD><Period>
  <AdaptationSet mimeType="video/mp4">
    <SegmentTemplate timescale="1" duration="10"/>
    <Representation id="301" height="480"/>
  </AdaptationSet>
  <AdaptationSet mimeType="audio/mp4">
    <Representation id="301"/>
  </AdaptationSet>
</Period></MPD>`

// origin fakes the deliver endpoint and the segment CDN. Signed URLs
// carry a generation number so an expired generation can answer 403
// while the refreshed one serves normally.
type origin struct {
	srv      *httptest.Server
	acquires atomic.Int64

	mu          sync.Mutex
	segments    map[string][]byte
	missing     map[string]bool
	corruptOnce map[string]bool
	expired     map[int64]bool
	hits        map[string]int
}

func newOrigin(t *testing.T) *origin {
	t.Helper()
	o := &origin{
		segments:    make(map[string][]byte),
		missing:     make(map[string]bool),
		corruptOnce: make(map[string]bool),
		expired:     make(map[int64]bool),
		hits:        make(map[string]int),
	}
	o.srv = httptest.NewServer(http.HandlerFunc(o.handle))
	t.Cleanup(o.srv.Close)
	return o
}

func (o *origin) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/movies/deliver" {
		n := o.acquires.Add(1)
		fmt.Fprintf(w, `{"url": "%s/signed%d/manifest.mpd"}`, o.srv.URL, n)
		return
	}
	if strings.HasSuffix(r.URL.Path, ".mpd") {
		w.Write([]byte(testManifest))
		return
	}

	// /signed{N}/{name}.mp4d
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(parts) != 2 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	gen, _ := strconv.ParseInt(strings.TrimPrefix(parts[0], "signed"), 10, 64)
	name := strings.TrimSuffix(parts[1], ".mp4d")

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.expired[gen] {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	o.hits[name]++
	if o.missing[name] {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	data, ok := o.segments[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if o.corruptOnce[name] && o.hits[name] == 1 {
		w.Write([]byte("CORRUPT"))
		return
	}
	w.Write(data)
}

// fillAudio registers the init segment and data segments 0..count-1 for
// audio stream 301.
func (o *origin) fillAudio(count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.segments["ai_301"] = []byte("INIT")
	for i := 0; i < count; i++ {
		o.segments[fmt.Sprintf("a_301_%d", i)] = []byte(fmt.Sprintf("seg%d", i))
	}
}

func (o *origin) segmentHits(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[name]
}

func (o *origin) totalSegmentHits() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, n := range o.hits {
		total += n
	}
	return total
}

type fixture struct {
	origin  *origin
	session *delivery.Session
	store   *store.Store
	fetcher *Fetcher
	stream  *media.AudioStream
}

// newFixture opens a session against the fake origin with a 95 second
// asset: 10 segments of 10 seconds, whole range 0-10 with the final
// index over-estimated.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	o := newOrigin(t)
	client := delivery.NewClient(logger.Nop(), "test-agent")
	endpoint := delivery.Endpoint{ContentType: "movies", Host: o.srv.URL}
	session, err := delivery.Open(context.Background(), client, logger.Nop(), endpoint, "asset42", 95)
	require.NoError(t, err)

	st, err := store.Open(logger.Nop(), t.TempDir(), "asset42")
	require.NoError(t, err)

	f := New(client, session, st, logger.Nop())
	f.Threads = 4
	f.Silent = true

	stream := media.NewAudio(dash.Representation{StreamID: "301", Type: dash.Audio}, st.Dir())
	return &fixture{origin: o, session: session, store: st, fetcher: f, stream: stream}
}

func (fx *fixture) wholeRange() scene.Range {
	m := fx.session.Manifest()
	r := scene.Resolver{SegmentDuration: m.SegmentDuration, TotalSegments: m.TotalSegments}
	return r.Whole()
}

func TestFetchStreamWhole(t *testing.T) {
	fx := newFixture(t)
	fx.origin.fillAudio(10)

	got, err := fx.fetcher.FetchStream(context.Background(), fx.stream, fx.wholeRange())
	require.NoError(t, err)

	// Index 10 is the ceiling over-estimate; its 404 shrinks the end.
	assert.Equal(t, scene.Range{Start: 0, End: 9}, got)

	paths := fx.stream.SegmentPaths()
	assert.Len(t, paths, 11) // init + 10 data segments
	assert.True(t, fx.store.Has("ai_301"))
	for i := 0; i < 10; i++ {
		assert.True(t, fx.store.Has(fmt.Sprintf("a_301_%d", i)), "segment %d", i)
	}
	assert.False(t, fx.store.Has("a_301_10"))
}

func TestFetchStreamSubRange(t *testing.T) {
	fx := newFixture(t)
	fx.origin.fillAudio(10)

	got, err := fx.fetcher.FetchStream(context.Background(), fx.stream, scene.Range{Start: 3, End: 6})
	require.NoError(t, err)
	assert.Equal(t, scene.Range{Start: 3, End: 6}, got)

	assert.Len(t, fx.stream.SegmentPaths(), 5)
	assert.True(t, fx.store.Has("ai_301"))
	assert.False(t, fx.store.Has("a_301_0"))
	assert.True(t, fx.store.Has("a_301_3"))
	assert.True(t, fx.store.Has("a_301_6"))
	assert.False(t, fx.store.Has("a_301_7"))
}

func TestFetchStreamMissingMiddleSegmentFatal(t *testing.T) {
	fx := newFixture(t)
	fx.origin.fillAudio(10)
	fx.origin.mu.Lock()
	fx.origin.missing["a_301_5"] = true
	fx.origin.mu.Unlock()

	_, err := fx.fetcher.FetchStream(context.Background(), fx.stream, fx.wholeRange())
	require.Error(t, err)
	assert.ErrorIs(t, err, delivery.ErrNotFound)
	assert.Contains(t, err.Error(), "segment 5")
}

func TestFetchStreamExpiredURLRefreshesOnce(t *testing.T) {
	fx := newFixture(t)
	fx.origin.fillAudio(10)
	// The init segment is already on disk, so every worker goes to the
	// network at once and the whole pool hits the expired URL together.
	_, err := fx.store.Write("ai_301", []byte("INIT"))
	require.NoError(t, err)
	fx.origin.mu.Lock()
	fx.origin.expired[1] = true
	fx.origin.mu.Unlock()

	got, err := fx.fetcher.FetchStream(context.Background(), fx.stream, fx.wholeRange())
	require.NoError(t, err)
	assert.Equal(t, scene.Range{Start: 0, End: 9}, got)

	// One acquire for Open, exactly one more for the whole 403 burst,
	// no matter how many workers hit the expired URL.
	assert.EqualValues(t, 2, fx.origin.acquires.Load())
}

func TestFetchStreamSecondForbiddenFatal(t *testing.T) {
	fx := newFixture(t)
	fx.origin.fillAudio(10)
	fx.origin.mu.Lock()
	fx.origin.expired[1] = true
	fx.origin.expired[2] = true
	fx.origin.mu.Unlock()

	_, err := fx.fetcher.FetchStream(context.Background(), fx.stream, fx.wholeRange())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still forbidden after manifest refresh")
}

func TestFetchStreamResumeSkipsDisk(t *testing.T) {
	fx := newFixture(t)
	fx.origin.fillAudio(10)

	_, err := fx.store.Write("ai_301", []byte("INIT"))
	require.NoError(t, err)
	for i := 0; i <= 6; i++ {
		_, err := fx.store.Write(fmt.Sprintf("a_301_%d", i), []byte("x"))
		require.NoError(t, err)
	}

	got, err := fx.fetcher.FetchStream(context.Background(), fx.stream, scene.Range{Start: 0, End: 6})
	require.NoError(t, err)
	assert.Equal(t, scene.Range{Start: 0, End: 6}, got)

	// Everything was on disk: not a single segment request went out.
	assert.Equal(t, 0, fx.origin.totalSegmentHits())
	assert.Len(t, fx.stream.SegmentPaths(), 8)
}

func TestFetchStreamOverwriteIgnoresDisk(t *testing.T) {
	fx := newFixture(t)
	fx.origin.fillAudio(10)

	_, err := fx.store.Write("a_301_0", []byte("stale"))
	require.NoError(t, err)

	fx.fetcher.Overwrite = true
	_, err = fx.fetcher.FetchStream(context.Background(), fx.stream, scene.Range{Start: 0, End: 0})
	require.NoError(t, err)

	data, err := fx.store.Read("a_301_0")
	require.NoError(t, err)
	assert.Equal(t, []byte("seg0"), data)
}

func TestFetchStreamValidityRecheck(t *testing.T) {
	fx := newFixture(t)
	fx.origin.fillAudio(10)
	fx.origin.mu.Lock()
	fx.origin.corruptOnce["a_301_3"] = true
	fx.origin.mu.Unlock()

	fx.fetcher.ValidityCheck = true
	fx.fetcher.Probe = func(data []byte) bool {
		return !bytes.Contains(data, []byte("CORRUPT"))
	}

	got, err := fx.fetcher.FetchStream(context.Background(), fx.stream, fx.wholeRange())
	require.NoError(t, err)
	assert.Equal(t, scene.Range{Start: 0, End: 9}, got)

	// The corrupt segment was fetched twice, its siblings once.
	assert.Equal(t, 2, fx.origin.segmentHits("a_301_3"))
	assert.Equal(t, 1, fx.origin.segmentHits("a_301_4"))

	data, err := fx.store.Read("a_301_3")
	require.NoError(t, err)
	assert.Equal(t, []byte("seg3"), data)
}

func TestFetchStreamValidityRecheckSecondFailureFatal(t *testing.T) {
	fx := newFixture(t)
	fx.origin.fillAudio(10)

	fx.fetcher.ValidityCheck = true
	fx.fetcher.Probe = func(data []byte) bool {
		return !bytes.Contains(data, []byte("seg3"))
	}

	_, err := fx.fetcher.FetchStream(context.Background(), fx.stream, fx.wholeRange())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid after re-download")
}

func TestFetchStreamMissingInitFatal(t *testing.T) {
	fx := newFixture(t)
	// No segments registered at all.
	_, err := fx.fetcher.FetchStream(context.Background(), fx.stream, fx.wholeRange())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialization segment")
}

func TestFetchStreamCancelled(t *testing.T) {
	fx := newFixture(t)
	fx.origin.fillAudio(10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fx.fetcher.FetchStream(ctx, fx.stream, fx.wholeRange())
	assert.Error(t, err)
}
