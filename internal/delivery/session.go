package delivery

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"dashdl/internal/dash"
	"dashdl/internal/logger"
)

// Session is the refreshable handle to an asset's manifest. The
// manifest is held behind an atomic pointer so in-flight segment tasks
// can re-read BaseStreamURL and TotalSegments after a refresh without
// racing the swap.
//
// Refresh is guarded by a mutex shared by every task of a fetch
// operation: a burst of simultaneous authorization failures collapses
// into exactly one refresh.
type Session struct {
	client   *Client
	logger   logger.Logger
	endpoint Endpoint
	assetID  string

	// totalDuration comes from the external metadata source and stays
	// fixed across refreshes.
	totalDuration float64

	refreshMu sync.Mutex
	manifest  atomic.Pointer[dash.Manifest]
}

// Open acquires a signed manifest URL for the asset, fetches and parses
// the manifest, and returns a handle that can refresh it on demand.
func Open(ctx context.Context, client *Client, log logger.Logger, endpoint Endpoint, assetID string, totalDurationSeconds float64) (*Session, error) {
	s := &Session{
		client:        client,
		logger:        log,
		endpoint:      endpoint,
		assetID:       assetID,
		totalDuration: totalDurationSeconds,
	}
	manifest, err := s.fetchManifest(ctx)
	if err != nil {
		return nil, err
	}
	s.manifest.Store(manifest)
	return s, nil
}

// Manifest returns the current manifest. Callers that held an older
// manifest across a refresh boundary must call this again rather than
// reuse cached fields.
func (s *Session) Manifest() *dash.Manifest {
	return s.manifest.Load()
}

// Refresh unconditionally re-executes the acquire and parse exchange,
// replacing the current manifest.
func (s *Session) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refreshLocked(ctx)
}

// RefreshIfStale refreshes the manifest only if stale is still the
// current one. Segment tasks pass the manifest they were using when
// they hit an authorization failure; whichever task enters the gate
// first performs the refresh and the rest observe the already-swapped
// manifest and return immediately.
func (s *Session) RefreshIfStale(ctx context.Context, stale *dash.Manifest) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if s.manifest.Load() != stale {
		// Another task already refreshed.
		return nil
	}
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	manifest, err := s.fetchManifest(ctx)
	if err != nil {
		return err
	}
	s.manifest.Store(manifest)
	s.logger.Debugf("manifest refreshed, base url %s", manifest.BaseStreamURL)
	return nil
}

func (s *Session) fetchManifest(ctx context.Context) (*dash.Manifest, error) {
	signedURL, err := s.client.Acquire(ctx, s.endpoint, s.assetID)
	if err != nil {
		return nil, err
	}
	s.logger.Debugf("signed manifest url: %s", signedURL)

	body, err := s.client.FetchDocument(ctx, signedURL)
	if err != nil {
		return nil, err
	}
	return dash.Parse(body, baseStreamURL(signedURL), s.totalDuration)
}

// baseStreamURL strips the final path element from the signed manifest
// URL; segment URLs live underneath what remains.
func baseStreamURL(manifestURL string) string {
	if i := strings.LastIndex(manifestURL, "/"); i >= 0 {
		return manifestURL[:i]
	}
	return manifestURL
}
