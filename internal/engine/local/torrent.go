package local

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"golang.org/x/time/rate"

	"github.com/surge-downloader/batchget/internal/engine"
	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/source"
	"github.com/surge-downloader/batchget/internal/utils"
)

const torrentPollInterval = 250 * time.Millisecond

// torrentManager owns the session's BitTorrent client. The client is only
// created once the first magnet or .torrent item starts.
type torrentManager struct {
	opts    engine.Options
	limiter *rate.Limiter

	mu       sync.Mutex
	client   *torrent.Client
	torrents map[types.GID]*torrent.Torrent
	closed   bool
}

func newTorrentManager(opts engine.Options, limiter *rate.Limiter) *torrentManager {
	return &torrentManager{
		opts:     opts,
		limiter:  limiter,
		torrents: make(map[types.GID]*torrent.Torrent),
	}
}

func (m *torrentManager) clientLocked() (*torrent.Client, error) {
	if m.closed {
		return nil, errSessionClosed
	}
	if m.client != nil {
		return m.client, nil
	}

	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = m.opts.Dir
	cfg.ListenPort = 0
	cfg.Seed = false
	if m.limiter != nil {
		cfg.DownloadRateLimiter = m.limiter
	}

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create torrent client: %w", err)
	}
	m.client = client
	utils.Debug("engine: torrent client started in %s", m.opts.Dir)
	return client, nil
}

// add returns the torrent for gid, registering it with the client on first use.
func (m *torrentManager) add(ctx context.Context, httpClient *http.Client, gid types.GID, uri string) (*torrent.Torrent, error) {
	m.mu.Lock()
	if t, ok := m.torrents[gid]; ok {
		m.mu.Unlock()
		return t, nil
	}
	client, err := m.clientLocked()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var t *torrent.Torrent
	if source.IsMagnet(uri) {
		t, err = client.AddMagnet(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to add magnet: %w", err)
		}
	} else {
		mi, err := fetchMetainfo(ctx, httpClient, uri)
		if err != nil {
			return nil, err
		}
		t, err = client.AddTorrent(mi)
		if err != nil {
			return nil, fmt.Errorf("failed to add torrent: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errSessionClosed
	}
	m.torrents[gid] = t
	return t, nil
}

func (m *torrentManager) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.client == nil {
		return nil
	}
	m.client.Close()
	m.client = nil
	m.torrents = make(map[types.GID]*torrent.Torrent)
	return nil
}

func fetchMetainfo(ctx context.Context, client *http.Client, uri string) (*metainfo.MetaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch torrent: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch torrent: unexpected status code: %d", resp.StatusCode)
	}
	mi, err := metainfo.Load(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse torrent: %w", err)
	}
	return mi, nil
}

// runTorrent drives a magnet or .torrent item until all data is present.
// Pausing cancels ctx, which stops data requests without dropping the torrent.
func (s *Session) runTorrent(ctx context.Context, it *item) error {
	t, err := s.torrents.add(ctx, s.client, it.gid, it.uri)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	t.AllowDataDownload()

	select {
	case <-t.GotInfo():
	case <-t.Closed():
		return errors.New("torrent closed before metadata arrived")
	case <-ctx.Done():
		t.DisallowDataDownload()
		return ctx.Err()
	}

	info := t.Info()
	if info == nil {
		return errors.New("failed to get torrent info")
	}
	total := info.TotalLength()
	it.progress.SetName(t.Name())
	it.progress.SetTotalSize(total)
	s.mu.Lock()
	if it.destPath == "" {
		it.destPath = s.opts.Dir
	}
	s.mu.Unlock()
	s.journalItem(it)

	t.DownloadAll()

	ticker := time.NewTicker(torrentPollInterval)
	defer ticker.Stop()
	for {
		done := t.BytesCompleted()
		if done > it.progress.Downloaded.Load() {
			it.progress.Downloaded.Store(done)
		}
		if done >= total {
			utils.Debug("engine: torrent %s complete", it.gid)
			return nil
		}

		select {
		case <-ticker.C:
		case <-t.Closed():
			return errors.New("torrent closed")
		case <-ctx.Done():
			t.DisallowDataDownload()
			return ctx.Err()
		}
	}
}
