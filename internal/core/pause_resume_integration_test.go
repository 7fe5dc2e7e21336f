package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/batchget/internal/engine"
	"github.com/surge-downloader/batchget/internal/engine/local"
	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/monitor"
	"github.com/surge-downloader/batchget/internal/testutil"
)

func newIntegrationService(t *testing.T, srv *testutil.MockServer, opts engine.Options) *LocalBatchService {
	t.Helper()
	opts.StepTimeout = 10 * time.Millisecond
	svc := NewLocalBatchService(&local.Engine{Client: srv.Client()}, opts, monitor.Config{Interval: 50 * time.Millisecond})
	t.Cleanup(func() { _ = svc.Shutdown() })
	return svc
}

func TestIntegration_BatchDownload(t *testing.T) {
	srv := testutil.NewMockServer()
	defer srv.Close()

	files := map[string][]byte{
		"one.bin":   testutil.RandomBytes(200 * types.KB),
		"two.bin":   testutil.RandomBytes(2 * types.MB),
		"three.txt": testutil.PatternBytes(3000),
	}
	uris := []string{"not a url"}
	for name, data := range files {
		uris = append(uris, srv.Add("/"+name, &testutil.MockFile{Data: data}))
	}

	svc := newIntegrationService(t, srv, engine.Options{Split: 4})
	stream, cleanup, err := svc.StreamSnapshots(context.Background())
	require.NoError(t, err)
	defer cleanup()

	dir := t.TempDir()
	res, err := svc.Submit(context.Background(), uris, dir)
	require.NoError(t, err)
	assert.Len(t, res.GIDs, 3)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 0, res.Failures[0].Index)

	final := waitFinal(t, stream)
	assert.Equal(t, types.ReasonDrained, final.Reason)
	assert.Equal(t, 3, final.Completed)
	assert.Equal(t, 3, final.Total)

	for name, data := range files {
		assert.NoError(t, testutil.VerifyFileContent(filepath.Join(dir, name), data), name)
	}
}

func TestIntegration_PauseResume(t *testing.T) {
	srv := testutil.NewMockServer()
	defer srv.Close()

	data := testutil.RandomBytes(384 * types.KB)
	url := srv.Add("/slow.bin", &testutil.MockFile{Data: data, Delay: 4 * time.Millisecond})

	svc := newIntegrationService(t, srv, engine.Options{Split: 1})
	stream, cleanup, err := svc.StreamSnapshots(context.Background())
	require.NoError(t, err)
	defer cleanup()

	dir := t.TempDir()
	res, err := svc.Submit(context.Background(), []string{url}, dir)
	require.NoError(t, err)
	gid := res.GIDs[0]

	// Wait until bytes are flowing
	timeout := time.After(10 * time.Second)
	for started := false; !started; {
		select {
		case snap := <-stream:
			require.False(t, snap.Final, "finished before it could be paused")
			for _, it := range snap.Items {
				if it.GID == gid && it.CompletedLength > 0 {
					started = true
				}
			}
		case <-timeout:
			t.Fatal("download never started")
		}
	}

	require.NoError(t, svc.PauseAll())
	require.Eventually(t, func() bool {
		st, _ := svc.Status()
		return st.State == types.StatePaused && len(st.Paused) == 1
	}, 5*time.Second, 5*time.Millisecond)

	// Drop what was emitted before the pause took effect, then expect silence
	for len(stream) > 0 {
		<-stream
	}
	select {
	case snap := <-stream:
		t.Fatalf("snapshot %d emitted while paused", snap.Seq)
	case <-time.After(300 * time.Millisecond):
	}
	assert.False(t, testutil.FileExists(filepath.Join(dir, "slow.bin")))

	require.NoError(t, svc.ResumeAll())
	final := waitFinal(t, stream)
	assert.Equal(t, types.ReasonDrained, final.Reason)
	assert.Equal(t, 1, final.Completed)
	assert.NoError(t, testutil.VerifyFileContent(filepath.Join(dir, "slow.bin"), data))
}

func TestIntegration_StopLeavesPartialFile(t *testing.T) {
	srv := testutil.NewMockServer()
	defer srv.Close()

	data := testutil.RandomBytes(512 * types.KB)
	url := srv.Add("/big.bin", &testutil.MockFile{Data: data, Delay: 5 * time.Millisecond})

	svc := newIntegrationService(t, srv, engine.Options{Split: 1})
	stream, cleanup, err := svc.StreamSnapshots(context.Background())
	require.NoError(t, err)
	defer cleanup()

	dir := t.TempDir()
	_, err = svc.Submit(context.Background(), []string{url}, dir)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return testutil.FileExists(filepath.Join(dir, "big.bin"+types.IncompleteSuffix))
	}, 10*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop())
	final := waitFinal(t, stream)
	assert.Equal(t, types.ReasonStopped, final.Reason)
	assert.Less(t, final.Completed, 1)

	assert.False(t, testutil.FileExists(filepath.Join(dir, "big.bin")))
	assert.True(t, testutil.FileExists(filepath.Join(dir, "big.bin"+types.IncompleteSuffix)))
}
