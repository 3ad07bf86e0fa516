package download

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patlar104/GlobalTranslation/internal/apperr"
	"github.com/patlar104/GlobalTranslation/internal/languages"
	"github.com/patlar104/GlobalTranslation/internal/network"
	"github.com/patlar104/GlobalTranslation/internal/translation"
)

type fakeService struct {
	mu            sync.Mutex
	downloaded    map[string]bool
	downloadErr   error
	downloadDelay time.Duration

	downloads atomic.Int32
	queries   atomic.Int32
	deletes   atomic.Int32
}

func newFakeService() *fakeService {
	return &fakeService{downloaded: make(map[string]bool)}
}

func (s *fakeService) DownloadLanguageModel(ctx context.Context, code string, _ translation.DownloadConditions) error {
	s.downloads.Add(1)
	if s.downloadDelay > 0 {
		select {
		case <-time.After(s.downloadDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downloadErr != nil {
		return s.downloadErr
	}
	s.downloaded[code] = true
	return nil
}

func (s *fakeService) DeleteModel(_ context.Context, code string) error {
	s.deletes.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.downloaded, code)
	return nil
}

func (s *fakeService) IsLanguageDownloaded(_ context.Context, code string) (bool, error) {
	s.queries.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloaded[code], nil
}

func (s *fakeService) setDownloadErr(err error) {
	s.mu.Lock()
	s.downloadErr = err
	s.mu.Unlock()
}

func testCatalog() []languages.Language {
	return []languages.Language{
		{Code: "fr", Name: "French"},
		{Code: "de", Name: "German"},
		{Code: "es", Name: "Spanish"},
	}
}

func newTestManager(t *testing.T, svc Service, hub *network.Hub, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(svc, hub, testCatalog(), opts...)
	t.Cleanup(m.Close)
	return m
}

func findModel(t *testing.T, m *Manager, code string) LanguageModel {
	t.Helper()
	for _, model := range m.Models() {
		if model.Code == code {
			return model
		}
	}
	t.Fatalf("model %s not tracked", code)
	return LanguageModel{}
}

func TestManager_DownloadLanguage_OnWiFi(t *testing.T) {
	svc := newFakeService()
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub)

	m.DownloadLanguage("fr")

	require.Eventually(t, func() bool {
		return findModel(t, m, "fr").Downloaded
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, svc.downloads.Load())
	assert.Equal(t, StatusIdle, findModel(t, m, "fr").Status)
}

func TestManager_DownloadLanguage_DuplicateIsNoOp(t *testing.T) {
	svc := newFakeService()
	svc.downloadDelay = 50 * time.Millisecond
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub)

	m.DownloadLanguage("fr")
	m.DownloadLanguage("fr") // already downloading
	require.Eventually(t, func() bool {
		return findModel(t, m, "fr").Downloaded
	}, 2*time.Second, 10*time.Millisecond)
	m.DownloadLanguage("fr") // already downloaded

	assert.EqualValues(t, 1, svc.downloads.Load())
}

func TestManager_DownloadLanguage_DeferredUntilConnectivity(t *testing.T) {
	svc := newFakeService()
	hub := network.NewHub(network.StateDisconnected)
	m := newTestManager(t, svc, hub)

	m.DownloadLanguage("fr")

	// Nothing reaches the vendor while offline; the request is parked.
	assert.EqualValues(t, 0, svc.downloads.Load())
	assert.Equal(t, StatusPaused, findModel(t, m, "fr").Status)

	hub.Set(network.StateWiFi)

	require.Eventually(t, func() bool {
		return findModel(t, m, "fr").Downloaded
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, svc.downloads.Load())
}

func TestManager_DownloadLanguage_CellularPolicy(t *testing.T) {
	svc := newFakeService()
	hub := network.NewHub(network.StateCellular)
	m := newTestManager(t, svc, hub)

	m.DownloadLanguage("de")
	assert.EqualValues(t, 0, svc.downloads.Load())
	assert.Equal(t, StatusPaused, findModel(t, m, "de").Status)

	// Opting into cellular resumes the parked download immediately.
	m.SetAllowCellular(true)

	require.Eventually(t, func() bool {
		return findModel(t, m, "de").Downloaded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_NetworkFailurePausesForRetry(t *testing.T) {
	svc := newFakeService()
	svc.setDownloadErr(fmt.Errorf("dial tcp: connection refused"))
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub)

	m.DownloadLanguage("fr")

	require.Eventually(t, func() bool {
		return findModel(t, m, "fr").Status == StatusPaused
	}, 2*time.Second, 10*time.Millisecond)

	// Connectivity flaps back: the pending download is retried and
	// succeeds this time.
	svc.setDownloadErr(nil)
	hub.Set(network.StateDisconnected)
	hub.Set(network.StateWiFi)

	require.Eventually(t, func() bool {
		return findModel(t, m, "fr").Downloaded
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 2, svc.downloads.Load())
}

func TestManager_UnknownErrorTreatedAsTransient(t *testing.T) {
	svc := newFakeService()
	svc.setDownloadErr(fmt.Errorf("something inexplicable"))
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub)

	m.DownloadLanguage("fr")

	require.Eventually(t, func() bool {
		return findModel(t, m, "fr").Status == StatusPaused
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_TerminalErrorMarksFailed(t *testing.T) {
	svc := newFakeService()
	svc.setDownloadErr(apperr.New(apperr.ErrResourceExhausted, "vendor", "no space left on device"))
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub)

	m.DownloadLanguage("fr")

	require.Eventually(t, func() bool {
		return findModel(t, m, "fr").Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	model := findModel(t, m, "fr")
	assert.NotEmpty(t, model.Error)

	// Failed downloads are not re-queued on connectivity changes.
	hub.Set(network.StateDisconnected)
	hub.Set(network.StateWiFi)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, svc.downloads.Load())
}

func TestManager_CancelDownload(t *testing.T) {
	svc := newFakeService()
	svc.downloadDelay = 5 * time.Second
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub)

	m.DownloadLanguage("fr")
	require.Eventually(t, func() bool {
		return findModel(t, m, "fr").Downloading
	}, 2*time.Second, 10*time.Millisecond)

	m.CancelDownload("fr")

	require.Eventually(t, func() bool {
		model := findModel(t, m, "fr")
		return !model.Downloading && model.Status == StatusIdle && !model.Downloaded
	}, 2*time.Second, 10*time.Millisecond)

	// A cancelled download does not come back when the network flaps.
	hub.Set(network.StateDisconnected)
	hub.Set(network.StateWiFi)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, svc.downloads.Load())
}

func TestManager_CancelPendingDownload(t *testing.T) {
	svc := newFakeService()
	hub := network.NewHub(network.StateDisconnected)
	m := newTestManager(t, svc, hub)

	m.DownloadLanguage("fr")
	m.CancelDownload("fr")

	hub.Set(network.StateWiFi)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, svc.downloads.Load())
}

func TestManager_IsDownloaded_CachesWithinTTL(t *testing.T) {
	svc := newFakeService()
	svc.downloaded["es"] = true
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub, WithStatusTTL(time.Hour))

	ctx := context.Background()
	for range 5 {
		assert.True(t, m.IsDownloaded(ctx, "es"))
	}

	// One vendor query, four cache hits.
	assert.EqualValues(t, 1, svc.queries.Load())
}

func TestManager_IsDownloaded_ExpiredEntryRequeries(t *testing.T) {
	svc := newFakeService()
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub, WithStatusTTL(10*time.Millisecond))

	ctx := context.Background()
	assert.False(t, m.IsDownloaded(ctx, "es"))

	svc.mu.Lock()
	svc.downloaded["es"] = true
	svc.mu.Unlock()

	require.Eventually(t, func() bool {
		return m.IsDownloaded(ctx, "es")
	}, 2*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, svc.queries.Load(), int32(2))
}

func TestManager_DeleteLanguage(t *testing.T) {
	svc := newFakeService()
	svc.downloaded["es"] = true
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub, WithStatusTTL(time.Hour))

	ctx := context.Background()
	require.True(t, m.IsDownloaded(ctx, "es"))

	require.NoError(t, m.DeleteLanguage(ctx, "es"))

	assert.EqualValues(t, 1, svc.deletes.Load())
	assert.False(t, findModel(t, m, "es").Downloaded)
	// The cache entry was invalidated, so this is a fresh vendor query.
	assert.False(t, m.IsDownloaded(ctx, "es"))
	assert.EqualValues(t, 2, svc.queries.Load())
}

func TestManager_RefreshLanguages(t *testing.T) {
	svc := newFakeService()
	svc.downloaded["fr"] = true
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub, WithStatusTTL(time.Hour))

	m.RefreshLanguages(context.Background())

	assert.EqualValues(t, int32(len(testCatalog())), svc.queries.Load())
	assert.True(t, findModel(t, m, "fr").Downloaded)
	assert.False(t, findModel(t, m, "de").Downloaded)
}

func TestManager_Models_SortedByName(t *testing.T) {
	svc := newFakeService()
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub)

	models := m.Models()

	require.Len(t, models, 3)
	assert.Equal(t, "French", models[0].Name)
	assert.Equal(t, "German", models[1].Name)
	assert.Equal(t, "Spanish", models[2].Name)
}

func TestManager_EventsReportProgress(t *testing.T) {
	svc := newFakeService()
	hub := network.NewHub(network.StateWiFi)
	m := newTestManager(t, svc, hub)
	events := m.Events()

	m.DownloadLanguage("fr")

	var seen []Status
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-events:
			require.Equal(t, "fr", ev.Code)
			seen = append(seen, ev.Status)
		case <-deadline:
			t.Fatalf("timed out waiting for events, saw %v", seen)
		}
	}
	assert.Equal(t, []Status{StatusDownloading, StatusIdle}, seen)
}

func TestManager_Close_StopsEverything(t *testing.T) {
	svc := newFakeService()
	svc.downloadDelay = 5 * time.Second
	hub := network.NewHub(network.StateWiFi)
	m := NewManager(svc, hub, testCatalog())

	m.DownloadLanguage("fr")
	require.Eventually(t, func() bool {
		return findModel(t, m, "fr").Downloading
	}, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return; a worker leaked")
	}

	// The events channel closes so consumers unblock.
	_, open := <-drained(m.Events())
	assert.False(t, open)
}

func TestManager_DownloadAfterCloseIsNoOp(t *testing.T) {
	svc := newFakeService()
	hub := network.NewHub(network.StateWiFi)
	m := NewManager(svc, hub, testCatalog())

	m.Close()
	m.Close() // idempotent

	// Triggering after teardown must not panic on the closed events
	// channel, start a job, or touch the vendor.
	m.DownloadLanguage("fr")

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 0, svc.downloads.Load())
	assert.Equal(t, StatusIdle, findModel(t, m, "fr").Status)
}

// drained consumes buffered events, returning the channel once only the
// closed state remains observable.
func drained(ch <-chan Event) <-chan Event {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				out := make(chan Event)
				close(out)
				return out
			}
		default:
			return ch
		}
	}
}
