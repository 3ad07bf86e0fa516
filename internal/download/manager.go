// Package download coordinates language-model downloads against network
// policy: a TTL'd status cache, cancellable active jobs, and a pending
// set resumed when connectivity returns.
package download

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/patlar104/GlobalTranslation/internal/apperr"
	"github.com/patlar104/GlobalTranslation/internal/languages"
	"github.com/patlar104/GlobalTranslation/internal/network"
	"github.com/patlar104/GlobalTranslation/internal/translation"
	"github.com/patlar104/GlobalTranslation/pkg/log"
)

const (
	// DefaultStatusTTL bounds how long a downloaded-state check is
	// trusted before the vendor is queried again.
	DefaultStatusTTL = 30 * time.Second

	refreshParallelism = 8
)

// Service is the slice of the translation service the manager drives.
type Service interface {
	DownloadLanguageModel(ctx context.Context, code string, conditions translation.DownloadConditions) error
	DeleteModel(ctx context.Context, code string) error
	IsLanguageDownloaded(ctx context.Context, code string) (bool, error)
}

type Option func(*Manager)

func WithStatusTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.statusTTL = ttl
		}
	}
}

func WithAllowCellular(allow bool) Option {
	return func(m *Manager) {
		m.allowCellular = allow
	}
}

// Manager owns all per-session download state. Only the manager mutates
// its status cache, active set, pending set and model list.
type Manager struct {
	svc       Service
	observer  network.Observer
	statusTTL time.Duration

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	group      singleflight.Group
	events     chan Event

	mu            sync.Mutex
	closed        bool
	allowCellular bool
	status        map[string]statusEntry
	active        map[string]context.CancelFunc
	pending       map[string]struct{}
	models        map[string]*LanguageModel
}

func NewManager(svc Service, observer network.Observer, catalog []languages.Language, opts ...Option) *Manager {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	m := &Manager{
		svc:        svc,
		observer:   observer,
		statusTTL:  DefaultStatusTTL,
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		events:     make(chan Event, 64),
		status:     make(map[string]statusEntry),
		active:     make(map[string]context.CancelFunc),
		pending:    make(map[string]struct{}),
		models:     make(map[string]*LanguageModel),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, lang := range catalog {
		m.models[lang.Code] = &LanguageModel{
			Code:   lang.Code,
			Name:   lang.Name,
			Status: StatusIdle,
		}
	}

	m.wg.Add(1)
	go m.watchNetwork(observer.Subscribe())
	return m
}

// Events streams status messages. The channel closes on Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// SetAllowCellular records the user preference for cellular downloads
// and, if current conditions now permit, resumes pending downloads.
func (m *Manager) SetAllowCellular(allow bool) {
	m.mu.Lock()
	m.allowCellular = allow
	m.mu.Unlock()

	if allow && m.permitted(m.observer.Current()) {
		m.resumePending()
	}
}

// DownloadLanguage starts a download for code, or parks it in the
// pending set when network conditions do not meet policy. Already
// downloaded or already downloading languages are a no-op.
func (m *Manager) DownloadLanguage(code string) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return
	}

	model := m.modelLocked(code)
	if model.Downloaded || model.Downloading {
		m.mu.Unlock()
		return
	}

	state := m.observer.Current()
	if !m.permittedLocked(state) {
		m.pending[code] = struct{}{}
		model.Status = StatusPaused
		model.Error = ""
		m.mu.Unlock()

		log.Info("Deferring download of %s: network is %s", code, state)
		m.emit(code, StatusPaused, fmt.Sprintf("Waiting for WiFi to download %s", code))
		return
	}

	jobCtx, cancel := context.WithCancel(m.rootCtx)
	m.active[code] = cancel
	delete(m.pending, code)
	model.Downloading = true
	model.Status = StatusDownloading
	model.Error = ""
	conditions := translation.DownloadConditions{RequireWifi: !m.allowCellular}
	// Registered under the same lock as the closed check, so Close's
	// wg.Wait always observes this job.
	m.wg.Add(1)
	m.mu.Unlock()

	m.emit(code, StatusDownloading, fmt.Sprintf("Downloading %s", code))
	go m.runDownload(jobCtx, code, conditions)
}

func (m *Manager) runDownload(ctx context.Context, code string, conditions translation.DownloadConditions) {
	defer m.wg.Done()

	err := m.download(ctx, code, conditions)

	m.mu.Lock()
	if cancel, ok := m.active[code]; ok {
		cancel()
		delete(m.active, code)
	}
	model := m.modelLocked(code)
	model.Downloading = false
	model.Progress = nil

	switch {
	case err == nil:
		// Force a fresh vendor query on the next status check.
		delete(m.status, code)
		delete(m.pending, code)
		model.Downloaded = true
		model.Status = StatusIdle
		m.mu.Unlock()

		log.Info("Downloaded language model %s", code)
		m.emit(code, StatusIdle, fmt.Sprintf("%s downloaded", code))

	case errors.Is(err, context.Canceled):
		// A cancelled job leaves the model not ready, nothing pending.
		model.Status = StatusIdle
		m.mu.Unlock()

		log.Info("Download of %s cancelled", code)

	case isNetworkLike(err):
		m.pending[code] = struct{}{}
		model.Status = StatusPaused
		m.mu.Unlock()

		log.Warn("Download of %s paused by network failure: %v", code, err)
		m.emit(code, StatusPaused, fmt.Sprintf("Download of %s paused, waiting for network", code))

	default:
		model.Status = StatusFailed
		model.Error = err.Error()
		m.mu.Unlock()

		log.Error("Download of %s failed: %v", code, err)
		m.emit(code, StatusFailed, fmt.Sprintf("Download of %s failed: %s", code, apperr.UserMessage(apperr.Classify(err))))
	}
}

func (m *Manager) download(ctx context.Context, code string, conditions translation.DownloadConditions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// Optimistic-retry bias: a crashed download is cheaper to
			// retry than to leave silently stuck.
			err = apperr.New(apperr.ErrNetwork, "download.Manager", fmt.Sprintf("download panic: %v", r))
		}
	}()
	return m.svc.DownloadLanguageModel(ctx, code, conditions)
}

// isNetworkLike applies the download-flow bias: unknown errors are
// treated as transient and re-queued rather than surfaced as terminal.
func isNetworkLike(err error) bool {
	switch apperr.Classify(err) {
	case apperr.ErrNetwork, apperr.ErrUnknown:
		return true
	default:
		return false
	}
}

// CancelDownload cancels the active job for code, if any, and removes
// the code from both the active and pending sets.
func (m *Manager) CancelDownload(code string) {
	m.mu.Lock()
	if cancel, ok := m.active[code]; ok {
		cancel()
		delete(m.active, code)
	}
	delete(m.pending, code)
	model := m.modelLocked(code)
	model.Downloading = false
	model.Progress = nil
	model.Status = StatusIdle
	m.mu.Unlock()
}

// DeleteLanguage removes the downloaded model and invalidates its
// status-cache entry.
func (m *Manager) DeleteLanguage(ctx context.Context, code string) error {
	if err := m.svc.DeleteModel(ctx, code); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.status, code)
	model := m.modelLocked(code)
	model.Downloaded = false
	model.Status = StatusIdle
	model.Error = ""
	m.mu.Unlock()

	m.emit(code, StatusIdle, fmt.Sprintf("%s deleted", code))
	return nil
}

// IsDownloaded answers from the TTL'd status cache, querying the vendor
// at most once concurrently per code. Query errors fail closed to false
// without regressing previously known state.
func (m *Manager) IsDownloaded(ctx context.Context, code string) bool {
	m.mu.Lock()
	entry, ok := m.status[code]
	ttl := m.statusTTL
	m.mu.Unlock()
	if ok && time.Since(entry.checkedAt) < ttl {
		return entry.downloaded
	}

	v, err, _ := m.group.Do(code, func() (any, error) {
		return m.svc.IsLanguageDownloaded(ctx, code)
	})
	if err != nil {
		log.Warn("Downloaded-state query for %s failed: %v", code, err)
		return false
	}
	downloaded := v.(bool)

	m.mu.Lock()
	m.status[code] = statusEntry{downloaded: downloaded, checkedAt: time.Now()}
	model := m.modelLocked(code)
	if !model.Downloading {
		model.Downloaded = downloaded
	}
	m.mu.Unlock()
	return downloaded
}

// RefreshLanguages drops the whole status cache and re-checks every
// tracked language in parallel.
func (m *Manager) RefreshLanguages(ctx context.Context) {
	m.mu.Lock()
	m.status = make(map[string]statusEntry)
	codes := make([]string, 0, len(m.models))
	for code := range m.models {
		codes = append(codes, code)
	}
	m.mu.Unlock()

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(refreshParallelism)
	for _, code := range codes {
		g.Go(func() error {
			m.IsDownloaded(groupCtx, code)
			return nil
		})
	}
	_ = g.Wait()
}

// Models returns a snapshot of all tracked language models sorted by
// display name.
func (m *Manager) Models() []LanguageModel {
	m.mu.Lock()
	ret := make([]LanguageModel, 0, len(m.models))
	for _, model := range m.models {
		ret = append(ret, *model)
	}
	m.mu.Unlock()

	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Name != ret[j].Name {
			return ret[i].Name < ret[j].Name
		}
		return ret[i].Code < ret[j].Code
	})
	return ret
}

// Close cancels all active jobs, clears the pending set and stops the
// network watcher. Must run on session end so no background work leaks.
// Idempotent; after Close all download triggers are no-ops.
func (m *Manager) Close() {
	m.rootCancel()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	m.closed = true
	for code, cancel := range m.active {
		cancel()
		delete(m.active, code)
	}
	m.pending = make(map[string]struct{})
	m.mu.Unlock()

	m.wg.Wait()
	close(m.events)
}

func (m *Manager) watchNetwork(transitions <-chan network.State) {
	defer m.wg.Done()

	for {
		select {
		case <-m.rootCtx.Done():
			return
		case state, ok := <-transitions:
			if !ok {
				return
			}
			if m.permitted(state) {
				m.resumePending()
			}
		}
	}
}

// resumePending drains the pending set and re-attempts each code via
// the normal download path. Draining happens before re-triggering so a
// download that immediately re-fails for a different reason is not lost.
func (m *Manager) resumePending() {
	m.mu.Lock()
	codes := make([]string, 0, len(m.pending))
	for code := range m.pending {
		codes = append(codes, code)
	}
	m.pending = make(map[string]struct{})
	m.mu.Unlock()

	if len(codes) == 0 {
		return
	}
	sort.Strings(codes)
	log.Info("Network restored, resuming %d pending downloads", len(codes))
	for _, code := range codes {
		m.DownloadLanguage(code)
	}
}

func (m *Manager) permitted(state network.State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permittedLocked(state)
}

// permittedLocked applies the WiFi-required policy unless the user has
// opted into cellular downloads.
func (m *Manager) permittedLocked(state network.State) bool {
	switch state {
	case network.StateWiFi:
		return true
	case network.StateCellular:
		return m.allowCellular
	default:
		return false
	}
}

func (m *Manager) modelLocked(code string) *LanguageModel {
	model, ok := m.models[code]
	if !ok {
		model = &LanguageModel{Code: code, Name: code, Status: StatusIdle}
		m.models[code] = model
	}
	return model
}

// emit never sends after Close; the closed flag and the channel close
// are ordered by mu, so a racing DownloadLanguage cannot panic on a
// closed channel.
func (m *Manager) emit(code string, status Status, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	select {
	case m.events <- Event{Code: code, Status: status, Message: message}:
	default:
		// Nobody is listening fast enough; events are advisory.
	}
}
