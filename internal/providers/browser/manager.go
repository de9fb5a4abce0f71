package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/eggprofit/internal/domain/state"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/eggprofit/internal/shared/id"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// DefaultRedirectLimit is the number of redirects a surface may follow
// before its load is aborted.
const DefaultRedirectLimit = 70

// Recovery reasons used in logs and metrics
const (
	ReasonLoop          = "redirect_loop"
	ReasonTooMany       = "too_many_redirects"
	ReasonUnrecoverable = "unrecoverable"
)

// Role distinguishes the primary surface from popups
type Role string

const (
	RolePrimary Role = "primary"
	RoleChild   Role = "child"
)

// DismissResult reports what an edge-dismiss did
type DismissResult string

const (
	DismissNone     DismissResult = "none"
	DismissWentBack DismissResult = "went_back"
	DismissClosed   DismissResult = "closed"
)

// SurfaceInfo describes a managed surface
type SurfaceInfo struct {
	ID             id.SurfaceID `json:"id"`
	Role           Role         `json:"role"`
	Parent         id.SurfaceID `json:"parent,omitempty"`
	Address        string       `json:"address"`
	LastSuccessful string       `json:"last_successful,omitempty"`
	Redirects      int          `json:"redirects"`
	CreatedAt      time.Time    `json:"created_at"`
}

// tracked is the manager's per-surface bookkeeping. Counters are private to
// the surface; only the cookie snapshot is shared.
type tracked struct {
	surface   Surface
	role      Role
	parent    id.SurfaceID
	createdAt time.Time

	mu             sync.Mutex
	lastSuccessful string
	redirects      int
	recoveries     int
}

// Options configures a Manager
type Options struct {
	RedirectLimit int
	// MaxRecoveries bounds reloads of the last successful address without a
	// finished load in between. Zero means unlimited.
	MaxRecoveries int
	Trust         TrustPolicy
}

// Deps are the Manager's collaborators. Only Factory is required.
type Deps struct {
	Factory   Factory
	Store     *state.Store
	Container Container
	Opener    ExternalOpener
	Recovery  RecoveryHandler
	Metrics   *monitoring.Metrics
	Logger    *logging.Logger
}

// Manager owns the primary surface and its popups
type Manager struct {
	factory   Factory
	store     *state.Store
	container Container
	opener    ExternalOpener
	recovery  RecoveryHandler
	metrics   *monitoring.Metrics
	logger    *logging.Logger
	limit     int
	maxRecov  int
	trust     TrustPolicy

	mu       sync.RWMutex
	primary  *tracked   // Protected by mu
	children []*tracked // Protected by mu, oldest first
}

// NewManager creates a session manager
func NewManager(deps Deps, opts Options) *Manager {
	if opts.RedirectLimit <= 0 {
		opts.RedirectLimit = DefaultRedirectLimit
	}
	if opts.Trust == "" {
		opts.Trust = TrustSystem
	}

	m := &Manager{
		factory:   deps.Factory,
		store:     deps.Store,
		container: deps.Container,
		opener:    deps.Opener,
		recovery:  deps.Recovery,
		metrics:   deps.Metrics,
		logger:    logging.OrNop(deps.Logger).Named("browser"),
		limit:     opts.RedirectLimit,
		maxRecov:  opts.MaxRecoveries,
		trust:     opts.Trust,
	}
	if m.trust == TrustAcceptAll {
		m.logger.Warn("Server trust policy accepts every presented certificate")
	}
	return m
}

// SetRecovery sets the handler for unrecoverable primary surfaces
func (m *Manager) SetRecovery(h RecoveryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recovery = h
}

// OpenPrimary replaces any existing surfaces with a new primary surface,
// restores the persisted cookies and loads address.
func (m *Manager) OpenPrimary(ctx context.Context, address string) (id.SurfaceID, error) {
	surfaceID := id.NewSurfaceID()
	surface, err := m.factory(SurfaceOptions{ID: surfaceID, Delegate: m})
	if err != nil {
		return "", fmt.Errorf("create primary surface: %w", err)
	}

	if m.store != nil {
		if cookies := m.store.Snapshot().Cookies; cookies.Len() > 0 {
			surface.RestoreCookies(cookies)
		}
	}

	m.closeAll()

	t := &tracked{surface: surface, role: RolePrimary, createdAt: time.Now()}
	m.mu.Lock()
	m.primary = t
	m.mu.Unlock()
	m.attach(surface)

	m.logger.Info("Primary surface opened", zap.String("surface", string(surfaceID)), zap.String("address", address))
	if err := surface.Load(ctx, address); err != nil {
		m.logger.Warn("Primary load failed", zap.String("surface", string(surfaceID)), zap.Error(err))
	}
	return surfaceID, nil
}

// Primary returns the primary surface id
func (m *Manager) Primary() (id.SurfaceID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.primary == nil {
		return "", false
	}
	return m.primary.surface.ID(), true
}

// DecideNavigation is the navigation policy shared by every surface
func (m *Manager) DecideNavigation(ctx context.Context, surfaceID id.SurfaceID, req NavigationRequest) Decision {
	u, err := url.Parse(strings.TrimSpace(req.Address))
	if err != nil || u.Scheme == "" {
		m.logger.Debug("Cancelling unparseable navigation", zap.String("address", req.Address))
		return Cancel
	}

	if isWebScheme(u.Scheme) {
		if !req.Redirect {
			if t := m.find(surfaceID); t != nil {
				t.mu.Lock()
				t.lastSuccessful = u.String()
				t.mu.Unlock()
			}
		}
		return Allow
	}

	m.metrics.IncExternalOpens()
	m.logger.Info("Opening address externally", zap.String("surface", string(surfaceID)), zap.String("address", req.Address))
	if m.opener != nil {
		if err := m.opener.OpenExternal(ctx, req.Address); err != nil {
			m.logger.Warn("External open failed", zap.String("address", req.Address), zap.Error(err))
		}
	}
	return OpenExternally
}

// HandleEvent processes one surface event
func (m *Manager) HandleEvent(ctx context.Context, ev Event) {
	t := m.find(ev.Surface)
	if t == nil {
		return
	}

	switch ev.Kind {
	case EventRedirect:
		m.metrics.IncRedirects()
		current := t.surface.CurrentAddress()
		t.mu.Lock()
		if isWebAddress(current) {
			t.lastSuccessful = current
		}
		t.redirects++
		exceeded := t.redirects > m.limit
		t.mu.Unlock()

		m.persistCookies(ctx)
		if exceeded {
			m.recover(ctx, t, ErrRedirectLoop)
		}

	case EventLoadFailed:
		switch {
		case errors.Is(ev.Err, ErrTooManyRedirects):
			m.recover(ctx, t, ErrTooManyRedirects)
		case errors.Is(ev.Err, context.Canceled):
		default:
			m.logger.Warn("Surface load failed",
				zap.String("surface", string(ev.Surface)),
				zap.String("address", ev.Address),
				zap.Error(ev.Err))
			if t.role == RoleChild {
				m.closeChild(t)
			}
		}

	case EventLoadFinished:
		t.mu.Lock()
		t.redirects = 0
		t.recoveries = 0
		t.mu.Unlock()
	}
}

// recover aborts the current load and reloads the last successful address.
// With nowhere to go a child is closed and a primary is handed to the
// recovery handler.
func (m *Manager) recover(ctx context.Context, t *tracked, cause error) {
	t.surface.StopLoading()

	t.mu.Lock()
	target := t.lastSuccessful
	t.redirects = 0
	t.recoveries++
	exhausted := m.maxRecov > 0 && t.recoveries > m.maxRecov
	t.mu.Unlock()

	reason := ReasonLoop
	if errors.Is(cause, ErrTooManyRedirects) {
		reason = ReasonTooMany
	}
	surfaceID := t.surface.ID()

	if target != "" && !exhausted {
		m.metrics.RecordRedirectRecovery(reason)
		m.logger.Warn("Recovering from redirects",
			zap.String("surface", string(surfaceID)),
			zap.String("reason", reason),
			zap.String("address", target))
		if err := t.surface.Load(ctx, target); err != nil {
			m.logger.Warn("Recovery load failed", zap.String("surface", string(surfaceID)), zap.Error(err))
		}
		return
	}

	m.metrics.RecordRedirectRecovery(ReasonUnrecoverable)
	m.logger.Warn("No address to recover to",
		zap.String("surface", string(surfaceID)),
		zap.String("reason", reason))

	if t.role == RoleChild {
		m.closeChild(t)
		return
	}

	m.mu.RLock()
	handler := m.recovery
	m.mu.RUnlock()
	if handler != nil {
		handler.HandleUnrecoverableRedirect(string(surfaceID), cause)
	}
}

// RequestPopup creates a child surface for a new browsing context. Requests
// aimed at a named frame stay in that frame and get no surface.
func (m *Manager) RequestPopup(ctx context.Context, parent id.SurfaceID, req PopupRequest) (Surface, error) {
	if req.TargetFrame {
		return nil, nil
	}
	if m.find(parent) == nil {
		return nil, ErrSurfaceNotFound
	}

	surfaceID := id.NewSurfaceID()
	surface, err := m.factory(SurfaceOptions{ID: surfaceID, Parent: parent, Delegate: m})
	if err != nil {
		return nil, fmt.Errorf("create child surface: %w", err)
	}

	t := &tracked{surface: surface, role: RoleChild, parent: parent, createdAt: time.Now()}
	m.mu.Lock()
	m.children = append(m.children, t)
	count := len(m.children)
	m.mu.Unlock()

	m.attach(surface)
	m.metrics.SetChildSurfaces(count)
	m.logger.Info("Child surface opened",
		zap.String("surface", string(surfaceID)),
		zap.String("parent", string(parent)),
		zap.String("address", req.Address))

	if !isBlank(req.Address) {
		if err := surface.Load(ctx, req.Address); err != nil {
			m.logger.Warn("Child load failed", zap.String("surface", string(surfaceID)), zap.Error(err))
		}
	}
	return surface, nil
}

// EdgeDismiss handles the dismiss gesture on a child surface. Only the
// newest child is eligible. It goes back when it can and closes otherwise.
func (m *Manager) EdgeDismiss(ctx context.Context, surfaceID id.SurfaceID) (DismissResult, error) {
	m.mu.RLock()
	var newest *tracked
	if n := len(m.children); n > 0 {
		newest = m.children[n-1]
	}
	m.mu.RUnlock()

	if m.find(surfaceID) == nil {
		return DismissNone, ErrSurfaceNotFound
	}
	if newest == nil || newest.surface.ID() != surfaceID {
		return DismissNone, ErrNotDismissable
	}

	if newest.surface.CanGoBack() {
		if err := newest.surface.GoBack(ctx); err != nil {
			return DismissNone, err
		}
		return DismissWentBack, nil
	}

	m.closeChild(newest)
	return DismissClosed, nil
}

// DismissNewest applies EdgeDismiss to the newest child, if any
func (m *Manager) DismissNewest(ctx context.Context) (DismissResult, error) {
	m.mu.RLock()
	n := len(m.children)
	var surfaceID id.SurfaceID
	if n > 0 {
		surfaceID = m.children[n-1].surface.ID()
	}
	m.mu.RUnlock()

	if n == 0 {
		return DismissNone, nil
	}
	return m.EdgeDismiss(ctx, surfaceID)
}

// HandleChallenge answers an authentication challenge under the trust policy
func (m *Manager) HandleChallenge(ch Challenge) TrustDecision {
	return m.trust.Decide(ch)
}

// Surfaces lists the primary surface followed by children, oldest first
func (m *Manager) Surfaces() []SurfaceInfo {
	m.mu.RLock()
	all := make([]*tracked, 0, len(m.children)+1)
	if m.primary != nil {
		all = append(all, m.primary)
	}
	all = append(all, m.children...)
	m.mu.RUnlock()

	out := make([]SurfaceInfo, 0, len(all))
	for _, t := range all {
		t.mu.Lock()
		info := SurfaceInfo{
			ID:             t.surface.ID(),
			Role:           t.role,
			Parent:         t.parent,
			LastSuccessful: t.lastSuccessful,
			Redirects:      t.redirects,
			CreatedAt:      t.createdAt,
		}
		t.mu.Unlock()
		info.Address = t.surface.CurrentAddress()
		out = append(out, info)
	}
	return out
}

// Close tears down every surface
func (m *Manager) Close() {
	m.closeAll()
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	children := m.children
	primary := m.primary
	m.children = nil
	m.primary = nil
	m.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		m.detach(children[i].surface)
		children[i].surface.Close()
	}
	if primary != nil {
		m.detach(primary.surface)
		primary.surface.Close()
	}
	if len(children) > 0 {
		m.metrics.SetChildSurfaces(0)
	}
}

func (m *Manager) closeChild(t *tracked) {
	m.mu.Lock()
	idx := -1
	for i, c := range m.children {
		if c == t {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.children = append(m.children[:idx], m.children[idx+1:]...)
	count := len(m.children)
	m.mu.Unlock()

	m.detach(t.surface)
	t.surface.Close()
	m.metrics.SetChildSurfaces(count)
	m.logger.Info("Child surface closed", zap.String("surface", string(t.surface.ID())))
}

func (m *Manager) find(surfaceID id.SurfaceID) *tracked {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.primary != nil && m.primary.surface.ID() == surfaceID {
		return m.primary
	}
	for _, c := range m.children {
		if c.surface.ID() == surfaceID {
			return c
		}
	}
	return nil
}

// persistCookies writes the merged snapshot of every surface, replacing
// the previous one.
func (m *Manager) persistCookies(ctx context.Context) {
	if m.store == nil {
		return
	}

	m.mu.RLock()
	snaps := make([]types.CookieSnapshot, 0, len(m.children)+1)
	if m.primary != nil {
		snaps = append(snaps, m.primary.surface.Cookies())
	}
	for _, c := range m.children {
		snaps = append(snaps, c.surface.Cookies())
	}
	m.mu.RUnlock()

	merged := MergeSnapshots(snaps...)
	if _, err := m.store.Update(ctx, func(st *types.LaunchState) error {
		st.Cookies = merged
		return nil
	}); err != nil {
		m.logger.Warn("Persisting session cookies failed", zap.Error(err))
	}
}

func (m *Manager) attach(s Surface) {
	if m.container != nil {
		m.container.Attach(s)
	}
}

func (m *Manager) detach(s Surface) {
	if m.container != nil {
		m.container.Detach(s)
	}
}

func isWebScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}

func isWebAddress(address string) bool {
	u, err := url.Parse(address)
	return err == nil && isWebScheme(u.Scheme) && u.Host != ""
}

func isBlank(address string) bool {
	address = strings.TrimSpace(address)
	return address == "" || strings.EqualFold(address, "about:blank")
}
