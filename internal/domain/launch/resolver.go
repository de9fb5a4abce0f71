// Package launch resolves which top-level experience a process run shows.
//
// A resolution pass walks a fixed chain of checks: connectivity, the
// committed app mode, attribution, a pending deep link, the notification
// prompt and finally the remote session config. Every failure along the
// chain turns into a fallback phase; the only failure the user sees is
// ConnectivityFailure, which retries once the device is back online.
//
// The Resolver owns an event queue for its collaborators and fans phase
// updates out to subscribers. Phases are finalized with a check-and-set
// against a generation counter so a stale pass never overwrites a newer one.
package launch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/eggprofit/internal/domain/connectivity"
	"github.com/GriffinCanCode/eggprofit/internal/domain/state"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/eggprofit/internal/providers/remote"
	"github.com/GriffinCanCode/eggprofit/internal/shared/id"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// ErrAlreadyRunning is returned by a second concurrent Run
var ErrAlreadyRunning = errors.New("resolver already running")

// Connectivity reports reachability
type Connectivity interface {
	Online() bool
	Subscribe() (<-chan bool, func())
}

// Attribution supplies the one-time conversion payload
type Attribution interface {
	Await(ctx context.Context) (types.AttributionPayload, error)
	InstallID() string
}

// Remote performs the two network calls of a pass
type Remote interface {
	VerifyOrganicInstall(ctx context.Context, installID string) (types.AttributionPayload, error)
	FetchSessionConfig(ctx context.Context, payload types.AttributionPayload, install remote.Install) (types.SessionConfig, error)
}

// PermissionGate prompts for notification permission when due
type PermissionGate interface {
	Run(ctx context.Context) (bool, error)
}

// Deps are the resolver's collaborators. Gate, Metrics and Logger may be nil.
type Deps struct {
	Store        *state.Store
	Connectivity Connectivity
	Attribution  Attribution
	Remote       Remote
	Gate         PermissionGate
	Metrics      *monitoring.Metrics
	Logger       *logging.Logger
}

// Options holds the resolver delays
type Options struct {
	OrganicRecheckDelay time.Duration
	AttributionWait     time.Duration
	DeepLinkSettle      time.Duration
}

// DefaultOptions matches the production delays
func DefaultOptions() Options {
	return Options{
		OrganicRecheckDelay: 5 * time.Second,
		AttributionWait:     15 * time.Second,
		DeepLinkSettle:      2 * time.Second,
	}
}

// Resolver is the launch state machine
type Resolver struct {
	store   *state.Store
	conn    Connectivity
	attr    Attribution
	remote  Remote
	gate    PermissionGate
	metrics *monitoring.Metrics
	logger  *logging.Logger
	opts    Options

	events  chan Event
	running chan struct{}
	passes  sync.WaitGroup

	mu         sync.Mutex
	phase      types.LaunchPhase // Protected by mu
	generation uint64            // Protected by mu
	inFlight   bool              // Protected by mu
	subs       map[int]chan Update
	nextSub    int
}

// New creates a resolver in the Launching phase
func New(deps Deps, opts Options) *Resolver {
	return &Resolver{
		store:   deps.Store,
		conn:    deps.Connectivity,
		attr:    deps.Attribution,
		remote:  deps.Remote,
		gate:    deps.Gate,
		metrics: deps.Metrics,
		logger:  logging.OrNop(deps.Logger).Named("launch"),
		opts:    opts,
		events:  make(chan Event, 32),
		running: make(chan struct{}, 1),
		phase:   types.LaunchPhase{Phase: types.PhaseLaunching},
		subs:    make(map[int]chan Update),
	}
}

// Phase returns the current phase
func (r *Resolver) Phase() types.LaunchPhase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Generation returns the current pass generation
func (r *Resolver) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Subscribe returns a channel of updates, primed with the current phase,
// and a function that ends the subscription.
func (r *Resolver) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 16)

	r.mu.Lock()
	sub := r.nextSub
	r.nextSub++
	r.subs[sub] = ch
	deliver(ch, Update{Kind: UpdatePhase, Phase: r.phase, Generation: r.generation, At: time.Now()})
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, sub)
			r.mu.Unlock()
		})
	}
}

// Push enqueues an event without blocking
func (r *Resolver) Push(ev Event) error {
	select {
	case r.events <- ev:
		return nil
	default:
		r.logger.Warn("Dropping launch event", zap.Stringer("kind", ev.Kind))
		return ErrQueueFull
	}
}

// Retry asks for a fresh resolution pass
func (r *Resolver) Retry() error {
	return r.Push(Event{Kind: EventRetry})
}

// Run resolves once and then processes events until ctx is done
func (r *Resolver) Run(ctx context.Context) error {
	select {
	case r.running <- struct{}{}:
	default:
		return ErrAlreadyRunning
	}
	defer func() { <-r.running }()

	var online <-chan bool
	if r.conn != nil {
		ch, unsubscribe := r.conn.Subscribe()
		defer unsubscribe()
		online = ch
	}

	r.startPass(ctx)

	for {
		select {
		case <-ctx.Done():
			r.passes.Wait()
			return ctx.Err()
		case v := <-online:
			r.handle(ctx, Event{Kind: EventConnectivity, Online: v})
		case ev := <-r.events:
			r.handle(ctx, ev)
		}
	}
}

// Resolve runs one pass synchronously and returns the phase it settled on
func (r *Resolver) Resolve(ctx context.Context) (types.LaunchPhase, error) {
	gen, ok := r.beginPass()
	if !ok {
		return r.Phase(), ErrAlreadyRunning
	}
	r.passes.Add(1)
	r.pass(ctx, gen)
	if err := ctx.Err(); err != nil {
		return r.Phase(), err
	}
	return r.Phase(), nil
}

func (r *Resolver) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventConnectivity:
		if ev.Online && r.Phase().Phase == types.PhaseConnectivityFailure {
			r.logger.Info("Connectivity restored, retrying")
			r.startPass(ctx)
		}
	case EventRetry:
		r.startPass(ctx)
	case EventDeepLink:
		r.scheduleDeepLinkNotice(ev.Value)
	case EventPushToken:
		r.logger.Debug("Push token refreshed")
	}
}

// beginPass moves to Launching under a new generation unless a pass is
// already in flight.
func (r *Resolver) beginPass() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight {
		return 0, false
	}
	r.inFlight = true
	r.generation++
	r.setPhaseLocked(types.LaunchPhase{Phase: types.PhaseLaunching})
	return r.generation, true
}

func (r *Resolver) startPass(ctx context.Context) {
	gen, ok := r.beginPass()
	if !ok {
		r.logger.Debug("Resolution already in flight")
		return
	}
	r.passes.Add(1)
	go r.pass(ctx, gen)
}

func (r *Resolver) pass(ctx context.Context, gen uint64) {
	defer r.passes.Done()
	defer func() {
		r.mu.Lock()
		r.inFlight = false
		r.mu.Unlock()
	}()

	runID := id.NewRunID()
	logger := r.logger.With(zap.String("run", string(runID)), zap.Uint64("generation", gen))
	logger.Info("Resolving launch phase")

	r.resolve(ctx, gen, logger)
}

// resolve walks the decision chain. Each step either finalizes a phase and
// returns or falls through to the next.
func (r *Resolver) resolve(ctx context.Context, gen uint64, logger *logging.Logger) {
	st := r.store.Snapshot()

	// Committed native installs never see the connectivity screen and never
	// touch the network.
	if st.AppMode == types.ModeNativeFallback {
		r.finalize(ctx, gen, types.LaunchPhase{Phase: types.PhaseNativeFallback}, nil)
		return
	}
	if !r.online() {
		logger.Info("Offline at launch")
		r.finalize(ctx, gen, types.LaunchPhase{Phase: types.PhaseConnectivityFailure}, nil)
		return
	}

	payload := r.awaitAttribution(ctx, logger)
	if ctx.Err() != nil || r.stale(gen) {
		return
	}

	skipDeepLink := false
	if !st.HasLaunchedBefore && payload.IsOrganic() {
		verified, err := r.recheckOrganic(ctx, gen, logger)
		if ctx.Err() != nil || r.stale(gen) {
			return
		}
		if errors.Is(err, connectivity.ErrUnavailable) {
			r.finalize(ctx, gen, types.LaunchPhase{Phase: types.PhaseConnectivityFailure}, nil)
			return
		}
		if err != nil {
			logger.Warn("Organic re-check failed, keeping original attribution", zap.Error(err))
			skipDeepLink = true
		} else {
			payload = verified
		}
	}

	if !skipDeepLink && r.consumeDeepLink(ctx, gen, st.PendingDeepLink, logger) {
		return
	}

	if r.gate != nil {
		if _, err := r.gate.Run(ctx); err != nil {
			logger.Warn("Recording notification outcome failed", zap.Error(err))
		}
		if ctx.Err() != nil || r.stale(gen) {
			return
		}
	}

	r.fetchConfig(ctx, gen, payload, logger)
}

func (r *Resolver) online() bool {
	return r.conn == nil || r.conn.Online()
}

func (r *Resolver) stale(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gen != r.generation || r.phase.Phase != types.PhaseLaunching
}

func (r *Resolver) awaitAttribution(ctx context.Context, logger *logging.Logger) types.AttributionPayload {
	if r.attr == nil {
		return types.AttributionPayload{}
	}
	waitCtx := ctx
	if r.opts.AttributionWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.opts.AttributionWait)
		defer cancel()
	}
	payload, err := r.attr.Await(waitCtx)
	if err != nil {
		logger.Warn("Attribution unavailable, continuing without it", zap.Error(err))
		return types.AttributionPayload{}
	}
	return payload
}

func (r *Resolver) recheckOrganic(ctx context.Context, gen uint64, logger *logging.Logger) (types.AttributionPayload, error) {
	logger.Info("Organic install, re-checking attribution", zap.Duration("delay", r.opts.OrganicRecheckDelay))

	timer := time.NewTimer(r.opts.OrganicRecheckDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	if r.stale(gen) {
		return nil, nil
	}
	if !r.online() {
		return nil, connectivity.ErrUnavailable
	}
	installID := ""
	if r.attr != nil {
		installID = r.attr.InstallID()
	}
	return r.remote.VerifyOrganicInstall(ctx, installID)
}

// consumeDeepLink finalizes RemoteContent with link, the deep link that was
// pending when the pass started, and clears it in the same step. A link
// stored after the pass started stays pending for the next pass.
func (r *Resolver) consumeDeepLink(ctx context.Context, gen uint64, link string, logger *logging.Logger) bool {
	if link == "" {
		return false
	}

	consumed := r.finalize(ctx, gen, types.LaunchPhase{Phase: types.PhaseRemoteContent, Address: link},
		func(st *types.LaunchState) error {
			if st.PendingDeepLink == link {
				st.PendingDeepLink = ""
			}
			return nil
		})
	if consumed {
		logger.Info("Opened pending deep link", zap.String("address", link))
	}
	return true
}

func (r *Resolver) fetchConfig(ctx context.Context, gen uint64, payload types.AttributionPayload, logger *logging.Logger) {
	if !r.online() {
		logger.Info("Offline before config fetch")
		r.finalize(ctx, gen, types.LaunchPhase{Phase: types.PhaseConnectivityFailure}, nil)
		return
	}

	st := r.store.Snapshot()
	installID := ""
	if r.attr != nil {
		installID = r.attr.InstallID()
	}

	cfg, err := r.remote.FetchSessionConfig(ctx, payload, remote.Install{ID: installID, PushToken: st.PushToken})
	if ctx.Err() != nil {
		return
	}

	switch {
	case err == nil && cfg.OK:
		r.finalize(ctx, gen, types.LaunchPhase{Phase: types.PhaseRemoteContent, Address: cfg.Address},
			func(st *types.LaunchState) error {
				st.SavedAddress = cfg.Address
				st.SavedExpiry = cfg.ExpiresAt
				st.AppMode = types.ModeRemoteContent
				st.HasLaunchedBefore = true
				return nil
			})
	case err == nil:
		logger.Info("Remote content declined, committing to native mode")
		r.finalize(ctx, gen, types.LaunchPhase{Phase: types.PhaseNativeFallback}, commitNative)
	case st.SavedAddress != "":
		logger.Warn("Config fetch failed, reusing saved address",
			zap.String("kind", string(remote.KindOf(err))), zap.Error(err))
		r.finalize(ctx, gen, types.LaunchPhase{Phase: types.PhaseRemoteContent, Address: st.SavedAddress}, nil)
	default:
		logger.Warn("Config fetch failed with no saved address, committing to native mode",
			zap.String("kind", string(remote.KindOf(err))), zap.Error(err))
		r.finalize(ctx, gen, types.LaunchPhase{Phase: types.PhaseNativeFallback}, commitNative)
	}
}

func commitNative(st *types.LaunchState) error {
	st.AppMode = types.ModeNativeFallback
	st.HasLaunchedBefore = true
	return nil
}

// finalize sets the phase if gen is still current and the phase is still
// Launching, applying mutate to the persisted state in the same step.
func (r *Resolver) finalize(ctx context.Context, gen uint64, phase types.LaunchPhase, mutate func(*types.LaunchState) error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.generation || r.phase.Phase != types.PhaseLaunching {
		r.logger.Info("Dropping stale result",
			zap.Uint64("generation", gen),
			zap.String("phase", string(phase.Phase)))
		return false
	}

	if mutate != nil {
		if _, err := r.store.Update(ctx, mutate); err != nil {
			// The phase still applies to this run; only the next launch loses it
			r.logger.Error("Persisting launch state failed", zap.Error(err))
		}
	}

	r.setPhaseLocked(phase)
	return true
}

// HandleUnrecoverableRedirect moves a RemoteContent run to NativeFallback
// when the browsing surface has no address to recover to. Nothing is
// persisted, so the next launch tries the remote path again.
func (r *Resolver) HandleUnrecoverableRedirect(surfaceID string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase.Phase != types.PhaseRemoteContent {
		return
	}
	r.logger.Warn("Browsing surface cannot recover, falling back to native",
		zap.String("surface", surfaceID), zap.Error(cause))
	r.generation++
	r.setPhaseLocked(types.LaunchPhase{Phase: types.PhaseNativeFallback})
}

func (r *Resolver) setPhaseLocked(phase types.LaunchPhase) {
	if r.phase == phase && phase.Phase != types.PhaseLaunching {
		return
	}
	r.phase = phase
	r.metrics.RecordPhase(string(phase.Phase))
	if phase.Phase.Final() {
		r.logger.Info("Launch phase resolved",
			zap.String("phase", string(phase.Phase)),
			zap.String("address", phase.Address))
	}
	r.publishLocked(Update{Kind: UpdatePhase, Phase: phase})
}

func (r *Resolver) publishLocked(u Update) {
	u.Generation = r.generation
	if u.Phase.Phase == "" {
		u.Phase = r.phase
	}
	if u.At.IsZero() {
		u.At = time.Now()
	}
	for _, ch := range r.subs {
		deliver(ch, u)
	}
}
