package browser

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/eggprofit/internal/shared/id"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

var (
	// ErrRedirectLoop is reported when a surface exceeds its redirect limit
	ErrRedirectLoop = errors.New("redirect loop detected")
	// ErrTooManyRedirects is the transport's own redirect give-up
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrSurfaceNotFound is returned for an unknown surface id
	ErrSurfaceNotFound = errors.New("surface not found")
	// ErrNotDismissable is returned when the surface is not the newest child
	ErrNotDismissable = errors.New("only the newest child surface can be dismissed")
	// ErrNoPrimary is returned before a primary surface is opened
	ErrNoPrimary = errors.New("no primary surface")
)

// Decision is the navigation policy outcome
type Decision int

const (
	Allow Decision = iota
	Cancel
	OpenExternally
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Cancel:
		return "cancel"
	case OpenExternally:
		return "open_externally"
	default:
		return "unknown"
	}
}

// EventKind identifies a surface event
type EventKind int

const (
	EventRedirect EventKind = iota
	EventLoadFailed
	EventLoadFinished
)

func (k EventKind) String() string {
	switch k {
	case EventRedirect:
		return "redirect"
	case EventLoadFailed:
		return "load_failed"
	case EventLoadFinished:
		return "load_finished"
	default:
		return "unknown"
	}
}

// Event is reported by a surface to its delegate
type Event struct {
	Kind    EventKind
	Surface id.SurfaceID
	// Address is the redirect target, the failed address or the committed page
	Address string
	Err     error
}

// NavigationRequest is one navigation the surface is about to perform
type NavigationRequest struct {
	Address string
	// Redirect marks a server-initiated hop of an ongoing load
	Redirect bool
}

// PopupRequest asks for a new browsing context
type PopupRequest struct {
	Address string
	// TargetFrame is set when the page named an existing frame
	TargetFrame bool
}

// Surface is a browsing view driven by the Manager
type Surface interface {
	ID() id.SurfaceID
	// Load starts a navigation. Implementations consult the delegate for
	// policy and report progress through HandleEvent.
	Load(ctx context.Context, address string) error
	StopLoading()
	CanGoBack() bool
	GoBack(ctx context.Context) error
	// CurrentAddress is the last committed address
	CurrentAddress() string
	Cookies() types.CookieSnapshot
	RestoreCookies(types.CookieSnapshot)
	Close()
}

// Delegate receives policy questions and events from surfaces
type Delegate interface {
	DecideNavigation(ctx context.Context, surface id.SurfaceID, req NavigationRequest) Decision
	HandleEvent(ctx context.Context, ev Event)
	RequestPopup(ctx context.Context, parent id.SurfaceID, req PopupRequest) (Surface, error)
	HandleChallenge(ch Challenge) TrustDecision
}

// SurfaceOptions are passed to a Factory
type SurfaceOptions struct {
	ID       id.SurfaceID
	Parent   id.SurfaceID
	Delegate Delegate
}

// Factory creates surfaces
type Factory func(opts SurfaceOptions) (Surface, error)

// Container is the visual container surfaces are attached to
type Container interface {
	Attach(s Surface)
	Detach(s Surface)
}

// ExternalOpener hands non-web addresses to the platform
type ExternalOpener interface {
	OpenExternal(ctx context.Context, address string) error
}

// ExternalOpenerFunc adapts a function to ExternalOpener
type ExternalOpenerFunc func(ctx context.Context, address string) error

// OpenExternal calls f
func (f ExternalOpenerFunc) OpenExternal(ctx context.Context, address string) error {
	return f(ctx, address)
}

// RecoveryHandler is told when a primary surface cannot recover from a
// redirect loop.
type RecoveryHandler interface {
	HandleUnrecoverableRedirect(surfaceID string, cause error)
}
