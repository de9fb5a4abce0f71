package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/eggprofit/internal/providers/http/client"
	"github.com/GriffinCanCode/eggprofit/internal/shared/id"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

// ErrSurfaceClosed is returned by operations on a closed surface
var ErrSurfaceClosed = errors.New("surface closed")

// DefaultMaxHops bounds the redirects a single headless load follows before
// it fails with ErrTooManyRedirects.
const DefaultMaxHops = 100

// HeadlessOptions configures headless surfaces
type HeadlessOptions struct {
	Timeout   time.Duration
	UserAgent string
	MaxHops   int
}

// HeadlessFactory returns a Factory producing HTTP-backed surfaces
func HeadlessFactory(opts HeadlessOptions) Factory {
	return func(so SurfaceOptions) (Surface, error) {
		return NewHeadless(so, opts)
	}
}

// Headless is a Surface that fetches pages over HTTP without rendering.
// Redirects are followed by hand so each hop reaches the delegate.
type Headless struct {
	id       id.SurfaceID
	delegate Delegate
	client   *client.Client
	jar      *Jar
	maxHops  int

	mu      sync.Mutex
	gen     uint64   // Protected by mu, bumped by every load and stop
	history []string // Protected by mu
	index   int      // Protected by mu, -1 before the first commit
	title   string   // Protected by mu
	closed  bool     // Protected by mu
}

// NewHeadless creates a headless surface
func NewHeadless(so SurfaceOptions, opts HeadlessOptions) (*Headless, error) {
	if so.Delegate == nil {
		return nil, errors.New("surface delegate required")
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	if so.ID == "" {
		so.ID = id.NewSurfaceID()
	}

	jar := NewJar()
	// Recovery reloads must always reach the network
	breaker := client.NeverTripSettings()
	c := client.NewClient(client.Options{
		Name:      "surface-" + string(so.ID),
		Timeout:   opts.Timeout,
		UserAgent: opts.UserAgent,
		TLSConfig: TLSConfig(so.Delegate.HandleChallenge),
		Jar:       jar,
		Breaker:   &breaker,
	})

	return &Headless{
		id:       so.ID,
		delegate: so.Delegate,
		client:   c,
		jar:      jar,
		maxHops:  opts.MaxHops,
		index:    -1,
	}, nil
}

// ID returns the surface id
func (h *Headless) ID() id.SurfaceID { return h.id }

// Load navigates to address, pushing a history entry once it commits
func (h *Headless) Load(ctx context.Context, address string) error {
	return h.navigate(ctx, address, true)
}

// StopLoading abandons the load in progress
func (h *Headless) StopLoading() {
	h.mu.Lock()
	h.gen++
	h.mu.Unlock()
}

// CanGoBack reports whether there is an earlier history entry
func (h *Headless) CanGoBack() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.index > 0
}

// GoBack reloads the previous history entry
func (h *Headless) GoBack(ctx context.Context) error {
	h.mu.Lock()
	if h.index <= 0 {
		h.mu.Unlock()
		return errors.New("no earlier history entry")
	}
	h.index--
	target := h.history[h.index]
	h.mu.Unlock()

	return h.navigate(ctx, target, false)
}

// CurrentAddress returns the committed address
func (h *Headless) CurrentAddress() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index < 0 {
		return ""
	}
	return h.history[h.index]
}

// Title returns the committed page's title
func (h *Headless) Title() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.title
}

// Cookies snapshots the surface's cookie jar
func (h *Headless) Cookies() types.CookieSnapshot {
	return h.jar.Snapshot()
}

// RestoreCookies loads snap into the cookie jar
func (h *Headless) RestoreCookies(snap types.CookieSnapshot) {
	h.jar.Restore(snap)
}

// Close stops any load and rejects further navigation
func (h *Headless) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.gen++
}

// OpenWindow asks the delegate for a new browsing context, as a page's
// window.open would. A non-empty frame other than _blank names an existing
// frame.
func (h *Headless) OpenWindow(ctx context.Context, address, frame string) (Surface, error) {
	resolved := address
	if address != "" && !isBlank(address) {
		resolved = h.resolve(address)
	}
	targetFrame := frame != "" && frame != "_blank"
	return h.delegate.RequestPopup(ctx, h.id, PopupRequest{Address: resolved, TargetFrame: targetFrame})
}

// Follow navigates to href resolved against the current address
func (h *Headless) Follow(ctx context.Context, href string) error {
	return h.Load(ctx, h.resolve(href))
}

func (h *Headless) resolve(href string) string {
	base, err := url.Parse(h.CurrentAddress())
	if err != nil || base.Scheme == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// begin starts a new load generation
func (h *Headless) begin() (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrSurfaceClosed
	}
	h.gen++
	return h.gen, nil
}

func (h *Headless) current(gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen == gen && !h.closed
}

func (h *Headless) navigate(ctx context.Context, address string, push bool) error {
	gen, err := h.begin()
	if err != nil {
		return err
	}

	hops := 0
	for {
		decision := h.delegate.DecideNavigation(ctx, h.id, NavigationRequest{Address: address, Redirect: hops > 0})
		if decision != Allow || !h.current(gen) {
			return nil
		}

		resp, err := h.client.Get(ctx, address, func(r *resty.Request) {
			r.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		})
		if !h.current(gen) {
			return nil
		}
		if err != nil {
			h.delegate.HandleEvent(ctx, Event{Kind: EventLoadFailed, Surface: h.id, Address: address, Err: err})
			return err
		}

		next, redirected := h.redirectTarget(address, resp)
		if !redirected {
			refresh, ok := h.commit(gen, address, resp, push)
			if !ok {
				return nil
			}
			push = true
			if refresh == "" {
				h.delegate.HandleEvent(ctx, Event{Kind: EventLoadFinished, Surface: h.id, Address: address})
				return nil
			}
			next = refresh
		}

		hops++
		if hops > h.maxHops {
			h.delegate.HandleEvent(ctx, Event{Kind: EventLoadFailed, Surface: h.id, Address: next, Err: ErrTooManyRedirects})
			return ErrTooManyRedirects
		}
		h.delegate.HandleEvent(ctx, Event{Kind: EventRedirect, Surface: h.id, Address: next})
		if !h.current(gen) {
			return nil
		}
		address = next
	}
}

func (h *Headless) redirectTarget(address string, resp *resty.Response) (string, bool) {
	switch resp.StatusCode() {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return "", false
	}
	location := resp.Header().Get("Location")
	if location == "" {
		return "", false
	}
	base, err := url.Parse(address)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// commit records address as the current page and returns the target of an
// immediate meta refresh, if the page has one.
func (h *Headless) commit(gen uint64, address string, resp *resty.Response, push bool) (string, bool) {
	var title, refresh string
	if isHTML(resp.Header().Get("Content-Type")) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String())); err == nil {
			title = strings.TrimSpace(doc.Find("title").First().Text())
			doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if !strings.EqualFold(s.AttrOr("http-equiv", ""), "refresh") {
					return true
				}
				refresh = parseRefresh(s.AttrOr("content", ""))
				return false
			})
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen != gen || h.closed {
		return "", false
	}
	if push {
		h.history = append(h.history[:h.index+1], address)
		h.index = len(h.history) - 1
	}
	h.title = title

	if refresh != "" {
		base, err := url.Parse(address)
		ref, rerr := url.Parse(refresh)
		if err != nil || rerr != nil {
			return "", true
		}
		refresh = base.ResolveReference(ref).String()
	}
	return refresh, true
}

func isHTML(contentType string) bool {
	return contentType == "" || strings.Contains(strings.ToLower(contentType), "html")
}

// parseRefresh returns the target of a zero-delay refresh directive such as
// "0; url=/next". Delayed refreshes are ignored.
func parseRefresh(content string) string {
	delay, rest, _ := strings.Cut(content, ";")
	seconds, err := strconv.ParseFloat(strings.TrimSpace(delay), 64)
	if err != nil || seconds > 0 {
		return ""
	}
	rest = strings.TrimSpace(rest)
	if len(rest) >= 4 && strings.EqualFold(rest[:4], "url=") {
		rest = rest[4:]
	}
	return strings.Trim(strings.TrimSpace(rest), `'"`)
}

// String describes the surface for logs
func (h *Headless) String() string {
	return fmt.Sprintf("headless(%s @ %s)", h.id, h.CurrentAddress())
}
