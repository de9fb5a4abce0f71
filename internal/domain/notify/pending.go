package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrNoPrompt is returned by Answer when no prompt is waiting
	ErrNoPrompt = errors.New("no notification prompt pending")
	// ErrPromptBusy is returned by Prompt when another prompt is waiting
	ErrPromptBusy = errors.New("notification prompt already pending")
)

// ParseOutcome parses the names produced by Outcome.String
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "granted":
		return Granted, nil
	case "denied":
		return Denied, nil
	case "declined", "skip", "later":
		return Declined, nil
	default:
		return Declined, fmt.Errorf("unknown prompt outcome %q", s)
	}
}

// Pending is a Prompter answered out of band, e.g. by the native shell
// through the bridge. Prompt parks until Answer or ctx ends.
type Pending struct {
	mu      sync.Mutex
	waiting chan Outcome
	notify  func(pending bool)
}

// NewPending creates a Pending prompter. notify, when non-nil, is called
// as a prompt starts and stops waiting.
func NewPending(notify func(pending bool)) *Pending {
	return &Pending{notify: notify}
}

// Prompt waits for an answer
func (p *Pending) Prompt(ctx context.Context) (Outcome, error) {
	ch := make(chan Outcome, 1)

	p.mu.Lock()
	if p.waiting != nil {
		p.mu.Unlock()
		return Declined, ErrPromptBusy
	}
	p.waiting = ch
	p.mu.Unlock()
	p.signal(true)

	defer func() {
		p.mu.Lock()
		if p.waiting == ch {
			p.waiting = nil
		}
		p.mu.Unlock()
		p.signal(false)
	}()

	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctx.Done():
		return Declined, ctx.Err()
	}
}

// Waiting reports whether a prompt is parked
func (p *Pending) Waiting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting != nil
}

// Answer resolves the parked prompt
func (p *Pending) Answer(outcome Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiting == nil {
		return ErrNoPrompt
	}
	select {
	case p.waiting <- outcome:
	default:
		return ErrNoPrompt
	}
	p.waiting = nil
	return nil
}

func (p *Pending) signal(pending bool) {
	if p.notify != nil {
		p.notify(pending)
	}
}
