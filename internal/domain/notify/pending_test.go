package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		in       string
		expected Outcome
		wantErr  bool
	}{
		{"granted", Granted, false},
		{" Denied ", Denied, false},
		{"declined", Declined, false},
		{"skip", Declined, false},
		{"maybe", Declined, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutcome(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPendingAnswer(t *testing.T) {
	var (
		mu      sync.Mutex
		signals []bool
	)
	p := NewPending(func(pending bool) {
		mu.Lock()
		defer mu.Unlock()
		signals = append(signals, pending)
	})

	assert.ErrorIs(t, p.Answer(Granted), ErrNoPrompt)

	result := make(chan Outcome, 1)
	go func() {
		outcome, err := p.Prompt(context.Background())
		assert.NoError(t, err)
		result <- outcome
	}()

	require.Eventually(t, p.Waiting, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Answer(Granted))

	select {
	case outcome := <-result:
		assert.Equal(t, Granted, outcome)
	case <-time.After(time.Second):
		t.Fatal("prompt was not answered")
	}
	assert.False(t, p.Waiting())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, signals)
}

func TestPendingTimeout(t *testing.T) {
	p := NewPending(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	outcome, err := p.Prompt(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Declined, outcome)
	assert.False(t, p.Waiting())
	assert.ErrorIs(t, p.Answer(Granted), ErrNoPrompt)
}

func TestPendingRejectsSecondPrompt(t *testing.T) {
	p := NewPending(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _, _ = p.Prompt(ctx) }()
	require.Eventually(t, p.Waiting, time.Second, 5*time.Millisecond)

	_, err := p.Prompt(context.Background())
	assert.ErrorIs(t, err, ErrPromptBusy)
}
