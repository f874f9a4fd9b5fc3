package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/avr-controller/internal/model"
)

type MockSource struct {
	mu    sync.Mutex
	calls int
	state model.ReceiverState
	err   error
}

func (m *MockSource) GetFullState(ctx context.Context) (model.ReceiverState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.state, m.err
}

func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordingSink struct {
	mu     sync.Mutex
	states []model.ReceiverState
}

func (r *recordingSink) Sync(state model.ReceiverState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func TestPollOnce_FansOutToSinks(t *testing.T) {
	state := model.ReceiverState{IsPoweredOn: true, Input: model.InputCD, VolumeDB: -30, VolumePercent: 52}
	source := &MockSource{state: state}
	first := &recordingSink{}
	var second []model.ReceiverState

	p := New(source, time.Second, first, SinkFunc(func(s model.ReceiverState) { second = append(second, s) }))
	p.PollOnce(context.Background())

	require.Len(t, first.states, 1)
	assert.Equal(t, state, first.states[0])
	assert.Equal(t, []model.ReceiverState{state}, second)
}

func TestPollOnce_ErrorSkipsSinks(t *testing.T) {
	source := &MockSource{err: errors.New("status code 500")}
	sink := &recordingSink{}

	New(source, time.Second, sink).PollOnce(context.Background())

	assert.Equal(t, 1, source.Calls())
	assert.Zero(t, sink.count())
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	source := &MockSource{state: model.DefaultState()}
	sink := &recordingSink{}
	p := New(source, 10*time.Millisecond, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sink.count() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}
