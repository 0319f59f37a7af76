package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencer_OnlyLatestSettles(t *testing.T) {
	var seq Sequencer
	parent := context.Background()

	first, firstCtx := seq.Issue(parent)
	second, secondCtx := seq.Issue(parent)

	assert.Less(t, first.Seq(), second.Seq())
	assert.Error(t, firstCtx.Err(), "superseded fetch must be cancelled")
	assert.NoError(t, secondCtx.Err())
	assert.True(t, seq.Pending())

	assert.False(t, seq.Settle(first))
	assert.True(t, seq.Pending())

	assert.True(t, seq.Settle(second))
	assert.False(t, seq.Pending())
	assert.EqualValues(t, 2, seq.Settled())
	assert.EqualValues(t, 2, seq.Issued())
}

func TestSequencer_LateResponseAfterSettle(t *testing.T) {
	var seq Sequencer
	old, _ := seq.Issue(context.Background())
	latest, _ := seq.Issue(context.Background())

	require.True(t, seq.Settle(latest))
	assert.False(t, seq.Settle(old))
	assert.EqualValues(t, latest.Seq(), seq.Settled())
}

func TestSequencer_Stop(t *testing.T) {
	var seq Sequencer
	_, ctx := seq.Issue(context.Background())
	seq.Stop()
	assert.Error(t, ctx.Err())
}

type fakeSession struct {
	activity
	id     string
	closed bool
}

func (f *fakeSession) ID() string { return f.id }
func (f *fakeSession) Close()     { f.closed = true }

func TestSessionStore_SweepClosesIdle(t *testing.T) {
	st := newSessionStore[*fakeSession]("test", time.Minute)

	idle := &fakeSession{id: "idle"}
	idle.touch()
	busy := &fakeSession{id: "busy"}
	busy.touch()
	st.put(idle)
	st.put(busy)

	now := time.Now().Add(2 * time.Minute)
	busy.unixNano.Store(now.UnixNano())

	assert.Equal(t, 1, st.sweep(now))
	assert.True(t, idle.closed)
	assert.False(t, busy.closed)

	_, err := st.get("idle")
	assert.Error(t, err)
	got, err := st.get("busy")
	require.NoError(t, err)
	assert.Same(t, busy, got)
}

func TestSessionStore_RunClosesAllOnShutdown(t *testing.T) {
	st := newSessionStore[*fakeSession]("test", time.Hour)
	s := &fakeSession{id: "a"}
	s.touch()
	st.put(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	assert.True(t, s.closed)
}
