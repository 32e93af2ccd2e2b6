package store_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/codechat/pkg/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("s%d", n)
	}
}

func TestNew_SeedsOneActiveSession(t *testing.T) {
	s := store.New()

	assert.Equal(t, 1, s.Len())
	id := s.ActiveID()
	require.NotEmpty(t, id)

	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultSessionName, sess.Name)
	assert.Equal(t, store.CreatedLabelNew, sess.CreatedLabel)
	assert.Empty(t, sess.Messages)
}

func TestCreate_ActivatesNewSession(t *testing.T) {
	s := store.New()
	first := s.ActiveID()

	second := s.Create()
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, s.ActiveID())
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Exists(first))
}

func TestActivate_UnknownSession(t *testing.T) {
	s := store.New()
	active := s.ActiveID()

	err := s.Activate("missing")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.Equal(t, active, s.ActiveID())
}

func TestReset_ReplacesEverySession(t *testing.T) {
	s := store.New()
	old := []string{s.ActiveID(), s.Create(), s.Create()}
	_, err := s.Append(old[1], store.Message{Role: store.RoleUser, Content: "hi"})
	require.NoError(t, err)

	fresh := s.Reset()
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, fresh, s.ActiveID())
	for _, id := range old {
		assert.False(t, s.Exists(id), "session %s survived reset", id)
	}
	assert.Empty(t, s.Messages(fresh))
}

func TestAppend_AssignsIncreasingIDs(t *testing.T) {
	clock := newFakeClock()
	s := store.New(store.WithClock(clock.Now))
	id := s.ActiveID()

	// Clock never advances: ids must still increase.
	var last int64
	for i := 0; i < 5; i++ {
		msg, err := s.Append(id, store.Message{Role: store.RoleUser, Content: "x"})
		require.NoError(t, err)
		assert.Greater(t, msg.ID, last)
		last = msg.ID
	}

	msgs := s.Messages(id)
	require.Len(t, msgs, 5)
	for i := 1; i < len(msgs); i++ {
		assert.Less(t, msgs[i-1].ID, msgs[i].ID)
	}
}

func TestAppend_UnknownSession(t *testing.T) {
	s := store.New()
	_, err := s.Append("missing", store.Message{Role: store.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestAppend_NamesSessionFromFirstUserMessage(t *testing.T) {
	s := store.New()
	id := s.ActiveID()

	_, err := s.Append(id, store.Message{Role: store.RoleUser, Content: "How do I reverse a list in JS?"})
	require.NoError(t, err)
	_, err = s.Append(id, store.Message{Role: store.RoleUser, Content: "second message"})
	require.NoError(t, err)

	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "How do I reverse a l...", sess.Name)
}

func TestAppend_AssistantDoesNotRename(t *testing.T) {
	s := store.New()
	id := s.ActiveID()

	_, err := s.Append(id, store.Message{Role: store.RoleAssistant, Content: "Hello there"})
	require.NoError(t, err)

	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultSessionName, sess.Name)
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := store.New()
	id := s.ActiveID()
	_, err := s.Append(id, store.Message{Role: store.RoleUser, Content: "original"})
	require.NoError(t, err)

	sess, err := s.Get(id)
	require.NoError(t, err)
	sess.Messages[0].Content = "mutated"

	assert.Equal(t, "original", s.Messages(id)[0].Content)
}

func TestMessages_UnknownSessionIsEmpty(t *testing.T) {
	s := store.New()
	assert.Empty(t, s.Messages("missing"))
}

func TestSummaries_RecencyOrder(t *testing.T) {
	clock := newFakeClock()
	s := store.New(store.WithClock(clock.Now), store.WithIDGenerator(sequentialIDs()))

	clock.Advance(time.Second)
	s.Create() // s2
	clock.Advance(time.Second)
	s.Create() // s3

	// Empty sessions: newest first.
	ids := summaryIDs(s.Summaries())
	assert.Equal(t, []string{"s3", "s2", "s1"}, ids)

	clock.Advance(time.Second)
	_, err := s.Append("s1", store.Message{Role: store.RoleUser, Content: "a"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = s.Append("s2", store.Message{Role: store.RoleUser, Content: "b"})
	require.NoError(t, err)

	sums := s.Summaries()
	assert.Equal(t, []string{"s2", "s1", "s3"}, summaryIDs(sums))
	assert.Equal(t, 1, sums[0].MessageCount)
	assert.Equal(t, "b", sums[0].Name)
	assert.Zero(t, sums[2].LastActivity)
}

func TestSummaries_CreatedLabel(t *testing.T) {
	clock := newFakeClock()
	s := store.New(store.WithClock(clock.Now))

	assert.Equal(t, store.CreatedLabelNew, s.Summaries()[0].CreatedLabel)

	clock.Advance(2 * time.Hour)
	assert.Equal(t, "2 hours ago", s.Summaries()[0].CreatedLabel)
}

func TestSessionName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"exactly twenty chars", "exactly twenty chars"},
		{"this one is longer than twenty", "this one is longer t..."},
		{"  spaced\n\tout  ", "spaced out"},
		{"   ", store.DefaultSessionName},
		{"héllo wörld ünïcödé stuff", "héllo wörld ünïcödé ..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, store.SessionName(tt.in), "input %q", tt.in)
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	s := store.New()
	id := s.ActiveID()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Append(id, store.Message{Role: store.RoleUser, Content: "x"})
		}()
	}
	wg.Wait()

	msgs := s.Messages(id)
	require.Len(t, msgs, 50)
	seen := make(map[int64]bool)
	for i, m := range msgs {
		assert.False(t, seen[m.ID])
		seen[m.ID] = true
		if i > 0 {
			assert.Less(t, msgs[i-1].ID, m.ID)
		}
	}
}

func summaryIDs(sums []store.Summary) []string {
	ids := make([]string, len(sums))
	for i, s := range sums {
		ids[i] = s.ID
	}
	return ids
}
