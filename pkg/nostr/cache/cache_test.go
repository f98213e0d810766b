package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/filter"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/timestamp"
	"github.com/stretchr/testify/require"
)

func testEvent(n int, k kind.T, created int64) *event.T {
	ev := &event.T{
		PubKey:    "2e0678a866bbf5295effe6054b498c49a0bb33d470532cec6c56f895bba1e469",
		CreatedAt: timestamp.T(created),
		Kind:      k,
		Content:   fmt.Sprintf("event %d", n),
	}
	ev.ID = ev.GetID()
	return ev
}

func TestInsertAndGet(t *testing.T) {
	c := New(time.Minute)
	ev := testEvent(1, kind.TextNote, 100)
	c.Insert(ev, "wss://relay.example.com")

	got, ok := c.Get(ev.ID.String())
	require.True(t, ok)
	require.Equal(t, ev, got)

	src, ok := c.SourceRelay(ev.ID.String())
	require.True(t, ok)
	require.Equal(t, "wss://relay.example.com", src)

	_, ok = c.Get("missing")
	require.False(t, ok)
}

func TestDuplicateInsertDoesNotGrow(t *testing.T) {
	c := New(time.Minute)
	ev := testEvent(1, kind.TextNote, 100)
	c.Insert(ev, "a")
	c.Insert(ev, "b")
	require.Equal(t, 1, c.Len())
}

func TestQueryUsesFilterSemantics(t *testing.T) {
	c := New(time.Minute)
	note := testEvent(1, kind.TextNote, 100)
	profile := testEvent(2, kind.ProfileMetadata, 200)
	c.Insert(note, "")
	c.Insert(profile, "")

	f := filter.T{Kinds: []kind.T{kind.TextNote}}
	evs := c.Query(&f)
	require.Len(t, evs, 1)
	require.Equal(t, note.ID, evs[0].ID)

	// the cache predicate is the same one used on the wire
	for _, ev := range evs {
		require.True(t, f.Matches(ev))
	}
}

func TestQueryOrdersNewestFirstAndHonorsLimit(t *testing.T) {
	c := New(time.Minute)
	for i := 0; i < 5; i++ {
		c.Insert(testEvent(i, kind.TextNote, int64(100+i)), "")
	}
	f := filter.T{Kinds: []kind.T{kind.TextNote}, Limit: 3}
	evs := c.Query(&f)
	require.Len(t, evs, 3)
	for i := 1; i < len(evs); i++ {
		require.GreaterOrEqual(t, evs[i-1].CreatedAt, evs[i].CreatedAt)
	}
	require.Equal(t, timestamp.T(104), evs[0].CreatedAt)
}

func TestQueryLatest(t *testing.T) {
	c := New(time.Minute)
	old := testEvent(1, kind.ProfileMetadata, 100)
	newer := testEvent(2, kind.ProfileMetadata, 200)
	c.Insert(old, "")
	c.Insert(newer, "")

	f := filter.T{Kinds: []kind.T{kind.ProfileMetadata}}
	got := c.QueryLatest(&f)
	require.NotNil(t, got)
	require.Equal(t, newer.ID, got.ID)
}

func TestTTLExpiry(t *testing.T) {
	c := New(time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	ev := testEvent(1, kind.TextNote, 100)
	c.Insert(ev, "")

	_, ok := c.Get(ev.ID.String())
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ev.ID.String())
	require.False(t, ok)

	f := filter.T{}
	require.Empty(t, c.Query(&f))
	require.Equal(t, 1, c.EvictExpired())
	require.Equal(t, 0, c.Len())
}

func TestDuplicateInsertRefreshesTTL(t *testing.T) {
	c := New(time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	ev := testEvent(1, kind.TextNote, 100)
	c.Insert(ev, "")
	now = now.Add(45 * time.Second)
	c.Insert(ev, "")
	now = now.Add(45 * time.Second)

	// 90s after the first insert but only 45s after the refresh
	_, ok := c.Get(ev.ID.String())
	require.True(t, ok)
}

func TestClear(t *testing.T) {
	c := New(time.Minute)
	c.Insert(testEvent(1, kind.TextNote, 100), "")
	c.Clear()
	require.Equal(t, 0, c.Len())
}
