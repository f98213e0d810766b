package tags

import (
	"testing"

	"github.com/nostric/connectr/pkg/nostr/tag"
	"github.com/stretchr/testify/require"
)

func sample() T {
	return T{
		tag.T{"p", "aa", "wss://relay.example.com"},
		tag.T{"p", "bb"},
		tag.T{"e", "cc", "", "root"},
	}
}

func TestGetFirstAndLast(t *testing.T) {
	tt := sample()
	first := tt.GetFirst(tag.T{"p"})
	require.NotNil(t, first)
	require.Equal(t, "aa", first.Value())
	require.Equal(t, "wss://relay.example.com", first.Relay())

	last := tt.GetLast(tag.T{"p"})
	require.NotNil(t, last)
	require.Equal(t, "bb", last.Value())

	require.Nil(t, tt.GetFirst(tag.T{"d"}))
}

func TestStartsWithMatchesPrefixOnLastElement(t *testing.T) {
	tg := tag.T{"e", "cc11dd"}
	require.True(t, tg.StartsWith(tag.T{"e", "cc"}))
	require.False(t, tg.StartsWith(tag.T{"e", "dd"}))
	require.False(t, tg.StartsWith(tag.T{"p", "cc"}))
}

func TestGetAll(t *testing.T) {
	tt := sample()
	require.Len(t, tt.GetAll("p"), 2)
	require.Len(t, tt.GetAll("e"), 1)
	require.Empty(t, tt.GetAll("d"))
}

func TestContainsAny(t *testing.T) {
	tt := sample()
	require.True(t, tt.ContainsAny("p", "bb", "zz"))
	require.False(t, tt.ContainsAny("p", "zz"))
	require.False(t, tt.ContainsAny("d", "aa"))
}

func TestAppendUnique(t *testing.T) {
	tt := sample()
	n := len(tt)
	tt = tt.AppendUnique(tag.T{"p", "aa", "wss://relay.example.com"})
	require.Len(t, tt, n)
	tt = tt.AppendUnique(tag.T{"p", "zz"})
	require.Len(t, tt, n+1)
}

func TestMarshalToEscapes(t *testing.T) {
	tt := T{tag.T{"t", `quote " and newline` + "\n"}}
	out := string(tt.MarshalTo(nil))
	require.Equal(t, `[["t","quote \" and newline\n"]]`, out)
}

func TestMarshalEmpty(t *testing.T) {
	require.Equal(t, "[]", string(T{}.MarshalTo(nil)))
	var nilTags T
	require.Equal(t, "[]", string(nilTags.MarshalTo(nil)))
}

func TestCloneIsDeep(t *testing.T) {
	tt := sample()
	cp := tt.Clone()
	cp[0][1] = "changed"
	require.Equal(t, "aa", tt[0][1])
}
