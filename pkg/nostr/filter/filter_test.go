package filter

import (
	"testing"

	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/tag"
	"github.com/nostric/connectr/pkg/nostr/tags"
	"github.com/nostric/connectr/pkg/nostr/timestamp"
	"github.com/stretchr/testify/require"
)

func sampleEvent() *event.T {
	return &event.T{
		ID:        "dd2b696bbe50a65932b62f3beb1a0c461fff0eca52d42650fcb2f0b8a28741b4",
		PubKey:    "2e0678a866bbf5295effe6054b498c49a0bb33d470532cec6c56f895bba1e469",
		CreatedAt: timestamp.T(1700000500),
		Kind:      kind.TextNote,
		Tags: tags.T{
			tag.T{"e", "ff2b696bbe50a65932b62f3beb1a0c461fff0eca52d42650fcb2f0b8a28741b4"},
			tag.T{"p", "3e0678a866bbf5295effe6054b498c49a0bb33d470532cec6c56f895bba1e469"},
		},
		Content: "matching test subject",
	}
}

func ts(v int64) *timestamp.T {
	t := timestamp.T(v)
	return &t
}

func TestMatches(t *testing.T) {
	ev := sampleEvent()
	testCases := []struct {
		name   string
		filter T
		want   bool
	}{
		{"empty filter matches everything", T{}, true},
		{"matching id", T{IDs: []string{ev.ID.String()}}, true},
		{"wrong id", T{IDs: []string{"00"}}, false},
		{"matching author", T{Authors: []string{ev.PubKey}}, true},
		{"wrong author", T{Authors: []string{"00"}}, false},
		{"matching kind", T{Kinds: []kind.T{kind.TextNote}}, true},
		{"wrong kind", T{Kinds: []kind.T{kind.ProfileMetadata}}, false},
		{"since before", T{Since: ts(1700000000)}, true},
		{"since after", T{Since: ts(1700001000)}, false},
		{"until after", T{Until: ts(1700001000)}, true},
		{"until before", T{Until: ts(1700000000)}, false},
		{"since boundary is inclusive", T{Since: ts(1700000500)}, true},
		{"until boundary is inclusive", T{Until: ts(1700000500)}, true},
		{"matching p tag", T{Tags: TagMap{
			"p": []string{"3e0678a866bbf5295effe6054b498c49a0bb33d470532cec6c56f895bba1e469"},
		}}, true},
		{"wrong p tag", T{Tags: TagMap{"p": []string{"00"}}}, false},
		{"absent tag key", T{Tags: TagMap{"d": []string{"x"}}}, false},
		{"all conditions", T{
			Authors: []string{ev.PubKey},
			Kinds:   []kind.T{kind.TextNote},
			Since:   ts(1700000000),
			Until:   ts(1700001000),
		}, true},
		{"one failing condition fails all", T{
			Authors: []string{ev.PubKey},
			Kinds:   []kind.T{kind.ProfileMetadata},
		}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.filter.Matches(ev))
		})
	}
}

func TestMatchesNilEvent(t *testing.T) {
	f := T{Kinds: []kind.T{kind.TextNote}}
	require.False(t, f.Matches(nil))
}

func TestLimitDoesNotAffectMatching(t *testing.T) {
	ev := sampleEvent()
	require.True(t, T{Limit: 1}.Matches(ev))
}

func TestEqualIsSetWise(t *testing.T) {
	a := T{
		Kinds:   []kind.T{kind.TextNote, kind.ProfileMetadata},
		Authors: []string{"aa", "bb"},
		Tags:    TagMap{"p": []string{"x", "y"}},
	}
	b := T{
		Kinds:   []kind.T{kind.ProfileMetadata, kind.TextNote},
		Authors: []string{"bb", "aa"},
		Tags:    TagMap{"p": []string{"y", "x"}},
	}
	require.True(t, Equal(a, b))

	b.Authors = []string{"aa"}
	require.False(t, Equal(a, b))
}

func TestCloneIsIndependent(t *testing.T) {
	a := T{Authors: []string{"aa"}, Since: ts(10)}
	b := a.Clone()
	b.Authors[0] = "bb"
	*b.Since = 20
	require.Equal(t, "aa", a.Authors[0])
	require.Equal(t, timestamp.T(10), *a.Since)
}
