package event

import (
	"errors"
	"testing"

	"github.com/nostric/connectr/pkg/errs"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/tag"
	"github.com/nostric/connectr/pkg/nostr/tags"
	"github.com/nostric/connectr/pkg/nostr/timestamp"
	"github.com/stretchr/testify/require"
)

const testSecKey = "5c85b2467925f63f0f9b01ac34bdb8ba8e284d6de4130fde3e9e48def262c103"

func signedEvent(t *testing.T) *T {
	t.Helper()
	ev := &T{
		CreatedAt: timestamp.T(1700000000),
		Kind:      kind.TextNote,
		Tags:      tags.T{tag.T{"p", "deadbeef"}},
		Content:   `hello "world"` + "\nsecond line",
	}
	require.NoError(t, ev.Sign(testSecKey))
	return ev
}

func TestSignAndVerify(t *testing.T) {
	ev := signedEvent(t)
	require.Len(t, ev.ID.String(), 64)
	require.Len(t, ev.PubKey, 64)
	require.Len(t, ev.Sig, 128)

	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, ev.Validate())
}

func TestSerializeIsCanonical(t *testing.T) {
	ev := signedEvent(t)
	ser := string(ev.Serialize())
	require.Equal(t, byte('['), ser[0])
	require.Contains(t, ser, `[0,"`+ev.PubKey+`",1700000000,1,`)
	// content escaping must match the wire form
	require.Contains(t, ser, `hello \"world\"\nsecond line`)
}

func TestTamperedContentFailsValidation(t *testing.T) {
	ev := signedEvent(t)
	ev.Content += "!"
	err := ev.Validate()
	require.Error(t, err)
	// the id no longer matches the serialized form
	require.True(t, errors.Is(err, errs.Validation))
}

func TestTamperedSigFailsValidation(t *testing.T) {
	ev := signedEvent(t)
	// flip one hex digit of the signature
	sig := []byte(ev.Sig)
	if sig[0] == '0' {
		sig[0] = '1'
	} else {
		sig[0] = '0'
	}
	ev.Sig = string(sig)
	err := ev.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.Signature))
}

func TestValidateRejectsMalformedFields(t *testing.T) {
	for name, mutate := range map[string]func(*T){
		"short id":      func(ev *T) { ev.ID = "abcd" },
		"bad pubkey":    func(ev *T) { ev.PubKey = "nothex" },
		"short sig":     func(ev *T) { ev.Sig = "00ff" },
		"negative time": func(ev *T) { ev.CreatedAt = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			ev := signedEvent(t)
			mutate(ev)
			err := ev.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, errs.Validation))
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	ev := signedEvent(t)
	b, err := ev.MarshalJSON()
	require.NoError(t, err)

	var back T
	require.NoError(t, back.UnmarshalJSON(b))
	require.Equal(t, ev.ID, back.ID)
	require.Equal(t, ev.PubKey, back.PubKey)
	require.Equal(t, ev.CreatedAt, back.CreatedAt)
	require.Equal(t, ev.Kind, back.Kind)
	require.Equal(t, ev.Tags, back.Tags)
	require.Equal(t, ev.Content, back.Content)
	require.Equal(t, ev.Sig, back.Sig)
	require.NoError(t, back.Validate())
}

func TestSignFillsEmptyTags(t *testing.T) {
	ev := &T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.TextNote,
		Content:   "no tags",
	}
	require.NoError(t, ev.Sign(testSecKey))
	require.NotNil(t, ev.Tags)
	require.NoError(t, ev.Validate())
}

func TestSignRejectsBadKey(t *testing.T) {
	ev := &T{Kind: kind.TextNote, Content: "x"}
	require.Error(t, ev.Sign("tooshort"))
}
