package verbs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConjugateDefaultVerbs(t *testing.T) {
	cases := []struct {
		base, activity, event string
	}{
		{"create", "creating", "created"},
		{"update", "updating", "updated"},
		{"delete", "deleting", "deleted"},
	}
	for _, c := range cases {
		got := Conjugate(c.base)
		require.Equal(t, c.base, got.Action)
		require.Equal(t, c.activity, got.Activity)
		require.Equal(t, c.event, got.Event)
		require.Equal(t, c.event+"By", got.ReverseBy)
		require.Equal(t, c.event+"At", got.ReverseAt)
	}
}

func TestConjugateYEnding(t *testing.T) {
	got := Conjugate("qualify")
	require.Equal(t, "qualifying", got.Activity)
	require.Equal(t, "qualified", got.Event)
}

func TestConjugateCVCDoubling(t *testing.T) {
	// "stop" -> CVC, length 4 <= 6 -> double final consonant.
	got := Conjugate("stop")
	require.Equal(t, "stopping", got.Activity)
	require.Equal(t, "stopped", got.Event)
}

func TestConjugateSibilantThirdPerson(t *testing.T) {
	require.Equal(t, "closes", Conjugate("close").ThirdPerson)
	require.Equal(t, "qualifies", Conjugate("qualify").ThirdPerson)
}

func TestConjugateIrregular(t *testing.T) {
	got := Conjugate("send")
	require.Equal(t, "sending", got.Activity)
	require.Equal(t, "sent", got.Event)
	require.Equal(t, "sentBy", got.ReverseBy)
}

func TestConjugateCaseInsensitive(t *testing.T) {
	got := Conjugate("Close")
	require.Equal(t, "close", got.Action)
	require.Equal(t, "closing", got.Activity)
	require.Equal(t, "closed", got.Event)
}
