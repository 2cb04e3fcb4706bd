package consent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMayIssueSessionCookie(t *testing.T) {
	cases := []struct {
		pref string
		want bool
	}{
		{"true", true},
		{"selected:session", true},
		{"selected:functional,session", true},
		{"selected:session,functional", true},
		{"false", false},
		{"", false},
		{"selected:functional", false},
		{"selected:", false},
		{"selected", false},
		{"TRUE", false},
		{"true ", false},
		{"selected: session", false},
		{"selected:sess", false},
		{"selected:sessions", false},
		{"yes", false},
	}
	for _, c := range cases {
		t.Run(c.pref, func(t *testing.T) {
			assert.Equal(t, c.want, MayIssueSessionCookie(c.pref), "pref=%q", c.pref)
		})
	}
}

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed("true", CategoryFunctional))
	assert.True(t, Allowed("selected:functional", CategoryFunctional))
	assert.False(t, Allowed("selected:functional", CategorySession))
	assert.False(t, Allowed("false", CategoryFunctional))
	assert.False(t, Allowed("", CategoryFunctional))
}

func TestSelected(t *testing.T) {
	require.Equal(t, "selected:functional,session", Selected([]string{"functional", "session"}))
	require.Equal(t, "selected:session", Selected([]string{"session"}))
	require.Equal(t, "selected:session", Selected([]string{" session ", ""}))
	// Пустой набор равносилен отказу.
	require.Equal(t, Reject(), Selected(nil))
	require.Equal(t, Reject(), Selected([]string{"", "  "}))
}

func TestGivenAndAll(t *testing.T) {
	assert.True(t, Given("true"))
	assert.True(t, Given("selected:functional"))
	assert.True(t, Given("selected:"))
	assert.False(t, Given("false"))
	assert.False(t, Given(""))

	assert.True(t, All("true"))
	assert.False(t, All("selected:functional,session"))
	assert.False(t, All("false"))
}

func TestAcceptRejectValues(t *testing.T) {
	require.Equal(t, "true", Accept())
	require.Equal(t, "false", Reject())
	require.True(t, MayIssueSessionCookie(Accept()))
	require.False(t, MayIssueSessionCookie(Reject()))
}
