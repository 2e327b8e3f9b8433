package katcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"simple",
		"has spaces in it",
		"tab\tnewline\nreturn\r",
		"backslash\\and\\more",
		"J1234+5678_cal",
		string([]byte{0x01, 0x02, 0x7f}),
	}
	for _, s := range cases {
		assert.Equal(t, s, Unescape(Escape(s)), "round trip for %q", s)
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	m := map[string]any{
		"source-name": "J1234+5678_cal",
		"nested": map[string]any{
			"a": float64(1),
			"b": "two words",
		},
	}
	packed, err := Pack(m)
	require.NoError(t, err)

	got, err := Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestParseLine(t *testing.T) {
	msg, ok := ParseLine("?configure rendered\\_config sensors")
	require.True(t, ok)
	assert.Equal(t, TypeRequest, msg.Type)
	assert.Equal(t, "configure", msg.Verb)
	assert.Equal(t, []string{"rendered config", "sensors"}, msg.UnescapedArgs())

	_, ok = ParseLine("")
	assert.False(t, ok)

	_, ok = ParseLine("not-a-katcp-line")
	assert.False(t, ok)
}

func TestRenderReply(t *testing.T) {
	r := NewReply("configure", Ok)
	assert.Equal(t, "!configure ok", r.Render())

	f := NewReply("configure", Fail, "node b timed out")
	assert.Equal(t, `!configure fail node\_b\_timed\_out`, f.Render())
}
