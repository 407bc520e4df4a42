package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestEncodeShowNameKnownValues(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Default", "Default"},
		{"My Show", "My%20Show"},
		{"Hamlet (2024)", "Hamlet%20(2024)"},
		{"100%", "100%25"},
		{"a/b", "a%2Fb"},
		{"tour-v1.2_final!", "tour-v1.2_final!"},
		{"Die Zauberflöte", "Die%20Zauberfl%C3%B6te"},
	}
	for _, c := range cases {
		if got := EncodeShowName(c.in); got != c.want {
			t.Errorf("EncodeShowName(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDecodeShowNameMalformedEscapes(t *testing.T) {
	// Legacy directories with stray percents decode literally.
	cases := []struct{ in, want string }{
		{"50%", "50%"},
		{"%GG", "%GG"},
		{"%2", "%2"},
		{"ok%20fine", "ok fine"},
	}
	for _, c := range cases {
		if got := DecodeShowName(c.in); got != c.want {
			t.Errorf("DecodeShowName(%q): got %q, want %q", c.in, got, c.want)
		}
	}
}

// Test_encodeRoundTrip — decode(encode(name)) is the identity for any show
// name, and encoded output never needs filesystem escaping.
func Test_encodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var name = rapid.String().Draw(t, "name")
		enc := EncodeShowName(name)

		assert.Equal(t, name, DecodeShowName(enc))
		assert.NotContains(t, enc, "/")
		assert.False(t, strings.ContainsAny(enc, "\x00\n"))
	})
}

// Test_encodeCanonical — encode(decode(x)) is the identity on anything the
// encoder itself produced, which is what the startup rename migration
// relies on.
func Test_encodeCanonical(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var name = rapid.String().Draw(t, "name")
		enc := EncodeShowName(name)

		assert.Equal(t, enc, EncodeShowName(DecodeShowName(enc)))
	})
}

// Test_encodeInjective — distinct names map to distinct directories.
func Test_encodeInjective(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.String().Draw(t, "a")
		b := rapid.String().Draw(t, "b")
		if a == b {
			return
		}
		assert.NotEqual(t, EncodeShowName(a), EncodeShowName(b))
	})
}
