package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSpeechText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Xin chào bạn", "Xin chào bạn"},
		{"emoji", "Chào bạn 😊🌸 nhé!", "Chào bạn nhé!"},
		{"zwj family", "gia đình 👨‍👩‍👧 vui", "gia đình vui"},
		{"flag", "Việt Nam 🇻🇳", "Việt Nam"},
		{"keycap and selector", "số 1️⃣ nhé ❤️", "số 1 nhé"},
		{"skin tone", "ok 👍🏽 luôn", "ok luôn"},
		{"curly quotes", "“Em” nói ‘vâng’", `"Em" nói 'vâng'`},
		{"markup", "*đậm* _nghiêng_ ~gạch~ `code` ^mũ", "đậm nghiêng gạch code mũ"},
		{"whitespace", "  một\n\nhai\t\tba   ", "một hai ba"},
		{"symbols", "© 2024 ™ ®", "2024"},
		{"decomposed vietnamese", "Vie\u0323\u0302t", "Vi\u1ec7t"},
		{"mark after removed emoji", "e😀\u0301", "\u00e9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeSpeechText(tc.in))
		})
	}
}

func TestSanitizeSpeechText_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"Chào bạn 😊🌸 nhé!",
		"“Em” nói ‘vâng’ *rất* _nhẹ_",
		"e😀\u0301 a*\u0300",
		"👨‍👩‍👧  \n\t 🇻🇳 ~~~",
		"Hôm nay trời đẹp quá ☀️, mình đi dạo nhé ~",
		"plain ascii text with   spaces",
		"xin\u1fefchào",
		"a\u1fef\u1fef b \u1fed",
	}
	for _, in := range inputs {
		once := SanitizeSpeechText(in)
		assert.Equal(t, once, SanitizeSpeechText(once), "input %q", in)
	}
}

func TestSanitizeSpeechText_DecomposesToStopList(t *testing.T) {
	// U+1FEF GREEK VARIA is canonically a backtick.
	assert.Equal(t, "xinchào", SanitizeSpeechText("xin\u1fefchào"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abcdef", 3))
	assert.Equal(t, "ệệ", truncateRunes("ệệệ", 2))
	assert.Equal(t, "ab", truncateRunes("ab", 5))
	assert.Equal(t, "abc", truncateRunes("abc", 0))
}
