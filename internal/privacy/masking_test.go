package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPSID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"6783451209876543", "************6543"},
		{"12345", "*2345"},
		{"1234", "****"},
		{"1", "*"},
		{"", ""},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, MaskPSID(test.input), "MaskPSID(%q)", test.input)
	}
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "", MaskToken(""))
	assert.Equal(t, "*****", MaskToken("short"))
	assert.Equal(t, "***ZA5d", MaskToken("EAAGm0PX4ZCpsBAKZA5d"))
}

func TestMaskURL(t *testing.T) {
	masked := MaskURL("https://graph.facebook.com/v2.6/me/messages?access_token=EAAGm0PX4ZCpsBAKZA5d")
	assert.NotContains(t, masked, "EAAGm0PX4ZCpsBAK")
	assert.Contains(t, masked, "ZA5d")
	assert.Contains(t, masked, "graph.facebook.com/v2.6/me/messages")

	plain := "https://api.example.com/search?search=cats"
	assert.Equal(t, plain, MaskURL(plain))

	withKey := MaskURL("https://api.example.com/chat?ask=hi&apikey=abcdefghijklmnop")
	assert.NotContains(t, withKey, "abcdefghijkl")

	assert.Equal(t, "", MaskURL(""))
}

func TestMaskText(t *testing.T) {
	assert.Equal(t, "cats", MaskText("cats", 10))
	assert.Equal(t, "show me pi…", MaskText("show me pictures of cats", 10))
	assert.Equal(t, "héllo…", MaskText("héllo wörld", 5))
}

func TestMaskSensitiveFields(t *testing.T) {
	assert.Nil(t, MaskSensitiveFields(nil))

	fields := map[string]interface{}{
		"psid":         "6783451209876543",
		"access_token": "EAAGm0PX4ZCpsBAKZA5d",
		"text":         "show me pictures of cats",
		"status_code":  200,
		"strategy":     "image-template",
	}

	masked := MaskSensitiveFields(fields)

	assert.Equal(t, "************6543", masked["psid"])
	assert.Equal(t, "***ZA5d", masked["access_token"])
	assert.Equal(t, "show me pi…", masked["text"])
	assert.Equal(t, 200, masked["status_code"])
	assert.Equal(t, "image-template", masked["strategy"])

	// original map untouched
	assert.Equal(t, "6783451209876543", fields["psid"])
}
