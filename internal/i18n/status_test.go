package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		prefs []string
		want  language.Tag
	}{
		{name: "empty uses default", want: language.English},
		{name: "blank uses default", prefs: []string{"  "}, want: language.English},
		{name: "simplified chinese", prefs: []string{"zh-CN"}, want: language.Chinese},
		{name: "accept-language header", prefs: []string{"zh-TW,zh;q=0.9,en;q=0.8"}, want: language.Chinese},
		{name: "english region", prefs: []string{"en-GB"}, want: language.English},
		{name: "unsupported falls back", prefs: []string{"id-ID"}, want: language.English},
		{name: "first usable preference wins", prefs: []string{"", "zh"}, want: language.Chinese},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Match(tc.prefs...)
			base, _ := got.Base()
			wantBase, _ := tc.want.Base()
			assert.Equal(t, wantBase, base)
		})
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "完成！", Text(language.Chinese, KeyCompleted))
	assert.Equal(t, "完成！", Text(language.MustParse("zh-Hant-TW"), KeyCompleted))
	assert.Equal(t, "Done!", Text(language.English, KeyCompleted))
	assert.Equal(t, "Generating...", Text(language.Japanese, KeyRunning))
	assert.Equal(t, "unknown_key", Text(language.English, "unknown_key"))
}

func TestQueuedAt(t *testing.T) {
	assert.Equal(t, "Queued (position 3)...", QueuedAt(language.English, 3))
	assert.Equal(t, "排队中（第 2 位）...", QueuedAt(language.Chinese, 2))
}

func TestForCountry(t *testing.T) {
	tag, ok := ForCountry("cn")
	assert.True(t, ok)
	assert.Equal(t, language.Chinese, tag)

	tag, ok = ForCountry("US")
	assert.True(t, ok)
	assert.Equal(t, language.English, tag)

	_, ok = ForCountry("")
	assert.False(t, ok)
}
