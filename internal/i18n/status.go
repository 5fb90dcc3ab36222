// Package i18n holds the user-facing status texts shown while a generation
// job is tracked.
package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Status text keys, one per job phase.
const (
	KeySubmitting = "submitting"
	KeyQueued     = "queued"
	KeyPreparing  = "preparing"
	KeyRunning    = "running"
	KeyCompleted  = "completed"
	KeyFailed     = "failed"
	KeyTimedOut   = "timed_out"
)

var (
	supported = []language.Tag{language.English, language.Chinese, language.TraditionalChinese}
	matcher   = language.NewMatcher(supported)

	catalog = map[language.Tag]map[string]string{
		language.English: {
			KeySubmitting: "Queueing...",
			KeyQueued:     "Queued...",
			KeyPreparing:  "Preparing...",
			KeyRunning:    "Generating...",
			KeyCompleted:  "Done!",
			KeyFailed:     "Generation failed",
			KeyTimedOut:   "Generation timed out",
		},
		language.Chinese: {
			KeySubmitting: "正在排队...",
			KeyQueued:     "排队中...",
			KeyPreparing:  "准备生成...",
			KeyRunning:    "生成中...",
			KeyCompleted:  "完成！",
			KeyFailed:     "生成失败",
			KeyTimedOut:   "生成超时",
		},
	}

	positionFormat = map[language.Tag]string{
		language.English: "Queued (position %d)...",
		language.Chinese: "排队中（第 %d 位）...",
	}
)

// Default is used when nothing better matches.
var Default = language.English

// Match picks the best supported locale for the given preferences. Each
// preference may be a single tag or a full Accept-Language header.
func Match(preferences ...string) language.Tag {
	var cleaned []string
	for _, p := range preferences {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return Default
	}
	_, idx := language.MatchStrings(matcher, cleaned...)
	return supported[idx]
}

// ForCountry maps an ISO country code onto a supported locale.
func ForCountry(country string) (language.Tag, bool) {
	switch strings.ToUpper(strings.TrimSpace(country)) {
	case "CN", "TW", "HK", "MO", "SG":
		return language.Chinese, true
	case "":
		return language.Und, false
	default:
		return language.English, true
	}
}

// Text returns the status text for key in the given locale, falling back to
// English and finally to the key itself.
func Text(tag language.Tag, key string) string {
	if texts, ok := catalog[normalize(tag)]; ok {
		if s, ok := texts[key]; ok {
			return s
		}
	}
	if s, ok := catalog[language.English][key]; ok {
		return s
	}
	return key
}

// QueuedAt returns the queued status text including a 1-based position.
func QueuedAt(tag language.Tag, position int) string {
	format, ok := positionFormat[normalize(tag)]
	if !ok {
		format = positionFormat[language.English]
	}
	return fmt.Sprintf(format, position)
}

func normalize(tag language.Tag) language.Tag {
	base, _ := tag.Base()
	switch base.String() {
	case "zh":
		return language.Chinese
	default:
		return language.English
	}
}
