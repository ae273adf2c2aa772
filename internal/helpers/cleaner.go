package helpers

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// asciiPunctuation is the 32-character ASCII punctuation set.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// nonSpace mirrors a Unicode-aware \S: RE2's \S only excludes ASCII whitespace.
const nonSpace = `[^\s\v\x1c-\x1f\x{85}\p{Z}]`

var (
	mentionRe   = regexp.MustCompile(`@[A-Za-z0-9_]+`)
	hashtagRe   = regexp.MustCompile(`#[A-Za-z0-9_]+`)
	bracketRe   = regexp.MustCompile(`\[.*?\]`)
	urlRe       = regexp.MustCompile(`https?://` + nonSpace + `+|www\.` + nonSpace + `+`)
	htmlTagRe   = regexp.MustCompile(`<.*?>+`)
	digitWordRe = regexp.MustCompile(`[\p{L}\p{N}_]*\p{Nd}[\p{L}\p{N}_]*`)
)

var emojiRe = regexp.MustCompile(`[` +
	`\x{1F600}-\x{1F64F}` + // emoticons
	`\x{1F300}-\x{1F5FF}` + // symbols & pictographs
	`\x{1F680}-\x{1F6FF}` + // transport & map symbols
	`\x{1F1E0}-\x{1F1FF}` + // flags
	`\x{2702}-\x{27B0}` +
	`\x{24C2}-\x{1F251}` +
	`]+`)

var punctuationSet = func() [128]bool {
	var set [128]bool
	for i := 0; i < len(asciiPunctuation); i++ {
		set[asciiPunctuation[i]] = true
	}
	return set
}()

// CleanText normalises a post body before vectorisation. The steps run in a
// fixed order because later patterns rely on earlier removals (digit words are
// dropped only after mentions and hashtags are gone). Whitespace left behind by
// removals is kept as is.
func CleanText(text string) string {
	// Full Unicode lowering (special casing, final sigma); a Caser is not safe to share.
	text = cases.Lower(language.Und).String(text)
	text = mentionRe.ReplaceAllString(text, "")
	text = hashtagRe.ReplaceAllString(text, "")
	text = bracketRe.ReplaceAllString(text, "")
	text = urlRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = stripPunctuation(text)
	text = strings.ReplaceAll(text, "\n", "")
	text = digitWordRe.ReplaceAllString(text, "")
	return emojiRe.ReplaceAllString(text, "")
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 128 && punctuationSet[r] {
			return -1
		}
		return r
	}, s)
}
