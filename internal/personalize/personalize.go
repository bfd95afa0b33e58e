// Package personalize renders campaign content for a single recipient by
// substituting bracketed merge tokens with recipient and contact values.
// Tokens the renderer does not recognize are left verbatim; token validation
// belongs to the campaign editor, not the send path.
package personalize

import (
	"regexp"
	"strings"
)

// Recipient carries the values available for token substitution. Contact
// enrichment fields are optional; absent fields render as the empty string.
type Recipient struct {
	Email       string
	DisplayName string
	Company     string
	Phone       string
	Tags        []string
}

// firstName returns the first whitespace-separated word of the display name.
func (r Recipient) firstName() string {
	fields := strings.Fields(r.DisplayName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// lastName returns everything after the first word of the display name.
func (r Recipient) lastName() string {
	fields := strings.Fields(r.DisplayName)
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

// Render substitutes the recognized bracket tokens in template with values
// from r. Rendering is pure: the same (template, recipient) pair always
// yields identical output.
func Render(template string, r Recipient) string {
	replacer := strings.NewReplacer(
		"[Recipient Name]", r.DisplayName,
		"[Name]", r.DisplayName,
		"[First Name]", r.firstName(),
		"[Last Name]", r.lastName(),
		"[Email]", r.Email,
		"[Company]", r.Company,
		"[Phone]", r.Phone,
		"[Tags]", strings.Join(r.Tags, ", "),
	)
	return replacer.Replace(template)
}

var (
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
	blockBreakRe = regexp.MustCompile(`(?i)<(?:/p|/div|/li|/h[1-6]|br\s*/?)>`)
	blankLineRe  = regexp.MustCompile(`\n{3,}`)
)

// TextFallback produces a plain-text part from rendered HTML content by
// converting block boundaries to newlines and stripping the remaining markup.
// Applied to the personalized content before tracking injection, so tracking
// URLs never leak into the text part.
func TextFallback(html string) string {
	text := blockBreakRe.ReplaceAllString(html, "\n")
	text = tagRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = blankLineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
