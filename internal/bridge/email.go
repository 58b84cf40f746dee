package bridge

import "regexp"

var emailPattern = regexp.MustCompile(`(?i)[\w.+-]+@[\w-]+(?:\.[\w-]+)*\.[a-z]{2,}`)

// ExtractEmail returns the first email-shaped substring in text, or an empty
// string when none is present.
func ExtractEmail(text string) string {
	return emailPattern.FindString(text)
}
