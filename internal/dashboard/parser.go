package dashboard

import (
	"regexp"
	"strings"

	"crisiswatch/internal/domain"
)

// tweetLine matches drafted replies in the free-text crisis log, e.g.
// `TWEET 12 (@foo_bar): Thanks for reaching out`. The prefix is
// case-sensitive by contract.
var tweetLine = regexp.MustCompile(`^TWEET (\d+) \((@\w+)\): (.*)$`)

// ParseResponses recovers structured reply records from the log blob.
// Lines that do not match are dropped silently; duplicate ids are kept
// (consumers index by user handle downstream).
func ParseResponses(blob string) []domain.Response {
	var out []domain.Response
	for _, line := range strings.Split(blob, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "TWEET") {
			continue
		}
		m := tweetLine.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		out = append(out, domain.Response{
			ID:   m[1],
			User: m[2],
			Text: strings.TrimSpace(m[3]),
		})
	}
	return out
}
