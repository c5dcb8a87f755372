// Package suspect recognizes scraped text that is search-UI chrome rather
// than job content: pagination, consent banners, saved-search prompts,
// session and error messages. Both the extractor (per line) and the
// sanitizer (per record) consult the same vocabulary.
package suspect

import "strings"

// phrases is the fixed suspicious-keyword list. Matching is case-insensitive
// substring search. Kept to phrases unlikely to appear in a genuine listing.
var phrases = []string{
	"saved search",
	"save this search",
	"search results",
	"showing results",
	"please refine",
	"refine your search",
	"sign in",
	"log in to",
	"create an account",
	"sponsored",
	"advertisement",
	"cookie policy",
	"accept cookies",
	"consent",
	"privacy policy",
	"terms of service",
	"next page",
	"previous page",
	"results per page",
	"page not found",
	"no results found",
	"did you mean",
	"session expired",
	"an error occurred",
	"error loading",
	"loading results",
	"job alert",
	"create alert",
	"email me jobs",
	"sort by",
	"filter results",
	"apply filters",
	"clear filters",
	"upload your resume",
	"be the first to apply",
}

// Hit returns the first suspicious phrase found in text, if any.
func Hit(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lowered, p) {
			return p, true
		}
	}
	return "", false
}

// Line reports whether a single scraped line is UI noise and should be
// discarded before field assignment.
func Line(line string) bool {
	_, hit := Hit(line)
	return hit
}
