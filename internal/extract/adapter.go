package extract

import (
	"net/url"
	"strings"

	"github.com/kestrelworks/gleaner/internal/model"
)

// SelectorSet names the DOM locations of job fields on one site. Adapters
// are data, not behavior: every site shares the same extraction code and
// differs only in its selectors.
type SelectorSet struct {
	Container   string
	Title       string
	Company     string
	Location    string
	Pay         string
	Schedule    string
	Description string
	URL         string
	// Skip lists container selectors that look like job cards but are
	// pagination, filter panels, or ads. Checked before field extraction.
	Skip []string
}

// SiteAdapter binds a site name to its selector set and search-URL template.
// The template uses {keyword} and {location} placeholders.
type SiteAdapter struct {
	Name       string
	SearchURL  string
	Selectors  SelectorSet
	recognized bool
}

// Recognized reports whether this adapter carries site-specific selectors
// rather than the generic fallback set.
func (a SiteAdapter) Recognized() bool { return a.recognized }

// BuildSearchURL fills the adapter's URL template from a query.
func (a SiteAdapter) BuildSearchURL(q model.Query) string {
	u := strings.ReplaceAll(a.SearchURL, "{keyword}", url.QueryEscape(q.Keyword))
	return strings.ReplaceAll(u, "{location}", url.QueryEscape(q.Location))
}

var genericSkip = []string{
	".pagination", ".pager", "nav",
	".filters", ".filter-panel", ".refine",
	".ad", ".ads", ".sponsored-banner", "[data-ad]",
	".cookie-banner", ".consent",
}

// siteSelectors holds the per-site selector tables for recognized boards.
var siteSelectors = map[string]SelectorSet{
	"indeed": {
		Container:   ".job_seen_beacon, .jobsearch-SerpJobCard",
		Title:       "h2.jobTitle span, h2.jobTitle a",
		Company:     "[data-testid='company-name'], .companyName",
		Location:    "[data-testid='text-location'], .companyLocation",
		Pay:         ".salary-snippet-container, [data-testid='attribute_snippet_testid']",
		Schedule:    ".metadata.css-5zy3wz, .attribute_snippet",
		Description: ".job-snippet",
		URL:         "h2.jobTitle a",
		Skip:        genericSkip,
	},
	"ziprecruiter": {
		Container:   ".job_result, article.job_item",
		Title:       "h2.title, .job_title",
		Company:     ".hiring_company, [data-testid='job-card-company']",
		Location:    ".location, [data-testid='job-card-location']",
		Pay:         ".perk_item--pay, .salary",
		Schedule:    ".perk_item--employment-type",
		Description: ".job_snippet",
		URL:         "h2.title a",
		Skip:        genericSkip,
	},
	"simplyhired": {
		Container:   ".SerpJob-jobCard, li.job-listing",
		Title:       "h3[data-testid='searchSerpJobTitle'], .jobposting-title",
		Company:     "[data-testid='companyName'], .jobposting-company",
		Location:    "[data-testid='searchSerpJobLocation'], .jobposting-location",
		Pay:         "[data-testid='searchSerpJobSalaryConfirmed'], .jobposting-salary",
		Schedule:    ".jobposting-schedule",
		Description: "[data-testid='searchSerpJobSnippet'], .jobposting-snippet",
		URL:         "h3 a",
		Skip:        genericSkip,
	},
}

// genericSelectors is the fallback set for unrecognized sites: broad
// class-name guesses that match common job-board markup.
var genericSelectors = SelectorSet{
	Container:   "[class*='job-card'], [class*='job_result'], [class*='job-listing'], article[class*='job'], li[class*='job']",
	Title:       "h1, h2, h3, [class*='title']",
	Company:     "[class*='company'], [class*='employer']",
	Location:    "[class*='location'], [class*='place']",
	Pay:         "[class*='salary'], [class*='pay'], [class*='compensation']",
	Schedule:    "[class*='schedule'], [class*='employment'], [class*='job-type']",
	Description: "[class*='description'], [class*='snippet'], [class*='summary'], p",
	URL:         "a",
	Skip:        genericSkip,
}

// AdapterFor returns the adapter for a configured site, falling back to the
// generic selector set when the site is unrecognized.
func AdapterFor(name, searchURL string) SiteAdapter {
	if sel, ok := siteSelectors[strings.ToLower(name)]; ok {
		return SiteAdapter{Name: name, SearchURL: searchURL, Selectors: sel, recognized: true}
	}
	return SiteAdapter{Name: name, SearchURL: searchURL, Selectors: genericSelectors}
}
