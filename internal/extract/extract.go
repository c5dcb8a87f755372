// Package extract turns raw scraped page content into candidate record
// fragments. HTML is preferred; markdown is the fallback when a fetch
// produced no usable HTML. Extraction never fails: malformed input yields an
// empty list, and validity is judged later by the sanitizer.
package extract

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kestrelworks/gleaner/internal/model"
	"github.com/kestrelworks/gleaner/internal/suspect"
)

// Extractor produces fragments from one site's fetch result.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract parses one fetch result into zero or more fragments. The HTML path
// is used when HTML is present and yields at least one fragment; otherwise
// the markdown path runs on whatever markdown is available. A panic anywhere
// in parsing degrades to zero results.
func (e *Extractor) Extract(res model.FetchResult, adapter SiteAdapter) (frags []model.Fragment) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panic, discarding page", "site", adapter.Name, "panic", r)
			frags = nil
		}
	}()

	if strings.TrimSpace(res.HTML) != "" {
		frags = e.fromHTML(res.HTML, adapter.Selectors)
		if len(frags) > 0 {
			return frags
		}
	}
	if strings.TrimSpace(res.Markdown) != "" {
		return e.fromMarkdown(res.Markdown)
	}
	return frags
}

// fromHTML locates job containers with the adapter's selector set and pulls
// each field through its sub-selector.
func (e *Extractor) fromHTML(raw string, sel SelectorSet) []model.Fragment {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		e.logger.Debug("html parse failed, falling back to markdown path", "error", err)
		return nil
	}

	skipSel := strings.Join(sel.Skip, ", ")

	var frags []model.Fragment
	doc.Find(sel.Container).Each(func(_ int, s *goquery.Selection) {
		if skipSel != "" && s.Closest(skipSel).Length() > 0 {
			return
		}

		frag := model.Fragment{
			Title:       firstText(s, sel.Title),
			Company:     firstText(s, sel.Company),
			Location:    firstText(s, sel.Location),
			Pay:         firstText(s, sel.Pay),
			Schedule:    firstText(s, sel.Schedule),
			Description: firstText(s, sel.Description),
			URL:         firstAttr(s, sel.URL, "href"),
		}
		frag = dropSuspiciousFields(frag)
		if !frag.Empty() {
			frags = append(frags, frag)
		}
	})

	return frags
}

// firstText returns the collapsed text of the first sub-selector match.
func firstText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return ""
	}
	return strings.Join(strings.Fields(found.Text()), " ")
}

func firstAttr(s *goquery.Selection, selector, attr string) string {
	if selector == "" {
		return ""
	}
	val, _ := s.Find(selector).First().Attr(attr)
	return strings.TrimSpace(val)
}

// dropSuspiciousFields blanks any field whose text is search-UI noise, so a
// pagination label scraped into a title slot never reaches the sanitizer as
// content.
func dropSuspiciousFields(f model.Fragment) model.Fragment {
	if suspect.Line(f.Title) {
		f.Title = ""
	}
	if suspect.Line(f.Company) {
		f.Company = ""
	}
	if suspect.Line(f.Location) {
		f.Location = ""
	}
	if suspect.Line(f.Pay) {
		f.Pay = ""
	}
	if suspect.Line(f.Schedule) {
		f.Schedule = ""
	}
	if suspect.Line(f.Description) {
		f.Description = ""
	}
	return f
}
