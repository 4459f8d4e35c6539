// Package feed builds the public, grouped view of published articles.
package feed

import (
	"strings"

	"github.com/noah-isme/newsdesk/internal/models"
)

// AllSections selects every section.
const AllSections = "All"

// Uncategorized labels articles filed without a category.
const Uncategorized = "Sin Categoría"

// Group is a labelled run of articles.
type Group struct {
	Label    string           `json:"label"`
	Articles []models.Article `json:"articles"`
}

// View is the composed public feed.
type View struct {
	ActiveSection string  `json:"active_section"`
	Term          string  `json:"term,omitempty"`
	Groups        []Group `json:"groups"`
	Err           error   `json:"-"`
}

// Compose filters articles to the published ones and groups them.
//
// A non-blank term wins over the selected section: the result is a single
// group labelled with the term holding every published article whose title
// or subtitle contains it, ignoring case. Without a term, articles of the
// selected section (or of every section for AllSections) are grouped by
// category in catalog order, followed by categories missing from the catalog
// in the order they first appear. Empty groups are never returned.
func Compose(articles []models.Article, sections []models.Section, selected, term string) View {
	term = strings.TrimSpace(term)
	selected = strings.TrimSpace(selected)
	if selected == "" || term != "" {
		selected = AllSections
	}

	view := View{ActiveSection: selected, Term: term, Groups: []Group{}}
	published := make([]models.Article, 0, len(articles))
	for _, a := range articles {
		if a.Status == models.StatusPublished {
			published = append(published, a)
		}
	}

	if term != "" {
		var hits []models.Article
		for _, a := range published {
			if Matches(a, term) {
				hits = append(hits, a)
			}
		}
		if len(hits) > 0 {
			view.Groups = append(view.Groups, Group{Label: term, Articles: hits})
		}
		return view
	}

	byCategory := make(map[string][]models.Article)
	var seen []string
	for _, a := range published {
		if selected != AllSections && a.Category != selected {
			continue
		}
		label := categoryLabel(a.Category)
		if _, ok := byCategory[label]; !ok {
			seen = append(seen, label)
		}
		byCategory[label] = append(byCategory[label], a)
	}

	emitted := make(map[string]bool, len(byCategory))
	emit := func(label string) {
		if emitted[label] || len(byCategory[label]) == 0 {
			return
		}
		emitted[label] = true
		view.Groups = append(view.Groups, Group{Label: label, Articles: byCategory[label]})
	}
	for _, s := range sections {
		emit(s.Name)
	}
	for _, label := range seen {
		emit(label)
	}
	return view
}

// Matches reports whether term occurs in the article's title or subtitle,
// ignoring case.
func Matches(a models.Article, term string) bool {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.Title), needle) ||
		strings.Contains(strings.ToLower(a.Subtitle), needle)
}

func categoryLabel(category string) string {
	if strings.TrimSpace(category) == "" {
		return Uncategorized
	}
	return category
}
