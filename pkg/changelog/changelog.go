// Package changelog turns a range of commit messages into a categorized,
// ordered release changelog.
package changelog

import (
	"fmt"
	"strings"
)

// Category is a conventional-commit group.
type Category string

const (
	CategoryFeature  Category = "feat"
	CategoryFix      Category = "fix"
	CategoryPerf     Category = "perf"
	CategoryRefactor Category = "refactor"
	CategoryDocs     Category = "docs"
	CategoryOther    Category = "other"
)

// categoryOrder fixes the priority order groups render in.
var categoryOrder = []Category{
	CategoryFeature,
	CategoryFix,
	CategoryPerf,
	CategoryRefactor,
	CategoryDocs,
	CategoryOther,
}

// headings maps categories to their rendered section titles.
var headings = map[Category]string{
	CategoryFeature:  "Features",
	CategoryFix:      "Bug Fixes",
	CategoryPerf:     "Performance",
	CategoryRefactor: "Refactoring",
	CategoryDocs:     "Documentation",
	CategoryOther:    "Other Changes",
}

// Commit is the raw input to synthesis: one commit from the range, as
// reported by the repository log.
type Commit struct {
	Hash    string
	Subject string
}

// Entry is one categorized changelog line.
type Entry struct {
	Category Category
	Scope    string
	Subject  string
	Hash     string
	Breaking bool
}

// Changelog is the ordered, grouped result of synthesis. Always well
// formed; an empty range produces an empty but valid changelog.
type Changelog struct {
	Range   string
	Entries []Entry
}

// Empty reports whether the changelog has no entries.
func (c Changelog) Empty() bool {
	return len(c.Entries) == 0
}

// classify parses a conventional-commit subject line. Anything that does
// not match "type(scope): subject" lands in the other group with the full
// subject preserved.
func classify(c Commit) Entry {
	subject := strings.TrimSpace(c.Subject)
	head, rest, ok := strings.Cut(subject, ":")
	if !ok || strings.ContainsAny(head, " \t") {
		return Entry{Category: CategoryOther, Subject: subject, Hash: c.Hash}
	}

	breaking := strings.HasSuffix(head, "!")
	head = strings.TrimSuffix(head, "!")

	scope := ""
	if open := strings.Index(head, "("); open >= 0 {
		if !strings.HasSuffix(head, ")") {
			return Entry{Category: CategoryOther, Subject: subject, Hash: c.Hash}
		}
		scope = head[open+1 : len(head)-1]
		head = head[:open]
	}

	var cat Category
	switch head {
	case "feat", "feature":
		cat = CategoryFeature
	case "fix", "bugfix":
		cat = CategoryFix
	case "perf":
		cat = CategoryPerf
	case "refactor":
		cat = CategoryRefactor
	case "docs":
		cat = CategoryDocs
	default:
		return Entry{Category: CategoryOther, Subject: subject, Hash: c.Hash}
	}

	return Entry{
		Category: cat,
		Scope:    scope,
		Subject:  strings.TrimSpace(rest),
		Hash:     c.Hash,
		Breaking: breaking,
	}
}

// Synthesize builds a changelog from commits ordered newest-first (the
// order the repository log reports them in). Grouping preserves that order
// within each category; groups follow the fixed priority order.
func Synthesize(rangeLabel string, commits []Commit) Changelog {
	grouped := make(map[Category][]Entry)
	for _, c := range commits {
		e := classify(c)
		grouped[e.Category] = append(grouped[e.Category], e)
	}

	out := Changelog{Range: rangeLabel}
	for _, cat := range categoryOrder {
		out.Entries = append(out.Entries, grouped[cat]...)
	}
	return out
}

// Render writes the changelog as the markdown document used verbatim as
// the release body.
func (c Changelog) Render() string {
	var b strings.Builder
	if c.Range != "" {
		fmt.Fprintf(&b, "## Changes (%s)\n", c.Range)
	} else {
		b.WriteString("## Changes\n")
	}
	if c.Empty() {
		b.WriteString("\nNo changes recorded.\n")
		return b.String()
	}

	var current Category
	first := true
	for _, e := range c.Entries {
		if first || e.Category != current {
			current = e.Category
			first = false
			fmt.Fprintf(&b, "\n### %s\n\n", headings[current])
		}
		line := e.Subject
		if e.Scope != "" {
			line = fmt.Sprintf("**%s**: %s", e.Scope, e.Subject)
		}
		if e.Breaking {
			line = "BREAKING: " + line
		}
		if e.Hash != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", line, shortHash(e.Hash))
		} else {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	return b.String()
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
