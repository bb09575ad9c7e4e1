// Package classify computes auto-folder memberships from titles, tags and
// folder rules. Everything here is pure.
package classify

import (
	"slices"
	"strings"

	"github.com/mwantia/comicshelf/pkg/db/models"
	"golang.org/x/text/cases"
)

var variantFolder = strings.NewReplacer("无", "無")

// Normalize case-folds s and applies the simplified/traditional fold for 无.
func Normalize(s string) string {
	return variantFolder.Replace(cases.Fold().String(s))
}

// EffectiveTags returns (source ∪ added) − removed, sorted and deduplicated.
func EffectiveTags(source, added, removed []string) []string {
	drop := make(map[string]struct{}, len(removed))
	for _, t := range removed {
		drop[t] = struct{}{}
	}
	seen := make(map[string]struct{}, len(source)+len(added))
	var out []string
	for _, list := range [][]string{source, added} {
		for _, t := range list {
			if _, ok := drop[t]; ok {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

// Rule is the normalized match rule of one auto-folder.
type Rule struct {
	FolderID uint
	names    []string
	tags     map[string]struct{}
}

// NewRule normalizes the terms of an auto-folder. Blank terms are dropped.
func NewRule(folderID uint, nameIncludes, tagIncludes []string) Rule {
	r := Rule{FolderID: folderID, tags: make(map[string]struct{})}
	for _, term := range models.CleanTerms(nameIncludes) {
		r.names = append(r.names, Normalize(term))
	}
	for _, term := range models.CleanTerms(tagIncludes) {
		r.tags[Normalize(term)] = struct{}{}
	}
	return r
}

// Empty reports whether the rule has no terms at all. Empty rules never match.
func (r Rule) Empty() bool {
	return len(r.names) == 0 && len(r.tags) == 0
}

// Match evaluates the rule against a normalized title and normalized tag set.
func (r Rule) Match(title string, tags map[string]struct{}) bool {
	if r.Empty() {
		return false
	}

	nameMatch := len(r.names) == 0
	for _, term := range r.names {
		if strings.Contains(title, term) {
			nameMatch = true
			break
		}
	}
	if !nameMatch {
		return false
	}

	if len(r.tags) == 0 {
		return true
	}
	for tag := range tags {
		if _, ok := r.tags[tag]; ok {
			return true
		}
	}
	return false
}

// Input is the classifier's view of one comic.
type Input struct {
	Title       string
	SourceTags  []string
	AddedTags   []string
	RemovedTags []string
	Memberships []uint
}

// Decision is the outcome for one comic.
type Decision struct {
	Title string
	// Manual memberships are carried over untouched.
	Manual []uint
	// CurrentAuto are the auto-folder memberships before the pass.
	CurrentAuto []uint
	// Matched are the auto-folders the comic belongs to after the pass.
	Matched []uint
	Changed bool
}

// Memberships returns manual ∪ matched, sorted.
func (d Decision) Memberships() []uint {
	out := append(slices.Clone(d.Manual), d.Matched...)
	slices.Sort(out)
	return slices.Compact(out)
}

// Classifier holds the rule set of one pass.
type Classifier struct {
	rules []Rule
	auto  map[uint]struct{}
}

// New builds a classifier from the catalog's folders. Manual folders only
// contribute to the manual side of a decision.
func New(folders []models.Folder) *Classifier {
	c := &Classifier{auto: make(map[uint]struct{})}
	for _, f := range folders {
		if !f.Auto {
			continue
		}
		c.auto[f.ID] = struct{}{}
		c.rules = append(c.rules, NewRule(f.ID, f.NameIncludes, f.TagIncludes))
	}
	return c
}

// Classify computes the membership decision for one comic.
func (c *Classifier) Classify(in Input) Decision {
	d := Decision{Title: in.Title}
	for _, id := range in.Memberships {
		if _, ok := c.auto[id]; ok {
			d.CurrentAuto = append(d.CurrentAuto, id)
		} else {
			d.Manual = append(d.Manual, id)
		}
	}
	slices.Sort(d.Manual)
	d.Manual = slices.Compact(d.Manual)
	slices.Sort(d.CurrentAuto)
	d.CurrentAuto = slices.Compact(d.CurrentAuto)

	title := Normalize(in.Title)
	tags := make(map[string]struct{})
	for _, t := range EffectiveTags(in.SourceTags, in.AddedTags, in.RemovedTags) {
		tags[Normalize(t)] = struct{}{}
	}

	for _, rule := range c.rules {
		if rule.Match(title, tags) {
			d.Matched = append(d.Matched, rule.FolderID)
		}
	}
	slices.Sort(d.Matched)
	d.Matched = slices.Compact(d.Matched)

	d.Changed = !slices.Equal(d.Matched, d.CurrentAuto)
	return d
}

// ClassifyAll classifies every input and returns only the changed decisions.
func (c *Classifier) ClassifyAll(inputs []Input) []Decision {
	var changed []Decision
	for _, in := range inputs {
		if d := c.Classify(in); d.Changed {
			changed = append(changed, d)
		}
	}
	return changed
}
