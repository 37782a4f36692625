// Package compare implements the run comparison engine. It has no
// direct teacher analogue — the closest pack code is pure diffing logic
// with no networking, storage, or parsing concern to hang a library on
// — so it is written against the standard library, plus
// github.com/google/uuid for the scan and site IDs.
package compare

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"webmonitor/internal/model"
)

// fieldImpact maps a named field to its qualitative severity.
var fieldImpact = map[string]model.Impact{
	"title":           model.ImpactHigh,
	"metaDescription": model.ImpactMedium,
	"canonicalUrl":    model.ImpactMedium,
	"breadcrumbs":     model.ImpactLow,
	"price":           model.ImpactHigh,
}

func headingImpact(level int) model.Impact {
	if level <= 2 {
		return model.ImpactHigh
	}
	return model.ImpactMedium
}

// Run computes the full comparison document between two sets of
// snapshots, keyed by URL, for a single site.
func Run(siteID, baseScanID, compareScanID uuid.UUID, base, compareSnaps []model.PageSnapshot, baseErrorCount, compareErrorCount int) model.RunComparison {
	baseByURL := indexByURL(base)
	compareByURL := indexByURL(compareSnaps)

	urls := make(map[string]struct{}, len(baseByURL)+len(compareByURL))
	for u := range baseByURL {
		urls[u] = struct{}{}
	}
	for u := range compareByURL {
		urls[u] = struct{}{}
	}

	rc := model.RunComparison{
		TotalBase:         len(base),
		TotalCompare:      len(compareSnaps),
		ErrorCountBase:    baseErrorCount,
		ErrorCountCompare: compareErrorCount,
	}

	for u := range urls {
		b, inBase := baseByURL[u]
		c, inCompare := compareByURL[u]

		var result model.PageComparisonResult
		result.URL = u

		switch {
		case !inBase:
			cc := c
			result.CompareSnapshot = &cc
			result.ChangeType = model.ChangeAdded
			result.Changes = addedAll(c)
			result.Severity = worstImpact(result.Changes)
			rc.AddedCount++
		case !inCompare:
			bb := b
			result.BaseSnapshot = &bb
			result.ChangeType = model.ChangeRemoved
			result.Changes = removedAll(b)
			result.Severity = worstImpact(result.Changes)
			rc.RemovedCount++
		default:
			bb, cc := b, c
			result.BaseSnapshot = &bb
			result.CompareSnapshot = &cc
			changes := diffSnapshots(b, c)
			if len(changes) == 0 {
				result.ChangeType = model.ChangeUnchanged
				rc.UnchangedCount++
			} else {
				result.ChangeType = model.ChangeModified
				result.Changes = changes
				result.Severity = worstImpact(changes)
				rc.ModifiedCount++
			}
		}

		rc.Results = append(rc.Results, result)
	}

	rc.SiteID = siteID
	rc.BaseScanID = baseScanID
	rc.CompareScanID = compareScanID

	return rc
}

func indexByURL(snaps []model.PageSnapshot) map[string]model.PageSnapshot {
	m := make(map[string]model.PageSnapshot, len(snaps))
	for _, s := range snaps {
		m[s.URL] = s
	}
	return m
}

// diffSnapshots returns the ordered field-level diffs between two
// snapshots of the same URL across different scans.
func diffSnapshots(b, c model.PageSnapshot) []model.FieldChange {
	var changes []model.FieldChange

	if b.Title != c.Title {
		changes = append(changes, change("title", b.Title, c.Title, fieldImpact["title"]))
	}
	if b.MetaDescription != c.MetaDescription {
		changes = append(changes, change("metaDescription", b.MetaDescription, c.MetaDescription, fieldImpact["metaDescription"]))
	}
	if b.Canonical != c.Canonical {
		changes = append(changes, change("canonicalUrl", b.Canonical, c.Canonical, fieldImpact["canonicalUrl"]))
	}
	if joinBreadcrumbs(b.Breadcrumbs) != joinBreadcrumbs(c.Breadcrumbs) {
		changes = append(changes, change("breadcrumbs", joinBreadcrumbs(b.Breadcrumbs), joinBreadcrumbs(c.Breadcrumbs), fieldImpact["breadcrumbs"]))
	}

	changes = append(changes, diffHeadings(b.Headings, c.Headings)...)
	changes = append(changes, diffCustomData(b.CustomData, c.CustomData)...)

	return changes
}

// diffHeadings aligns headings positionally by (level, index within
// that level), so a heading inserted earlier in the outline does not
// cascade a false diff through every heading that follows it.
func diffHeadings(b, c []model.Heading) []model.FieldChange {
	bByLevel := groupHeadingsByLevel(b)
	cByLevel := groupHeadingsByLevel(c)

	levels := make(map[int]struct{})
	for lvl := range bByLevel {
		levels[lvl] = struct{}{}
	}
	for lvl := range cByLevel {
		levels[lvl] = struct{}{}
	}

	var changes []model.FieldChange
	for lvl := range levels {
		bTexts := bByLevel[lvl]
		cTexts := cByLevel[lvl]
		n := len(bTexts)
		if len(cTexts) > n {
			n = len(cTexts)
		}
		field := "header-h" + strconv.Itoa(lvl)
		for i := 0; i < n; i++ {
			var oldText, newText string
			if i < len(bTexts) {
				oldText = bTexts[i]
			}
			if i < len(cTexts) {
				newText = cTexts[i]
			}
			if oldText == newText {
				continue
			}
			changes = append(changes, change(field, oldText, newText, headingImpact(lvl)))
		}
	}
	return changes
}

func groupHeadingsByLevel(headings []model.Heading) map[int][]string {
	m := make(map[int][]string)
	for _, h := range headings {
		m[h.Level] = append(m[h.Level], h.Text)
	}
	return m
}

// diffCustomData compares custom-selector fields. "price" is elevated
// to high impact; every other custom field defaults to low.
func diffCustomData(b, c map[string]any) []model.FieldChange {
	keys := make(map[string]struct{}, len(b)+len(c))
	for k := range b {
		keys[k] = struct{}{}
	}
	for k := range c {
		keys[k] = struct{}{}
	}

	var changes []model.FieldChange
	for k := range keys {
		bv, bok := b[k]
		cv, cok := c[k]
		bs := fmt.Sprintf("%v", bv)
		cs := fmt.Sprintf("%v", cv)
		if !bok {
			bs = ""
		}
		if !cok {
			cs = ""
		}
		if bs == cs {
			continue
		}
		impact, ok := fieldImpact[k]
		if !ok {
			impact = model.ImpactLow
		}
		changes = append(changes, change(k, bs, cs, impact))
	}
	return changes
}

// addedAll generates one FieldChange per captured field for a page that
// exists only in the compare scan, rather than collapsing the whole
// page into a single high-impact change.
func addedAll(c model.PageSnapshot) []model.FieldChange {
	changes := capturedFieldChanges(model.PageSnapshot{}, c)
	if len(changes) == 0 {
		changes = append(changes, change("page", "", c.URL, model.ImpactHigh))
	}
	return changes
}

// removedAll is addedAll's mirror for a page that exists only in the
// base scan.
func removedAll(b model.PageSnapshot) []model.FieldChange {
	changes := capturedFieldChanges(b, model.PageSnapshot{})
	if len(changes) == 0 {
		changes = append(changes, change("page", b.URL, "", model.ImpactHigh))
	}
	return changes
}

// capturedFieldChanges emits one change per non-empty captured field,
// shared by addedAll/removedAll so a whole-page add/remove gets the same
// per-field severity breakdown diffSnapshots gives a modified page.
func capturedFieldChanges(b, c model.PageSnapshot) []model.FieldChange {
	var changes []model.FieldChange

	if b.Title != "" || c.Title != "" {
		changes = append(changes, change("title", b.Title, c.Title, fieldImpact["title"]))
	}
	if b.MetaDescription != "" || c.MetaDescription != "" {
		changes = append(changes, change("metaDescription", b.MetaDescription, c.MetaDescription, fieldImpact["metaDescription"]))
	}
	if b.Canonical != "" || c.Canonical != "" {
		changes = append(changes, change("canonicalUrl", b.Canonical, c.Canonical, fieldImpact["canonicalUrl"]))
	}
	if bCrumbs, cCrumbs := joinBreadcrumbs(b.Breadcrumbs), joinBreadcrumbs(c.Breadcrumbs); bCrumbs != "" || cCrumbs != "" {
		changes = append(changes, change("breadcrumbs", bCrumbs, cCrumbs, fieldImpact["breadcrumbs"]))
	}

	changes = append(changes, diffHeadings(b.Headings, c.Headings)...)
	changes = append(changes, diffCustomData(b.CustomData, c.CustomData)...)

	return changes
}

// change builds a FieldChange, inferring Type from which side is empty:
// present in base only is removed, compare only is added, both non-empty
// and unequal is modified.
func change(field, oldValue, newValue string, impact model.Impact) model.FieldChange {
	t := model.ChangeModified
	switch {
	case oldValue == "" && newValue != "":
		t = model.ChangeAdded
	case oldValue != "" && newValue == "":
		t = model.ChangeRemoved
	}
	return model.FieldChange{
		Field:    field,
		Type:     t,
		OldValue: oldValue,
		NewValue: newValue,
		Impact:   impact,
	}
}

func joinBreadcrumbs(crumbs []string) string {
	return strings.Join(crumbs, " > ")
}

// worstImpact reduces a change list to its maximum severity.
func worstImpact(changes []model.FieldChange) model.Impact {
	worst := model.ImpactLow
	for _, ch := range changes {
		if severityRank(ch.Impact) > severityRank(worst) {
			worst = ch.Impact
		}
	}
	return worst
}

func severityRank(i model.Impact) int {
	switch i {
	case model.ImpactHigh:
		return 3
	case model.ImpactMedium:
		return 2
	default:
		return 1
	}
}
