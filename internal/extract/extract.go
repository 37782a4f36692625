// Package extract implements the tolerant HTML extractor: it pulls
// title, meta description, canonical URL, heading outline, breadcrumb
// trail, main content, e-commerce fields, custom selectors, and the
// outbound link list out of a raw response body. It never errors on
// malformed HTML; missing fields simply come back empty.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"webmonitor/internal/model"
)

// Result is the structured snapshot produced by one extraction pass,
// independent of persistence or scan identity.
type Result struct {
	Title             string
	MetaDescription   string
	Canonical         string
	Headings          []model.Heading
	Breadcrumbs       []string
	CustomData        map[string]any
	MainContent       string
	MainContentFormat string
	Links             []string
	ContentHash       string
	Warnings          []string
}

// breadcrumbPresets fixes the selector lists named in the spec; callers
// must not reorder or reword these without changing observable behavior.
var breadcrumbPresets = map[model.BreadcrumbPreset][]string{
	model.PresetBootstrap:  {".breadcrumb .breadcrumb-item", ".breadcrumb li"},
	model.PresetFoundation: {".breadcrumbs li"},
	model.PresetBulma:      {".breadcrumb li"},
	model.PresetTailwind:   {`nav[aria-label="breadcrumb"] a`},
	model.PresetMaterial:   {".mdc-breadcrumb__item"},
}

// Hash returns the SHA-256 hex digest of the raw response body; this is
// the content-identity used for change detection (spec §GLOSSARY).
func Hash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Extract runs the tolerant HTML extraction pipeline against body,
// resolving relative URLs against base. cfg selects which fields to
// capture. Extract never returns an error; soft failures (a bad custom
// selector, an unknown breadcrumb preset) are appended to Warnings
// instead, per spec §7 "Configuration error".
func Extract(body []byte, cfg model.ExtractionConfig, base *url.URL) Result {
	res := Result{
		ContentHash: Hash(body),
		CustomData:  map[string]any{},
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		res.Warnings = append(res.Warnings, "html parse failed: "+err.Error())
		return res
	}

	if cfg.CaptureTitle {
		res.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if cfg.CaptureMeta {
		res.MetaDescription = strings.TrimSpace(doc.Find(`meta[name="description"]`).First().AttrOr("content", ""))
	}
	if cfg.CaptureCanonical {
		if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
			res.Canonical = resolve(base, href)
		}
	}

	if len(cfg.Headings.Levels) > 0 {
		res.Headings = extractHeadings(doc, cfg.Headings)
	}

	res.Breadcrumbs, res.Warnings = extractBreadcrumbs(doc, cfg.Navigation, res.Warnings)

	if cfg.MainContent.Selector != "" {
		res.MainContent, res.MainContentFormat = extractMainContent(doc, cfg.MainContent, base)
	}

	if len(cfg.CustomSelectors) > 0 {
		res.CustomData, res.Warnings = extractCustom(doc, cfg.CustomSelectors, res.Warnings)
	}

	res.Links = extractLinks(doc, base)

	return res
}

// extractHeadings collects heading text per configured level, in
// document order, then stable-sorts by level (ties keep document
// order, satisfying the secondary-key requirement in spec §4.2).
func extractHeadings(doc *goquery.Document, cfg model.HeadingConfig) []model.Heading {
	want := map[int]bool{}
	for _, l := range cfg.Levels {
		want[l] = true
	}

	var out []model.Heading
	for level := 1; level <= 6; level++ {
		if !want[level] {
			continue
		}
		sel := "h" + strconv.Itoa(level)
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := collapseWhitespace(s.Text())
			text = truncate(text, cfg.MaxLength)
			out = append(out, model.Heading{Level: level, Text: text})
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// extractBreadcrumbs applies the precedence order from spec §4.2: JSON-LD
// BreadcrumbList first, then the configured preset, then custom selectors.
func extractBreadcrumbs(doc *goquery.Document, cfg model.NavigationConfig, warnings []string) ([]string, []string) {
	if items := jsonLDBreadcrumbs(doc); len(items) > 0 {
		return finishBreadcrumbs(items, cfg), warnings
	}

	var selectors []string
	switch cfg.BreadcrumbPreset {
	case "":
		// no preset configured and no JSON-LD; fall through to custom only
	case model.PresetSchema:
		// schema-only preset already handled above via JSON-LD; nothing else to try
	case model.PresetCustom:
		selectors = cfg.CustomSelectors
	default:
		preset, ok := breadcrumbPresets[cfg.BreadcrumbPreset]
		if !ok {
			warnings = append(warnings, "unknown breadcrumb preset: "+string(cfg.BreadcrumbPreset))
		} else {
			selectors = preset
		}
	}

	if len(selectors) == 0 && cfg.BreadcrumbPreset != model.PresetCustom {
		selectors = cfg.CustomSelectors
	}

	for _, sel := range selectors {
		var items []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := collapseWhitespace(s.Text())
			if text != "" {
				items = append(items, text)
			}
		})
		if len(items) > 0 {
			return finishBreadcrumbs(items, cfg), warnings
		}
	}

	return nil, warnings
}

func finishBreadcrumbs(items []string, cfg model.NavigationConfig) []string {
	if cfg.RemoveHome && len(items) > 0 && strings.EqualFold(items[0], "home") {
		items = items[1:]
	}
	if cfg.MaxDepth > 0 && len(items) > cfg.MaxDepth {
		items = items[:cfg.MaxDepth]
	}
	return items
}

// jsonLDBreadcrumbs looks for a JSON-LD script of @type BreadcrumbList
// and returns its itemListElement[*].name values in order.
func jsonLDBreadcrumbs(doc *goquery.Document) []string {
	var result []string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var parsed any
		if err := json.Unmarshal([]byte(s.Text()), &parsed); err != nil {
			return true
		}
		if items, ok := breadcrumbListNames(parsed); ok {
			result = items
			return false
		}
		return true
	})
	return result
}

func breadcrumbListNames(v any) ([]string, bool) {
	switch node := v.(type) {
	case map[string]any:
		if t, _ := node["@type"].(string); strings.EqualFold(t, "BreadcrumbList") {
			elems, _ := node["itemListElement"].([]any)
			var names []string
			for _, e := range elems {
				if em, ok := e.(map[string]any); ok {
					if name, ok := em["name"].(string); ok && name != "" {
						names = append(names, name)
					} else if item, ok := em["item"].(map[string]any); ok {
						if name, ok := item["name"].(string); ok && name != "" {
							names = append(names, name)
						}
					}
				}
			}
			if len(names) > 0 {
				return names, true
			}
		}
		for _, child := range node {
			if names, ok := breadcrumbListNames(child); ok {
				return names, true
			}
		}
	case []any:
		for _, child := range node {
			if names, ok := breadcrumbListNames(child); ok {
				return names, true
			}
		}
	}
	return nil, false
}

// extractMainContent captures the primary-content block. When
// PreserveFormatting is set, the fragment is rendered to Markdown via
// html-to-markdown instead of being collapsed to plain text.
func extractMainContent(doc *goquery.Document, cfg model.MainContentConfig, base *url.URL) (string, string) {
	sel := doc.Find(cfg.Selector).First()
	if sel.Length() == 0 {
		return "", ""
	}

	for _, ex := range cfg.ExcludeSelectors {
		sel.Find(ex).Remove()
	}

	if !cfg.IncludeImages {
		sel.Find("img").Remove()
	}
	if !cfg.IncludeLinks {
		sel.Find("a").Each(func(_ int, a *goquery.Selection) {
			a.ReplaceWithHtml(a.Text())
		})
	}

	if cfg.PreserveFormatting {
		html, err := sel.Html()
		if err == nil {
			host := ""
			if base != nil {
				host = base.Hostname()
			}
			converter := htmlmd.NewConverter(host, true, nil)
			if md, err := converter.ConvertString(html); err == nil {
				return truncate(md, cfg.MaxLength), "markdown"
			}
		}
	}

	text := truncate(collapseWhitespace(sel.Text()), cfg.MaxLength)
	return text, "text"
}

// extractCustom evaluates each configured custom selector; a required
// selector that fails to match records a warning but never aborts the
// page (spec §4.2 "soft extraction error").
func extractCustom(doc *goquery.Document, selectors []model.CustomSelector, warnings []string) (map[string]any, []string) {
	out := map[string]any{}
	for _, cs := range selectors {
		sel := doc.Find(cs.Selector).First()
		if sel.Length() == 0 {
			if cs.Required {
				warnings = append(warnings, "required selector not found: "+cs.Name)
			}
			continue
		}

		var raw string
		if cs.Attribute != "" {
			raw, _ = sel.Attr(cs.Attribute)
		} else {
			raw = collapseWhitespace(sel.Text())
		}

		val, ok := coerce(raw, cs.DataType)
		if !ok {
			warnings = append(warnings, "could not coerce field "+cs.Name+" to "+string(cs.DataType))
			if cs.Required {
				continue
			}
		}
		out[cs.Name] = val
	}
	return out, warnings
}

func coerce(raw string, dt model.CustomDataType) (any, bool) {
	raw = strings.TrimSpace(raw)
	switch dt {
	case model.DataNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, true
		}
		return raw, false
	case model.DataBoolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b, true
		}
		return raw, false
	case model.DataDate:
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.Format(time.RFC3339), true
			}
		}
		return raw, false
	case model.DataURL:
		if _, err := url.Parse(raw); err == nil {
			return raw, true
		}
		return raw, false
	default:
		return raw, true
	}
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		resolved := resolve(base, href)
		if resolved != "" {
			out = append(out, resolved)
		}
	})
	return out
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil && !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
