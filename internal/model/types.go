// Package model holds the domain types shared across the crawl,
// extraction, persistence, and comparison packages.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SiteStatus is the lifecycle state of a monitored site.
type SiteStatus string

const (
	SiteActive   SiteStatus = "active"
	SitePaused   SiteStatus = "paused"
	SiteError    SiteStatus = "error"
	SiteArchived SiteStatus = "archived"
)

// DiscoveryMethod selects how a site's URL set is enumerated.
type DiscoveryMethod string

const (
	DiscoverySitemap  DiscoveryMethod = "sitemap"
	DiscoveryCrawling DiscoveryMethod = "crawling"
)

// SitemapEntry is one configured sitemap source for a site.
type SitemapEntry struct {
	URL               string `yaml:"url" json:"url"`
	Enabled           bool   `yaml:"enabled" json:"enabled"`
	Name              string `yaml:"name" json:"name,omitempty"`
	ExtractionProfile string `yaml:"extractionProfile" json:"extractionProfile,omitempty"`
}

// CrawlConfig controls breadth-first link discovery.
type CrawlConfig struct {
	MaxDepth        int      `yaml:"maxDepth" json:"maxDepth"`
	MaxPages        int      `yaml:"maxPages" json:"maxPages"`
	CrawlDelayMs    int      `yaml:"crawlDelayMs" json:"crawlDelayMs"`
	MaxConcurrency  int      `yaml:"maxConcurrency" json:"maxConcurrency"`
	TimeoutSeconds  int      `yaml:"timeoutSeconds" json:"timeoutSeconds"`
	FollowExternal  bool     `yaml:"followExternal" json:"followExternal"`
	FollowRedirects bool     `yaml:"followRedirects" json:"followRedirects"`
	RespectRobots   bool     `yaml:"respectRobots" json:"respectRobots"`
	IncludePatterns []string `yaml:"includePatterns" json:"includePatterns,omitempty"`
	ExcludePatterns []string `yaml:"excludePatterns" json:"excludePatterns,omitempty"`
}

// DiscoverySettings is the per-site discovery configuration; exactly one
// of Sitemaps or Crawl is meaningful, selected by Method.
type DiscoverySettings struct {
	Method       DiscoveryMethod `yaml:"method" json:"method"`
	Sitemaps     []SitemapEntry  `yaml:"sitemaps" json:"sitemaps,omitempty"`
	AutoDetect   bool            `yaml:"autoDetect" json:"autoDetect"`
	FollowIndex  bool            `yaml:"followIndex" json:"followIndex"`
	Crawl        CrawlConfig     `yaml:"crawl" json:"crawl"`
}

// OpenGraphFields selects which Open Graph subfields to capture.
type OpenGraphFields struct {
	Title       bool `yaml:"title" json:"title"`
	Description bool `yaml:"description" json:"description"`
	Image       bool `yaml:"image" json:"image"`
	URL         bool `yaml:"url" json:"url"`
	SiteName    bool `yaml:"siteName" json:"siteName"`
}

// HeadingConfig controls heading-outline extraction.
type HeadingConfig struct {
	Levels           []int `yaml:"levels" json:"levels"`
	IncludeStructure bool  `yaml:"includeStructure" json:"includeStructure"`
	MaxLength        int   `yaml:"maxLength" json:"maxLength"`
}

// BreadcrumbPreset names a built-in selector bundle; "custom" uses
// CustomSelectors below instead.
type BreadcrumbPreset string

const (
	PresetSchema     BreadcrumbPreset = "schema"
	PresetBootstrap  BreadcrumbPreset = "bootstrap"
	PresetFoundation BreadcrumbPreset = "foundation"
	PresetBulma      BreadcrumbPreset = "bulma"
	PresetTailwind   BreadcrumbPreset = "tailwind"
	PresetMaterial   BreadcrumbPreset = "material"
	PresetCustom     BreadcrumbPreset = "custom"
)

// NavigationConfig controls breadcrumb and nav-link extraction.
type NavigationConfig struct {
	MainSelector     string           `yaml:"mainSelector" json:"mainSelector,omitempty"`
	FooterSelector   string           `yaml:"footerSelector" json:"footerSelector,omitempty"`
	SidebarSelector  string           `yaml:"sidebarSelector" json:"sidebarSelector,omitempty"`
	BreadcrumbPreset BreadcrumbPreset `yaml:"breadcrumbPreset" json:"breadcrumbPreset,omitempty"`
	CustomSelectors  []string         `yaml:"customSelectors" json:"customSelectors,omitempty"`
	Separator        string           `yaml:"separator" json:"separator,omitempty"`
	RemoveHome       bool             `yaml:"removeHome" json:"removeHome"`
	MaxDepth         int              `yaml:"maxDepth" json:"maxDepth"`
}

// MainContentConfig controls the primary-content capture.
type MainContentConfig struct {
	Selector           string   `yaml:"selector" json:"selector,omitempty"`
	ExcludeSelectors   []string `yaml:"excludeSelectors" json:"excludeSelectors,omitempty"`
	MaxLength          int      `yaml:"maxLength" json:"maxLength"`
	IncludeImages      bool     `yaml:"includeImages" json:"includeImages"`
	IncludeLinks       bool     `yaml:"includeLinks" json:"includeLinks"`
	PreserveFormatting bool     `yaml:"preserveFormatting" json:"preserveFormatting"`
}

// EcommerceConfig names the selector sets used to pull product/category
// fields out of commerce pages.
type EcommerceConfig struct {
	ProductSelectors  map[string]string `yaml:"productSelectors" json:"productSelectors,omitempty"`
	CategorySelectors map[string]string `yaml:"categorySelectors" json:"categorySelectors,omitempty"`
}

// CustomDataType is the coercion applied to a CustomSelector's captured value.
type CustomDataType string

const (
	DataText    CustomDataType = "text"
	DataNumber  CustomDataType = "number"
	DataURL     CustomDataType = "url"
	DataDate    CustomDataType = "date"
	DataBoolean CustomDataType = "boolean"
)

// CustomSelector captures one caller-defined field.
type CustomSelector struct {
	Name      string         `yaml:"name" json:"name"`
	Selector  string         `yaml:"selector" json:"selector"`
	Attribute string         `yaml:"attribute" json:"attribute,omitempty"`
	DataType  CustomDataType `yaml:"dataType" json:"dataType"`
	Required  bool           `yaml:"required" json:"required"`
}

// ExtractionConfig names which fields an extraction pass should capture.
type ExtractionConfig struct {
	ID               string           `yaml:"id" json:"id,omitempty"`
	URLPattern       string           `yaml:"urlPattern" json:"urlPattern,omitempty"`
	Priority         int              `yaml:"priority" json:"priority"`
	CaptureTitle     bool             `yaml:"captureTitle" json:"captureTitle"`
	CaptureMeta      bool             `yaml:"captureMeta" json:"captureMeta"`
	CaptureCanonical bool             `yaml:"captureCanonical" json:"captureCanonical"`
	CaptureKeywords  bool             `yaml:"captureKeywords" json:"captureKeywords"`
	OpenGraph        OpenGraphFields  `yaml:"openGraph" json:"openGraph"`
	Headings         HeadingConfig    `yaml:"headings" json:"headings"`
	Navigation       NavigationConfig `yaml:"navigation" json:"navigation"`
	MainContent      MainContentConfig `yaml:"mainContent" json:"mainContent"`
	Ecommerce        EcommerceConfig  `yaml:"ecommerce" json:"ecommerce"`
	CustomSelectors  []CustomSelector `yaml:"customSelectors" json:"customSelectors,omitempty"`
}

// ExtractionSettings is the per-site extraction configuration: a default
// plus an ordered list of per-URL-pattern overrides.
type ExtractionSettings struct {
	Default   ExtractionConfig   `yaml:"default" json:"default"`
	Overrides []ExtractionConfig `yaml:"overrides" json:"overrides,omitempty"`
}

// Effective resolves the extraction config that applies to a given URL:
// the highest-priority override whose pattern matches wins; ties break
// by list order (first match in the slice).
func (es ExtractionSettings) Effective(url string, matches func(url, pattern string) bool) ExtractionConfig {
	best := es.Default
	bestPriority := -1
	for _, ov := range es.Overrides {
		if ov.URLPattern == "" || !matches(url, ov.URLPattern) {
			continue
		}
		if ov.Priority > bestPriority {
			best = ov
			bestPriority = ov.Priority
		}
	}
	return best
}

// SchedulingSettings controls the cadence of future scans.
type SchedulingSettings struct {
	IntervalHours int `yaml:"intervalHours" json:"intervalHours"`
}

// Site is a registered external web property under monitoring.
type Site struct {
	ID         uuid.UUID           `json:"id"`
	OwnerID    uuid.UUID           `json:"ownerId"`
	Name       string              `json:"name"`
	RootURL    string              `json:"rootUrl"`
	Discovery  DiscoverySettings   `json:"discovery"`
	Extraction ExtractionSettings  `json:"extraction"`
	Scheduling SchedulingSettings  `json:"scheduling"`

	TotalPages   int `json:"totalPages"`
	NewPages     int `json:"newPages"`
	ChangedPages int `json:"changedPages"`
	RemovedPages int `json:"removedPages"`

	Status     SiteStatus `json:"status"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
	LastScan   *time.Time `json:"lastScan,omitempty"`
	NextScan   *time.Time `json:"nextScan,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ScanStatus is the lifecycle state of a Scan.
type ScanStatus string

const (
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
	ScanCancelled ScanStatus = "cancelled"
)

// Scan is one discover+fetch+extract+persist pass over a site.
type Scan struct {
	ID        uuid.UUID       `json:"id"`
	SiteID    uuid.UUID       `json:"siteId"`
	Method    DiscoveryMethod `json:"method"`
	Settings  json.RawMessage `json:"-"`

	Status      ScanStatus `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	TotalPages   int `json:"totalPages"`
	NewPages     int `json:"newPages"`
	ChangedPages int `json:"changedPages"`
	RemovedPages int `json:"removedPages"`
	ErrorPages   int `json:"errorPages"`

	ScannedURLs []string `json:"scannedUrls,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Duration returns CompletedAt-StartedAt, or zero if still running.
func (s Scan) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// PageStatus is the latest observed status of a Page.
type PageStatus string

const (
	PageActive  PageStatus = "active"
	PageRemoved PageStatus = "removed"
	PageError   PageStatus = "error"
)

// Page is the per-site, per-URL identity row; mutable, never deleted by
// the core except via site-cascade.
type Page struct {
	ID         uuid.UUID  `json:"id"`
	SiteID     uuid.UUID  `json:"siteId"`
	URL        string     `json:"url"`
	ContentHash string    `json:"contentHash,omitempty"`
	Status     PageStatus `json:"status"`
	Title      string     `json:"title,omitempty"`
	Meta       string     `json:"meta,omitempty"`
	Canonical  string     `json:"canonical,omitempty"`
	ResponseCode int      `json:"responseCode"`
	LoadTimeMs int64      `json:"loadTimeMs"`
	FirstSeen  time.Time  `json:"firstSeen"`
	LastSeen   time.Time  `json:"lastSeen"`
}

// Heading is one entry in a page's heading outline.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// PageSnapshot is the immutable, per-scan extracted record for one URL.
type PageSnapshot struct {
	ID     uuid.UUID `json:"id"`
	ScanID uuid.UUID `json:"scanId"`
	PageID uuid.UUID `json:"pageId"`

	URL         string            `json:"url"`
	Title       string            `json:"title,omitempty"`
	MetaDescription string        `json:"metaDescription,omitempty"`
	Canonical   string            `json:"canonicalUrl,omitempty"`
	Breadcrumbs []string          `json:"breadcrumbs,omitempty"`
	Headings    []Heading         `json:"headings,omitempty"`
	CustomData  map[string]any    `json:"customData,omitempty"`

	MainContent       string `json:"mainContent,omitempty"`
	MainContentFormat string `json:"mainContentFormat,omitempty"`

	ContentHash     string   `json:"contentHash"`
	ResponseCode    int      `json:"responseCode"`
	LoadTimeMs      int64    `json:"loadTimeMs"`
	ExtractionConfigID string `json:"extractionConfigId,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// JobType enumerates the kinds of work the dispatcher can run.
type JobType string

const (
	JobScan       JobType = "scan"
	JobDiscovery  JobType = "discovery"
	JobExtraction JobType = "extraction"
	JobComparison JobType = "comparison"
	JobCleanup    JobType = "cleanup"
)

// JobStatus is the lifecycle state of a Job (spec §4.9).
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is one scheduled or in-flight unit of dispatcher work.
type Job struct {
	ID     uuid.UUID `json:"id"`
	SiteID uuid.UUID `json:"siteId"`
	// ScanID is set once the dispatched scan row exists, so the reaper
	// can fail the associated scan when this job's lease expires mid-run.
	ScanID *uuid.UUID `json:"scanId,omitempty"`

	Type     JobType   `json:"type"`
	Status   JobStatus `json:"status"`
	Priority int       `json:"priority"`
	Progress int       `json:"progress"`

	CreatedAt    time.Time  `json:"createdAt"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`

	RetryCount int `json:"retryCount"`
	MaxRetries int `json:"maxRetries"`

	Metadata map[string]any `json:"metadata,omitempty"`

	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ChangeType classifies how a field or page changed between two scans.
type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeRemoved   ChangeType = "removed"
	ChangeModified  ChangeType = "modified"
	ChangeUnchanged ChangeType = "unchanged"
)

// Impact is the qualitative severity of a FieldChange.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// FieldChange is one field-level difference between two snapshots.
type FieldChange struct {
	Field    string     `json:"field"`
	Type     ChangeType `json:"type"`
	OldValue string     `json:"oldValue,omitempty"`
	NewValue string     `json:"newValue,omitempty"`
	Impact   Impact     `json:"impact"`
}

// PageComparisonResult is one URL's outcome in a RunComparison.
type PageComparisonResult struct {
	URL            string         `json:"url"`
	BaseSnapshot   *PageSnapshot  `json:"baseSnapshot,omitempty"`
	CompareSnapshot *PageSnapshot `json:"compareSnapshot,omitempty"`
	ChangeType     ChangeType     `json:"changeType"`
	Changes        []FieldChange  `json:"changes,omitempty"`
	Severity       Impact         `json:"severity,omitempty"`
}

// RunComparison is the full document returned by the compare engine.
type RunComparison struct {
	SiteID        uuid.UUID              `json:"siteId"`
	BaseScanID    uuid.UUID              `json:"baseScanId"`
	CompareScanID uuid.UUID              `json:"compareScanId"`
	Results       []PageComparisonResult `json:"results"`

	TotalBase     int `json:"totalBase"`
	TotalCompare  int `json:"totalCompare"`
	AddedCount    int `json:"addedCount"`
	RemovedCount  int `json:"removedCount"`
	ModifiedCount int `json:"modifiedCount"`
	UnchangedCount int `json:"unchangedCount"`
	ErrorCountBase    int `json:"errorCountBase"`
	ErrorCountCompare int `json:"errorCountCompare"`
}
