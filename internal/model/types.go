// Package model defines the entities persisted by the store and passed
// between the job, indexing, change-tracking, and search components.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an ArchiveJob. Values mirror the
// text stored in the jobs.status column so that SQL filters can compare
// directly against these constants.
type JobStatus string

const (
	JobQueued      JobStatus = "queued"
	JobRunning     JobStatus = "running"
	JobRetryable   JobStatus = "retryable"
	JobFailed      JobStatus = "failed"
	JobCompleted   JobStatus = "completed"
	JobIndexing    JobStatus = "indexing"
	JobIndexed     JobStatus = "indexed"
	JobIndexFailed JobStatus = "index_failed"
)

// CrawlerStatus is the outcome the job runner assigns to a finished
// crawler subprocess invocation.
type CrawlerStatus string

const (
	CrawlerSuccess    CrawlerStatus = "success"
	CrawlerFailed     CrawlerStatus = "failed"
	CrawlerInfraError CrawlerStatus = "infra_error"
)

// CleanupStatus tracks whether a job's temporary crawl directories have
// been reclaimed after indexing.
type CleanupStatus string

const (
	CleanupNone    CleanupStatus = "none"
	CleanupCleaned CleanupStatus = "temp_cleaned"
)

// Source is a logical content origin (e.g. a government department site).
type Source struct {
	ID        uuid.UUID
	Code      string
	Name      string
	BaseURL   string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToolOptions is the closed set of crawler tuning knobs a job may carry.
// It replaces a dynamic options dict: every recognized key from the
// registry's table has a named field, and registry.Validate enforces the
// two documented cross-field rules when a job config is resolved.
type ToolOptions struct {
	InitialWorkers int `json:"initialWorkers,omitempty"`

	Cleanup   bool `json:"cleanup,omitempty"`
	Overwrite bool `json:"overwrite,omitempty"`

	LogLevel string `json:"logLevel,omitempty"`

	EnableMonitoring       bool `json:"enableMonitoring,omitempty"`
	MonitorIntervalSeconds int  `json:"monitorIntervalSeconds,omitempty"`
	StallTimeoutMinutes    int  `json:"stallTimeoutMinutes,omitempty"`
	ErrorThresholdTimeout  int  `json:"errorThresholdTimeout,omitempty"`
	ErrorThresholdHTTP     int  `json:"errorThresholdHttp,omitempty"`

	EnableAdaptiveWorkers bool `json:"enableAdaptiveWorkers,omitempty"`
	MinWorkers            int  `json:"minWorkers,omitempty"`
	MaxWorkerReductions   int  `json:"maxWorkerReductions,omitempty"`

	EnableVPNRotation           bool   `json:"enableVpnRotation,omitempty"`
	VPNConnectCommand           string `json:"vpnConnectCommand,omitempty"`
	MaxVPNRotations             int    `json:"maxVpnRotations,omitempty"`
	VPNRotationFrequencyMinutes int    `json:"vpnRotationFrequencyMinutes,omitempty"`

	BackoffDelayMinutes int `json:"backoffDelayMinutes,omitempty"`

	RelaxPerms bool `json:"relaxPerms,omitempty"`
}

// JobConfig is the opaque structured blob stored on an ArchiveJob: the
// crawl seeds, the tool options, and any verbatim passthrough args.
type JobConfig struct {
	Seeds           []string    `json:"seeds"`
	ToolOptions     ToolOptions `json:"toolOptions"`
	PassthroughArgs []string    `json:"passthroughArgs,omitempty"`
}

// ArchiveJob is one crawl attempt (and subsequent indexing) for a source.
type ArchiveJob struct {
	ID        uuid.UUID `json:"id"`
	SourceID  uuid.UUID `json:"sourceId"`
	Name      string    `json:"name"`
	OutputDir string    `json:"outputDir"`

	Status JobStatus `json:"status"`

	QueuedAt   time.Time  `json:"queuedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`

	RetryCount int `json:"retryCount"`

	Config JobConfig `json:"config"`

	CrawlerExitCode *int           `json:"crawlerExitCode,omitempty"`
	CrawlerStatus   *CrawlerStatus `json:"crawlerStatus,omitempty"`
	CrawlerStatusAt *time.Time     `json:"crawlerStatusAt,omitempty"`
	CrawlerStage    string         `json:"crawlerStage,omitempty"`
	LastStatsJSON   json.RawMessage `json:"lastStatsJson,omitempty"`
	CombinedLogPath string         `json:"combinedLogPath,omitempty"`
	StateFilePath   string         `json:"stateFilePath,omitempty"`

	WARCFileCount    int `json:"warcFileCount"`
	IndexedPageCount int `json:"indexedPageCount"`
	PagesCrawled     int `json:"pagesCrawled"`
	PagesTotal       int `json:"pagesTotal"`
	PagesFailed      int `json:"pagesFailed"`

	CleanupStatus CleanupStatus `json:"cleanupStatus"`
	CleanedAt     *time.Time    `json:"cleanedAt,omitempty"`
}

// Language is the detected (or unknown) language of a snapshot's content.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageFrench  Language = "fr"
	LanguageUnknown Language = ""
)

// TriState represents a true/false/unknown signal (spec's is_archived).
type TriState string

const (
	TriUnknown TriState = "unknown"
	TriTrue    TriState = "true"
	TriFalse   TriState = "false"
)

// Snapshot is one captured HTML response extracted from a WARC.
type Snapshot struct {
	ID       uuid.UUID `json:"id"`
	JobID    uuid.UUID `json:"jobId"`
	SourceID uuid.UUID `json:"sourceId"`

	URL                string `json:"url"`
	NormalizedURLGroup string `json:"normalizedUrlGroup"`

	CaptureTimestamp time.Time `json:"captureTimestamp"`

	MIMEType   string `json:"mimeType"`
	StatusCode *int   `json:"statusCode"`

	Title       string   `json:"title"`
	Snippet     string   `json:"snippet"`
	Language    Language `json:"language"`
	ContentHash string   `json:"contentHash"`
	IsArchived  TriState `json:"isArchived"`

	// ContentText is the cleaned, ≤4KB main-content text. It is stored
	// in the content_text column on both backends, feeding the Postgres
	// search_vector and the SQLite FTS5 shadow table, and is never
	// serialized to JSON.
	ContentText string `json:"-"`

	WARCPath     string `json:"-"`
	WARCRecordID string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
}

// SnapshotChange is an ordered transition between two snapshots of the
// same normalized URL group.
type SnapshotChange struct {
	ID uuid.UUID `json:"id"`

	FromSnapshotID uuid.UUID `json:"fromSnapshotId"`
	ToSnapshotID   uuid.UUID `json:"toSnapshotId"`

	NormalizedURLGroup string    `json:"normalizedUrlGroup"`
	FromTimestamp      time.Time `json:"fromTimestamp"`
	ToTimestamp        time.Time `json:"toTimestamp"`

	SectionsChanged int `json:"sectionsChanged"`
	LinesChanged    int `json:"linesChanged"`

	DiffArtifactPath string `json:"diffArtifactPath,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// PageSignal carries small authority signals used only as a ranking
// tie-break (e.g. inlink counts).
type PageSignal struct {
	NormalizedURLGroup string
	InlinkCount        int
	UpdatedAt          time.Time
}
