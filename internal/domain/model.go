package domain

import (
	"net/http"
	"time"
)

// Core domain models. Wire shapes used by the HTTP adapter are JSON
// renderings of these; keep them decoupled from any transport concern.

// RedirectHop is a single step in a redirect chain.
type RedirectHop struct {
	Index  int    `json:"index"`
	URL    string `json:"url"`
	Status int    `json:"status"`
	TimeMs int64  `json:"time_ms"`
}

// FetchResult captures a single HTTP retrieval. It is owned by the pipeline
// invocation that produced it and is never shared across requests.
type FetchResult struct {
	URL      string
	FinalURL string
	Chain    []RedirectHop
	Status   int
	Header   http.Header
	Body     []byte
	Elapsed  time.Duration
	Failed   bool
	Error    string
}

// GatewayFinding records a detected payment gateway.
type GatewayFinding struct {
	Gateway    string `json:"gateway"`
	Confidence string `json:"confidence"` // high|low
}

// SecurityFindings are boolean header/transport checks.
type SecurityFindings struct {
	ValidTLS        bool `json:"valid_tls"`
	HSTS            bool `json:"hsts"`
	CSP             bool `json:"csp"`
	SecureCookies   bool `json:"secure_cookies"`
	FrameProtection bool `json:"frame_protection"`
	XSSProtection   bool `json:"xss_protection"`
}

// ThreatFindings are heuristic threat indicators.
type ThreatFindings struct {
	Phishing            bool `json:"phishing"`
	Malware             bool `json:"malware"`
	SuspiciousRedirects int  `json:"suspicious_redirects"`
	InsecureForm        bool `json:"insecure_form"`
	Fingerprinting      bool `json:"fingerprinting"`
}

// AnalysisResult is the classifier output for one normalized URL. Immutable
// once produced; an update is a new result replacing the cached one.
type AnalysisResult struct {
	URL            string           `json:"url"`
	Gateways       []GatewayFinding `json:"gateways,omitempty"`
	Security       SecurityFindings `json:"security"`
	Threats        ThreatFindings   `json:"threats"`
	Errored        bool             `json:"errored,omitempty"`
	FetchError     string           `json:"fetch_error,omitempty"`
	CatalogVersion string           `json:"catalog_version"`
	AnalyzedAt     time.Time        `json:"analyzed_at"`
	TTLSeconds     int              `json:"ttl_seconds"`
}

// CacheRecord is the persisted form of an AnalysisResult, keyed by the
// canonical URL string. At most one live entry exists per key.
type CacheRecord struct {
	Key        string         `json:"key"`
	Result     AnalysisResult `json:"result"`
	StoredAt   time.Time      `json:"stored_at"`
	TTLSeconds int            `json:"ttl_seconds"`
}

// Expired reports whether the record's TTL window has passed.
func (r CacheRecord) Expired(now time.Time) bool {
	return !now.Before(r.StoredAt.Add(time.Duration(r.TTLSeconds) * time.Second))
}

// Entitlement kinds.
const (
	KindIndividual = "individual-subscription"
	KindGroup      = "group-approval"
)

// EntitlementRecord authorizes a subject. Group approvals carry no expiry
// and last until explicitly revoked.
type EntitlementRecord struct {
	Subject   string     `json:"subject"`
	Kind      string     `json:"kind"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the record authorizes its subject at now.
func (r EntitlementRecord) ActiveAt(now time.Time) bool {
	return r.ExpiresAt == nil || now.Before(*r.ExpiresAt)
}

// Requester identifies who asked for an analysis. GroupID is empty outside
// a group context.
type Requester struct {
	ID      string `json:"requester_id"`
	GroupID string `json:"group_id,omitempty"`
}

// Decision is the outcome of an entitlement check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Denial reasons.
const (
	ReasonNoSubscription      = "no_subscription"
	ReasonSubscriptionExpired = "subscription_expired"
	ReasonGroupNotApproved    = "group_not_approved"
)

// BatchState is the lifecycle state of a batch job.
type BatchState string

const (
	BatchPending         BatchState = "pending"
	BatchRunning         BatchState = "running"
	BatchCompleted       BatchState = "completed"
	BatchPartiallyFailed BatchState = "partially-failed"
	BatchCancelled       BatchState = "cancelled"
)

// BatchSummary is a point-in-time view of a batch job.
type BatchSummary struct {
	ID        string     `json:"job_id"`
	State     BatchState `json:"state"`
	Submitted int        `json:"submitted"`
	Completed int        `json:"completed"`
	Failed    int        `json:"failed"`
	CreatedAt time.Time  `json:"created_at"`
}

// StoreStats describes the active persistence backend.
type StoreStats struct {
	Backend        string           `json:"backend"`
	CacheEntries   int              `json:"cache_entries"`
	Entitlements   int              `json:"entitlements"`
	ApprovedGroups int              `json:"approved_groups"`
	Counters       map[string]int64 `json:"counters,omitempty"`
}
