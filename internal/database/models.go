package database

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Feedback ratings.
const (
	RatingUseful    = "useful"
	RatingNotUseful = "not_useful"
)

// Run is one stored insight generation.
type Run struct {
	ID         string   `json:"id"`
	Mode       string   `json:"mode"`
	Labels     []string `json:"labels"`
	Author     *string  `json:"author,omitempty"`
	Provider   string   `json:"provider"`
	Model      *string  `json:"model,omitempty"`
	Context    string   `json:"context"`
	Markdown   *string  `json:"markdown,omitempty"`
	RawOutput  *string  `json:"raw_output,omitempty"`
	Status     string   `json:"status"`
	Error      *string  `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	CreatedAt  *string  `json:"created_at,omitempty"`
	Rating     *string  `json:"rating,omitempty"`
}

// RunFeedback is a rating left on a run.
type RunFeedback struct {
	RunID     string
	Rating    string
	Note      *string
	CreatedAt *string
}

// Stats contains aggregate history statistics.
type Stats struct {
	TotalRuns  int
	FailedRuns int
	Rated      int
	Useful     int
	ByMode     map[string]int
}
