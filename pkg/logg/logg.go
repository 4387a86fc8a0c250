package logg

// Structured log field keys shared by every layer.
const (
	Layer     = "layer"
	Operation = "operation"
	URL       = "url"
	Selector  = "selector"
	Profile   = "profile"
	Model     = "model"
	RunID     = "run_id"
	QueryID   = "query_id"
	State     = "state"
	Attempt   = "attempt"
	Elapsed   = "elapsed"
)
