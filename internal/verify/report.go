package verify

import "envcheck/internal/platform/health"

// Check names, in execution order. They double as span, log and metric labels.
const (
	CheckRuntime   = "runtime"
	CheckEnv       = "env"
	CheckPostgres  = "postgres"
	CheckPgvector  = "pgvector"
	CheckVectorOps = "vector-ops"
)

// Outcome is the single most relevant way a run ended.
type Outcome int

const (
	Success Outcome = iota
	ConfigFailure
	ConnectivityFailure
	ExtensionMissing
	OperationFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ConfigFailure:
		return "config_failure"
	case ConnectivityFailure:
		return "connectivity_failure"
	case ExtensionMissing:
		return "extension_missing"
	case OperationFailure:
		return "operation_failure"
	default:
		return "unknown"
	}
}

// Report is everything a run produced, in check order.
type Report struct {
	Results []health.Result
	Outcome Outcome
}

func (r Report) OK() bool { return r.Outcome == Success }

// Failed lists the checks that ran and failed.
func (r Report) Failed() []health.Result { return health.Failed(r.Results) }

// Skipped lists the checks that never ran because a prerequisite failed.
func (r Report) Skipped() []health.Result {
	var out []health.Result
	for _, res := range r.Results {
		if res.Skipped {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the named check result, if it was recorded.
func (r Report) Result(name string) (health.Result, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return health.Result{}, false
}

// classify prefers database failures, which are mutually exclusive, over
// configuration failures that may accompany them.
func classify(results []health.Result) Outcome {
	failed := map[string]bool{}
	for _, r := range health.Failed(results) {
		failed[r.Name] = true
	}
	switch {
	case failed[CheckPostgres]:
		return ConnectivityFailure
	case failed[CheckPgvector]:
		return ExtensionMissing
	case failed[CheckVectorOps]:
		return OperationFailure
	case len(failed) > 0:
		return ConfigFailure
	default:
		return Success
	}
}
