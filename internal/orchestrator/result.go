package orchestrator

// Kind discriminates a Result's variant: exactly one of Ok, Empty, or
// Failed, replacing exception-based control flow through the pipeline.
type Kind int

const (
	KindOk Kind = iota
	KindEmpty
	KindFailed
)

// Result is the orchestrator's pipeline outcome.
type Result struct {
	Kind Kind

	// Populated when Kind == KindOk or KindEmpty.
	Text       string
	Confidence float64
	Language   string

	// Populated when Kind == KindFailed.
	FailureKind    string
	FailureMessage string
}

// Ok builds a successful, non-empty result.
func Ok(text string, confidence float64, language string) Result {
	return Result{Kind: KindOk, Text: text, Confidence: confidence, Language: language}
}

// Empty builds a successful-but-silent result (engine ran, text was "").
func Empty() Result {
	return Result{Kind: KindEmpty}
}

// Failed builds a failure result; kind is a short tag like "engine_timeout".
func Failed(kind, message string) Result {
	return Result{Kind: KindFailed, FailureKind: kind, FailureMessage: message}
}

// Success reports whether the outcome produced usable text.
func (r Result) Success() bool { return r.Kind == KindOk }
