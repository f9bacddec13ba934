package domain

// ResultKind is the closed classification of a fetch outcome. Retry and
// update policy both dispatch on it; no other error inspection happens
// past the fetch boundary.
type ResultKind string

const (
	ResultSuccess      ResultKind = "success"
	ResultNetworkError ResultKind = "network_error"
	ResultBlocked      ResultKind = "blocked"
	ResultParseError   ResultKind = "parse_error"
	ResultNotFound     ResultKind = "not_found"
	ResultNoProxy      ResultKind = "no_proxy"
	ResultAborted      ResultKind = "aborted"
)

// FetchResult is the outcome of fetching one sound page. Exactly one is
// produced per attempted identifier per cycle; it is transient and only
// consumed by the history updater.
type FetchResult struct {
	Kind ResultKind

	// Populated on success only.
	Name    string
	Creator string
	IconURL string
	Count   int64

	// Populated on failure only.
	Message string

	// Attempts is filled in by the retry controller.
	Attempts int
}

// Success builds a successful result carrying the extracted metadata.
func Success(name, creator, iconURL string, count int64) FetchResult {
	return FetchResult{
		Kind:    ResultSuccess,
		Name:    name,
		Creator: creator,
		IconURL: iconURL,
		Count:   count,
	}
}

// Failure builds a failed result of the given kind.
func Failure(kind ResultKind, message string) FetchResult {
	return FetchResult{Kind: kind, Message: message}
}

// OK reports whether the fetch produced usable metadata.
func (r FetchResult) OK() bool {
	return r.Kind == ResultSuccess
}

// Retryable reports whether the failure is transient: network trouble and
// anti-bot blocks pass with a new egress point, structural failures do not.
func (r FetchResult) Retryable() bool {
	return r.Kind == ResultNetworkError || r.Kind == ResultBlocked
}
