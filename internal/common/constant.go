package common

// Header names attached by the API gateway to outbound requests.
const (
	AuthorizationHeaderName  = "Authorization"
	IdempotencyKeyHeaderName = "Idempotency-Key"
	RequestIDHeaderName      = "X-Request-ID"
)

// PollQueryParam is the query parameter carrying the active poll id on a
// navigable (shareable) URL.
const PollQueryParam = "poll"
