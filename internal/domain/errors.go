package domain

import "errors"

var (
	// ErrCommunityUnavailable means the feed was not found or is private.
	ErrCommunityUnavailable = errors.New("community unavailable")
	// ErrNetworkFailure is a transient transport or upstream failure.
	ErrNetworkFailure = errors.New("network failure")
	// ErrRateLimited means the request budget stayed exhausted for the whole bounded wait.
	ErrRateLimited = errors.New("rate limited")

	ErrUnrecognizedFormat = errors.New("unrecognized post reference")
	ErrNotAPost           = errors.New("reference points to a community, not a post")
	ErrRedirectLoop       = errors.New("too many redirect hops")
	ErrPostNotFound       = errors.New("post not found")
)

// Kind returns a stable short name for the error class of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCommunityUnavailable):
		return "community_unavailable"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnrecognizedFormat):
		return "unrecognized_format"
	case errors.Is(err, ErrNotAPost):
		return "not_a_post"
	case errors.Is(err, ErrRedirectLoop):
		return "redirect_loop"
	case errors.Is(err, ErrPostNotFound):
		return "post_not_found"
	case errors.Is(err, ErrNetworkFailure):
		return "network_failure"
	default:
		return "internal"
	}
}
