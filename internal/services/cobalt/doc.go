// Package cobalt talks to a cobalt-compatible download proxy that resolves
// social-video page URLs into direct, fetchable media URLs.
//
// The client issues a single synchronous POST per resolution with the
// source URL as JSON and an Api-Key authorization header. The proxy answers
// with a status of "tunnel" or "redirect" on success plus the direct media
// URL and an optional suggested filename. Every failure is classified under
// one of three sentinels: ErrTransport (network), ErrUpstreamStatus (non-2xx)
// and ErrMalformedResponse (undecodable body, unusable status, missing or
// relative url). Raw response bodies ride along on classification failures so
// callers can save them for inspection via ResponseBody.
//
// The client never retries and never touches disk; bounded retry lives with
// the caller.
package cobalt
