// Package preflight provides readiness checks for the external services
// and filesystem paths that scribe depends on.
//
// These checks run in two contexts:
//   - The queue processor calls RunAll before draining. If any check fails,
//     processing is refused so queued runs are not burned against a dead
//     resolver or an unwritable directory.
//   - The CLI "scribe check" command combines RunAll with CheckSystemDeps
//     to display overall readiness, including the external binaries and
//     the speech model.
package preflight
