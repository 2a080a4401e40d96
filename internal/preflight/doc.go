// Package preflight provides readiness checks for the backends and
// filesystem paths that strata depends on.
//
// These checks run in two contexts:
//   - stratad runs them once at startup and logs failures before serving,
//     so a misconfigured catalog or an unwritable spool shows up immediately.
//   - The CLI "strata preflight" command renders them for operators.
//
// Checks for optional backends are gated by config: an unset catalog URL
// or a "none" executor skips the corresponding probe.
package preflight
