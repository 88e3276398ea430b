// Package preflight provides readiness checks for the directories and
// external services Pickline depends on.
//
// These checks run in two contexts:
//   - picklined calls RunServer at startup and logs every failing check.
//   - The CLI "pickline doctor" command runs RunServer or RunDevice and
//     renders the results as a table.
//
// Unconfigured optional services (ntfy) are reported as disabled, not failed.
package preflight
