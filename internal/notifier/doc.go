// Package notifier provides the bulk alert notifier.
//
// A Notifier holds pre-composed messages and, on Send, delivers every one of
// them over a single relay session. Delivery is best-effort:
//
//   - a failed connection skips the whole send
//   - a failed login is logged and delivery is attempted anyway
//   - a refused or failed message never blocks the messages after it
//
// Send never returns an error. Each call yields a SendReport and every outcome
// is logged, so a broken relay cannot stop the watchdog that calls it.
//
// # Queue
//
// The queue is not drained by Send. Every stored message is resent verbatim on
// every trigger.
package notifier
