// Package orchestrator coordinates concurrent execution of registered
// workers against tasks and aggregates their outcomes under five
// coordination patterns: parallel synthesis, weighted consensus, iterative
// debate, create-review-revise, and ensemble selection.
//
// Each dispatch is wrapped in bounded retry with deterministic exponential
// backoff and raced against a timeout. A timed-out dispatch is abandoned,
// not cancelled: its eventual result is discarded, so worker operations
// must be safe to retry.
package orchestrator
