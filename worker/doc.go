// Package worker defines the worker contract: an addressable unit that
// executes one task at a time, reports state and statistics, and keeps a
// bounded history of recent executions.
package worker
