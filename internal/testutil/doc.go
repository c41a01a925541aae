// Package testutil contains helpers shared by tests: a fluent builder for
// model responses and a scripted model that replays queued responses while
// recording the requests it receives. Not intended for production usage.
package testutil
