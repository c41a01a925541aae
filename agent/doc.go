// Package agent implements typed language model agents.
//
// An Agent renders its input through a prompt template, asks a model for a
// completion and, when an output type is configured, parses the reply into a
// value of that type. Agents with tools run the executor's tool-calling loop
// first and then convert its final answer into the output type with one more
// model call.
//
// Agents satisfy core.Task and can be composed with the flow package.
package agent
