// Package model defines the provider-agnostic abstractions for talking to
// language models from agentpipe.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, core.FunctionCall)
//   - Offer prompt-in / text-out helpers (Collect, GenerateText) for agents
//     that do not need the raw stream
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic, Gemini) live in sub packages and implement
// Model so agents and flows stay decoupled from vendor SDKs.
package model
