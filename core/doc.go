// Package core provides the foundational domain types shared by the rest of
// agentpipe. It defines:
//
//   - Task, the unit every pipeline stage implements (agents, flows, steps)
//   - Static type descriptors (reflect.Type) and the compatibility check used
//     when stages are wired together
//   - The role based Content model exchanged with language model adapters
//   - ToolContext, the scoped surface handed to tool implementations
//
// Concrete agents, flows and model providers live in their own packages and
// depend on core, never the other way round.
package core
