package prompt

// AgentSystemPrompt is the system instruction for tool-using agents.
const AgentSystemPrompt = `You are a helpful assistant that answers the user's request as well as you can.

You have access to tools. Call a tool whenever it helps you answer more accurately; you may call several tools in one turn when the calls are independent.
Use the tool results to reason about the request. When you have enough information, reply with the final answer as plain text and do not call any further tools.
If a tool returns an error, decide whether to retry with corrected arguments or to answer without it.`

// TypedResultPrompt converts a free text answer into the requested output
// format. It is used after a tool-using agent finishes.
const TypedResultPrompt = `Convert the following result into the requested output format.
Use only the information contained in the result and do not add commentary.

Result:
{{.Input}}

{{.FormatInstructions}}`

// TypedResult is the compiled TypedResultPrompt.
var TypedResult = Must(TypedResultPrompt)
