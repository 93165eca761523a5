// Package events defines the typed event contract of a research stream and
// the parser that produces it from decoded lines.
//
// Every application record on the wire is one line:
//
//	data: {"type":"node_update","node":"architect","data":{"plan":["..."]}}
//	data: {"type":"interrupt","message":"Awaiting Human Approval","thread_id":"..."}
//	data: {"type":"token","content":"..."}
//	data: {"type":"error","message":"..."}
//	data: [DONE]
//
// Event kinds:
//
//   - Progress (progress): a pipeline phase finished. Carries the phase name
//     and, depending on the phase, the plan or the final report.
//   - Interrupt (interrupt): the pipeline paused for a human decision.
//     Carries the correlation token needed to resume the paused run.
//   - Token (token): append-only fragment of the report.
//   - Terminate (terminate): the server finished writing the stream.
//   - Malformed (malformed): an event-bearing line that could not be parsed.
//     Carries the raw payload and the *ParseError.
//   - Failure (failure): the server reported an error for the run.
//
// Lines without the data prefix are not events and are dropped by [Parse].
package events
