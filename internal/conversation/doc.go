// Package conversation keeps threads, messages and the audit trail consistent
// across turns.
//
// # Reconciler
//
// The Reconciler owns the two remote calls:
//
//   - CreateThread(ctx): POST to the threads path, returns the new thread id
//   - RunTurn(ctx, prompt, threadID, parent): POST to agent:run, folds the
//     event stream into text, the last generated query and the assistant id
//
// Each call writes exactly one audit record, including transport failures
// (status -1) and timeouts. Nothing is retried.
//
// # Identifiers
//
// A user message gets parent+1 before the agent is called. The assistant
// message takes the id the agent named if it is a plain non-negative integer,
// otherwise user+1. Ids can collide when two clients write the same thread;
// nothing coordinates them.
//
// # Cursor
//
// Cursor is a value: the caller passes it into Service.Send and keeps the
// one returned. A failed turn returns the cursor it was given.
//
//	cur, err := svc.StartThread(ctx, user)
//	outcome, cur, err := svc.Send(ctx, cur, "how many vehicles?")
//
// RestoreCursor rebuilds a cursor from stored history when switching threads.
package conversation
