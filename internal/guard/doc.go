// Package guard sequences one guarded call: decide, run, record.
//
// Execute asks the Strategy whether the call can be skipped. If not, it
// runs the operation exactly once, hands the captured result to the
// strategy's Callback and returns the operation's own result unchanged.
//
// Capture rules:
//   - A panic inside the operation is captured as a *PanicError. The
//     callback sees that error, then the original panic is re-raised.
//   - An operation that returns a context error while its context is done
//     did not finish. No callback runs for it.
//   - runtime.Goexit inside the operation leaves no result, so no callback
//     runs either.
//
// Callback errors are logged and reported in Report.CallbackErr. They never
// replace the operation's result.
//
// The guard adds no scheduling of its own. Concurrent calls for the same
// output may race unless WithLocking is set, which holds an advisory file
// lock on "<output>.lock" across the whole sequence.
package guard
