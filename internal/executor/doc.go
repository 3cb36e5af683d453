// Package executor runs GraphQL queries as multiplexes: batches of queries
// that share one queue of deferred field values, so batched loads coalesce
// across the whole batch.
//
// # Phases
//
// A multiplex moves through Created, Analyzed, Executing, Resolving,
// Assembling and Done.
//
//   - Analyzed: every request is parsed, its operation selected and its
//     variables coerced. The configured analysis.Analyzers then inspect all
//     surviving queries as one unit, so a limit can span queries. A query
//     failing here is not executed (no operation) and its siblings proceed.
//   - Executing: each query's root selections are evaluated eagerly. A
//     resolver returning a *lazy.Lazy does not block; the value is queued at
//     its response depth in buckets shared by the whole multiplex. Mutation
//     root fields run one after another, each resolved completely before the
//     next starts.
//   - Resolving: breadthfirst.Resolve forces the shared buckets shallowest
//     depth first. Completing a deferred value may queue deeper ones.
//   - Assembling: each query's response tree and error list become its
//     ExecutionResult. Subscription operations hand their root field events
//     to the Subscriptions collaborator.
//
// # Errors
//
// Resolver errors follow one taxonomy:
//   - *ExecutionError: reported with the field's path; the field is null and
//     execution continues.
//   - any other error: looked up in the rescue registry by error class. A
//     handler supplies a replacement value, or an error that is reported
//     like an ExecutionError.
//   - unhandled errors are fatal. In the eager phase the failure is recorded
//     on that query alone. While resolving deferred values it aborts the
//     whole multiplex, because the buckets and loaders are shared: every
//     query ends with an empty result and RunAll returns the error.
//
// Non-Null violations null the nearest nullable ancestor. Deferred values
// below a nullified path are still forced but no longer written.
//
// # Concurrency
//
// With WithConcurrency above one, deferred values at the same depth are
// forced on several goroutines. The response tree and error list of each
// query are guarded by a mutex.
package executor
