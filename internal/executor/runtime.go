package executor

import (
	"context"

	dataloader "github.com/hanpama/lazygraph/internal/dataloader"
	language "github.com/hanpama/lazygraph/internal/language"
	lookahead "github.com/hanpama/lazygraph/internal/lookahead"
	schema "github.com/hanpama/lazygraph/internal/schema"
)

// Runtime defines the host integration surface used by the Executor: field
// resolution, abstract type resolution and leaf serialization.
//
// General contract
//   - ResolveField returns the raw value of one field. Returning a
//     *lazy.Lazy defers the field: the executor queues it at the field's
//     response depth and forces it once every shallower deferred value of
//     the multiplex has been forced. Lists may hold lazies too.
//   - A lazy resolving to lazy.Skip() removes the field from the response.
//   - Errors of type *ExecutionError null the field and are reported. Other
//     errors are looked up in the rescue registry; without a handler they
//     are fatal.
//   - Deferred values may be forced on several goroutines when the executor
//     runs with a concurrency above one. Implementations must be safe for
//     concurrent use and must not mutate source or args values.
//
// Batching
//   - ResolveInfo.Dataloader is shared by every query of a multiplex. Loaders
//     obtained from it with dataloader.Source coalesce keys requested by
//     different queries at the same depth into one fetch.
//
// Abstract types and leaf values
//   - ResolveType must return the concrete object type name for interface
//     and union values.
//   - SerializeLeafValue must coerce scalars and enums into JSON-safe Go
//     values. For enums, return the enum name as string.
type Runtime interface {
	// ResolveField resolves one field of one object.
	// Return (nil, nil) to produce a GraphQL null for nullable fields.
	ResolveField(ctx context.Context, info ResolveInfo) (any, error)

	// ResolveType determines the concrete runtime type name for a value of
	// an abstract GraphQL type (interface or union).
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue serializes a scalar or enum value to a JSON-safe Go
	// value.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// ResolveInfo describes the field being resolved.
type ResolveInfo struct {
	// ObjectType is the parent object type.
	ObjectType *schema.Type
	// Field is the schema definition of the field.
	Field *schema.Field
	// Source is the parent object value; the root value for root fields.
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any
	// Path is the response path of the field.
	Path Path
	// Lookahead is set for fields declaring the lookahead extra and is
	// lookahead.Null otherwise.
	Lookahead *lookahead.Lookahead
	// Dataloader is the job queue shared by the multiplex.
	Dataloader *dataloader.Dataloader
	// Operation is the operation being executed.
	Operation *language.OperationDefinition
	// Variables are the operation's coerced variables.
	Variables map[string]any
}
