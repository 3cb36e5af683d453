package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	language "github.com/hanpama/lazygraph/internal/language"
	lazy "github.com/hanpama/lazygraph/internal/lazy"
	lookahead "github.com/hanpama/lazygraph/internal/lookahead"
	rescue "github.com/hanpama/lazygraph/internal/rescue"
	schema "github.com/hanpama/lazygraph/internal/schema"
	values "github.com/hanpama/lazygraph/internal/values"
)

// marker values stand in for field results that are not values yet.
type marker uint8

const (
	// pending is a deferred value queued on the multiplex buckets
	pending marker = iota + 1
	// omitted contributes no key to the response
	omitted
)

// executionState is what one query's field execution needs: the query and
// the multiplex it shares buckets and loaders with.
type executionState struct {
	m       *multiplex
	q       *query
	context context.Context
}

func (s *executionState) runtime() Runtime { return s.m.exec.runtime }

// executeRootFields evaluates the root selections eagerly, writing each
// field into the response tree. Deferred values are queued, not forced.
func (s *executionState) executeRootFields(fields *collectedFieldMap) error {
	for _, cf := range fields.orderedFields() {
		if err := s.executeRootField(cf); err != nil {
			return err
		}
	}
	return nil
}

// executeRootFieldsSerially runs each root field to completion, resolving
// everything deferred before starting the next one.
func (s *executionState) executeRootFieldsSerially(fields *collectedFieldMap) error {
	for _, cf := range fields.orderedFields() {
		if err := s.executeRootField(cf); err != nil {
			return err
		}
		if err := s.m.resolve(); err != nil {
			return &abortError{err: err}
		}
	}
	return nil
}

func (s *executionState) executeRootField(cf collectedField) error {
	rootType := s.q.rootType
	path := Path{cf.ResponseName}
	value, err := s.executeField(rootType, s.q.req.RootValue, cf.Fields, path)
	if err != nil {
		return err
	}
	fieldDef := s.q.schema.LookupField(rootType.Name, cf.Fields[0].Name)
	if fieldDef == nil {
		return nil
	}
	s.place(path, fieldDef.Type, value)
	return nil
}

// executeSelectionSet executes a selection set into a new response object.
// A Non-Null child completing to null makes the whole object null.
func (s *executionState) executeSelectionSet(objectType *schema.Type, fields []*language.Field, objectValue any, path Path) (map[string]any, error) {
	groupedFields := collectFields(s.q, objectType, mergeSelectionSets(fields))
	resultMap := make(map[string]any)

	for _, collectedField := range groupedFields.orderedFields() {
		responseName := collectedField.ResponseName
		fieldPath := appendPath(path, responseName)

		fieldResult, err := s.executeField(objectType, objectValue, collectedField.Fields, fieldPath)
		if err != nil {
			return nil, err
		}

		switch fieldResult {
		case omitted:
			continue
		case pending:
			resultMap[responseName] = nil
			continue
		}

		fieldDef := s.q.schema.LookupField(objectType.Name, collectedField.Fields[0].Name)
		if isNullish(fieldResult) {
			if fieldDef != nil && schema.IsNonNull(fieldDef.Type) {
				// deferred values already queued below this object must not
				// write into it
				s.q.markNullified(path)
				return nil, nil
			}
			resultMap[responseName] = nil
			continue
		}
		resultMap[responseName] = fieldResult
	}

	return resultMap, nil
}

// executeField resolves and completes one field. The returned error is
// fatal; everything recoverable has been recorded on the query.
func (s *executionState) executeField(objectType *schema.Type, source any, fields []*language.Field, path Path) (any, error) {
	field := fields[0]
	fieldName := field.Name

	if fieldName == schema.TypenameFieldName {
		return objectType.Name, nil
	}

	fieldDef := objectType.Field(fieldName)
	if fieldDef == nil {
		s.q.addError(GraphQLError{
			Message: fmt.Sprintf("Cannot query field '%s' on type '%s'", fieldName, objectType.Name),
			Path:    path,
		})
		return omitted, nil
	}

	args, err := values.CoerceArguments(s.q.schema, fieldDef, field.Arguments, s.q.variables)
	if err != nil {
		s.q.addError(GraphQLError{Message: err.Error(), Path: path})
		return nil, nil
	}

	info := ResolveInfo{
		ObjectType: objectType,
		Field:      fieldDef,
		Source:     source,
		Args:       args,
		Path:       path,
		Lookahead:  lookahead.Null,
		Dataloader: s.m.loader,
		Operation:  s.q.operation,
		Variables:  s.q.variables,
	}
	if fieldDef.WantsExtra(schema.ExtraLookahead) {
		info.Lookahead = lookahead.New(s.q.lookahead, fields, fieldDef, objectType)
	}

	resolved, err := s.runtime().ResolveField(s.context, info)
	if err == nil {
		if r, ok := resolved.(lazy.Result); ok {
			switch r.Kind() {
			case lazy.KindSkip:
				return omitted, nil
			case lazy.KindError:
				err = r.Err()
			default:
				resolved = r.Value()
			}
		}
	}
	if err != nil {
		recovered, fatal := s.rescueError(&info, path, err)
		if fatal != nil {
			return nil, fatal
		}
		resolved = recovered
	}
	return s.completeValue(fieldDef.Type, fields, resolved, path, &info)
}

// rescueError applies the error taxonomy: execution errors are reported and
// null the field, other errors go to the rescue registry and are fatal
// when no handler claims them.
func (s *executionState) rescueError(info *ResolveInfo, path Path, err error) (any, error) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		s.q.addError(locatedError(execErr, path))
		return nil, nil
	}

	handler, ok := s.m.exec.rescue.FindForError(err)
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", pathToString(path), err)
	}
	value, herr := handler(s.context, err, rescue.Info{
		Path:      path,
		FieldName: info.Field.Name,
		TypeName:  info.ObjectType.Name,
		Source:    info.Source,
	})
	if herr != nil {
		if errors.As(herr, &execErr) {
			s.q.addError(locatedError(execErr, path))
		} else {
			s.q.addError(GraphQLError{Message: herr.Error(), Path: path})
		}
		return nil, nil
	}
	return value, nil
}

func locatedError(e *ExecutionError, path Path) GraphQLError {
	return GraphQLError{Message: e.Message, Path: path, Extensions: e.Extensions}
}

// completeValue completes a value
func (s *executionState) completeValue(fieldType *schema.TypeRef, fields []*language.Field, result any, path Path, info *ResolveInfo) (any, error) {
	if schema.IsNonNull(fieldType) {
		s.q.markNonNull(path)
	}
	if l, ok := result.(*lazy.Lazy); ok {
		s.deferValue(fieldType, fields, l, path, info)
		return pending, nil
	}

	if schema.IsNonNull(fieldType) {
		if isNullish(result) {
			if !s.q.hasErrorAtPath(path) {
				s.q.addError(GraphQLError{Message: fmt.Sprintf("Cannot return null for non-nullable field %s", pathToString(path)), Path: path})
			}
			return nil, nil
		}
		completed, err := s.completeValue(schema.Unwrap(fieldType), fields, result, path, info)
		if err != nil || completed == pending {
			return completed, err
		}
		if isNullish(completed) {
			return nil, nil
		}
		return completed, nil
	}

	if isNullish(result) {
		return nil, nil
	}

	if schema.IsList(fieldType) {
		return s.completeListValue(fieldType, fields, result, path, info)
	}
	namedType := schema.GetNamedType(fieldType)
	typeObj := s.q.schema.Types[namedType]
	if typeObj == nil {
		s.q.addError(GraphQLError{Message: fmt.Sprintf("Unknown type: %s", namedType), Path: path})
		return nil, nil
	}

	switch typeObj.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		serialized, err := s.runtime().SerializeLeafValue(s.context, namedType, result)
		if err != nil {
			s.q.addError(GraphQLError{Message: err.Error(), Path: path})
			return nil, nil
		}
		return serialized, nil
	case schema.TypeKindObject:
		return s.completeObjectValue(typeObj, fields, result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return s.completeAbstractValue(namedType, fields, result, path)
	default:
		s.q.addError(GraphQLError{Message: fmt.Sprintf("Cannot complete value of unexpected type: %s", typeObj.Kind), Path: path})
		return nil, nil
	}
}

// completeListValue completes a list value. Items may be deferred.
func (s *executionState) completeListValue(listType *schema.TypeRef, fields []*language.Field, result any, path Path, info *ResolveInfo) (any, error) {
	var items []any
	if direct, ok := result.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			s.q.addError(GraphQLError{Message: fmt.Sprintf("Expected list value, got %T", result), Path: path})
			return nil, nil
		}
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := schema.Unwrap(listType)
	completed := make([]any, len(items))
	for i, item := range items {
		v, err := s.completeValue(inner, fields, item, appendPath(path, i), info)
		if err != nil {
			return nil, err
		}
		if v == pending {
			continue
		}
		if schema.IsNonNull(inner) && isNullish(v) {
			// the list becomes null; items deferred so far must not write
			s.q.markNullified(path)
			return nil, nil
		}
		completed[i] = v
	}
	return completed, nil
}

func (s *executionState) completeObjectValue(objectType *schema.Type, fields []*language.Field, result any, path Path) (any, error) {
	m, err := s.executeSelectionSet(objectType, fields, result, path)
	if err != nil || m == nil {
		return nil, err
	}
	return m, nil
}

func (s *executionState) completeAbstractValue(abstractTypeName string, fields []*language.Field, result any, path Path) (any, error) {
	typeName, err := s.runtime().ResolveType(s.context, abstractTypeName, result)
	if err != nil {
		s.q.addError(GraphQLError{Message: err.Error(), Path: path})
		return nil, nil
	}
	objectType := s.q.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		s.q.addError(GraphQLError{Message: fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractTypeName, typeName), Path: path})
		return nil, nil
	}
	return s.completeObjectValue(objectType, fields, result, path)
}

// deferValue queues l on the multiplex at the depth of path. Once forced,
// its value is completed and written into the response tree.
func (s *executionState) deferValue(fieldType *schema.TypeRef, fields []*language.Field, l *lazy.Lazy, path Path, info *ResolveInfo) {
	q := s.q
	s.m.buckets.Add(len(path), lazy.NewResult(func() lazy.Result {
		if q.isFailed() {
			return lazy.Skip()
		}
		r := l.Resolve()
		var value any
		switch r.Kind() {
		case lazy.KindSkip:
			q.omit(path)
			return r
		case lazy.KindError:
			recovered, fatal := s.rescueError(info, path, r.Err())
			if fatal != nil {
				return lazy.Fail(fatal)
			}
			value = recovered
		default:
			value = r.Value()
		}
		completed, err := s.completeValue(fieldType, fields, value, path, info)
		if err != nil {
			return lazy.Fail(err)
		}
		s.place(path, fieldType, completed)
		return lazy.Ok(nil)
	}))
}

// place writes a completed value into the response tree, propagating a
// Non-Null violation to the nearest nullable ancestor.
func (s *executionState) place(path Path, fieldType *schema.TypeRef, v any) {
	switch {
	case v == pending:
		// written by its own deferred value
	case v == omitted:
		s.q.omit(path)
	case isNullish(v) && schema.IsNonNull(fieldType):
		s.q.nullAt(path)
	case isNullish(v):
		s.q.write(path, nil)
	default:
		s.q.write(path, v)
	}
}
