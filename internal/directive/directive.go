// Package directive evaluates the built-in @skip and @include directives.
package directive

import (
	language "github.com/hanpama/lazygraph/internal/language"
	values "github.com/hanpama/lazygraph/internal/values"
)

// Included reports whether a node carrying directives should be part of the
// response. The first @skip(if: true) or @include(if: false) excludes it.
// Other directives are ignored.
func Included(directives language.DirectiveList, variables map[string]any) bool {
	for _, d := range directives {
		switch d.Name {
		case "skip":
			if v, ok := ifArgument(d, variables); ok && v {
				return false
			}
		case "include":
			if v, ok := ifArgument(d, variables); ok && !v {
				return false
			}
		}
	}
	return true
}

// ifArgument reads the boolean `if` argument. A missing argument or a value
// that is not a boolean leaves the directive without effect.
func ifArgument(d *language.Directive, variables map[string]any) (bool, bool) {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false, false
	}
	b, ok := values.FromAST(arg.Value, variables).(bool)
	return b, ok
}
