package rescue

import (
	"errors"
	"fmt"
)

// Class is a node in a single-inheritance error class hierarchy. Handlers are
// registered per class and match every subclass.
type Class struct {
	name   string
	parent *Class
}

// StandardError is the root of the hierarchy and the class of every error
// that does not name one.
var StandardError = &Class{name: "StandardError"}

// NewClass declares a subclass of parent. A nil parent means StandardError.
func NewClass(name string, parent *Class) *Class {
	if parent == nil {
		parent = StandardError
	}
	return &Class{name: name, parent: parent}
}

func (c *Class) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

func (c *Class) Parent() *Class {
	if c == nil {
		return nil
	}
	return c.parent
}

func (c *Class) String() string { return c.Name() }

// IsA reports whether c is other or one of its descendants.
func (c *Class) IsA(other *Class) bool {
	for k := c; k != nil; k = k.parent {
		if k == other {
			return true
		}
	}
	return false
}

// Classified is implemented by errors that belong to a Class.
type Classified interface {
	error
	ErrorClass() *Class
}

// ClassOf returns the class of the first Classified error in err's chain,
// or StandardError. A nil error has no class.
func ClassOf(err error) *Class {
	if err == nil {
		return nil
	}
	var c Classified
	if errors.As(err, &c) {
		if class := c.ErrorClass(); class != nil {
			return class
		}
	}
	return StandardError
}

// Error is a plain error carrying a Class.
type Error struct {
	Class   *Class
	Message string
	Err     error
}

// Errorf creates an error of the given class. A %w verb is unwrapped.
func Errorf(class *Class, format string, args ...any) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Class: class, Message: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

func (e *Error) Error() string      { return e.Message }
func (e *Error) Unwrap() error      { return e.Err }
func (e *Error) ErrorClass() *Class { return e.Class }
