// Package rescue maps errors raised by resolvers to recovery handlers.
//
// Handlers are stored in a trie ordered by the error class hierarchy: a
// class registered after one of its superclasses is placed below it, and a
// superclass registered after its subclasses adopts them. Lookup walks to
// the most specific registered ancestor of an error's class, so the result
// does not depend on registration order.
package rescue

import (
	"context"
	"sync"
)

// Info describes where a handled error was raised.
type Info struct {
	Path      []any
	FieldName string
	TypeName  string
	Source    any
}

// Handler recovers from an error. The returned value replaces the field's
// value; a returned error replaces the original error.
type Handler func(ctx context.Context, err error, info Info) (any, error)

type node struct {
	class    *Class
	handler  Handler
	children []*node
}

// Registry is a handler trie with an optional parent it inherits from.
type Registry struct {
	mu     sync.RWMutex
	root   node
	parent *Registry
}

// NewRegistry creates a registry. parent may be nil.
func NewRegistry(parent *Registry) *Registry {
	return &Registry{parent: parent}
}

// Extend returns a child registry that inherits r's handlers.
func (r *Registry) Extend() *Registry {
	return NewRegistry(r)
}

// Register installs handler for class. Registering a class again replaces
// its handler and keeps the classes already below it.
func (r *Registry) Register(class *Class, handler Handler) {
	if class == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	insert(&r.root, class, handler)
}

func insert(parent *node, class *Class, handler Handler) {
	for _, child := range parent.children {
		if child.class == class {
			child.handler = handler
			return
		}
		if class.IsA(child.class) {
			insert(child, class, handler)
			return
		}
	}
	n := &node{class: class, handler: handler}
	kept := parent.children[:0:0]
	for _, child := range parent.children {
		if child.class.IsA(class) {
			n.children = append(n.children, child)
		} else {
			kept = append(kept, child)
		}
	}
	parent.children = append(kept, n)
}

// Find returns the handler registered for class or its nearest registered
// ancestor, together with the class the handler was registered for. When
// both r and its parent match, the more specific registration wins; an
// equally specific one in r wins over the parent.
func (r *Registry) Find(class *Class) (Handler, *Class, bool) {
	if r == nil || class == nil {
		return nil, nil, false
	}
	r.mu.RLock()
	local := find(&r.root, class)
	r.mu.RUnlock()

	inheritedHandler, inheritedClass, inherited := r.parent.Find(class)
	switch {
	case local == nil && !inherited:
		return nil, nil, false
	case local == nil:
		return inheritedHandler, inheritedClass, true
	case !inherited:
		return local.handler, local.class, true
	}
	if inheritedClass != local.class && inheritedClass.IsA(local.class) {
		return inheritedHandler, inheritedClass, true
	}
	return local.handler, local.class, true
}

func find(n *node, class *Class) *node {
	for _, child := range n.children {
		if class.IsA(child.class) {
			if deeper := find(child, class); deeper != nil {
				return deeper
			}
			return child
		}
	}
	return nil
}

// FindForError classifies err and looks up its handler.
func (r *Registry) FindForError(err error) (Handler, bool) {
	h, _, ok := r.Find(ClassOf(err))
	return h, ok
}
