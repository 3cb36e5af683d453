package demo

import (
	"context"
	"fmt"

	dataloader "github.com/hanpama/lazygraph/internal/dataloader"
	executor "github.com/hanpama/lazygraph/internal/executor"
	introspection "github.com/hanpama/lazygraph/internal/introspection"
	rescue "github.com/hanpama/lazygraph/internal/rescue"
	schema "github.com/hanpama/lazygraph/internal/schema"
	subscriptions "github.com/hanpama/lazygraph/internal/subscriptions"
)

// Loader names, shared by every query of a multiplex.
const (
	bookLoader          = "demo.books"
	authorLoader        = "demo.authors"
	booksByAuthorLoader = "demo.booksByAuthor"
)

// NotFound is the class of lookups for records the library does not hold.
var NotFound = rescue.NewClass("NotFound", nil)

// Runtime resolves the demo schema against a Library.
type Runtime struct {
	lib *Library
}

var _ executor.Runtime = (*Runtime)(nil)

func NewRuntime(lib *Library) *Runtime { return &Runtime{lib: lib} }

func (r *Runtime) ResolveField(ctx context.Context, info executor.ResolveInfo) (any, error) {
	switch info.ObjectType.Name {
	case "Query":
		return r.resolveQuery(ctx, info)
	case "Mutation":
		if info.Field.Name == "addBook" {
			return r.lib.AddBook(ctx, info.Args["title"].(string), info.Args["genre"].(string), info.Args["authorId"].(string))
		}
	case "Subscription":
		if info.Field.Name == "bookAdded" {
			// the triggering book; nothing when the subscription is first executed
			if b, ok := info.Source.(*Book); ok {
				return b, nil
			}
			return nil, nil
		}
	case "Book":
		return r.resolveBook(ctx, info)
	case "Author":
		return r.resolveAuthor(ctx, info)
	case "Shelf":
		shelf := info.Source.(*Shelf)
		switch info.Field.Name {
		case "count":
			return shelf.Count, nil
		case "books":
			return shelf.Books, nil
		}
	}
	return nil, fmt.Errorf("no resolver for %s.%s", info.ObjectType.Name, info.Field.Name)
}

func (r *Runtime) resolveQuery(ctx context.Context, info executor.ResolveInfo) (any, error) {
	switch info.Field.Name {
	case "book":
		id := info.Args["id"].(string)
		return r.books(ctx, info).Load(id).Then(func(v any) (any, error) {
			if v.(*Book) == nil {
				return nil, rescue.Errorf(NotFound, "book %s not found", id)
			}
			return v, nil
		}), nil
	case "books":
		genre, _ := info.Args["genre"].(string)
		return r.lib.Books(genre), nil
	case "author":
		id := info.Args["id"].(string)
		return r.authors(ctx, info).Load(id).Then(func(v any) (any, error) {
			if v.(*Author) == nil {
				return nil, rescue.Errorf(NotFound, "author %s not found", id)
			}
			return v, nil
		}), nil
	case "search":
		return r.lib.Search(info.Args["term"].(string)), nil
	case "shelf":
		all := r.lib.Books("")
		shelf := &Shelf{Count: len(all)}
		if info.Lookahead.Selects("books") {
			r.lib.record("demo.shelf", nil)
			shelf.Books = all
		}
		return shelf, nil
	}
	return nil, fmt.Errorf("no resolver for Query.%s", info.Field.Name)
}

func (r *Runtime) resolveBook(ctx context.Context, info executor.ResolveInfo) (any, error) {
	b := info.Source.(*Book)
	switch info.Field.Name {
	case "id":
		return b.ID, nil
	case "title":
		return b.Title, nil
	case "genre":
		return b.Genre, nil
	case "author":
		return r.authors(ctx, info).Load(b.AuthorID), nil
	}
	return nil, fmt.Errorf("no resolver for Book.%s", info.Field.Name)
}

func (r *Runtime) resolveAuthor(ctx context.Context, info executor.ResolveInfo) (any, error) {
	a := info.Source.(*Author)
	switch info.Field.Name {
	case "id":
		return a.ID, nil
	case "name":
		return a.Name, nil
	case "books":
		return dataloader.Source(ctx, info.Dataloader, booksByAuthorLoader, r.lib.fetchBooksByAuthor).Load(a.ID), nil
	}
	return nil, fmt.Errorf("no resolver for Author.%s", info.Field.Name)
}

func (r *Runtime) books(ctx context.Context, info executor.ResolveInfo) *dataloader.Loader[string, *Book] {
	return dataloader.Source(ctx, info.Dataloader, bookLoader, r.lib.fetchBooks)
}

func (r *Runtime) authors(ctx context.Context, info executor.ResolveInfo) *dataloader.Loader[string, *Author] {
	return dataloader.Source(ctx, info.Dataloader, authorLoader, r.lib.fetchAuthors)
}

func (r *Runtime) ResolveType(_ context.Context, abstractType string, value any) (string, error) {
	switch value.(type) {
	case *Book:
		return "Book", nil
	case *Author:
		return "Author", nil
	}
	return "", fmt.Errorf("cannot resolve %s for %T", abstractType, value)
}

func (r *Runtime) SerializeLeafValue(_ context.Context, typeName string, value any) (any, error) {
	switch v := value.(type) {
	case string, bool, int, float64:
		return v, nil
	}
	return nil, fmt.Errorf("cannot serialize %T as %s", value, typeName)
}

// NewExecutor builds an executor serving lib. Introspection is answered,
// NotFound errors become located errors, and subscriptions are kept on reg
// and re-executed when a book is added, each update passed to deliver.
func NewExecutor(lib *Library, reg *subscriptions.Registry, deliver func(subscriptions.Update), opts ...executor.Option) (*executor.Executor, error) {
	sch, err := schema.BuildFromSDL(SDL)
	if err != nil {
		return nil, err
	}
	rt, sch := introspection.Wrap(NewRuntime(lib), sch)
	if reg != nil {
		opts = append([]executor.Option{executor.WithSubscriptions(reg)}, opts...)
	}
	exec := executor.NewExecutor(rt, sch, opts...)
	exec.RescueFrom(NotFound, func(_ context.Context, err error, _ rescue.Info) (any, error) {
		return nil, executor.NewExecutionError("%w", err).WithExtension("code", "NOT_FOUND")
	})

	if reg != nil {
		lib.mu.Lock()
		lib.onBookAdded = func(ctx context.Context, b *Book) {
			for _, args := range []map[string]any{nil, {"genre": b.Genre}} {
				// a failed trigger is reported by the multiplex events
				updates, _ := reg.Trigger(ctx, exec, "bookAdded", args, b)
				if deliver != nil {
					for _, u := range updates {
						deliver(u)
					}
				}
			}
		}
		lib.mu.Unlock()
	}
	return exec, nil
}
