// Package demo is an in-memory library served by the lazygraph binary. Its
// runtime resolves books and authors through batched loaders, so the
// queries of one multiplex share their fetches.
package demo

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	rescue "github.com/hanpama/lazygraph/internal/rescue"
)

type Book struct {
	ID       string
	Title    string
	Genre    string
	AuthorID string
}

type Author struct {
	ID   string
	Name string
}

// Shelf is every book in the library. Books is only filled when the query
// selects it.
type Shelf struct {
	Count int
	Books []*Book
}

// Library is the store behind the demo runtime. It is safe for concurrent
// use.
type Library struct {
	mu      sync.RWMutex
	books   map[string]*Book
	authors map[string]*Author
	nextID  int

	// fetches records the keys of every batched fetch, per loader
	fetches map[string][][]string

	onBookAdded func(ctx context.Context, b *Book)
}

// NewLibrary returns a library holding a few books.
func NewLibrary() *Library {
	l := &Library{
		books:   make(map[string]*Book),
		authors: make(map[string]*Author),
		fetches: make(map[string][][]string),
		nextID:  1,
	}
	leGuin := l.addAuthor("Ursula K. Le Guin")
	beard := l.addAuthor("Mary Beard")
	calvino := l.addAuthor("Italo Calvino")
	l.insert("A Wizard of Earthsea", "FICTION", leGuin.ID)
	l.insert("The Dispossessed", "FICTION", leGuin.ID)
	l.insert("SPQR", "HISTORY", beard.ID)
	l.insert("Invisible Cities", "FICTION", calvino.ID)
	return l
}

func (l *Library) addAuthor(name string) *Author {
	a := &Author{ID: strconv.Itoa(len(l.authors) + 1), Name: name}
	l.authors[a.ID] = a
	return a
}

func (l *Library) insert(title, genre, authorID string) *Book {
	b := &Book{ID: strconv.Itoa(l.nextID), Title: title, Genre: genre, AuthorID: authorID}
	l.nextID++
	l.books[b.ID] = b
	return b
}

// AddBook stores a new book and notifies subscribers.
func (l *Library) AddBook(ctx context.Context, title, genre, authorID string) (*Book, error) {
	l.mu.Lock()
	if _, ok := l.authors[authorID]; !ok {
		l.mu.Unlock()
		return nil, rescue.Errorf(NotFound, "author %s not found", authorID)
	}
	b := l.insert(title, genre, authorID)
	notify := l.onBookAdded
	l.mu.Unlock()

	if notify != nil {
		notify(ctx, b)
	}
	return b, nil
}

// Books returns the books of genre, or every book when genre is empty,
// ordered by id.
func (l *Library) Books(genre string) []*Book {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Book, 0, len(l.books))
	for _, b := range l.books {
		if genre == "" || b.Genre == genre {
			out = append(out, b)
		}
	}
	sortBooks(out)
	return out
}

// Search returns the books and authors whose title or name contains term.
func (l *Library) Search(term string) []any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	term = strings.ToLower(term)
	var books []*Book
	for _, b := range l.books {
		if strings.Contains(strings.ToLower(b.Title), term) {
			books = append(books, b)
		}
	}
	sortBooks(books)
	var authors []*Author
	for _, a := range l.authors {
		if strings.Contains(strings.ToLower(a.Name), term) {
			authors = append(authors, a)
		}
	}
	sort.Slice(authors, func(i, j int) bool { return byID(authors[i].ID, authors[j].ID) })

	out := make([]any, 0, len(books)+len(authors))
	for _, b := range books {
		out = append(out, b)
	}
	for _, a := range authors {
		out = append(out, a)
	}
	return out
}

// Fetches returns the keys of every batched fetch made by loader.
func (l *Library) Fetches(loader string) [][]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([][]string, len(l.fetches[loader]))
	copy(out, l.fetches[loader])
	return out
}

func (l *Library) record(loader string, keys []string) {
	l.mu.Lock()
	l.fetches[loader] = append(l.fetches[loader], append([]string(nil), keys...))
	l.mu.Unlock()
}

func (l *Library) fetchBooks(_ context.Context, ids []string) ([]*Book, error) {
	l.record(bookLoader, ids)
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Book, len(ids))
	for i, id := range ids {
		out[i] = l.books[id]
	}
	return out, nil
}

func (l *Library) fetchAuthors(_ context.Context, ids []string) ([]*Author, error) {
	l.record(authorLoader, ids)
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Author, len(ids))
	for i, id := range ids {
		out[i] = l.authors[id]
	}
	return out, nil
}

func (l *Library) fetchBooksByAuthor(_ context.Context, authorIDs []string) ([][]*Book, error) {
	l.record(booksByAuthorLoader, authorIDs)
	l.mu.RLock()
	defer l.mu.RUnlock()
	index := make(map[string]int, len(authorIDs))
	for i, id := range authorIDs {
		index[id] = i
	}
	out := make([][]*Book, len(authorIDs))
	for _, b := range l.books {
		if i, ok := index[b.AuthorID]; ok {
			out[i] = append(out[i], b)
		}
	}
	for i := range out {
		if out[i] == nil {
			out[i] = []*Book{}
		}
		sortBooks(out[i])
	}
	return out, nil
}

func sortBooks(books []*Book) {
	sort.Slice(books, func(i, j int) bool { return byID(books[i].ID, books[j].ID) })
}

// byID orders numeric ids numerically.
func byID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
