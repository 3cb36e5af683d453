package executor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	language "github.com/hanpama/lazygraph/internal/language"
	schema "github.com/hanpama/lazygraph/internal/schema"
)

const librarySDL = `
type Query {
  a: String
  b: String
  boom: String
  book(id: ID!): Book
  books: [Book!]
  search: [SearchResult!]!
  shelf: Shelf
}

type Mutation {
  inc: Int!
}

type Subscription {
  bookAdded(genre: Genre): Book
}

enum Genre { FICTION HISTORY }

type Shelf {
  name: String
  books: [Book!]!
}

type Book {
  id: ID!
  title: String!
  subtitle: String
  author: Author
}

type Author {
  name: String
  bio: String
}

union SearchResult = Book | Author
`

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

func mustLibrarySchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(librarySDL)
	require.NoError(t, err)
	return sch
}
