package demo

// SDL is the schema of the demo library.
const SDL = `
type Query {
  book(id: ID!): Book
  books(genre: Genre): [Book!]!
  author(id: ID!): Author
  search(term: String!): [SearchResult!]!
  "Resolves its books only when they are selected."
  shelf: Shelf! @lookahead
}

type Mutation {
  addBook(title: String!, authorId: ID!, genre: Genre!): Book!
}

type Subscription {
  bookAdded(genre: Genre): Book
}

enum Genre {
  FICTION
  HISTORY
  SCIENCE
}

interface Node {
  id: ID!
}

type Book implements Node {
  id: ID!
  title: String!
  genre: Genre!
  author: Author
}

type Author implements Node {
  id: ID!
  name: String!
  books: [Book!]! @complexity(value: 5)
}

type Shelf {
  count: Int!
  books: [Book!]!
}

union SearchResult = Book | Author
`
