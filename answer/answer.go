// Package answer implements the query-answer data model (spec.md §3,
// §4.O): the tagged QueryAnswer union, ConceptRow with O(1) column
// lookup, and the decoded JSON document tree, all backed by lazily
// consumed channels so a caller never buffers an entire result set.
package answer

// QueryType classifies what shape of answer a query produced.
type QueryType int

const (
	QueryTypeOk QueryType = iota
	QueryTypeRowStream
	QueryTypeDocumentStream
)

// Concept is an opaque per-column payload. Concept decoding is outside
// this module's scope (spec.md §1); callers that need structured
// access parse Raw themselves against whatever concept schema the
// server speaks.
type Concept struct {
	Raw []byte
}

// ConceptRowHeader is shared by every row in one query's stream: the
// column names (in the order the server reported them) and the
// query's type.
type ConceptRowHeader struct {
	ColumnNames []string
	Type        QueryType

	index map[string]int
}

// NewConceptRowHeader builds a header with its column-name index
// precomputed once, so ConceptRow.Get is O(1) rather than a per-call
// linear scan (spec.md §4.O "Get is O(1)").
func NewConceptRowHeader(columnNames []string, queryType QueryType) *ConceptRowHeader {
	index := make(map[string]int, len(columnNames))
	for i, name := range columnNames {
		if _, exists := index[name]; !exists {
			index[name] = i
		}
	}
	return &ConceptRowHeader{ColumnNames: columnNames, Type: queryType, index: index}
}

func (h *ConceptRowHeader) indexOf(name string) (int, bool) {
	i, ok := h.index[name]
	return i, ok
}

// ConceptRow is one row of concepts substituted for the query's
// variables. A nil entry means that variable had no substitution in
// this particular answer.
type ConceptRow struct {
	Header *ConceptRowHeader
	Row    []*Concept
}

// ColumnNames returns the row's column names, shared by every row in
// the stream.
func (r *ConceptRow) ColumnNames() []string { return r.Header.ColumnNames }

// QueryType returns the query's type, shared by every row in the
// stream.
func (r *ConceptRow) QueryType() QueryType { return r.Header.Type }

// Get retrieves the concept bound to columnName, if any.
func (r *ConceptRow) Get(columnName string) (*Concept, bool) {
	i, ok := r.Header.indexOf(columnName)
	if !ok {
		return nil, false
	}
	return r.GetIndex(i)
}

// GetIndex retrieves the concept at columnIndex, if any.
func (r *ConceptRow) GetIndex(columnIndex int) (*Concept, bool) {
	if columnIndex < 0 || columnIndex >= len(r.Row) {
		return nil, false
	}
	c := r.Row[columnIndex]
	return c, c != nil
}

// Concepts returns every non-empty concept in the row, in column
// order.
func (r *ConceptRow) Concepts() []*Concept {
	out := make([]*Concept, 0, len(r.Row))
	for _, c := range r.Row {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// ConceptDocumentHeader is shared by every document in one query's
// stream.
type ConceptDocumentHeader struct {
	Type QueryType
}

// ConceptDocument is one decoded JSON document answer. Root holds the
// standard encoding/json decode tree (map[string]any, []any, string,
// float64, bool, or nil) rather than a hand-rolled JSON enum, since
// the wire stand-in already carries documents as JSON.
type ConceptDocument struct {
	Header *ConceptDocumentHeader
	Root   any
}

// RowResult is one element of a row stream: exactly one of Row/Err is
// meaningful.
type RowResult struct {
	Row *ConceptRow
	Err error
}

// DocumentResult is one element of a document stream: exactly one of
// Document/Err is meaningful.
type DocumentResult struct {
	Document *ConceptDocument
	Err      error
}

// QueryAnswer is the tagged union a query execution produces (spec.md
// §3 "QueryAnswer"): a bare acknowledgement, or a lazily iterated
// stream of rows or documents. The original panics on a mismatched
// accessor; this realization instead returns Go's usual (value, ok)
// shape, since panicking on a caller's type confusion is not
// idiomatic Go.
type QueryAnswer struct {
	queryType QueryType
	rows      <-chan RowResult
	documents <-chan DocumentResult
}

// NewOk constructs a bare Ok answer.
func NewOk(queryType QueryType) QueryAnswer {
	return QueryAnswer{queryType: queryType}
}

// NewRowStream constructs a row-stream answer backed by rows.
func NewRowStream(queryType QueryType, rows <-chan RowResult) QueryAnswer {
	return QueryAnswer{queryType: queryType, rows: rows}
}

// NewDocumentStream constructs a document-stream answer backed by documents.
func NewDocumentStream(queryType QueryType, documents <-chan DocumentResult) QueryAnswer {
	return QueryAnswer{queryType: queryType, documents: documents}
}

// Type returns the executed query's type, shared by every element of
// a stream answer.
func (a QueryAnswer) Type() QueryType { return a.queryType }

// IsOk reports whether the answer is a bare acknowledgement.
func (a QueryAnswer) IsOk() bool { return a.rows == nil && a.documents == nil }

// IsRowStream reports whether the answer is a row stream.
func (a QueryAnswer) IsRowStream() bool { return a.rows != nil }

// IsDocumentStream reports whether the answer is a document stream.
func (a QueryAnswer) IsDocumentStream() bool { return a.documents != nil }

// Rows returns the row channel, if this answer is a row stream.
func (a QueryAnswer) Rows() (<-chan RowResult, bool) { return a.rows, a.rows != nil }

// Documents returns the document channel, if this answer is a document stream.
func (a QueryAnswer) Documents() (<-chan DocumentResult, bool) { return a.documents, a.documents != nil }
