package answer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOkAnswer(t *testing.T) {
	a := NewOk(QueryTypeOk)
	assert.True(t, a.IsOk())
	assert.False(t, a.IsRowStream())
	assert.False(t, a.IsDocumentStream())
	_, ok := a.Rows()
	assert.False(t, ok)
}

func TestConceptRowGetByNameAndIndex(t *testing.T) {
	header := NewConceptRowHeader([]string{"x", "y"}, QueryTypeRowStream)
	row := &ConceptRow{Header: header, Row: []*Concept{{Raw: []byte("p1")}, nil}}

	c, ok := row.Get("x")
	require.True(t, ok)
	assert.Equal(t, []byte("p1"), c.Raw)

	_, ok = row.Get("y")
	assert.False(t, ok, "nil substitution reports not-found")

	_, ok = row.Get("z")
	assert.False(t, ok, "unknown column reports not-found")

	assert.Equal(t, []string{"x", "y"}, row.ColumnNames())
	assert.Equal(t, QueryTypeRowStream, row.QueryType())
}

func TestConceptRowConceptsSkipsNil(t *testing.T) {
	header := NewConceptRowHeader([]string{"x", "y", "z"}, QueryTypeRowStream)
	row := &ConceptRow{Header: header, Row: []*Concept{{Raw: []byte("a")}, nil, {Raw: []byte("b")}}}
	assert.Len(t, row.Concepts(), 2)
}

func TestConceptRowHeaderFirstDuplicateColumnWins(t *testing.T) {
	header := NewConceptRowHeader([]string{"x", "x"}, QueryTypeRowStream)
	row := &ConceptRow{Header: header, Row: []*Concept{{Raw: []byte("first")}, {Raw: []byte("second")}}}
	c, ok := row.Get("x")
	require.True(t, ok)
	assert.Equal(t, []byte("first"), c.Raw)
}

func TestRowStreamAnswerYieldsUntilChannelClose(t *testing.T) {
	ch := make(chan RowResult, 2)
	ch <- RowResult{Row: &ConceptRow{Header: NewConceptRowHeader(nil, QueryTypeRowStream)}}
	ch <- RowResult{Err: errors.New("boom")}
	close(ch)

	a := NewRowStream(QueryTypeRowStream, ch)
	require.True(t, a.IsRowStream())
	rows, ok := a.Rows()
	require.True(t, ok)

	var n int
	var lastErr error
	for r := range rows {
		n++
		lastErr = r.Err
	}
	assert.Equal(t, 2, n)
	assert.Error(t, lastErr)
}

func TestDocumentStreamAnswer(t *testing.T) {
	ch := make(chan DocumentResult, 1)
	ch <- DocumentResult{Document: &ConceptDocument{Root: map[string]any{"a": 1.0}}}
	close(ch)

	a := NewDocumentStream(QueryTypeDocumentStream, ch)
	require.True(t, a.IsDocumentStream())
	docs, ok := a.Documents()
	require.True(t, ok)

	var n int
	for range docs {
		n++
	}
	assert.Equal(t, 1, n)
}
