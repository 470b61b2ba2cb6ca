// Package transaction implements the Transaction facade (spec.md
// §4.L): a thin, exclusively-owning wrapper over one
// transmitter.TransactionTransmitter that submits queries, analyze
// requests, commit, and rollback as multiplexed exchanges and
// translates their responses into answer.QueryAnswer values.
package transaction

import (
	"context"
	"encoding/json"

	"github.com/redbco/typedriver/answer"
	"github.com/redbco/typedriver/errors"
	"github.com/redbco/typedriver/internal/sink"
	"github.com/redbco/typedriver/internal/transmitter"
	"github.com/redbco/typedriver/internal/wire"
	"github.com/redbco/typedriver/options"
)

// Type mirrors wire.TransactionType at the public surface (spec.md
// §3 "Transaction").
type Type = wire.TransactionType

const (
	Read   = wire.Read
	Write  = wire.Write
	Schema = wire.Schema
)

// Transaction is one open server-side transaction, backed by a
// dedicated bidirectional RPC multiplexed through a
// TransactionTransmitter. A Transaction owns its transmitter
// exclusively: nothing else holds a reference to it.
type Transaction struct {
	transactionType Type
	transmitter     *transmitter.TransactionTransmitter
}

// New wraps an just-opened transaction stream as a Transaction facade.
func New(open transmitter.OpenedTransaction, transactionType Type) *Transaction {
	return &Transaction{transactionType: transactionType, transmitter: open.Transmitter}
}

// IsOpen reports whether the transaction is still usable.
func (t *Transaction) IsOpen() bool {
	return t.transmitter.IsOpen()
}

// Type returns the transaction's type (Read, Write, or Schema).
func (t *Transaction) Type() Type {
	return t.transactionType
}

// OnClose registers a callback invoked exactly once with the terminal
// error when the transaction closes, whether by commit, ForceClose,
// or an underlying connection failure (spec.md §4.G
// "on_close").
func (t *Transaction) OnClose(callback func(error)) {
	t.transmitter.OnClose(callback)
}

// ForceClose abandons the transaction without committing or rolling
// back, failing any in-flight exchange. Idempotent.
func (t *Transaction) ForceClose() {
	t.transmitter.ForceClose()
}

// Query submits text for execution with default QueryOptions and
// returns its answer once the server has acknowledged the answer's
// shape; a row or document stream answer is then lazily consumed by
// ranging over answer.QueryAnswer.Rows()/.Documents() (spec.md §4.L
// "query resolves once the server has acknowledged the query type").
func (t *Transaction) Query(ctx context.Context, text string) (answer.QueryAnswer, error) {
	return t.QueryWithOptions(ctx, text, options.NewQueryOptions())
}

// QueryWithOptions is Query with an explicit QueryOptions override.
func (t *Transaction) QueryWithOptions(ctx context.Context, text string, opts options.QueryOptions) (answer.QueryAnswer, error) {
	req := wire.TransactionReq{
		RequestID: wire.NewRequestID(),
		Kind:      wire.ReqQuery,
		Query: &wire.QueryReq{
			Query:                text,
			IncludeInstanceTypes: opts.IncludeInstanceTypes,
			AnswerSizeLimit:      opts.AnswerSizeLimit,
		},
	}

	res, parts, err := t.transmitter.Query(ctx, req)
	if err != nil {
		return answer.QueryAnswer{}, err
	}
	if res.Kind != wire.ResQueryInitial || res.QueryInitial == nil {
		return answer.QueryAnswer{}, errors.New(errors.UnexpectedResponse, "query response carried kind %d, not query_initial", res.Kind)
	}

	initial := *res.QueryInitial
	switch initial.QueryType {
	case wire.QueryTypeOk:
		return answer.NewOk(answer.QueryType(initial.QueryType)), nil
	case wire.QueryTypeRowStream:
		header := answer.NewConceptRowHeader(initial.ColumnNames, answer.QueryType(initial.QueryType))
		return answer.NewRowStream(answer.QueryType(initial.QueryType), rowChannel(ctx, header, parts)), nil
	case wire.QueryTypeDocumentStream:
		return answer.NewDocumentStream(answer.QueryType(initial.QueryType), documentChannel(ctx, parts)), nil
	default:
		return answer.QueryAnswer{}, errors.New(errors.EnumOutOfBounds, "unrecognised query type %d", initial.QueryType)
	}
}

// rowChannel adapts the Streamed[QueryResPart] queue into a channel of
// decoded ConceptRows, consuming parts lazily as the caller ranges
// over it rather than buffering the whole answer up front.
func rowChannel(ctx context.Context, header *answer.ConceptRowHeader, parts *sink.Streamed[wire.QueryResPart]) <-chan answer.RowResult {
	out := make(chan answer.RowResult)
	go func() {
		defer close(out)
		for item := range parts.Items() {
			if item.Result == nil {
				// A bare Continue token never reaches here: the
				// transmitter resolves it internally by re-submitting
				// ReqStream before forwarding further data parts.
				continue
			}
			if item.Result.Err != nil {
				if !sendRow(ctx, out, answer.RowResult{Err: item.Result.Err}) {
					return
				}
				return
			}
			for _, rawRow := range item.Result.Value.Rows {
				row := &answer.ConceptRow{Header: header, Row: decodeRow(header, rawRow)}
				if !sendRow(ctx, out, answer.RowResult{Row: row}) {
					return
				}
			}
		}
	}()
	return out
}

func sendRow(ctx context.Context, out chan<- answer.RowResult, r answer.RowResult) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// decodeRow wraps one server-encoded row's per-column payloads as
// Concepts, leaving a column nil where the server sent no substitution
// for it. Concept decoding beyond this opaque wrap is out of scope
// (answer.Concept doc comment).
func decodeRow(header *answer.ConceptRowHeader, rawRow [][]byte) []*answer.Concept {
	row := make([]*answer.Concept, len(header.ColumnNames))
	for i, raw := range rawRow {
		if i >= len(row) || raw == nil {
			continue
		}
		row[i] = &answer.Concept{Raw: raw}
	}
	return row
}

func documentChannel(ctx context.Context, parts *sink.Streamed[wire.QueryResPart]) <-chan answer.DocumentResult {
	out := make(chan answer.DocumentResult)
	go func() {
		defer close(out)
		for item := range parts.Items() {
			if item.Result == nil {
				continue
			}
			if item.Result.Err != nil {
				sendDocument(ctx, out, answer.DocumentResult{Err: item.Result.Err})
				return
			}
			for _, raw := range item.Result.Value.Documents {
				doc, err := decodeDocument(raw)
				if err != nil {
					sendDocument(ctx, out, answer.DocumentResult{Err: err})
					return
				}
				if !sendDocument(ctx, out, answer.DocumentResult{Document: doc}) {
					return
				}
			}
		}
	}()
	return out
}

// decodeDocument parses one server-encoded document as the standard
// encoding/json decode tree (answer.ConceptDocument doc comment).
func decodeDocument(raw []byte) (*answer.ConceptDocument, error) {
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, errors.Wrap(errors.UnexpectedResponseType, err, "failed to decode document answer")
	}
	return &answer.ConceptDocument{
		Header: &answer.ConceptDocumentHeader{Type: answer.QueryTypeDocumentStream},
		Root:   root,
	}, nil
}

func sendDocument(ctx context.Context, out chan<- answer.DocumentResult, r answer.DocumentResult) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// Analyze parses text without executing it, returning the server's
// parsed structure and inferred type annotations (spec.md §4.L
// "analyze"). Both fields are opaque to this package.
func (t *Transaction) Analyze(ctx context.Context, text string) (ParsedQuery, error) {
	req := wire.TransactionReq{
		RequestID: wire.NewRequestID(),
		Kind:      wire.ReqAnalyze,
		Analyze:   &wire.AnalyzeReq{Query: text},
	}
	res, err := t.transmitter.Single(ctx, req)
	if err != nil {
		return ParsedQuery{}, err
	}
	if res.Kind != wire.ResAnalyze || res.Analyze == nil {
		return ParsedQuery{}, errors.New(errors.UnexpectedResponse, "analyze response carried kind %d, not analyze", res.Kind)
	}
	return ParsedQuery{Text: res.Analyze.ParsedQuery, TypeAnnotations: res.Analyze.TypeAnnotations}, nil
}

// ParsedQuery is the opaque result of Analyze.
type ParsedQuery struct {
	Text            string
	TypeAnnotations []byte
}

// Commit commits the transaction. The Transaction is no longer usable
// afterwards, mirroring the original design's consuming commit()
// (spec.md §4.L); Go has no move semantics to enforce this at compile
// time, so callers are expected to discard the value themselves.
func (t *Transaction) Commit(ctx context.Context) error {
	req := wire.TransactionReq{RequestID: wire.NewRequestID(), Kind: wire.ReqCommit, Commit: &wire.CommitReq{}}
	res, err := t.transmitter.Single(ctx, req)
	if err != nil {
		return err
	}
	if res.Kind != wire.ResCommit {
		return errors.New(errors.UnexpectedResponse, "commit response carried kind %d, not commit", res.Kind)
	}
	return nil
}

// Rollback rolls back every uncommitted write in the transaction
// without closing it, mirroring the original's non-consuming
// rollback().
func (t *Transaction) Rollback(ctx context.Context) error {
	req := wire.TransactionReq{RequestID: wire.NewRequestID(), Kind: wire.ReqRollback, Rollback: &wire.RollbackReq{}}
	res, err := t.transmitter.Single(ctx, req)
	if err != nil {
		return err
	}
	if res.Kind != wire.ResRollback {
		return errors.New(errors.UnexpectedResponse, "rollback response carried kind %d, not rollback", res.Kind)
	}
	return nil
}
