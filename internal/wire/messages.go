package wire

// This file defines the logical message variants named in spec.md §6.
// Each corresponds 1:1 to an RPC method or transaction-stream variant;
// field sets are intentionally minimal — payload concepts/values are
// carried as opaque JSON per spec.md §1 ("opaque payloads that the
// core carries but does not interpret beyond minimal field access").

// --- Connection ---

type ConnectionOpenReq struct {
	DriverLang    string `json:"driver_lang"`
	DriverVersion string `json:"driver_version"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

type ConnectionOpenRes struct {
	ConnectionID         string   `json:"connection_id"`
	ServerDurationMillis int64    `json:"server_duration_millis"`
	Databases            []string `json:"databases"`
}

type ServersAllReq struct{}

type ServersAllRes struct {
	Servers []string `json:"servers"`
}

// --- Databases ---

type DatabasesContainsReq struct{ Name string `json:"name"` }
type DatabasesContainsRes struct{ Contains bool `json:"contains"` }

type DatabaseGetReq struct{ Name string `json:"name"` }
type DatabaseGetRes struct{ Database ClusterDatabase `json:"database"` }

type DatabasesAllReq struct{}
type DatabasesAllRes struct{ Databases []ClusterDatabase `json:"databases"` }

type DatabaseCreateReq struct{ Name string `json:"name"` }
type DatabaseCreateRes struct{}

type DatabaseDeleteReq struct{ Name string `json:"name"` }
type DatabaseDeleteRes struct{}

type DatabaseSchemaReq struct{ Name string `json:"name"` }
type DatabaseSchemaRes struct{ Schema string `json:"schema"` }

type DatabaseTypeSchemaReq struct{ Name string `json:"name"` }
type DatabaseTypeSchemaRes struct{ Schema string `json:"schema"` }

// ClusterDatabase is the directory entry the server reports for a
// database, including its replica set.
type ClusterDatabase struct {
	Name     string            `json:"name"`
	Replicas []ReplicaMetadata `json:"replicas"`
}

// ReplicaMetadata mirrors spec.md §3 "Replica".
type ReplicaMetadata struct {
	Address    string `json:"address"`
	Primary    bool   `json:"primary"`
	Term       int64  `json:"term"`
	Preferred  bool   `json:"preferred"`
}

// --- Migration (import/export) ---

type ExportSchemaPart struct{ Schema string `json:"schema"` }
type ExportItemsPart struct{ Items [][]byte `json:"items"` }
type ExportDone struct{}

type ImportInitial struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
}
type ImportItems struct{ Items [][]byte `json:"items"` }
type ImportDone struct{}
type ImportCompletion struct{}

// --- Users ---

type UsersAllReq struct{}
type UserInfo struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
}
type UsersAllRes struct{ Users []UserInfo `json:"users"` }

type UsersContainsReq struct{ Name string `json:"name"` }
type UsersContainsRes struct{ Contains bool `json:"contains"` }

type UsersCreateReq struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}
type UsersCreateRes struct{}

type UsersUpdateReq struct {
	Name        string `json:"name"`
	NewPassword string `json:"new_password"`
}
type UsersUpdateRes struct{}

type UsersDeleteReq struct{ Name string `json:"name"` }
type UsersDeleteRes struct{}

type UsersGetReq struct{ Name string `json:"name"` }
type UsersGetRes struct{ User *UserInfo `json:"user"` }

// --- Transactions ---

// TransactionType mirrors spec.md §3.
type TransactionType int

const (
	Read TransactionType = iota
	Write
	Schema
)

// TransactionOpenReq opens a fresh bidirectional transaction stream.
type TransactionOpenReq struct {
	Database                 string          `json:"database"`
	Type                     TransactionType `json:"type"`
	TransactionTimeoutMillis int64           `json:"transaction_timeout_millis"`
	SchemaLockTimeoutMillis  int64           `json:"schema_lock_timeout_millis"`
}

type TransactionOpenRes struct {
	ServerDurationMillis int64 `json:"server_duration_millis"`
}

type QueryReq struct {
	Query                string `json:"query"`
	IncludeInstanceTypes bool   `json:"include_instance_types"`
	AnswerSizeLimit      *int   `json:"answer_size_limit,omitempty"`
}

// QueryType classifies the kind of answer a query produced.
type QueryType int

const (
	QueryTypeOk QueryType = iota
	QueryTypeRowStream
	QueryTypeDocumentStream
)

type QueryInitialRes struct {
	QueryType   QueryType `json:"query_type"`
	ColumnNames []string  `json:"column_names,omitempty"`
}

type QueryResPart struct {
	// Rows holds zero or more rows, each itself one raw Concept payload
	// per column (column order matches QueryInitialRes.ColumnNames).
	// Documents holds raw JSON documents, one per element. Exactly one
	// of Rows/Documents is populated per part, matching which
	// QueryType the initial response declared.
	Rows      [][][]byte `json:"rows,omitempty"`
	Documents [][]byte   `json:"documents,omitempty"`
}

type AnalyzeReq struct{ Query string `json:"query"` }
type AnalyzeRes struct {
	ParsedQuery string `json:"parsed_query"`
	TypeAnnotations []byte `json:"type_annotations"`
}

type CommitReq struct{}
type CommitRes struct{}

type RollbackReq struct{}
type RollbackRes struct{}

// StreamState distinguishes a streamed response part that is done from
// one awaiting an explicit continuation (spec.md §4.G).
type StreamState int

const (
	StreamContinue StreamState = iota
	StreamDone
)

// TransactionReqKind tags which variant a TransactionReq carries.
type TransactionReqKind int

const (
	ReqOpen TransactionReqKind = iota
	ReqCommit
	ReqRollback
	ReqQuery
	ReqAnalyze
	ReqStream
)

// TransactionReq is one client->server message multiplexed over the
// transaction's single bidirectional RPC, tagged with its RequestID.
type TransactionReq struct {
	RequestID RequestID          `json:"request_id"`
	Kind      TransactionReqKind `json:"kind"`

	Open     *TransactionOpenReq `json:"open,omitempty"`
	Query    *QueryReq           `json:"query,omitempty"`
	Analyze  *AnalyzeReq         `json:"analyze,omitempty"`
	Commit   *CommitReq          `json:"commit,omitempty"`
	Rollback *RollbackReq        `json:"rollback,omitempty"`
	// Stream carries no payload: it is a pure continuation token.
}

// TransactionClientMsg is the grouped outbound message the batching
// dispatcher emits (spec.md §4.G outbound path).
type TransactionClientMsg struct {
	Reqs []TransactionReq `json:"reqs"`
}

// TransactionResKind tags which variant a TransactionRes carries.
type TransactionResKind int

const (
	ResOpen TransactionResKind = iota
	ResCommit
	ResRollback
	ResQueryInitial
	ResQueryPart
	ResAnalyze
	ResErrorKind
)

// TransactionRes is one server->client one-shot response (spec.md
// §4.G "Res").
type TransactionRes struct {
	RequestID RequestID          `json:"request_id"`
	Kind      TransactionResKind `json:"kind"`

	Open         *TransactionOpenRes `json:"open,omitempty"`
	QueryInitial *QueryInitialRes    `json:"query_initial,omitempty"`
	Analyze      *AnalyzeRes         `json:"analyze,omitempty"`
	Error        *ServerErrorInfo    `json:"error,omitempty"`
}

// TransactionResPart is one server->client streamed fragment (spec.md
// §4.G "ResPart").
type TransactionResPart struct {
	RequestID RequestID    `json:"request_id"`
	State     StreamState  `json:"state"`
	Part      *QueryResPart `json:"part,omitempty"`
}

// TransactionServerMsg is one message read off the bidirectional
// response stream: exactly one of Res/ResPart is set.
type TransactionServerMsg struct {
	Res     *TransactionRes     `json:"res,omitempty"`
	ResPart *TransactionResPart `json:"res_part,omitempty"`
}

// ServerErrorInfo is the opaque passthrough server error (spec.md §7
// "Server errors").
type ServerErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
