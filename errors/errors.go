// Package errors defines the error taxonomy shared by every component
// of the driver: connection errors, internal (bug) errors, migration
// errors, and opaque server errors.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error into one of the taxonomy buckets from the
// driver specification. The zero value is never produced by this
// package.
type Kind int

const (
	_ Kind = iota

	// Connection errors.
	RPCMethodUnavailable
	ConnectionClosed
	SessionClosed
	TransactionIsClosed
	TransactionIsClosedWithErrors
	DatabaseDoesNotExist
	MissingResponseField
	UnknownRequestId
	UnexpectedResponse
	ServerConnectionFailed
	NoPrimaryReplica
	CloudReplicaNotPrimary
	CloudTokenCredentialInvalid
	MissingPort
	SchemeTlsSettingsMismatch
	BrokenPipe
	UnexpectedConnectionClose

	// Internal errors: a bug or contract violation, never retried.
	RecvError
	SendError
	UnexpectedRequestType
	UnexpectedResponseType
	EnumOutOfBounds

	// Migration errors.
	CannotExportToTheSameFile
	CannotCreateExportFile
	CannotOpenImportFile
	CannotEncodeExportedConcept
	CannotDecodeImportedConcept

	// Server errors: opaque passthrough, parsed minimally for routing.
	ServerError

	// TypeQL (external parser) errors: passthrough.
	QueryError
)

var kindNames = map[Kind]string{
	RPCMethodUnavailable:          "RPCMethodUnavailable",
	ConnectionClosed:              "ConnectionClosed",
	SessionClosed:                 "SessionClosed",
	TransactionIsClosed:           "TransactionIsClosed",
	TransactionIsClosedWithErrors: "TransactionIsClosedWithErrors",
	DatabaseDoesNotExist:          "DatabaseDoesNotExist",
	MissingResponseField:          "MissingResponseField",
	UnknownRequestId:              "UnknownRequestId",
	UnexpectedResponse:            "UnexpectedResponse",
	ServerConnectionFailed:        "ServerConnectionFailed",
	NoPrimaryReplica:              "NoPrimaryReplica",
	CloudReplicaNotPrimary:        "CloudReplicaNotPrimary",
	CloudTokenCredentialInvalid:   "CloudTokenCredentialInvalid",
	MissingPort:                   "MissingPort",
	SchemeTlsSettingsMismatch:     "SchemeTlsSettingsMismatch",
	BrokenPipe:                    "BrokenPipe",
	UnexpectedConnectionClose:     "UnexpectedConnectionClose",
	RecvError:                     "RecvError",
	SendError:                     "SendError",
	UnexpectedRequestType:         "UnexpectedRequestType",
	UnexpectedResponseType:        "UnexpectedResponseType",
	EnumOutOfBounds:               "EnumOutOfBounds",
	CannotExportToTheSameFile:     "CannotExportToTheSameFile",
	CannotCreateExportFile:        "CannotCreateExportFile",
	CannotOpenImportFile:          "CannotOpenImportFile",
	CannotEncodeExportedConcept:   "CannotEncodeExportedConcept",
	CannotDecodeImportedConcept:   "CannotDecodeImportedConcept",
	ServerError:                   "ServerError",
	QueryError:                    "QueryError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UnknownKind"
}

// Error is the concrete error type returned by every component in this
// module. It carries a Kind for programmatic classification plus a
// human-readable detail string, and optionally wraps an underlying
// cause (e.g. a transport error).
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns a stable short string for programmatic matching,
// independent of Detail formatting.
func (e *Error) Code() string { return e.Kind.String() }

// New constructs an Error of the given kind with a formatted detail.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsConnectClass reports whether err represents a failure to reach a
// replica at all (as opposed to the replica responding with an
// application-level error). These are retried against the next
// replica by the failsafe dispatcher.
func IsConnectClass(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	switch k {
	case ServerConnectionFailed, ConnectionClosed, BrokenPipe, UnexpectedConnectionClose, RPCMethodUnavailable:
		return true
	default:
		return false
	}
}

// IsReplicaNotPrimary reports whether err signals that the dispatcher
// picked a non-primary replica for a primary-only operation.
func IsReplicaNotPrimary(err error) bool {
	return Is(err, CloudReplicaNotPrimary)
}

// IsRecoverable implements the propagation policy from the spec:
// ReplicaNotPrimary and Connect-class errors are recovered locally by
// the failsafe dispatcher; everything else must be surfaced to the
// caller.
func IsRecoverable(err error) bool {
	return IsReplicaNotPrimary(err) || IsConnectClass(err)
}

// IsInternal reports whether err represents a programming/contract
// violation rather than a recoverable network condition.
func IsInternal(err error) bool {
	switch k, ok := KindOf(err); {
	case !ok:
		return false
	default:
		switch k {
		case RecvError, SendError, UnexpectedRequestType, UnexpectedResponseType, EnumOutOfBounds:
			return true
		default:
			return false
		}
	}
}
