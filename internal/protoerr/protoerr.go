// Package protoerr defines the broker's wire-level error taxonomy. Every
// handler failure is reported as a BSON response document carrying an
// `error` field and, for schema failures, a `fields` array — never as a Go
// error surfaced to the peer. Handlers build these with New/WithFields and
// hand the resulting bson.Raw straight to the session loop for framing.
package protoerr

import "go.mongodb.org/mongo-driver/bson"

// Kind names one of the broker's well-known error codes. The wire value is
// the string itself, matched against the taxonomy documented for C9.
type Kind string

const (
	NotBson              Kind = "notBson"
	MissingField         Kind = "missingField"
	InvalidAction        Kind = "invalidAction"
	MissingID            Kind = "missingId"
	InsertError          Kind = "insertError"
	InvalidUpdate        Kind = "invalidAUpdate"
	UpdateError          Kind = "updateError"
	CreateVersionFailed  Kind = "createVersionFailed"
	NotFound             Kind = "notFound"
	PayloadTooLarge      Kind = "payloadTooLarge"
	PoolExhausted        Kind = "poolExhausted"
	TransactionError     Kind = "transactionError"
	UnexpectedError      Kind = "unexpectedError"
)

// New builds the response document `{error: message}`. No Kind is passed
// in or embedded in the document; callers choose whatever message
// text is appropriate, with the Kind constant existing to keep call sites
// and tests from repeating string literals.
func New(message string) bson.Raw {
	doc, err := bson.Marshal(bson.M{"error": message})
	if err != nil {
		// Marshaling a single string field cannot fail; a panic here would
		// indicate a corrupted bson package, not a reachable runtime state.
		panic(err)
	}
	return doc
}

// WithFields builds `{error: message, fields: [...]}`, used by missingField
// to name which envelope fields were absent.
func WithFields(message string, fields []string) bson.Raw {
	doc, err := bson.Marshal(bson.M{"error": message, "fields": fields})
	if err != nil {
		panic(err)
	}
	return doc
}

// Message strings for each Kind, reused verbatim across handlers so the
// wire text stays consistent.
const (
	MsgNotBson             = "Payload not BSON"
	MsgMissingField        = "Request missing required field"
	MsgInvalidAction       = "Unrecognized action"
	MsgMissingID           = "Document missing id field"
	MsgInsertError         = "Insert failed"
	MsgInvalidUpdate       = "Update document shape not recognized"
	MsgUpdateError         = "Update failed"
	MsgCreateVersionFailed = "Failed to write version history"
	MsgNotFound            = "No matching document"
	MsgPayloadTooLarge     = "Payload exceeds maximum frame size"
	MsgPoolExhausted       = "No storage session available"
	MsgTransactionError    = "Transaction aborted"
	MsgUnexpectedError     = "Unexpected error"
)
