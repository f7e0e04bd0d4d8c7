package bsonutil

import "go.mongodb.org/mongo-driver/bson"

// Request is the decoded request envelope. Required fields are pulled out
// as typed values at construction time; Options, Metadata, and Document
// remain raw so each handler extracts only the shape it needs.
type Request struct {
	Action        string
	Database      string
	Collection    string
	Document      bson.Raw
	Options       bson.Raw
	Metadata      bson.Raw
	CorrelationID string
	Application   string
	SkipVersion   bool
	SkipMetric    bool

	// owned records whether this Request holds the only reference to its
	// backing buffer (decoded off the wire by C9) versus borrowing a
	// caller-supplied slice (an in-process client helper), matching the two
	// mutation-request variants noted in the design notes. Both paths
	// marshal identically through this same struct; the distinction only
	// affects whether the caller may reuse the buffer after this call
	// returns.
	owned bool
	size  int
}

// OwnedDocument decodes buf into a Request that owns buf for its lifetime.
// This is the path the session server (C9) uses after reading a frame off
// the wire: the frame's byte slice is not reused once decoded.
func OwnedDocument(buf []byte) (*Request, error) {
	return parseRequest(buf, true)
}

// BorrowedDocument decodes buf into a Request that treats buf as borrowed:
// the caller retains ownership and may reuse or free it once the handler
// invocation that produced this Request returns. Used by in-process client
// helpers (such as tests) that already own a longer-lived buffer.
func BorrowedDocument(buf []byte) (*Request, error) {
	return parseRequest(buf, false)
}

func parseRequest(buf []byte, owned bool) (*Request, error) {
	doc := bson.Raw(buf)
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	req := &Request{
		Action:     StringOrDefault(doc, "action", ""),
		Database:   StringOrDefault(doc, "database", ""),
		Collection: StringOrDefault(doc, "collection", ""),
	}
	if d, ok := Document(doc, "document"); ok {
		req.Document = d
	}
	if o, ok := Document(doc, "options"); ok {
		req.Options = o
	}
	if m, ok := Document(doc, "metadata"); ok {
		req.Metadata = m
	}
	req.CorrelationID = StringOrDefault(doc, "correlationId", "")
	req.Application = StringOrDefault(doc, "application", "")
	req.SkipVersion = BoolOrDefault(doc, "skipVersion", false)
	req.SkipMetric = BoolOrDefault(doc, "skipMetric", false)

	req.owned = owned
	req.size = len(buf)
	return req, nil
}

// Owned reports whether this Request holds the only reference to its
// backing buffer.
func (r *Request) Owned() bool {
	return r.owned
}

// MissingFields reports which of the envelope's required fields (action,
// database, collection, document) are absent, in envelope order.
func (r *Request) MissingFields() []string {
	var missing []string
	if r.Action == "" {
		missing = append(missing, "action")
	}
	if r.Database == "" {
		missing = append(missing, "database")
	}
	if r.Collection == "" {
		missing = append(missing, "collection")
	}
	if r.Document == nil {
		missing = append(missing, "document")
	}
	return missing
}

// Size returns the byte length of the envelope as received, used by the
// telemetry pipeline's metric record.
func (r *Request) Size() int {
	return r.size
}
