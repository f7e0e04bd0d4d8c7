// Package bsonutil provides small, type-specific field extractors over raw
// BSON documents and the two envelope variants used throughout the broker.
// Each extractor returns ok=false for both a missing key and a key holding
// the wrong BSON type, mirroring a hand-rolled template-specialized
// extractor without requiring reflection or generics-driven dispatch.
package bsonutil

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Bool extracts a boolean field from doc.
func Bool(doc bson.Raw, key string) (bool, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return false, false
	}
	b, ok := v.BooleanOK()
	return b, ok
}

// BoolOrDefault is Bool with a fallback for missing/mistyped fields.
func BoolOrDefault(doc bson.Raw, key string, def bool) bool {
	v, ok := Bool(doc, key)
	if !ok {
		return def
	}
	return v
}

// Int32 extracts a 32-bit integer field from doc.
func Int32(doc bson.Raw, key string) (int32, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return 0, false
	}
	return v.Int32OK()
}

// Int64 extracts a 64-bit integer field from doc, accepting both BSON int32
// and int64 wire representations.
func Int64(doc bson.Raw, key string) (int64, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return 0, false
	}
	if i32, ok := v.Int32OK(); ok {
		return int64(i32), true
	}
	return v.Int64OK()
}

// Double extracts a floating point field from doc.
func Double(doc bson.Raw, key string) (float64, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return 0, false
	}
	return v.DoubleOK()
}

// String extracts a string field from doc.
func String(doc bson.Raw, key string) (string, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return "", false
	}
	return v.StringValueOK()
}

// StringOrDefault is String with a fallback for missing/mistyped fields.
func StringOrDefault(doc bson.Raw, key string, def string) string {
	v, ok := String(doc, key)
	if !ok {
		return def
	}
	return v
}

// Timestamp extracts a BSON date-time field from doc as epoch milliseconds.
func Timestamp(doc bson.Raw, key string) (int64, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return 0, false
	}
	dt, ok := v.DateTimeOK()
	return dt, ok
}

// ObjectID extracts an ObjectID field from doc.
func ObjectID(doc bson.Raw, key string) (primitive.ObjectID, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return primitive.ObjectID{}, false
	}
	return v.ObjectIDOK()
}

// Document extracts a nested document field from doc.
func Document(doc bson.Raw, key string) (bson.Raw, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return nil, false
	}
	d, ok := v.DocumentOK()
	return bson.Raw(d), ok
}

// Array extracts an array field from doc.
func Array(doc bson.Raw, key string) (bson.Raw, bool) {
	v, err := doc.LookupErr(key)
	if err != nil {
		return nil, false
	}
	a, ok := v.ArrayOK()
	return bson.Raw(a), ok
}

// ArrayValues extracts an array field and returns its elements as raw
// values, for callers that need to range over them rather than re-lookup.
func ArrayValues(doc bson.Raw, key string) ([]bson.RawValue, bool) {
	arr, ok := Array(doc, key)
	if !ok {
		return nil, false
	}
	values, err := arr.Values()
	if err != nil {
		return nil, false
	}
	return values, true
}

// HasKey reports whether doc has a top-level field named key.
func HasKey(doc bson.Raw, key string) bool {
	_, err := doc.LookupErr(key)
	return err == nil
}
