// Package ilp implements an InfluxDB line-protocol encoder used by the
// telemetry pipeline's line-protocol sink. It mirrors the behaviour of a
// hand-rolled C++ ILP builder: a measurement, a set of tags, a set of
// fields, and a nanosecond timestamp, serialised one record per line.
package ilp

import (
	"fmt"
	"strconv"
	"strings"
)

// Builder accumulates records and serialises them into line-protocol text.
// It is not safe for concurrent use; callers build one batch per goroutine.
type Builder struct {
	out strings.Builder
	rec *record
}

type record struct {
	name   string
	tags   strings.Builder
	fields strings.Builder
	tsSet  bool
	ts     int64
}

// StartRecord begins a new record for the given measurement name. Any
// previously started-but-unended record is discarded.
func (b *Builder) StartRecord(name string) *Builder {
	b.rec = &record{name: name}
	return b
}

// AddTag appends a tag key/value pair to the current record.
func (b *Builder) AddTag(key, value string) *Builder {
	b.rec.tags.WriteByte(',')
	b.rec.tags.WriteString(escapeKey(key))
	b.rec.tags.WriteByte('=')
	b.rec.tags.WriteString(escapeTagValue(value))
	return b
}

func (b *Builder) addField(key, rendered string) *Builder {
	if b.rec.fields.Len() > 0 {
		b.rec.fields.WriteByte(',')
	}
	b.rec.fields.WriteString(escapeKey(key))
	b.rec.fields.WriteByte('=')
	b.rec.fields.WriteString(rendered)
	return b
}

// AddBool appends a boolean field.
func (b *Builder) AddBool(key string, value bool) *Builder {
	return b.addField(key, strconv.FormatBool(value))
}

// AddInt appends a signed integer field, suffixed with 'i'.
func (b *Builder) AddInt(key string, value int64) *Builder {
	return b.addField(key, strconv.FormatInt(value, 10)+"i")
}

// AddUint appends an unsigned integer field, suffixed with 'u'.
func (b *Builder) AddUint(key string, value uint64) *Builder {
	return b.addField(key, strconv.FormatUint(value, 10)+"u")
}

// AddFloat appends a floating point field, unsuffixed.
func (b *Builder) AddFloat(key string, value float64) *Builder {
	return b.addField(key, strconv.FormatFloat(value, 'g', -1, 64))
}

// AddString appends a double-quoted, escaped string field.
func (b *Builder) AddString(key, value string) *Builder {
	return b.addField(key, `"`+escapeFieldString(value)+`"`)
}

// AddTimestamp appends a timestamp field as microseconds since the Unix
// epoch, suffixed with 't' per the broker's line-protocol convention.
func (b *Builder) AddTimestamp(key string, epochMicros int64) *Builder {
	return b.addField(key, strconv.FormatInt(epochMicros, 10)+"t")
}

// Timestamp sets the record's trailing timestamp, in nanoseconds since the
// Unix epoch. If never called, EndRecord omits the timestamp column and the
// receiving server assigns one on ingest.
func (b *Builder) Timestamp(epochNanos int64) *Builder {
	b.rec.ts = epochNanos
	b.rec.tsSet = true
	return b
}

// EndRecord serialises the current record as a single line and appends it
// to the batch.
func (b *Builder) EndRecord() *Builder {
	r := b.rec
	b.out.WriteString(escapeKey(r.name))
	b.out.WriteString(r.tags.String())
	b.out.WriteByte(' ')
	b.out.WriteString(r.fields.String())
	if r.tsSet {
		b.out.WriteByte(' ')
		b.out.WriteString(strconv.FormatInt(r.ts, 10))
	}
	b.out.WriteByte('\n')
	b.rec = nil
	return b
}

// Finish returns the accumulated batch. The builder should not be reused
// after calling Finish.
func (b *Builder) Finish() string {
	return b.out.String()
}

// escapeKey escapes a measurement name, tag key, tag value key, or field
// key. Commas, equals signs, and spaces are backslash-escaped everywhere
// names appear outside of quoted string field values.
func escapeKey(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`,`, `\,`,
		`=`, `\=`,
		` `, `\ `,
		"\n", `\`+"\n",
		"\r", `\`+"\r",
	)
	return r.Replace(s)
}

// escapeTagValue escapes a tag value the same way as a key, including
// spaces, since tag values are never quoted.
func escapeTagValue(s string) string {
	return escapeKey(s)
}

// escapeFieldString escapes a double-quoted string field's interior,
// leaving spaces untouched since the surrounding quotes already delimit
// the value.
func escapeFieldString(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\`+"\n",
		"\r", `\`+"\r",
	)
	return r.Replace(s)
}

// Metric captures the flattened shape of a single telemetry measurement as
// produced by the dispatcher: a measurement name, a tag set, a field set,
// and an optional timestamp. EncodeMetric renders it using Builder so
// callers producing a batch do not need to drive Builder directly.
type Metric struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	TimestampNs int64
}

// EncodeMetric renders a single Metric as one line-protocol line. Field
// values are dispatched by concrete Go type; an unsupported type renders as
// an escaped string via fmt.Sprintf, which keeps the sink resilient to
// unexpected telemetry payload shapes rather than panicking.
func EncodeMetric(m Metric) string {
	var b Builder
	b.StartRecord(m.Measurement)
	for k, v := range m.Tags {
		b.AddTag(k, v)
	}
	for k, v := range m.Fields {
		switch val := v.(type) {
		case bool:
			b.AddBool(k, val)
		case int:
			b.AddInt(k, int64(val))
		case int32:
			b.AddInt(k, int64(val))
		case int64:
			b.AddInt(k, val)
		case uint32:
			b.AddUint(k, uint64(val))
		case uint64:
			b.AddUint(k, val)
		case float32:
			b.AddFloat(k, float64(val))
		case float64:
			b.AddFloat(k, val)
		case string:
			b.AddString(k, val)
		default:
			b.AddString(k, fmt.Sprintf("%v", val))
		}
	}
	if m.TimestampNs != 0 {
		b.Timestamp(m.TimestampNs)
	}
	b.EndRecord()
	return b.Finish()
}
