package handlers

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/halvorsen-oss/mongobroker/internal/bsonutil"
	"github.com/halvorsen-oss/mongobroker/internal/protoerr"
)

// idKey is the primary-key field every create/merge-by-id/retrieve-by-id
// path keys off of.
const idKey = "_id"

func respond(v bson.M) bson.Raw {
	doc, err := bson.Marshal(v)
	if err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	return doc
}

// Retrieve implements C4's retrieve handler: a single-document lookup when
// the filter carries the primary key, otherwise a multi-document query. The
// lookup runs on a session leased from C2 for the duration of the request.
func (d *Deps) Retrieve(ctx context.Context, req *bsonutil.Request) bson.Raw {
	if len(req.Document) == 0 {
		return protoerr.New(protoerr.MsgMissingField)
	}
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		return d.retrieve(ctx, req)
	})
}

func (d *Deps) retrieve(ctx context.Context, req *bsonutil.Request) bson.Raw {
	coll := d.collection(req.Database, req.Collection)

	if bsonutil.HasKey(req.Document, idKey) {
		var result bson.M
		err := coll.FindOne(ctx, req.Document).Decode(&result)
		if err == mongo.ErrNoDocuments {
			return protoerr.New(protoerr.MsgNotFound)
		}
		if err != nil {
			return protoerr.New(protoerr.MsgUnexpectedError)
		}
		return respond(bson.M{"result": result})
	}

	opts := queryOptions(req.Options)
	cursor, err := coll.Find(ctx, req.Document, opts)
	if err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	defer cursor.Close(ctx)

	var results []bson.M
	if err := cursor.All(ctx, &results); err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	if results == nil {
		results = []bson.M{}
	}
	return respond(bson.M{"results": results})
}

func queryOptions(opts bson.Raw) *options.FindOptions {
	fo := options.Find()
	if opts == nil {
		return fo
	}
	if proj, ok := bsonutil.Document(opts, "projection"); ok {
		fo.SetProjection(proj)
	}
	if sort, ok := bsonutil.Document(opts, "sort"); ok {
		fo.SetSort(sort)
	}
	if hint, ok := bsonutil.Document(opts, "hint"); ok {
		fo.SetHint(hint)
	}
	if limit, ok := bsonutil.Int64(opts, "limit"); ok {
		fo.SetLimit(limit)
	}
	if skip, ok := bsonutil.Int64(opts, "skip"); ok {
		fo.SetSkip(skip)
	}
	if comment, ok := bsonutil.String(opts, "comment"); ok {
		fo.SetComment(comment)
	}
	if min, ok := bsonutil.Document(opts, "min"); ok {
		fo.SetMin(min)
	}
	if max, ok := bsonutil.Document(opts, "max"); ok {
		fo.SetMax(max)
	}
	if coll, ok := bsonutil.Document(opts, "collation"); ok {
		fo.SetCollation(decodeCollation(coll))
	}
	if maxTime, ok := bsonutil.Int64(opts, "maxTime"); ok {
		fo.SetMaxTime(msToDuration(maxTime))
	}
	if partial, ok := bsonutil.Bool(opts, "partialResults"); ok {
		fo.SetAllowPartialResults(partial)
	}
	if returnKey, ok := bsonutil.Bool(opts, "returnKey"); ok {
		fo.SetReturnKey(returnKey)
	}
	if showRecordID, ok := bsonutil.Bool(opts, "showRecordId"); ok {
		fo.SetShowRecordID(showRecordID)
	}
	return fo
}

// Create implements C4's create handler, on a session leased from C2.
func (d *Deps) Create(ctx context.Context, req *bsonutil.Request) bson.Raw {
	if len(req.Document) == 0 {
		return protoerr.New(protoerr.MsgMissingField)
	}
	if !bsonutil.HasKey(req.Document, idKey) {
		return protoerr.New(protoerr.MsgMissingID)
	}
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		return d.create(ctx, req)
	})
}

func (d *Deps) create(ctx context.Context, req *bsonutil.Request) bson.Raw {
	coll := d.collection(req.Database, req.Collection)
	opts := options.InsertOne()
	if req.Options != nil {
		if bv, ok := bsonutil.Bool(req.Options, "bypassValidation"); ok {
			opts.SetBypassDocumentValidation(bv)
		}
	}

	result, err := coll.InsertOne(ctx, req.Document, opts)
	if err != nil {
		return protoerr.New(protoerr.MsgInsertError)
	}

	if req.SkipVersion {
		return respond(bson.M{
			"_id":         result.InsertedID,
			"database":    d.Version.Location().Database,
			"collection":  d.Version.Location().Collection,
			"entity":      result.InsertedID,
			"skipVersion": true,
		})
	}

	vid, err := d.Version.Record(ctx, nil, req.Database, req.Collection, "create", req.Document, req.Metadata)
	if err != nil {
		// The user document remains inserted; see design notes open
		// question 1 — no compensating action is performed.
		return protoerr.New(protoerr.MsgCreateVersionFailed)
	}

	return respond(bson.M{
		"_id":        vid,
		"database":   d.Version.Location().Database,
		"collection": d.Version.Location().Collection,
		"entity":     result.InsertedID,
	})
}

// Update implements C4's three update modes: merge-by-id, replace, and
// update-many, selected by the shape of req.Document. All three run on a
// session leased from C2.
func (d *Deps) Update(ctx context.Context, req *bsonutil.Request) bson.Raw {
	if len(req.Document) == 0 {
		return protoerr.New(protoerr.MsgMissingField)
	}

	filterDoc, hasFilter := bsonutil.Document(req.Document, "filter")
	replaceDoc, hasReplace := bsonutil.Document(req.Document, "replace")
	updateDoc, hasUpdate := bsonutil.Document(req.Document, "update")

	switch {
	case bsonutil.HasKey(req.Document, idKey):
		return d.withSession(ctx, func(ctx context.Context) bson.Raw {
			return d.updateMergeByID(ctx, d.collection(req.Database, req.Collection), req)
		})
	case hasFilter && hasReplace:
		return d.withSession(ctx, func(ctx context.Context) bson.Raw {
			return d.updateReplace(ctx, d.collection(req.Database, req.Collection), req, filterDoc, replaceDoc)
		})
	case hasFilter && hasUpdate:
		return d.withSession(ctx, func(ctx context.Context) bson.Raw {
			return d.updateMany(ctx, d.collection(req.Database, req.Collection), req, filterDoc, updateDoc)
		})
	default:
		return protoerr.New(protoerr.MsgInvalidUpdate)
	}
}

func (d *Deps) updateMergeByID(ctx context.Context, coll *mongo.Collection, req *bsonutil.Request) bson.Raw {
	filter := bson.D{{Key: idKey, Value: req.Document.Lookup(idKey)}}
	set := setFromDocument(req.Document, idKey)

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var post bson.M
	err := coll.FindOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: set}}, opts).Decode(&post)
	if err == mongo.ErrNoDocuments {
		return protoerr.New(protoerr.MsgNotFound)
	}
	if err != nil {
		return protoerr.New(protoerr.MsgUpdateError)
	}

	if req.SkipVersion {
		return respond(bson.M{"skipVersion": true})
	}

	postRaw, err := bson.Marshal(post)
	if err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	vid, err := d.Version.Record(ctx, nil, req.Database, req.Collection, "update", postRaw, req.Metadata)
	if err != nil {
		return protoerr.New(protoerr.MsgCreateVersionFailed)
	}
	return respond(bson.M{"document": post, "history": vid})
}

func (d *Deps) updateReplace(ctx context.Context, coll *mongo.Collection, req *bsonutil.Request, filter, replacement bson.Raw) bson.Raw {
	opts := options.Replace()
	if req.Options != nil {
		if bv, ok := bsonutil.Bool(req.Options, "bypassValidation"); ok {
			opts.SetBypassDocumentValidation(bv)
		}
		if coll2, ok := bsonutil.Document(req.Options, "collation"); ok {
			opts.SetCollation(decodeCollation(coll2))
		}
		if up, ok := bsonutil.Bool(req.Options, "upsert"); ok {
			opts.SetUpsert(up)
		}
	}

	result, err := coll.ReplaceOne(ctx, filter, replacement, opts)
	if err != nil {
		return protoerr.New(protoerr.MsgUpdateError)
	}
	if result.MatchedCount == 0 && result.UpsertedCount == 0 {
		return protoerr.New(protoerr.MsgNotFound)
	}

	if req.SkipVersion {
		return respond(bson.M{"skipVersion": true, "matched": result.MatchedCount})
	}

	vid, err := d.Version.Record(ctx, nil, req.Database, req.Collection, "update", replacement, req.Metadata)
	if err != nil {
		return protoerr.New(protoerr.MsgCreateVersionFailed)
	}
	return respond(bson.M{"matched": result.MatchedCount, "history": vid})
}

func (d *Deps) updateMany(ctx context.Context, coll *mongo.Collection, req *bsonutil.Request, filter, update bson.Raw) bson.Raw {
	matchedBefore, err := collectIDs(ctx, coll, filter)
	if err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}

	_, err = coll.UpdateMany(ctx, filter, bson.D{{Key: "$set", Value: update}})
	if err != nil {
		return protoerr.New(protoerr.MsgUpdateError)
	}

	var success, failure, history []any
	for _, id := range matchedBefore {
		var post bson.M
		err := coll.FindOne(ctx, bson.D{{Key: idKey, Value: id}}).Decode(&post)
		if err != nil {
			failure = append(failure, id)
			continue
		}
		success = append(success, id)
		if req.SkipVersion {
			continue
		}
		postRaw, err := bson.Marshal(post)
		if err != nil {
			continue
		}
		vid, err := d.Version.Record(ctx, nil, req.Database, req.Collection, "update", postRaw, req.Metadata)
		if err == nil {
			history = append(history, vid)
		}
	}

	return respond(bson.M{"success": nonNil(success), "failure": nonNil(failure), "history": nonNil(history)})
}

// Delete implements C4's delete handler: resolve the target set exactly as
// retrieve does, then for each resolved document write version-history
// (pre-state) before deleting it. Runs on a session leased from C2.
func (d *Deps) Delete(ctx context.Context, req *bsonutil.Request) bson.Raw {
	if len(req.Document) == 0 {
		return protoerr.New(protoerr.MsgMissingField)
	}
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		return d.delete(ctx, req)
	})
}

func (d *Deps) delete(ctx context.Context, req *bsonutil.Request) bson.Raw {
	coll := d.collection(req.Database, req.Collection)

	var targets []bson.M
	cursor, err := coll.Find(ctx, req.Document)
	if err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	if err := cursor.All(ctx, &targets); err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	if len(targets) == 0 {
		return protoerr.New(protoerr.MsgNotFound)
	}

	var success, failure, history []any
	for _, doc := range targets {
		id := doc[idKey]
		preRaw, err := bson.Marshal(doc)
		if err != nil {
			failure = append(failure, id)
			continue
		}

		var vid any
		if !req.SkipVersion {
			v, err := d.Version.Record(ctx, nil, req.Database, req.Collection, "delete", preRaw, req.Metadata)
			if err != nil {
				failure = append(failure, id)
				continue
			}
			vid = v
		}

		if _, err := coll.DeleteOne(ctx, bson.D{{Key: idKey, Value: id}}); err != nil {
			failure = append(failure, id)
			continue
		}
		success = append(success, id)
		if vid != nil {
			history = append(history, vid)
		}
	}

	return respond(bson.M{"success": nonNil(success), "failure": nonNil(failure), "history": nonNil(history)})
}

// Count implements C4's count handler, on a session leased from C2.
func (d *Deps) Count(ctx context.Context, req *bsonutil.Request) bson.Raw {
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		return d.count(ctx, req)
	})
}

func (d *Deps) count(ctx context.Context, req *bsonutil.Request) bson.Raw {
	coll := d.collection(req.Database, req.Collection)
	opts := options.Count()
	if req.Options != nil {
		if hint, ok := bsonutil.Document(req.Options, "hint"); ok {
			opts.SetHint(hint)
		}
		if limit, ok := bsonutil.Int64(req.Options, "limit"); ok {
			opts.SetLimit(limit)
		}
		if skip, ok := bsonutil.Int64(req.Options, "skip"); ok {
			opts.SetSkip(skip)
		}
		if coll2, ok := bsonutil.Document(req.Options, "collation"); ok {
			opts.SetCollation(decodeCollation(coll2))
		}
		if maxTime, ok := bsonutil.Int64(req.Options, "maxTime"); ok {
			opts.SetMaxTime(msToDuration(maxTime))
		}
	}

	filter := req.Document
	if len(filter) == 0 {
		filter = bson.Raw{}
	}
	count, err := coll.CountDocuments(ctx, filter, opts)
	if err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	return respond(bson.M{"count": count})
}

// Distinct implements C4's distinct handler, on a session leased from C2.
func (d *Deps) Distinct(ctx context.Context, req *bsonutil.Request) bson.Raw {
	if _, ok := bsonutil.String(req.Document, "field"); !ok {
		return protoerr.New(protoerr.MsgMissingField)
	}
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		return d.distinct(ctx, req)
	})
}

func (d *Deps) distinct(ctx context.Context, req *bsonutil.Request) bson.Raw {
	field, _ := bsonutil.String(req.Document, "field")
	filter, _ := bsonutil.Document(req.Document, "filter")
	if filter == nil {
		filter = bson.Raw{}
	}

	coll := d.collection(req.Database, req.Collection)
	values, err := coll.Distinct(ctx, field, filter)
	if err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	return respond(bson.M{"values": values})
}

// Pipeline implements C4's read-only aggregation handler, on a session
// leased from C2.
func (d *Deps) Pipeline(ctx context.Context, req *bsonutil.Request) bson.Raw {
	if _, ok := bsonutil.ArrayValues(req.Document, "specification"); !ok {
		return protoerr.New(protoerr.MsgMissingField)
	}
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		return d.pipeline(ctx, req)
	})
}

func (d *Deps) pipeline(ctx context.Context, req *bsonutil.Request) bson.Raw {
	stages, _ := bsonutil.ArrayValues(req.Document, "specification")

	pipeline := make(bson.A, 0, len(stages))
	for _, s := range stages {
		pipeline = append(pipeline, s)
	}

	coll := d.collection(req.Database, req.Collection)
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	defer cursor.Close(ctx)

	var results []bson.M
	if err := cursor.All(ctx, &results); err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	if results == nil {
		results = []bson.M{}
	}
	return respond(bson.M{"results": results})
}

// Bulk implements C4's bulk handler: insert array and/or delete array, on a
// session leased from C2.
func (d *Deps) Bulk(ctx context.Context, req *bsonutil.Request) bson.Raw {
	_, hasInsert := bsonutil.ArrayValues(req.Document, "insert")
	_, hasDelete := bsonutil.ArrayValues(req.Document, "delete")
	if !hasInsert && !hasDelete {
		return protoerr.New(protoerr.MsgMissingField)
	}
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		return d.bulk(ctx, req)
	})
}

func (d *Deps) bulk(ctx context.Context, req *bsonutil.Request) bson.Raw {
	inserts, hasInsert := bsonutil.ArrayValues(req.Document, "insert")
	deletes, hasDelete := bsonutil.ArrayValues(req.Document, "delete")

	coll := d.collection(req.Database, req.Collection)
	result := bson.M{}

	if hasInsert {
		var success, failure, history []any
		for _, v := range inserts {
			doc, ok := v.DocumentOK()
			if !ok || !bsonutil.HasKey(bson.Raw(doc), idKey) {
				continue
			}
			raw := bson.Raw(doc)
			inserted, err := coll.InsertOne(ctx, raw)
			if err != nil {
				failure = append(failure, raw.Lookup(idKey))
				continue
			}
			success = append(success, inserted.InsertedID)
			if !req.SkipVersion {
				if vid, err := d.Version.Record(ctx, nil, req.Database, req.Collection, "create", raw, req.Metadata); err == nil {
					history = append(history, vid)
				}
			}
		}
		result["create"] = bson.M{"success": nonNil(success), "failure": nonNil(failure), "history": nonNil(history)}
	}

	if hasDelete {
		var success, failure, history []any
		for _, v := range deletes {
			filterDoc, ok := v.DocumentOK()
			if !ok {
				continue
			}
			filter := bson.Raw(filterDoc)
			var doc bson.M
			if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
				failure = append(failure, filter)
				continue
			}
			id := doc[idKey]
			preRaw, err := bson.Marshal(doc)
			if err != nil {
				failure = append(failure, id)
				continue
			}
			if _, err := coll.DeleteOne(ctx, bson.D{{Key: idKey, Value: id}}); err != nil {
				failure = append(failure, id)
				continue
			}
			success = append(success, id)
			if !req.SkipVersion {
				if vid, err := d.Version.Record(ctx, nil, req.Database, req.Collection, "delete", preRaw, req.Metadata); err == nil {
					history = append(history, vid)
				}
			}
		}
		result["delete"] = bson.M{"success": nonNil(success), "failure": nonNil(failure), "history": nonNil(history)}
	}

	return respond(result)
}

func setFromDocument(doc bson.Raw, exclude string) bson.D {
	elems, _ := doc.Elements()
	set := bson.D{}
	for _, e := range elems {
		if e.Key() == exclude {
			continue
		}
		set = append(set, bson.E{Key: e.Key(), Value: e.Value()})
	}
	return set
}

func collectIDs(ctx context.Context, coll *mongo.Collection, filter bson.Raw) ([]any, error) {
	cursor, err := coll.Find(ctx, filter, options.Find().SetProjection(bson.D{{Key: idKey, Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d[idKey])
	}
	return ids, nil
}

func nonNil(s []any) []any {
	if s == nil {
		return []any{}
	}
	return s
}

func decodeCollation(doc bson.Raw) *options.Collation {
	var c options.Collation
	if err := bson.Unmarshal(doc, &c); err != nil {
		return nil
	}
	return &c
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
