package handlers

import (
	"bytes"
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/halvorsen-oss/mongobroker/internal/bsonutil"
	"github.com/halvorsen-oss/mongobroker/internal/protoerr"
)

// Index implements C5's index handler. When creation fails with
// IndexOptionsConflict (code 85) because an index on the same keys already
// exists under another name, the handler looks that index up by its keys
// and returns its name as success (idempotent creation).
func (d *Deps) Index(ctx context.Context, req *bsonutil.Request) bson.Raw {
	if len(req.Document) == 0 {
		return protoerr.New(protoerr.MsgMissingField)
	}
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		return d.index(ctx, req)
	})
}

func (d *Deps) index(ctx context.Context, req *bsonutil.Request) bson.Raw {
	model := mongo.IndexModel{Keys: req.Document}
	iopts := options.Index()
	if req.Options != nil {
		if name, ok := bsonutil.String(req.Options, "name"); ok {
			iopts.SetName(name)
		}
		if unique, ok := bsonutil.Bool(req.Options, "unique"); ok {
			iopts.SetUnique(unique)
		}
		if expire, ok := bsonutil.Int32(req.Options, "expireAfterSeconds"); ok {
			iopts.SetExpireAfterSeconds(expire)
		}
		if coll, ok := bsonutil.Document(req.Options, "collation"); ok {
			iopts.SetCollation(decodeCollation(coll))
		}
		if partial, ok := bsonutil.Document(req.Options, "partialFilterExpression"); ok {
			iopts.SetPartialFilterExpression(partial)
		}
		if sparse, ok := bsonutil.Bool(req.Options, "sparse"); ok {
			iopts.SetSparse(sparse)
		}
		if hidden, ok := bsonutil.Bool(req.Options, "hidden"); ok {
			iopts.SetHidden(hidden)
		}
		if background, ok := bsonutil.Bool(req.Options, "background"); ok {
			iopts.SetBackground(background)
		}
	}
	model.Options = iopts

	coll := d.collection(req.Database, req.Collection)
	name, err := coll.Indexes().CreateOne(ctx, model)
	if err != nil {
		if cmdErr, ok := err.(mongo.CommandError); ok && cmdErr.Code == 85 /* IndexOptionsConflict */ {
			if existing, found := findIndexByKeys(ctx, coll, req.Document); found {
				return respond(bson.M{"name": existing})
			}
		}
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	return respond(bson.M{"name": name})
}

// findIndexByKeys looks up the name of an existing index whose key document
// matches keys, used to make index creation idempotent on conflict.
func findIndexByKeys(ctx context.Context, coll *mongo.Collection, keys bson.Raw) (string, bool) {
	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return "", false
	}
	defer cursor.Close(ctx)

	var specs []bson.M
	if err := cursor.All(ctx, &specs); err != nil {
		return "", false
	}
	for _, spec := range specs {
		existingKey, err := bson.Marshal(spec["key"])
		if err != nil {
			continue
		}
		if bytes.Equal(existingKey, keys) {
			if name, ok := spec["name"].(string); ok {
				return name, true
			}
		}
	}
	return "", false
}

// DropIndex implements C5's dropIndex handler, keyed by either a key
// specification or an explicit name.
func (d *Deps) DropIndex(ctx context.Context, req *bsonutil.Request) bson.Raw {
	name, hasName := bsonutil.String(req.Document, "name")
	spec, hasSpec := bsonutil.Document(req.Document, "specification")
	if !hasName && !hasSpec {
		return protoerr.New(protoerr.MsgMissingField)
	}
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		coll := d.collection(req.Database, req.Collection)
		if hasName {
			if _, err := coll.Indexes().DropOne(ctx, name); err != nil {
				return protoerr.New(protoerr.MsgUnexpectedError)
			}
			return respond(bson.M{"dropped": name})
		}
		if _, err := coll.Indexes().DropOneWithKey(ctx, spec); err != nil {
			return protoerr.New(protoerr.MsgUnexpectedError)
		}
		return respond(bson.M{"dropped": true})
	})
}

// CreateCollection implements C5's createCollection handler.
func (d *Deps) CreateCollection(ctx context.Context, req *bsonutil.Request) bson.Raw {
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		return d.createCollection(ctx, req)
	})
}

func (d *Deps) createCollection(ctx context.Context, req *bsonutil.Request) bson.Raw {
	copts := options.CreateCollection()
	if req.Options != nil {
		if capped, ok := bsonutil.Bool(req.Options, "capped"); ok {
			copts.SetCapped(capped)
		}
		if ts, ok := bsonutil.Document(req.Options, "timeseries"); ok {
			var tso options.TimeSeriesOptions
			if err := bson.Unmarshal(ts, &tso); err == nil {
				copts.SetTimeSeriesOptions(&tso)
			}
		}
		if changeStream, ok := bsonutil.Bool(req.Options, "changeStreamPreAndPostImages"); ok {
			copts.SetChangeStreamPreAndPostImages(options.ChangeStreamPreAndPostImagesOptions{Enabled: changeStream})
		}
		if validator, ok := bsonutil.Document(req.Options, "validator"); ok {
			copts.SetValidator(validator)
		}
		if level, ok := bsonutil.String(req.Options, "validationLevel"); ok {
			copts.SetValidationLevel(level)
		}
		if action, ok := bsonutil.String(req.Options, "validationAction"); ok {
			copts.SetValidationAction(action)
		}
		if expire, ok := bsonutil.Int64(req.Options, "expireAfterSeconds"); ok {
			copts.SetExpireAfterSeconds(expire)
		}
		if viewOn, ok := bsonutil.String(req.Options, "viewOn"); ok {
			copts.SetViewOn(viewOn)
		}
		if pipeline, ok := bsonutil.ArrayValues(req.Options, "pipeline"); ok {
			stages := make(bson.A, 0, len(pipeline))
			for _, s := range pipeline {
				stages = append(stages, s)
			}
			copts.SetPipeline(stages)
		}
		if coll, ok := bsonutil.Document(req.Options, "collation"); ok {
			copts.SetCollation(decodeCollation(coll))
		}
	}

	if err := d.Pool.Client().Database(req.Database).CreateCollection(ctx, req.Collection, copts); err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	return respond(bson.M{"created": true, "database": req.Database, "collection": req.Collection})
}

// DropCollection implements C5's dropCollection handler. When
// clearVersionHistory is set, history cleanup for this collection runs
// asynchronously after the response is built; its failure is logged but
// does not affect the synchronous result (§4.5, design note 4).
func (d *Deps) DropCollection(ctx context.Context, req *bsonutil.Request) bson.Raw {
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		if err := d.collection(req.Database, req.Collection).Drop(ctx); err != nil {
			return protoerr.New(protoerr.MsgUnexpectedError)
		}

		clear := bsonutil.BoolOrDefault(req.Document, "clearVersionHistory", false)
		if clear {
			go func() {
				bgCtx := context.Background()
				if err := d.Version.ClearCollection(bgCtx, req.Database, req.Collection); err != nil {
					d.logger().Warn("async version history cleanup failed",
						"database", req.Database, "collection", req.Collection, "error", err)
				}
			}()
		}

		return respond(bson.M{"dropped": true})
	})
}

// RenameCollection implements C5's renameCollection handler: rename on the
// source store synchronously, then update history records asynchronously.
func (d *Deps) RenameCollection(ctx context.Context, req *bsonutil.Request) bson.Raw {
	newName, ok := bsonutil.String(req.Document, "to")
	if !ok {
		return protoerr.New(protoerr.MsgMissingField)
	}
	return d.withSession(ctx, func(ctx context.Context) bson.Raw {
		admin := d.Pool.Client().Database("admin")
		cmd := bson.D{
			{Key: "renameCollection", Value: req.Database + "." + req.Collection},
			{Key: "to", Value: req.Database + "." + newName},
		}
		if err := admin.RunCommand(ctx, cmd).Err(); err != nil {
			return protoerr.New(protoerr.MsgUnexpectedError)
		}

		oldName := req.Collection
		go func() {
			bgCtx := context.Background()
			if err := d.Version.RenameCollection(bgCtx, req.Database, oldName, newName); err != nil {
				d.logger().Warn("async version history rename failed",
					"database", req.Database, "from", oldName, "to", newName, "error", err)
			}
		}()

		return respond(bson.M{"renamed": true, "from": oldName, "to": newName})
	})
}
