package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/pkg/logger"
)

const (
	retryMin = 500 * time.Millisecond
	retryMax = 30 * time.Second
)

// changeDoc is the subset of a change stream document the watcher reads.
type changeDoc struct {
	OperationType string `bson:"operationType"`
	NS            struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             bson.M `bson:"fullDocument"`
	FullDocumentBeforeChange bson.M `bson:"fullDocumentBeforeChange"`
}

// ChangeWatcher tails the profiles, vendors and admins collections and
// publishes each mutation as a domain.ChangeEvent. Requires a replica set.
type ChangeWatcher struct {
	db      *mongo.Database
	publish func(domain.ChangeEvent)
	log     zerolog.Logger
}

// NewChangeWatcher creates a watcher that hands events to publish.
func NewChangeWatcher(db *mongo.Database, publish func(domain.ChangeEvent), log zerolog.Logger) *ChangeWatcher {
	return &ChangeWatcher{
		db:      db,
		publish: publish,
		log:     logger.WithComponent(log, "change_watcher"),
	}
}

// Run watches until ctx is cancelled, reopening the stream from the last
// resume token after failures.
func (w *ChangeWatcher) Run(ctx context.Context) {
	var resume bson.Raw
	backoff := retryMin
	for {
		token, err := w.watch(ctx, resume)
		if token != nil {
			resume = token
			backoff = retryMin
		}
		if ctx.Err() != nil {
			return
		}
		w.log.Error().Err(err).Dur("retry_in", backoff).Msg("change stream interrupted")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > retryMax {
			backoff = retryMax
		}
	}
}

func (w *ChangeWatcher) watch(ctx context.Context, resume bson.Raw) (bson.Raw, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"ns.coll":       bson.M{"$in": bson.A{domain.TableProfiles, domain.TableVendors, domain.TableAdmins}},
			"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}},
		}}},
	}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	if resume != nil {
		opts.SetResumeAfter(resume)
	}

	stream, err := w.db.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("open change stream: %w", err)
	}
	defer stream.Close(context.Background())
	w.log.Info().Msg("change stream opened")

	var last bson.Raw
	for stream.Next(ctx) {
		var doc changeDoc
		if err := stream.Decode(&doc); err != nil {
			w.log.Warn().Err(err).Msg("undecodable change document")
			last = stream.ResumeToken()
			continue
		}
		if ev, ok := toChangeEvent(doc); ok {
			w.publish(ev)
		}
		last = stream.ResumeToken()
	}
	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return last, fmt.Errorf("change stream: %w", err)
	}
	return last, nil
}

// toChangeEvent flattens a change document into the filterable columns of
// the row. Deletes only carry user_id when pre-images are enabled.
func toChangeEvent(doc changeDoc) (domain.ChangeEvent, bool) {
	var op domain.ChangeOp
	switch doc.OperationType {
	case "insert":
		op = domain.ChangeInsert
	case "update", "replace":
		op = domain.ChangeUpdate
	case "delete":
		op = domain.ChangeDelete
	default:
		return domain.ChangeEvent{}, false
	}

	cols := map[string]string{"id": doc.DocumentKey.ID}
	row := doc.FullDocument
	if row == nil {
		row = doc.FullDocumentBeforeChange
	}
	for _, k := range []string{"user_id", "role"} {
		if v, ok := row[k].(string); ok {
			cols[k] = v
		}
	}
	return domain.ChangeEvent{Table: doc.NS.Coll, Op: op, Columns: cols}, true
}
