// Package mongo implements per-request tenant store sessions on MongoDB.
// Each tenant is a database named by its store key; each device type is a
// collection inside it.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sitewatch/sitewatch/internal/core/reading"
	"github.com/sitewatch/sitewatch/internal/core/storage"
	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Options configures how sessions are opened.
type Options struct {
	URI            string
	ConnectTimeout time.Duration
	// ConnectRetries is the number of extra attempts after a failed connect.
	ConnectRetries int
	RetryBackoff   time.Duration
	AppName        string
}

// Observer is notified about session lifecycle events.
type Observer interface {
	SessionOpened(storeKey string, took time.Duration, err error)
	SessionClosed(storeKey string)
}

// Opener opens one client per session. No connection is shared between
// sessions.
type Opener struct {
	opts     Options
	observer Observer
}

func NewOpener(opts Options, observer Observer) *Opener {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	return &Opener{opts: opts, observer: observer}
}

// Open connects to the store and binds the session to database storeKey.
// Failed attempts are retried ConnectRetries times with doubling backoff.
func (o *Opener) Open(ctx context.Context, storeKey string) (storage.Session, error) {
	start := time.Now()
	sess, err := o.openWithRetry(ctx, storeKey)
	if o.observer != nil {
		o.observer.SessionOpened(storeKey, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (o *Opener) openWithRetry(ctx context.Context, storeKey string) (*Session, error) {
	backoff := o.opts.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= o.opts.ConnectRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("connect to store %q: %w", storeKey, ctx.Err())
			case <-timer.C:
			}
			backoff *= 2
		}

		sess, err := o.connect(ctx, storeKey)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		slog.Warn("[Mongo] Connect attempt failed",
			"store", storeKey,
			"attempt", attempt+1,
			"error", err)
	}

	return nil, fmt.Errorf("connect to store %q after %d attempt(s): %w", storeKey, o.opts.ConnectRetries+1, lastErr)
}

func (o *Opener) connect(ctx context.Context, storeKey string) (*Session, error) {
	connectCtx, cancel := context.WithTimeout(ctx, o.opts.ConnectTimeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(o.opts.URI).
		SetConnectTimeout(o.opts.ConnectTimeout).
		SetServerSelectionTimeout(o.opts.ConnectTimeout)
	if o.opts.AppName != "" {
		clientOpts.SetAppName(o.opts.AppName)
	}

	client, err := mongodrv.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		disconnectCtx, cancelDisconnect := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelDisconnect()
		_ = client.Disconnect(disconnectCtx)
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	slog.Debug("[Mongo] Session opened", "store", storeKey)
	return &Session{
		key:      storeKey,
		client:   client,
		db:       client.Database(storeKey),
		observer: o.observer,
	}, nil
}

// Session is a read-only view of one tenant database.
type Session struct {
	key      string
	client   *mongodrv.Client
	db       *mongodrv.Database
	observer Observer
}

// Readings returns the readings that carry a device id and a numeric q.Field.
func (s *Session) Readings(ctx context.Context, q storage.ReadingQuery) ([]reading.Reading, error) {
	projection := bson.D{
		{Key: "_id", Value: 0},
		{Key: reading.FieldDeviceID, Value: 1},
		{Key: reading.FieldTimestamp, Value: 1},
		{Key: q.Field, Value: 1},
	}

	cursor, err := s.db.Collection(q.Collection).Find(ctx, readingFilter(q), options.Find().SetProjection(projection))
	if err != nil {
		return nil, fmt.Errorf("failed to query readings in %s.%s: %w", s.key, q.Collection, err)
	}
	defer cursor.Close(ctx)

	var out []reading.Reading
	for cursor.Next(ctx) {
		r, ok := decodeReading(cursor.Current, q.Field)
		if !ok {
			continue
		}
		out = append(out, r)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings in %s.%s: %w", s.key, q.Collection, err)
	}
	return out, nil
}

// Documents returns raw documents of one device, windowed, sorted by
// timestamp and paged.
func (s *Session) Documents(ctx context.Context, q storage.DocumentQuery) ([]reading.Document, error) {
	direction := -1
	if q.Ascending {
		direction = 1
	}
	findOpts := options.Find().SetSort(bson.D{{Key: reading.FieldTimestamp, Value: direction}})
	if q.Offset > 0 {
		findOpts.SetSkip(q.Offset)
	}
	if q.Limit > 0 {
		findOpts.SetLimit(q.Limit)
	}

	cursor, err := s.db.Collection(q.Collection).Find(ctx, documentFilter(q), findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents in %s.%s: %w", s.key, q.Collection, err)
	}
	defer cursor.Close(ctx)

	out := []reading.Document{}
	for cursor.Next(ctx) {
		var m bson.M
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		out = append(out, plainDocument(m))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents in %s.%s: %w", s.key, q.Collection, err)
	}
	return out, nil
}

func (s *Session) CountDocuments(ctx context.Context, q storage.DocumentQuery) (int64, error) {
	n, err := s.db.Collection(q.Collection).CountDocuments(ctx, documentFilter(q))
	if err != nil {
		return 0, fmt.Errorf("failed to count documents in %s.%s: %w", s.key, q.Collection, err)
	}
	return n, nil
}

// Close disconnects the session's client.
func (s *Session) Close(ctx context.Context) error {
	err := s.client.Disconnect(ctx)
	if s.observer != nil {
		s.observer.SessionClosed(s.key)
	}
	if err != nil {
		return fmt.Errorf("failed to disconnect from store %q: %w", s.key, err)
	}
	return nil
}
