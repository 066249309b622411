package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sitewatch/sitewatch/internal/core/reading"
	"github.com/sitewatch/sitewatch/internal/core/storage"
	"github.com/sitewatch/sitewatch/internal/core/timestamp"
)

var errSessionClosed = errors.New("session closed")

// Store keeps reading documents per store key and collection, in insertion
// order. It implements storage.SessionOpener.
type Store struct {
	mu        sync.RWMutex
	docs      map[string]map[string][]reading.Document
	openErrs  map[string]error
	queryErrs map[string]error

	opened atomic.Int64
	closed atomic.Int64
}

func NewStore() *Store {
	return &Store{
		docs:      make(map[string]map[string][]reading.Document),
		openErrs:  make(map[string]error),
		queryErrs: make(map[string]error),
	}
}

// Insert appends documents to a collection of a tenant store.
func (s *Store) Insert(storeKey, collection string, docs ...reading.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[storeKey] == nil {
		s.docs[storeKey] = make(map[string][]reading.Document)
	}
	for _, doc := range docs {
		s.docs[storeKey][collection] = append(s.docs[storeKey][collection], copyDoc(doc))
	}
}

// FailOpen makes Open fail for storeKey until cleared with a nil error.
func (s *Store) FailOpen(storeKey string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	setOrClear(s.openErrs, storeKey, err)
}

// FailQueries makes every query of sessions on storeKey fail.
func (s *Store) FailQueries(storeKey string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	setOrClear(s.queryErrs, storeKey, err)
}

// Sessions reports how many sessions were opened and closed.
func (s *Store) Sessions() (opened, closed int64) {
	return s.opened.Load(), s.closed.Load()
}

func (s *Store) Open(ctx context.Context, storeKey string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	err := s.openErrs[storeKey]
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", storeKey, err)
	}

	s.opened.Add(1)
	return &session{store: s, key: storeKey}, nil
}

type session struct {
	store  *Store
	key    string
	closed atomic.Bool
}

func (ss *session) snapshot(ctx context.Context, collection string) ([]reading.Document, error) {
	if ss.closed.Load() {
		return nil, errSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ss.store.mu.RLock()
	defer ss.store.mu.RUnlock()

	if err := ss.store.queryErrs[ss.key]; err != nil {
		return nil, fmt.Errorf("query %s.%s: %w", ss.key, collection, err)
	}
	return ss.store.docs[ss.key][collection], nil
}

func (ss *session) Readings(ctx context.Context, q storage.ReadingQuery) ([]reading.Reading, error) {
	docs, err := ss.snapshot(ctx, q.Collection)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(q.DeviceIDs))
	for _, id := range q.DeviceIDs {
		wanted[id] = true
	}

	var out []reading.Reading
	for _, doc := range docs {
		id, ok := doc.DeviceID()
		if !ok {
			continue
		}
		if len(wanted) > 0 && !wanted[id] {
			continue
		}
		v, ok := doc.Number(q.Field)
		if !ok {
			continue
		}
		out = append(out, reading.Reading{DeviceID: id, Timestamp: doc.Timestamp(), Value: v})
	}
	return out, nil
}

type timedDoc struct {
	at         time.Time
	comparable bool
	doc        reading.Document
}

func (ss *session) matching(ctx context.Context, q storage.DocumentQuery) ([]timedDoc, error) {
	docs, err := ss.snapshot(ctx, q.Collection)
	if err != nil {
		return nil, err
	}

	var out []timedDoc
	for _, doc := range docs {
		if id, _ := doc.DeviceID(); id != q.DeviceID {
			continue
		}
		at, comparable := comparableInstant(doc.Timestamp())
		windowed := !q.From.IsZero() || !q.To.IsZero()
		if windowed {
			if !comparable {
				continue
			}
			if !q.From.IsZero() && at.Before(q.From) {
				continue
			}
			if !q.To.IsZero() && at.After(q.To) {
				continue
			}
		}
		out = append(out, timedDoc{at: at, comparable: comparable, doc: doc})
	}
	return out, nil
}

func (ss *session) Documents(ctx context.Context, q storage.DocumentQuery) ([]reading.Document, error) {
	matched, err := ss.matching(ctx, q)
	if err != nil {
		return nil, err
	}

	// Timestamps that cannot be compared sort after the rest in ascending
	// order, before them in descending order.
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.comparable != b.comparable {
			return a.comparable == q.Ascending
		}
		if q.Ascending {
			return a.at.Before(b.at)
		}
		return a.at.After(b.at)
	})

	if q.Offset > 0 {
		if q.Offset >= int64(len(matched)) {
			return []reading.Document{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < int64(len(matched)) {
		matched = matched[:q.Limit]
	}

	out := make([]reading.Document, 0, len(matched))
	for _, m := range matched {
		out = append(out, copyDoc(m.doc))
	}
	return out, nil
}

func (ss *session) CountDocuments(ctx context.Context, q storage.DocumentQuery) (int64, error) {
	matched, err := ss.matching(ctx, q)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (ss *session) Close(context.Context) error {
	if ss.closed.CompareAndSwap(false, true) {
		ss.store.closed.Add(1)
	}
	return nil
}

// comparableInstant mirrors a store-side range comparison: only numeric
// epoch-millisecond and native-date timestamps take part.
func comparableInstant(raw timestamp.Raw) (time.Time, bool) {
	switch raw.Encoding {
	case timestamp.EpochMillisFloat, timestamp.EpochMillisInt64, timestamp.EpochInt32, timestamp.Native:
		return timestamp.NewNormalizer(nil).Normalize(raw)
	default:
		return time.Time{}, false
	}
}

func copyDoc(doc reading.Document) reading.Document {
	cp := make(reading.Document, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	return cp
}

func setOrClear(m map[string]error, key string, err error) {
	if err == nil {
		delete(m, key)
		return
	}
	m[key] = err
}
