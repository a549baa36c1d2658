package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// MemoryStore is an in-process Store. Documents round-trip through bson so field
// names and types behave as they do against MongoDB.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memCollection
	newID       func() string
}

type memCollection struct {
	docs  map[string]bson.M
	order []string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memCollection),
		newID:       uuid.NewString,
	}
}

func (s *MemoryStore) collection(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]bson.M)}
		s.collections[name] = c
	}
	return c
}

func (c *memCollection) put(id string, doc bson.M) {
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	doc["_id"] = id
	c.docs[id] = doc
}

// Get decodes the document into dest.
func (s *MemoryStore) Get(ctx context.Context, collection, id string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collection(collection).docs[id]
	if !ok {
		return fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	return decode(doc, dest)
}

// Set replaces the document.
func (s *MemoryStore) Set(ctx context.Context, collection, id string, value any) error {
	doc, err := toDocument(value)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection).put(id, doc)
	return nil
}

// Update shallow-merges fields into an existing document.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	return s.UpdateIf(ctx, collection, id, nil, fields)
}

// UpdateIf shallow-merges fields when expect matches.
func (s *MemoryStore) UpdateIf(ctx context.Context, collection, id string, expect, fields Fields) error {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collection(collection).docs[id]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if !matches(doc, expect) {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrConflict)
	}
	for k, v := range normalized {
		doc[k] = v
	}
	return nil
}

// Append stores value under a generated id.
func (s *MemoryStore) Append(ctx context.Context, collection string, value any) (string, error) {
	doc, err := toDocument(value)
	if err != nil {
		return "", fmt.Errorf("append %s: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.collection(collection).put(id, doc)
	return id, nil
}

// Increment adds delta to field under the store lock.
func (s *MemoryStore) Increment(ctx context.Context, collection, id, field string, delta int64, opts IncrementOptions) (int64, error) {
	set, err := normalizeFields(opts.Set)
	if err != nil {
		return 0, fmt.Errorf("increment %s/%s: %w", collection, id, err)
	}
	onInsert, err := normalizeFields(opts.SetOnInsert)
	if err != nil {
		return 0, fmt.Errorf("increment %s/%s: %w", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	doc, ok := c.docs[id]
	if !ok {
		if opts.Floor != nil || !opts.Upsert {
			return 0, fmt.Errorf("increment %s/%s: %w", collection, id, ErrNotFound)
		}
		doc = bson.M{}
		for k, v := range onInsert {
			doc[k] = v
		}
		c.put(id, doc)
	}

	current, _ := toInt64(doc[field])
	next := current + delta
	if opts.Floor != nil && next < *opts.Floor {
		return current, fmt.Errorf("increment %s/%s: %w", collection, id, ErrBelowFloor)
	}
	doc[field] = next
	for k, v := range set {
		doc[k] = v
	}
	return next, nil
}

// Find decodes matching documents into dest in insertion order.
func (s *MemoryStore) Find(ctx context.Context, collection string, filter Fields, dest any) error {
	slice := reflect.ValueOf(dest)
	if slice.Kind() != reflect.Pointer || slice.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("find %s: dest must be a pointer to a slice", collection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	out := reflect.MakeSlice(slice.Elem().Type(), 0, len(c.order))
	elemType := slice.Elem().Type().Elem()
	for _, id := range c.order {
		doc := c.docs[id]
		if !matches(doc, filter) {
			continue
		}
		elem := reflect.New(elemType)
		if err := decode(doc, elem.Interface()); err != nil {
			return fmt.Errorf("find %s: %w", collection, err)
		}
		out = reflect.Append(out, elem.Elem())
	}
	slice.Elem().Set(out)
	return nil
}

func toDocument(value any) (bson.M, error) {
	raw, err := bson.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	doc := bson.M{}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func decode(doc bson.M, dest any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := bson.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// normalizeFields converts Go values to the representation bson decoding yields,
// so stored documents look the same regardless of the write path.
func normalizeFields(fields Fields) (bson.M, error) {
	if len(fields) == 0 {
		return bson.M{}, nil
	}
	return toDocument(bson.M(fields))
}

func matches(doc bson.M, filter Fields) bool {
	if len(filter) == 0 {
		return true
	}
	want, err := normalizeFields(filter)
	if err != nil {
		return false
	}
	for k, v := range want {
		if !valueMatches(doc[k], v) {
			return false
		}
	}
	return true
}

// valueMatches mirrors MongoDB equality: scalars compare by value and an array
// field matches when any element equals the wanted value.
func valueMatches(have, want any) bool {
	if arr, ok := have.(bson.A); ok {
		if _, wantArr := want.(bson.A); !wantArr {
			for _, el := range arr {
				if valueMatches(el, want) {
					return true
				}
			}
			return false
		}
	}
	hi, hOK := toInt64(have)
	wi, wOK := toInt64(want)
	if hOK && wOK {
		return hi == wi
	}
	return reflect.DeepEqual(have, want)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
