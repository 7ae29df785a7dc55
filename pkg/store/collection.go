package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"sevaconnect-backend/pkg/apperr"
	"sevaconnect-backend/pkg/database"
	"sevaconnect-backend/pkg/metrics"
)

// Schema describes how a collection treats its records.
type Schema[T any] struct {
	// Name is the collection name and the suffix of its KV key.
	Name string

	ID    func(T) string
	Stamp func(rec *T, id string, now time.Time)

	// Immutable fields may never appear in an update patch.
	Immutable []string
	// Managed fields are owned by the lifecycle controller.
	Managed []string

	// Unique checks a candidate against every other record.
	Unique func(others []T, candidate T) error
}

// env is what every collection of a store shares.
type env struct {
	kv       database.KeyValueStore
	prefix   string
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Collection is an ordered, durably persisted list of records of one type.
// The whole collection is written on every mutation, before the mutation is
// visible in memory.
type Collection[T any] struct {
	env
	schema Schema[T]
	key    string
	fields map[string]bool
	locked map[string]string

	mu      sync.RWMutex
	items   []T
	lastRaw []byte

	lmu       sync.Mutex
	listeners map[int]func()
	nextLID   int
}

func newCollection[T any](e env, schema Schema[T]) *Collection[T] {
	c := &Collection[T]{
		env:       e,
		schema:    schema,
		key:       e.prefix + ":" + schema.Name,
		fields:    jsonFields[T](),
		locked:    make(map[string]string),
		listeners: make(map[int]func()),
	}
	for _, f := range schema.Immutable {
		c.locked[f] = "cannot be changed after creation"
	}
	for _, f := range schema.Managed {
		c.locked[f] = "is managed by status transitions"
	}
	return c
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.schema.Name }

// Key returns the KV key the collection is persisted under.
func (c *Collection[T]) Key() string { return c.key }

// Get returns the record with id.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.items[i], nil
	}
	var zero T
	return zero, apperr.NotFound(c.schema.Name, id)
}

// List returns the records matching pred in insertion order. A nil pred
// matches everything. The result is a copy.
func (c *Collection[T]) List(ctx context.Context, pred func(T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.items))
	for _, it := range c.items {
		if pred == nil || pred(it) {
			out = append(out, it)
		}
	}
	return out
}

// Len returns the number of records.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Create stamps rec with a fresh id and creation time, validates it and
// appends it.
func (c *Collection[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	c.schema.Stamp(&rec, c.newID(), c.now())
	if err := c.check(rec); err != nil {
		return zero, err
	}

	c.mu.Lock()
	if c.schema.Unique != nil {
		if err := c.schema.Unique(c.items, rec); err != nil {
			c.mu.Unlock()
			return zero, err
		}
	}
	next := make([]T, len(c.items), len(c.items)+1)
	copy(next, c.items)
	next = append(next, rec)
	err := c.commit(ctx, next)
	c.mu.Unlock()
	if err != nil {
		return zero, err
	}

	c.committed("create")
	return rec, nil
}

// Update merges patch (JSON field names) into the record with id.
func (c *Collection[T]) Update(ctx context.Context, id string, patch map[string]interface{}) (T, error) {
	var zero T
	if err := c.checkPatch(patch); err != nil {
		return zero, err
	}

	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return zero, apperr.NotFound(c.schema.Name, id)
	}
	merged, err := mergePatch(c.items[i], patch)
	if err == nil {
		err = c.check(merged)
	}
	if err == nil {
		err = c.unique(i, merged)
	}
	if err == nil {
		err = c.commit(ctx, c.replaced(i, merged))
	}
	c.mu.Unlock()
	if err != nil {
		return zero, err
	}

	c.committed("update")
	return merged, nil
}

// Mutate applies fn to a copy of the record with id and persists the result.
// An error from fn aborts the mutation and is returned unchanged.
func (c *Collection[T]) Mutate(ctx context.Context, id string, fn func(*T) error) (T, error) {
	var zero T

	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return zero, apperr.NotFound(c.schema.Name, id)
	}
	rec := c.items[i]
	err := fn(&rec)
	if err == nil && c.schema.ID(rec) != id {
		err = fmt.Errorf("%s: mutation changed record id", c.schema.Name)
	}
	if err == nil {
		err = c.check(rec)
	}
	if err == nil {
		err = c.unique(i, rec)
	}
	if err == nil {
		err = c.commit(ctx, c.replaced(i, rec))
	}
	c.mu.Unlock()
	if err != nil {
		return zero, err
	}

	c.committed("update")
	return rec, nil
}

// Delete removes the record with id. Deleting an absent id is not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return nil
	}
	next := make([]T, 0, len(c.items)-1)
	next = append(next, c.items[:i]...)
	next = append(next, c.items[i+1:]...)
	err := c.commit(ctx, next)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.committed("delete")
	return nil
}

// ReplaceAll swaps the whole collection. Records are stored as given.
func (c *Collection[T]) ReplaceAll(ctx context.Context, items []T) error {
	return c.ReplaceAllExcept(ctx, items, func(string) bool { return false })
}

// ReplaceAllExcept swaps the collection for items, but for every id where
// keep returns true the local record wins: it replaces the incoming one, or
// is carried over when items lacks it.
func (c *Collection[T]) ReplaceAllExcept(ctx context.Context, items []T, keep func(id string) bool) error {
	c.mu.Lock()
	kept := make(map[string]T)
	var order []string
	for _, rec := range c.items {
		if id := c.schema.ID(rec); keep(id) {
			kept[id] = rec
			order = append(order, id)
		}
	}

	next := make([]T, 0, len(items)+len(kept))
	for _, rec := range items {
		id := c.schema.ID(rec)
		if local, ok := kept[id]; ok {
			next = append(next, local)
			delete(kept, id)
			continue
		}
		next = append(next, rec)
	}
	for _, id := range order {
		if local, ok := kept[id]; ok {
			next = append(next, local)
		}
	}

	err := c.commit(ctx, next)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.committed("replace")
	return nil
}

// Reload re-reads the persisted collection. Listeners fire only when the
// stored value differs from what this process last wrote or read.
func (c *Collection[T]) Reload(ctx context.Context) error {
	changed, err := c.load(ctx)
	if err != nil {
		return err
	}
	if changed {
		c.notify()
	}
	return nil
}

// OnChange registers fn to run after every committed change. fn runs
// outside the collection lock and may read the collection.
func (c *Collection[T]) OnChange(fn func()) (cancel func()) {
	c.lmu.Lock()
	c.nextLID++
	id := c.nextLID
	c.listeners[id] = fn
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Collection[T]) load(ctx context.Context) (bool, error) {
	raw, ok, err := c.kv.Get(ctx, c.key)
	if err != nil {
		return false, apperr.Persistence("get", c.key, err)
	}

	var items []T
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &items); err != nil {
			return false, apperr.Persistence("decode", c.key, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if bytes.Equal(raw, c.lastRaw) {
		return false, nil
	}
	c.items = items
	c.lastRaw = raw
	return true, nil
}

// commit persists next and then makes it visible. Callers hold c.mu.
func (c *Collection[T]) commit(ctx context.Context, next []T) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.schema.Name, err)
	}
	if err := c.kv.Set(ctx, c.key, raw); err != nil {
		metrics.StoreWriteFailures.WithLabelValues(c.schema.Name).Inc()
		c.logger.Warn("collection write failed", "collection", c.schema.Name, "error", err)
		return apperr.Persistence("set", c.key, err)
	}
	c.items = next
	c.lastRaw = raw
	return nil
}

func (c *Collection[T]) committed(op string) {
	metrics.StoreMutations.WithLabelValues(c.schema.Name, op).Inc()
	c.notify()
}

func (c *Collection[T]) notify() {
	c.lmu.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.lmu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (c *Collection[T]) indexOf(id string) int {
	for i, it := range c.items {
		if c.schema.ID(it) == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) replaced(i int, rec T) []T {
	next := make([]T, len(c.items))
	copy(next, c.items)
	next[i] = rec
	return next
}

func (c *Collection[T]) unique(skip int, rec T) error {
	if c.schema.Unique == nil {
		return nil
	}
	others := make([]T, 0, len(c.items))
	others = append(others, c.items[:skip]...)
	others = append(others, c.items[skip+1:]...)
	return c.schema.Unique(others, rec)
}

func (c *Collection[T]) checkPatch(patch map[string]interface{}) error {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if reason, ok := c.locked[k]; ok {
			return apperr.Validation(k, reason)
		}
		if !c.fields[k] {
			return apperr.Validation(k, "is not a known field")
		}
	}
	return nil
}

func (c *Collection[T]) check(rec T) error {
	err := c.validate.Struct(rec)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return apperr.Validation(ve[0].Field(), describe(ve[0]))
	}
	return apperr.Validation("", err.Error())
}

// mergePatch overlays patch onto rec through their JSON forms.
func mergePatch[T any](rec T, patch map[string]interface{}) (T, error) {
	var merged T
	raw, err := json.Marshal(rec)
	if err != nil {
		return merged, err
	}
	fields := map[string]interface{}{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return merged, err
	}
	for k, v := range patch {
		fields[k] = v
	}
	raw, err = json.Marshal(fields)
	if err != nil {
		return merged, apperr.Validation("", err.Error())
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return merged, apperr.Validation(te.Field, "has the wrong type")
		}
		var pe *time.ParseError
		if errors.As(err, &pe) {
			return merged, apperr.Validation("", "dates must be RFC 3339")
		}
		return merged, apperr.Validation("", err.Error())
	}
	return merged, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// jsonFields lists the JSON field names of T.
func jsonFields[T any]() map[string]bool {
	out := map[string]bool{}
	t := reflect.TypeOf((*T)(nil)).Elem()
	for i := 0; i < t.NumField(); i++ {
		if name := jsonName(t.Field(i)); name != "" {
			out[name] = true
		}
	}
	return out
}

func jsonName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}
