// Package prefs is a typed key/value preference store with change
// subscriptions, persisted as JSON.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

// Kind is the stored type of a value.
type Kind string

const (
	KindString Kind = "string"
	KindFloat  Kind = "float"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
)

var ErrWrongKind = errors.New("prefs: wrong kind")

type value struct {
	Kind  Kind            `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Store holds preferences. The zero value is not usable; use New or Open.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]value
	subs   map[int]func(key string)
	nextID int
}

// New returns an in-memory store.
func New() *Store {
	return &Store{values: map[string]value{}, subs: map[int]func(string){}}
}

// Open loads the store at path. A missing file yields an empty store that
// Save will create.
func Open(path string) (*Store, error) {
	s := New()
	s.path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", path, err)
	}
	return s, nil
}

// Save writes the store to its path. It is a no-op for in-memory stores.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	data, err := json.MarshalIndent(s.values, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*")
	if err != nil {
		return fmt.Errorf("save prefs: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save prefs: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *Store) SetString(key, v string)        { s.set(key, KindString, v) }
func (s *Store) SetFloat(key string, v float64) { s.set(key, KindFloat, v) }
func (s *Store) SetInt(key string, v int64)     { s.set(key, KindInt, v) }
func (s *Store) SetBool(key string, v bool)     { s.set(key, KindBool, v) }

func (s *Store) set(key string, kind Kind, v any) {
	raw, _ := json.Marshal(v)
	s.mu.Lock()
	s.values[key] = value{Kind: kind, Value: raw}
	s.mu.Unlock()
	s.notify(key)
}

// Remove deletes key, notifying subscribers if it existed.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	_, ok := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()
	if ok {
		s.notify(key)
	}
}

func (s *Store) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func (s *Store) GetString(key string) (string, error) {
	var v string
	return v, s.get(key, KindString, &v)
}

func (s *Store) GetFloat(key string) (float64, error) {
	var v float64
	return v, s.get(key, KindFloat, &v)
}

func (s *Store) GetInt(key string) (int64, error) {
	var v int64
	return v, s.get(key, KindInt, &v)
}

func (s *Store) GetBool(key string) (bool, error) {
	var v bool
	return v, s.get(key, KindBool, &v)
}

func (s *Store) get(key string, kind Kind, dst any) error {
	s.mu.Lock()
	v, ok := s.values[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("prefs: %q not set", key)
	}
	if v.Kind != kind {
		return fmt.Errorf("%w: %q is %s, not %s", ErrWrongKind, key, v.Kind, kind)
	}
	return json.Unmarshal(v.Value, dst)
}

// String returns any stored value rendered as a string, whatever its kind.
func (s *Store) String(key string) (string, bool) {
	s.mu.Lock()
	v, ok := s.values[key]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	switch v.Kind {
	case KindString:
		var str string
		if json.Unmarshal(v.Value, &str) == nil {
			return str, true
		}
	case KindFloat:
		var f float64
		if json.Unmarshal(v.Value, &f) == nil {
			return strconv.FormatFloat(f, 'g', -1, 64), true
		}
	case KindInt:
		var i int64
		if json.Unmarshal(v.Value, &i) == nil {
			return strconv.FormatInt(i, 10), true
		}
	case KindBool:
		var b bool
		if json.Unmarshal(v.Value, &b) == nil {
			return strconv.FormatBool(b), true
		}
	}
	return "", false
}

// Snapshot returns every value rendered as a string.
func (s *Store) Snapshot() map[string]string {
	out := map[string]string{}
	for _, k := range s.Keys() {
		if v, ok := s.String(k); ok {
			out[k] = v
		}
	}
	return out
}

// Subscription is a registered change listener. Its owner must Cancel it.
type Subscription struct {
	s  *Store
	id int
}

// Subscribe registers fn to be called with the key after every change.
// fn runs on the goroutine that made the change, outside the store lock.
func (s *Store) Subscribe(fn func(key string)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return &Subscription{s: s, id: id}
}

func (sub *Subscription) Cancel() {
	if sub == nil || sub.s == nil {
		return
	}
	sub.s.mu.Lock()
	delete(sub.s.subs, sub.id)
	sub.s.mu.Unlock()
	sub.s = nil
}

func (s *Store) notify(key string) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}
