package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heirloom-restoration/workshop/internal/apperr"
)

type row map[string]any

// MemoryBackend implements Backend in process memory. It backs local
// development (BACKEND_DRIVER=memory) and tests.
type MemoryBackend struct {
	mu       sync.RWMutex
	tables   map[string][]row
	buckets  map[string]map[string][]byte
	sessions map[string]Session
	now      func() time.Time
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{
		tables:   make(map[string][]row),
		buckets:  make(map[string]map[string][]byte),
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// AddSession registers an access token for GetSession.
func (m *MemoryBackend) AddSession(accessToken string, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[accessToken] = s
}

// Select implements Backend.
func (m *MemoryBackend) Select(ctx context.Context, table string, q Query, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []row
	for _, r := range m.tables[table] {
		if matches(r, q) {
			matched = append(matched, r)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(matched[i][q.OrderBy], matched[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	if matched == nil {
		matched = []row{}
	}

	return remarshal(matched, dest)
}

// Insert implements Backend.
func (m *MemoryBackend) Insert(ctx context.Context, table string, value any, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var r row
	if err := remarshal(value, &r); err != nil {
		return apperr.Database("failed to encode "+table+" row", err)
	}
	if id, _ := r["id"].(string); id == "" {
		r["id"] = uuid.Must(uuid.NewV7()).String()
	}
	if isZeroTime(r["created_at"]) {
		r["created_at"] = m.now().UTC().Format(time.RFC3339Nano)
	}

	m.mu.Lock()
	for _, existing := range m.tables[table] {
		if existing["id"] == r["id"] {
			m.mu.Unlock()
			return apperr.Database("failed to insert into "+table, fmt.Errorf("duplicate id %v", r["id"]))
		}
	}
	m.tables[table] = append(m.tables[table], r)
	var err error
	if dest != nil {
		err = remarshal(r, dest)
	}
	m.mu.Unlock()

	return err
}

// Update implements Backend.
func (m *MemoryBackend) Update(ctx context.Context, table string, match map[string]string, patch any, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var p row
	if err := remarshal(patch, &p); err != nil {
		return apperr.Database("failed to encode "+table+" patch", err)
	}

	m.mu.Lock()
	var first row
	for _, r := range m.tables[table] {
		if !matches(r, Query{Eq: match}) {
			continue
		}
		for k, v := range p {
			r[k] = v
		}
		if first == nil {
			first = r
		}
	}
	var out []byte
	var err error
	if first != nil && dest != nil {
		out, err = json.Marshal(first)
	}
	m.mu.Unlock()

	if first == nil {
		return apperr.NotFound(table + " row")
	}
	if dest == nil {
		return nil
	}
	if err != nil {
		return apperr.Database("failed to encode "+table+" row", err)
	}
	return json.Unmarshal(out, dest)
}

// UpdateWhere implements Backend.
func (m *MemoryBackend) UpdateWhere(ctx context.Context, table string, q Query, patch any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var p row
	if err := remarshal(patch, &p); err != nil {
		return 0, apperr.Database("failed to encode "+table+" patch", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.tables[table] {
		if !matches(r, q) {
			continue
		}
		for k, v := range p {
			r[k] = v
		}
		n++
	}
	return n, nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(ctx context.Context, table string, match map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.tables[table][:0]
	for _, r := range m.tables[table] {
		if !matches(r, Query{Eq: match}) {
			kept = append(kept, r)
		}
	}
	m.tables[table] = kept
	return nil
}

// Upload implements Backend.
func (m *MemoryBackend) Upload(ctx context.Context, bucket, path string, body io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("reading upload body: %w", err)
	}

	m.mu.Lock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string][]byte)
	}
	m.buckets[bucket][path] = data
	m.mu.Unlock()

	return m.PublicURL(bucket, path), nil
}

// List implements Backend.
func (m *MemoryBackend) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	objects := []Object{}
	for path := range m.buckets[bucket] {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		name := path[strings.LastIndex(path, "/")+1:]
		objects = append(objects, Object{Name: name, Path: path, URL: m.PublicURL(bucket, path)})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })
	return objects, nil
}

// Remove implements Backend.
func (m *MemoryBackend) Remove(ctx context.Context, bucket string, paths []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.buckets[bucket], p)
	}
	return nil
}

// PublicURL implements Backend.
func (m *MemoryBackend) PublicURL(bucket, path string) string {
	return "memory://" + bucket + "/" + path
}

// GetSession implements Backend.
func (m *MemoryBackend) GetSession(ctx context.Context, accessToken string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	s, ok := m.sessions[accessToken]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid session")
	}
	return &s, nil
}

func matches(r row, q Query) bool {
	for col, want := range q.Eq {
		if !valueEquals(r[col], want) {
			return false
		}
	}
	for col, other := range q.Neq {
		if valueEquals(r[col], other) {
			return false
		}
	}
	for col, wants := range q.In {
		found := false
		for _, want := range wants {
			if valueEquals(r[col], want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func valueEquals(v any, want string) bool {
	if v == nil {
		return want == "null"
	}
	return fmt.Sprint(v) == want
}

// compareValues orders JSON scalars; nil sorts first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case string:
		if bv, ok := b.(string); ok {
			if at, aerr := time.Parse(time.RFC3339Nano, av); aerr == nil {
				if bt, berr := time.Parse(time.RFC3339Nano, bv); berr == nil {
					return at.Compare(bt)
				}
			}
			return strings.Compare(av, bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func isZeroTime(v any) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return err == nil && t.IsZero()
}

func remarshal(src, dest any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(src); err != nil {
		return err
	}
	return json.NewDecoder(&buf).Decode(dest)
}

// Compile-time check that MemoryBackend implements Backend
var _ Backend = (*MemoryBackend)(nil)
