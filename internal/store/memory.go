package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memoryDoc はMemoryStore内部のドキュメント表現。
type memoryDoc struct {
	data    []byte
	created time.Time
	updated time.Time
}

// MemoryStore はマップを使用したDocumentStoreの実装。
// PostgresStoreと同一の意味論を提供し、テストでの差し替えに使用する。
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]*memoryDoc // collection -> doc_id -> doc
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]*memoryDoc),
	}
}

// Set はドキュメントを作成または完全上書きし、作成時刻を打刻する。
func (s *MemoryStore) Set(ctx context.Context, collection, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]*memoryDoc)
	}
	now := time.Now()
	s.docs[collection][id] = &memoryDoc{data: raw, created: now, updated: now}
	return nil
}

// Update は指定フィールドのみをマージし、更新時刻を打刻する。
func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.lookup(collection, id)
	if !ok {
		return ErrNotFound
	}

	fields, err := decodeFields(doc.data)
	if err != nil {
		return err
	}

	// patchをJSON経由で正規化してからマージする（PostgresのjsonbマージとDEEP度を揃える）
	normalized, err := normalize(patch)
	if err != nil {
		return err
	}
	for k, v := range normalized {
		fields[k] = v
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal merged document: %w", err)
	}
	doc.data = raw
	doc.updated = time.Now()
	return nil
}

// Read はドキュメントをoutにデコードする。
func (s *MemoryStore) Read(ctx context.Context, collection, id string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.lookup(collection, id)
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(doc.data, out); err != nil {
		return fmt.Errorf("failed to decode document %s/%s: %w", collection, id, err)
	}
	return nil
}

// ReadMeta はストア管理のcreated/updatedタイムスタンプを返す。
func (s *MemoryStore) ReadMeta(ctx context.Context, collection, id string) (*Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.lookup(collection, id)
	if !ok {
		return nil, ErrNotFound
	}
	return &Meta{Created: doc.created, Updated: doc.updated}, nil
}

// List はコレクション内の全ドキュメントをoutにデコードする。
func (s *MemoryStore) List(ctx context.Context, collection string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.docs[collection]))
	for id := range s.docs[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, json.RawMessage(s.docs[collection][id].data))
	}

	return decodeDocs(docs, out)
}

// Delete はドキュメントを削除する。存在しない場合は何もしない。
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[collection] != nil {
		delete(s.docs[collection], id)
	}
	return nil
}

// ArrayUnion は文字列配列フィールドへvaluesを集合加算する。
func (s *MemoryStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error {
	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutateArray(collection, id, field, func(current []string) []string {
		seen := make(map[string]bool, len(current))
		for _, v := range current {
			seen[v] = true
		}
		for _, v := range values {
			if !seen[v] {
				current = append(current, v)
				seen[v] = true
			}
		}
		return current
	})
}

// ArrayRemove は文字列配列フィールドからvaluesを除去する。
func (s *MemoryStore) ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error {
	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	remove := make(map[string]bool, len(values))
	for _, v := range values {
		remove[v] = true
	}

	return s.mutateArray(collection, id, field, func(current []string) []string {
		kept := make([]string, 0, len(current))
		for _, v := range current {
			if !remove[v] {
				kept = append(kept, v)
			}
		}
		return kept
	})
}

// lookup はロック保持中に呼ぶこと。
func (s *MemoryStore) lookup(collection, id string) (*memoryDoc, bool) {
	if s.docs[collection] == nil {
		return nil, false
	}
	doc, ok := s.docs[collection][id]
	return doc, ok
}

// mutateArray は配列フィールドを読み出し、fnを適用して書き戻す。
// ロック保持中に呼ぶこと。
func (s *MemoryStore) mutateArray(collection, id, field string, fn func([]string) []string) error {
	doc, ok := s.lookup(collection, id)
	if !ok {
		return ErrNotFound
	}

	fields, err := decodeFields(doc.data)
	if err != nil {
		return err
	}

	current := make([]string, 0)
	if rawArr, ok := fields[field].([]any); ok {
		for _, v := range rawArr {
			if str, ok := v.(string); ok {
				current = append(current, str)
			}
		}
	}

	fields[field] = fn(current)

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal mutated document: %w", err)
	}
	doc.data = raw
	doc.updated = time.Now()
	return nil
}

// decodeFields はドキュメントJSONをマップにデコードする。
func decodeFields(raw []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode document fields: %w", err)
	}
	return fields, nil
}

// normalize は任意の値マップをJSON経由でmap[string]anyへ正規化する。
func normalize(patch map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}
	return decodeFields(raw)
}

// compile-time interface check
var _ DocumentStore = (*MemoryStore)(nil)
