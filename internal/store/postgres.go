package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore はPostgreSQLを使用したDocumentStoreの実装。
// 全コレクションを単一のdocumentsテーブル（collection, doc_id, data jsonb,
// created, updated）に格納する。配列の集合演算は1文のUPDATEで行い、
// 行ロックによって並行呼び出しに対するアトミック性を保証する。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Set はドキュメントを作成または完全上書きし、作成時刻を打刻する。
// 上書き時もcreatedを打刻し直す（setは「新規作成と同等」の意味論）。
func (s *PostgresStore) Set(ctx context.Context, collection, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, doc_id, data, created, updated)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (collection, doc_id)
		 DO UPDATE SET data = EXCLUDED.data, created = now(), updated = now()`,
		collection, id, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to set document %s/%s: %w", collection, id, err)
	}

	return nil
}

// Update は指定フィールドのみをマージし、更新時刻を打刻する。
func (s *PostgresStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal patch: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents
		 SET data = data || $3::jsonb, updated = now()
		 WHERE collection = $1 AND doc_id = $2`,
		collection, id, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to update document %s/%s: %w", collection, id, err)
	}

	return requireRow(result)
}

// Read はドキュメントをoutにデコードする。
func (s *PostgresStore) Read(ctx context.Context, collection, id string, out any) error {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND doc_id = $2`,
		collection, id,
	).Scan(&raw)

	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read document %s/%s: %w", collection, id, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document %s/%s: %w", collection, id, err)
	}

	return nil
}

// ReadMeta はストア管理のcreated/updatedタイムスタンプを返す。
func (s *PostgresStore) ReadMeta(ctx context.Context, collection, id string) (*Meta, error) {
	meta := &Meta{}
	err := s.db.QueryRowContext(ctx,
		`SELECT created, updated FROM documents WHERE collection = $1 AND doc_id = $2`,
		collection, id,
	).Scan(&meta.Created, &meta.Updated)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document meta %s/%s: %w", collection, id, err)
	}

	return meta, nil
}

// List はコレクション内の全ドキュメントをoutにデコードする。
func (s *PostgresStore) List(ctx context.Context, collection string, out any) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 ORDER BY doc_id`,
		collection,
	)
	if err != nil {
		return fmt.Errorf("failed to list collection %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]json.RawMessage, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("failed to scan document in %s: %w", collection, err)
		}
		docs = append(docs, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate collection %s: %w", collection, err)
	}

	return decodeDocs(docs, out)
}

// Delete はドキュメントを削除する。存在しない場合は何もしない。
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND doc_id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}

	return nil
}

// ArrayUnion は文字列配列フィールドへvaluesをアトミックに集合加算する。
// UNIONによる重複排除込みの1文のUPDATEで実行する。
func (s *PostgresStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error {
	if len(values) == 0 {
		return nil
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents
		 SET data = jsonb_set(data, $3::text[], (
		     SELECT COALESCE(jsonb_agg(to_jsonb(m.elem)), '[]'::jsonb)
		     FROM (
		         SELECT jsonb_array_elements_text(COALESCE(data #> $3::text[], '[]'::jsonb)) AS elem
		         UNION
		         SELECT unnest($4::text[])
		     ) m
		 )), updated = now()
		 WHERE collection = $1 AND doc_id = $2`,
		collection, id, pq.Array([]string{field}), pq.Array(values),
	)
	if err != nil {
		return fmt.Errorf("failed to array-union on document %s/%s: %w", collection, id, err)
	}

	return requireRow(result)
}

// ArrayRemove は文字列配列フィールドからvaluesをアトミックに除去する。
func (s *PostgresStore) ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error {
	if len(values) == 0 {
		return nil
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents
		 SET data = jsonb_set(data, $3::text[], (
		     SELECT COALESCE(jsonb_agg(to_jsonb(m.elem)), '[]'::jsonb)
		     FROM (
		         SELECT jsonb_array_elements_text(COALESCE(data #> $3::text[], '[]'::jsonb)) AS elem
		         EXCEPT
		         SELECT unnest($4::text[])
		     ) m
		 )), updated = now()
		 WHERE collection = $1 AND doc_id = $2`,
		collection, id, pq.Array([]string{field}), pq.Array(values),
	)
	if err != nil {
		return fmt.Errorf("failed to array-remove on document %s/%s: %w", collection, id, err)
	}

	return requireRow(result)
}

// requireRow は更新対象行が存在しなかった場合にErrNotFoundへ変換する。
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// decodeDocs はJSONドキュメント列を配列として一括でoutへデコードする。
func decodeDocs(docs []json.RawMessage, out any) error {
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("failed to marshal document list: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document list: %w", err)
	}
	return nil
}

// compile-time interface check
var _ DocumentStore = (*PostgresStore)(nil)
