package models

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// mysqlTimeLayout is accepted back by DATETIME columns on write.
const mysqlTimeLayout = "2006-01-02 15:04:05.999999"

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// DocumentStore exposes every table as a collection of ordered Documents.
type DocumentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) CollectionNames(ctx context.Context) ([]string, error) {
	tables, err := s.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, err
	}
	sort.Strings(tables)
	return tables, nil
}

func (s *DocumentStore) FindAll(ctx context.Context, collection string) ([]Document, error) {
	if err := checkCollectionName(collection); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Table(collection)
	if s.db.Migrator().HasColumn(collection, IdentifierField) {
		q = q.Order(IdentifierField + " ASC")
	}
	rows, err := q.Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	docs := []Document{}
	for rows.Next() {
		values := make([]any, len(columnTypes))
		ptrs := make([]any, len(columnTypes))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		doc := make(Document, 0, len(columnTypes))
		for i, ct := range columnTypes {
			doc = append(doc, Field{Key: ct.Name(), Value: normalizeColumnValue(ct.DatabaseTypeName(), values[i])})
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// normalizeColumnValue maps a scanned driver value onto the JSON-safe value
// set Document carries.
func normalizeColumnValue(dbType string, v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.UTC().Format(mysqlTimeLayout)
	case []byte:
		return normalizeText(strings.ToUpper(dbType), string(t))
	case string:
		return normalizeText(strings.ToUpper(dbType), t)
	default:
		return t
	}
}

func normalizeText(dbType string, s string) any {
	switch dbType {
	case "JSON":
		if v, err := DecodeValue(strings.NewReader(s)); err == nil {
			return v
		}
		return s
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "UNSIGNED BIGINT", "YEAR":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		return s
	case "FLOAT", "DOUBLE":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	}
	return s
}

// ApplyCollection upserts docs and deletes ids inside one transaction scoped
// to a single collection.
func (s *DocumentStore) ApplyCollection(ctx context.Context, collection string, upserts []Document, deletes []string) error {
	if err := checkCollectionName(collection); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, doc := range upserts {
			row, columns, err := rowValues(doc)
			if err != nil {
				return fmt.Errorf("%s id=%s: %w", collection, doc.ID(), err)
			}
			q := tx.Table(collection)
			if len(columns) > 0 {
				q = q.Clauses(clause.OnConflict{DoUpdates: clause.AssignmentColumns(columns)})
			}
			if err := q.Create(row).Error; err != nil {
				return fmt.Errorf("%s id=%s: %w", collection, doc.ID(), err)
			}
		}
		if len(deletes) > 0 {
			stmt := fmt.Sprintf("DELETE FROM `%s` WHERE `%s` IN ?", collection, IdentifierField)
			if err := tx.Exec(stmt, deletes).Error; err != nil {
				return fmt.Errorf("%s delete: %w", collection, err)
			}
		}
		return nil
	})
}

// rowValues converts a Document into column values plus the non-key columns
// to refresh on conflict. Arrays and nested objects go back as JSON text.
func rowValues(doc Document) (map[string]interface{}, []string, error) {
	if doc.ID() == "" {
		return nil, nil, fmt.Errorf("document has no %s", IdentifierField)
	}
	row := make(map[string]interface{}, len(doc))
	columns := make([]string, 0, len(doc))
	for _, f := range doc {
		if err := checkCollectionName(f.Key); err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		switch v := f.Value.(type) {
		case []any, Document:
			var buf bytes.Buffer
			enc := json.NewEncoder(&buf)
			enc.SetEscapeHTML(false)
			if err := enc.Encode(v); err != nil {
				return nil, nil, err
			}
			row[f.Key] = strings.TrimSpace(buf.String())
		case json.Number:
			row[f.Key] = v.String()
		default:
			row[f.Key] = v
		}
		if f.Key != IdentifierField {
			columns = append(columns, f.Key)
		}
	}
	return row, columns, nil
}

func checkCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}
