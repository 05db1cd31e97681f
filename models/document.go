package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// IdentifierField is the stable primary key column shared by every collection.
const IdentifierField = "id"

// AuditFields are maintained by the persistence layer and never count as a
// content difference between two versions of a document.
var AuditFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"created_by": true,
	"updated_by": true,
	"version":    true,
}

type Field struct {
	Key   string
	Value any
}

// Document is one stored record with its fields kept in storage order.
//
// Values are restricted to what JSON can carry: nil, bool, string,
// json.Number / int64 / float64, []any and nested Document.
type Document []Field

func (d Document) Get(key string) (any, bool) {
	for _, f := range d {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (d *Document) Set(key string, value any) {
	for i := range *d {
		if (*d)[i].Key == key {
			(*d)[i].Value = value
			return
		}
	}
	*d = append(*d, Field{Key: key, Value: value})
}

func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for _, f := range d {
		keys = append(keys, f.Key)
	}
	return keys
}

// ID returns the identifier rendered as a string, or "" if the document has none.
func (d Document) ID() string {
	v, ok := d.Get(IdentifierField)
	if !ok || v == nil {
		return ""
	}
	return IDString(v)
}

func IDString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*d = nil
	case Document:
		*d = t
	default:
		return errors.New("document must be a JSON object")
	}
	return nil
}

// DecodeValue parses one JSON value keeping object key order. Numbers are
// returned as json.Number so raw values survive a round trip untouched.
func DecodeValue(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return decodeValue(dec)
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		doc := Document{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", kt)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			doc = append(doc, Field{Key: key, Value: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return doc, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}

// CanonicalJSON renders v the way it would appear in an archive, so that a
// live row and its archived copy compare equal whatever Go type carries them.
func CanonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
