package store

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/stevemurr/booksdb/query"
)

// ToDocument converts a bson-tagged struct (or any BSON-encodable value)
// into a Document.
func ToDocument(v any) (Document, error) {
	b, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return query.Canonical(d).(map[string]any), nil
}

// Decode fills the bson-tagged struct v from doc.
func Decode(doc Document, v any) error {
	b, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return bson.Unmarshal(b, v)
}

// ExtJSON renders doc as relaxed extended JSON with _id first and the
// remaining keys sorted, so repeated renders of equal documents are equal.
func ExtJSON(doc Document) ([]byte, error) {
	return bson.MarshalExtJSON(ordered(doc), false, false)
}

func ordered(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			if k != "_id" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		d := make(bson.D, 0, len(t))
		if id, ok := t["_id"]; ok {
			d = append(d, bson.E{Key: "_id", Value: ordered(id)})
		}
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: ordered(t[k])})
		}
		return d
	case []any:
		a := make(bson.A, len(t))
		for i, e := range t {
			a[i] = ordered(e)
		}
		return a
	}
	return v
}

func copyDoc(doc Document) Document {
	if doc == nil {
		return nil
	}
	return query.Canonical(doc).(map[string]any)
}

func idKey(v any) string {
	if oid, ok := v.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// Canonical extended JSON keeps BSON types (int32 vs int64, dates,
// ObjectIDs) intact across a round trip through a file or a text column.

func marshalDocument(doc Document) ([]byte, error) {
	return bson.MarshalExtJSON(ordered(doc), true, false)
}

func unmarshalDocument(data []byte) (Document, error) {
	var d bson.D
	if err := bson.UnmarshalExtJSON(data, true, &d); err != nil {
		return nil, err
	}
	return query.Canonical(d).(map[string]any), nil
}

type documentFile struct {
	Documents []bson.D `bson:"documents"`
}

func marshalDocuments(docs []Document) ([]byte, error) {
	list := make(bson.A, len(docs))
	for i, d := range docs {
		list[i] = ordered(d)
	}
	return bson.MarshalExtJSONIndent(bson.D{{Key: "documents", Value: list}}, true, false, "", "  ")
}

func unmarshalDocuments(data []byte) ([]Document, error) {
	var f documentFile
	if err := bson.UnmarshalExtJSON(data, true, &f); err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(f.Documents))
	for _, d := range f.Documents {
		docs = append(docs, query.Canonical(d).(map[string]any))
	}
	return docs, nil
}
