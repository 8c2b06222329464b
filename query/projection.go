package query

import "go.mongodb.org/mongo-driver/bson"

// Projection lists the top-level fields a read returns. A nil Projection
// returns whole documents. The _id field is always kept.
type Projection []string

// Fields builds an inclusion projection.
func Fields(names ...string) Projection { return Projection(names) }

// Apply returns the projected copy of doc. doc itself is not modified.
func (p Projection) Apply(doc map[string]any) map[string]any {
	if p == nil {
		return doc
	}
	out := make(map[string]any, len(p)+1)
	if id, ok := doc["_id"]; ok {
		out["_id"] = id
	}
	for _, f := range p {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

// BSON renders the projection for a MongoDB find, or nil for whole documents.
func (p Projection) BSON() bson.D {
	if p == nil {
		return nil
	}
	out := make(bson.D, 0, len(p))
	for _, f := range p {
		out = append(out, bson.E{Key: f, Value: 1})
	}
	return out
}
