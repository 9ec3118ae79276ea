package mongodb

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"tableload/internal/record"
	"tableload/internal/schema"
)

// toDocument converts r into a BSON document with keys in schema order.
// Nested records keep their child order; null and absent fields are
// omitted.
func toDocument(fields []schema.FieldDescriptor, r record.Record) bson.D {
	doc := make(bson.D, 0, len(fields))
	for _, f := range fields {
		v, ok := r.Get(f.Name)
		if !ok || v.IsNull() {
			continue
		}
		doc = append(doc, bson.E{Key: f.Name, Value: toBSON(f, v)})
	}
	return doc
}

func toBSON(f schema.FieldDescriptor, v record.Value) any {
	switch v.Kind() {
	case record.KindRecord:
		r, _ := v.Record()
		return toDocument(f.Children, r)
	case record.KindList:
		elems, _ := v.List()
		arr := make(bson.A, len(elems))
		for i, e := range elems {
			arr[i] = toBSON(f, e)
		}
		return arr
	case record.KindNull:
		return nil
	}
	x, _ := v.Scalar()
	return x
}

// schemaDoc is the metadata document kept per table.
type schemaDoc struct {
	ID          string `bson:"_id"`
	Schema      string `bson:"schema_json"`
	Fingerprint string `bson:"fingerprint"`
}
