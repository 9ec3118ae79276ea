// Package people is the reference workflow: a people table with a nested
// phone number and a repeated children field, generated from numeric ids.
package people

import (
	"fmt"
	"strconv"

	"tableload/internal/record"
	"tableload/internal/schema"
)

// DefaultIDs are the ids loaded when none are given.
var DefaultIDs = []string{"1", "2", "3", "4", "5"}

// Schema returns:
//
//	kind        STRING   NULLABLE
//	fullName    STRING   REQUIRED
//	age         INTEGER  NULLABLE
//	gender      STRING   NULLABLE
//	phoneNumber RECORD   NULLABLE {areaCode INTEGER, number INTEGER}
//	children    STRING   REPEATED
func Schema() (schema.Schema, error) {
	b := schema.NewBuilder()
	b.AddField("kind", schema.TypeString, schema.ModeNullable)
	b.AddField("fullName", schema.TypeString, schema.ModeRequired)
	b.AddField("age", schema.TypeInteger, schema.ModeNullable)
	b.AddField("gender", schema.TypeString, schema.ModeNullable)
	phone := b.AddNestedField("phoneNumber", schema.ModeNullable)
	phone.AddField("areaCode", schema.TypeInteger, schema.ModeNullable)
	phone.AddField("number", schema.TypeInteger, schema.ModeNullable)
	b.AddField("children", schema.TypeString, schema.ModeRepeated)
	return b.Build()
}

// Record builds the person for id. It is pure; the same id always yields an
// equal record.
func Record(id string) (record.Record, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("people: id %q is not an integer", id)
	}
	return record.Record{
		"kind":     record.String("kind" + id),
		"fullName": record.String("fullName" + id),
		"age":      record.Int(n * 10),
		"gender":   record.String("male"),
		"phoneNumber": record.Nested(record.Record{
			"areaCode": record.Int(n * 100),
			"number":   record.Int(n * 100000),
		}),
		"children": record.Strings("child"+id+"1", "child"+id+"2", "child"+id+"3"),
	}, nil
}
