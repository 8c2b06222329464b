package catalog

// The validators below are $jsonSchema documents. The local backends check
// them with package schema; the mongo backend installs them on the server.

func stringProp() map[string]any {
	return map[string]any{
		"bsonType":    "string",
		"description": "This must be a string and required",
	}
}

func dateProp() map[string]any {
	return map[string]any{
		"bsonType":    "date",
		"description": "This must be a date",
	}
}

// AuthorSchema returns the validator of the authors collection.
func AuthorSchema() map[string]any {
	return map[string]any{
		"bsonType": "object",
		"required": []any{"name", "lastName", "country"},
		"properties": map[string]any{
			"name":        stringProp(),
			"lastName":    stringProp(),
			"dateOfBirth": dateProp(),
			"dateOfDeath": dateProp(),
			"country":     stringProp(),
		},
	}
}

// BookSchema returns the validator of the books collection. Embedded
// authors must carry _id, name and lastName.
func BookSchema() map[string]any {
	return map[string]any{
		"bsonType": "object",
		"required": []any{"title", "releaseYear", "category"},
		"properties": map[string]any{
			"title": stringProp(),
			"releaseYear": map[string]any{
				"bsonType":    "array",
				"minItems":    int32(1),
				"uniqueItems": true,
				"items":       dateProp(),
			},
			"category": stringProp(),
			"authors": map[string]any{
				"bsonType":    "array",
				"minItems":    int32(1),
				"uniqueItems": true,
				"items": map[string]any{
					"bsonType": "object",
					"required": []any{"_id", "name", "lastName"},
					"properties": map[string]any{
						"_id":      map[string]any{},
						"name":     stringProp(),
						"lastName": stringProp(),
					},
				},
			},
		},
	}
}
