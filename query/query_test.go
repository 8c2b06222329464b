package query

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func year(y int) time.Time { return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC) }

func book() map[string]any {
	return map[string]any{
		"_id":         primitive.NewObjectID(),
		"title":       "Eldorado",
		"category":    "Poetry",
		"releaseYear": []any{year(1849)},
		"authors": []any{
			map[string]any{"_id": primitive.NewObjectID(), "name": "Edgar Allan", "lastName": "Poe"},
		},
	}
}

func TestEq(t *testing.T) {
	doc := book()

	assert.True(t, Eq("title", "Eldorado").Match(doc))
	assert.False(t, Eq("title", "Eldorado New Edition").Match(doc))

	t.Run("dotted path into array of documents", func(t *testing.T) {
		assert.True(t, Eq("authors.name", "Edgar Allan").Match(doc))
		assert.False(t, Eq("authors.name", "Dan").Match(doc))
	})

	t.Run("array element", func(t *testing.T) {
		assert.True(t, Eq("releaseYear", year(1849)).Match(doc))
		assert.True(t, Eq("releaseYear", year(1849).In(time.FixedZone("X", 7200))).Match(doc))
	})

	t.Run("missing field", func(t *testing.T) {
		assert.False(t, Eq("isbn", "x").Match(doc))
	})

	t.Run("numbers across widths", func(t *testing.T) {
		assert.True(t, Eq("n", 3).Match(map[string]any{"n": int32(3)}))
		assert.True(t, Eq("n", float64(3)).Match(map[string]any{"n": int64(3)}))
	})
}

func TestLt(t *testing.T) {
	doc := book()

	assert.True(t, Lt("releaseYear", year(2002)).Match(doc))
	assert.False(t, Lt("releaseYear", year(1800)).Match(doc))

	doc["releaseYear"] = []any{year(2003), year(1849)}
	assert.True(t, Lt("releaseYear", year(2002)).Match(doc), "any element below the bound matches")

	assert.False(t, Lt("dateOfBirth", year(1990)).Match(doc), "missing field never matches")
	assert.False(t, Lt("title", year(1990)).Match(doc), "different kinds are not comparable")
}

func TestExists(t *testing.T) {
	assert.True(t, Exists("dateOfDeath").Match(map[string]any{"dateOfDeath": year(1936)}))
	assert.True(t, Exists("dateOfDeath").Match(map[string]any{"dateOfDeath": nil}))
	assert.False(t, Exists("dateOfDeath").Match(map[string]any{"name": "Dan"}))
}

func TestSizeGt(t *testing.T) {
	doc := book()
	assert.False(t, SizeGt("authors", 1).Match(doc))

	doc["authors"] = append(doc["authors"].([]any), map[string]any{"name": "Dan", "lastName": "Brown"})
	assert.True(t, SizeGt("authors", 1).Match(doc))

	assert.False(t, SizeGt("authors", 1).Match(map[string]any{"title": "x"}))
}

func TestAnd(t *testing.T) {
	doc := book()
	assert.True(t, And().Match(doc))
	assert.True(t, And(Eq("category", "Poetry"), Lt("releaseYear", year(1900))).Match(doc))
	assert.False(t, And(Eq("category", "Poetry"), Eq("title", "Inferno")).Match(doc))
}

func TestFilterBSON(t *testing.T) {
	assert.Equal(t, bson.D{}, All().BSON())
	assert.Equal(t, bson.D{{Key: "category", Value: "Poetry"}}, Eq("category", "Poetry").BSON())
	assert.Equal(t,
		bson.D{{Key: "dateOfDeath", Value: bson.D{{Key: "$exists", Value: true}}}},
		Exists("dateOfDeath").BSON())
	assert.Equal(t,
		bson.D{{Key: "releaseYear", Value: bson.D{{Key: "$lt", Value: year(2002)}}}},
		Lt("releaseYear", year(2002)).BSON())

	rendered := And(Eq("a", "b"), Exists("c")).BSON()
	require.Len(t, rendered, 1)
	assert.Equal(t, "$and", rendered[0].Key)
}

func TestSet(t *testing.T) {
	doc := map[string]any{"name": "Dan"}
	require.NoError(t, Set("dateOfDeath", year(2020)).Apply(doc))
	assert.Equal(t, year(2020), doc["dateOfDeath"])

	require.NoError(t, Set("meta.source", "seed").Apply(doc))
	assert.Equal(t, map[string]any{"source": "seed"}, doc["meta"])

	assert.Error(t, Set("name.first", "x").Apply(doc))
}

func TestPush(t *testing.T) {
	doc := book()
	original := doc["releaseYear"].([]any)

	require.NoError(t, Push("releaseYear", year(2021)).Apply(doc))
	assert.Equal(t, []any{year(1849), year(2021)}, doc["releaseYear"])
	assert.Len(t, original, 1, "the previous array is not aliased")

	require.NoError(t, Push("tags", "classic").Apply(doc))
	assert.Equal(t, []any{"classic"}, doc["tags"])

	assert.Error(t, Push("title", "x").Apply(doc))
}

func TestConcat(t *testing.T) {
	doc := book()
	require.NoError(t, Concat("title", " New Edition").Apply(doc))
	assert.Equal(t, "Eldorado New Edition", doc["title"])

	require.NoError(t, Concat("subtitle", "x").Apply(doc))
	assert.Nil(t, doc["subtitle"])

	pipeline, ok := Concat("title", " New Edition").BSON().(mongo.Pipeline)
	require.True(t, ok, "concat renders as a pipeline update")
	require.Len(t, pipeline, 1)
	assert.Equal(t, "$set", pipeline[0][0].Key)
}

func TestProjection(t *testing.T) {
	doc := book()

	full := Projection(nil).Apply(doc)
	assert.Equal(t, doc, full)

	p := Fields("title", "releaseYear").Apply(doc)
	assert.Equal(t, []string{"_id", "releaseYear", "title"}, sortedKeys(p))
	assert.Contains(t, doc, "category", "source document untouched")

	assert.Nil(t, Projection(nil).BSON())
	assert.Equal(t, bson.D{{Key: "title", Value: 1}}, Fields("title").BSON())
}

func TestCanonical(t *testing.T) {
	in := bson.D{
		{Key: "when", Value: primitive.NewDateTimeFromTime(year(1849))},
		{Key: "list", Value: bson.A{int32(1), bson.D{{Key: "k", Value: "v"}}}},
		{Key: "local", Value: time.Date(2021, 1, 1, 1, 0, 0, 123456789, time.FixedZone("X", 3600))},
	}
	out := Canonical(in).(map[string]any)

	assert.Equal(t, year(1849), out["when"])
	assert.Equal(t, []any{int32(1), map[string]any{"k": "v"}}, out["list"])
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 123000000, time.UTC), out["local"])
}

func TestEqual(t *testing.T) {
	id := primitive.NewObjectID()
	a := map[string]any{"_id": id, "name": "Dan", "years": []any{year(1964)}}
	b := map[string]any{"_id": id, "name": "Dan", "years": []any{year(1964)}}
	assert.True(t, Equal(a, b))

	b["name"] = "Edgar Allan"
	assert.False(t, Equal(a, b))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, "x"))
}
