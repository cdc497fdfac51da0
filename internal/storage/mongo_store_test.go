package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/specs"
)

func TestBSONSpecs_KeepOrder(t *testing.T) {
	obj := &specs.Object{}
	require.NoError(t, json.Unmarshal([]byte(`{"battery":{"wired_charging_w":25,"capacity_mah":3900},"weight_g":187.5,"hdr":["HDR10"]}`), obj))

	doc := objectToBSON(obj)
	require.Len(t, doc, 3)
	assert.Equal(t, "battery", doc[0].Key)
	assert.Equal(t, bson.D{{Key: "wired_charging_w", Value: int64(25)}, {Key: "capacity_mah", Value: int64(3900)}}, doc[0].Value)
	assert.Equal(t, 187.5, doc[1].Value)
	assert.Equal(t, bson.A{"HDR10"}, doc[2].Value)

	back := bsonToObject(doc)
	assert.Equal(t, []string{"battery", "weight_g", "hdr"}, back.Keys())
	assert.Equal(t, int64(25), specs.NormalizeValue(mustGet(t, back, "battery")))
}

func TestBSONSpecs_Int32Widened(t *testing.T) {
	obj := bsonToObject(bson.D{{Key: "ram_gb", Value: bson.D{{Key: "value", Value: int32(8)}}}})
	assert.Equal(t, int64(8), specs.NormalizeValue(mustGet(t, obj, "ram_gb")))
}

func mustGet(t *testing.T, o *specs.Object, key string) any {
	t.Helper()
	v, ok := o.Get(key)
	require.True(t, ok, key)
	return v
}
