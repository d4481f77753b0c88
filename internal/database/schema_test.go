package database

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type sampleState struct {
	Orders map[string]int `json:"orders"`
	Owner  string         `json:"owner"`
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var empty sampleState
	found, err := store.Load(ctx, "orders", &empty)
	require.NoError(t, err)
	assert.False(t, found)

	in := sampleState{Orders: map[string]int{"a": 1}, Owner: "fam-1"}
	require.NoError(t, store.Save(ctx, "orders", in))

	raw, ok := store.Raw("orders")
	require.True(t, ok)
	assert.Equal(t, int64(CurrentSchemaVersion), gjson.GetBytes(raw, "schema_version").Int())
	assert.Equal(t, "fam-1", gjson.GetBytes(raw, "data.owner").String())

	var out sampleState
	found, err = store.Load(ctx, "orders", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)
}

func TestUnversionedBlobIsMigrated(t *testing.T) {
	RegisterMigration("legacy-sample", 0, func(data []byte) ([]byte, error) {
		var old map[string]any
		if err := json.Unmarshal(data, &old); err != nil {
			return nil, err
		}
		old["owner"] = old["user"]
		delete(old, "user")
		return json.Marshal(old)
	})

	store := NewMemoryStore()
	store.Put("legacy-sample", []byte(`{"user":"senior-9","orders":{"x":2}}`))

	var out sampleState
	found, err := store.Load(context.Background(), "legacy-sample", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "senior-9", out.Owner)
	assert.Equal(t, 2, out.Orders["x"])
}

func TestUnversionedBlobWithoutMigrationDecodesAsIs(t *testing.T) {
	store := NewMemoryStore()
	store.Put("plain", []byte(`{"owner":"pal-1"}`))

	var out sampleState
	found, err := store.Load(context.Background(), "plain", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "pal-1", out.Owner)
}

func TestNewerSchemaIsRejected(t *testing.T) {
	store := NewMemoryStore()
	store.Put("future", []byte(`{"schema_version":99,"data":{}}`))

	var out sampleState
	found, err := store.Load(context.Background(), "future", &out)
	assert.False(t, found)
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}
