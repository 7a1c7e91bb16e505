package validation

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
)

func TestSchemaValidator_InteractionEvent(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)
	assert.True(t, sv.SchemaExists(InteractionEventSchema))

	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{"view", `{"type":"view","user_id":"u1","product_id":4}`, true},
		{"purchase with category", `{"type":"purchase","user_id":"u1","product_id":4,"category_id":2}`, true},
		{"purchase with null category", `{"type":"purchase","user_id":"u1","product_id":4,"category_id":null}`, true},
		{"rating", `{"type":"rating","user_id":"u1","product_id":4,"rating":5}`, true},
		{"rating missing score", `{"type":"rating","user_id":"u1","product_id":4}`, false},
		{"rating out of range", `{"type":"rating","user_id":"u1","product_id":4,"rating":9}`, false},
		{"unknown type", `{"type":"click","user_id":"u1","product_id":4}`, false},
		{"empty user", `{"type":"view","user_id":"","product_id":4}`, false},
		{"non-positive product", `{"type":"view","user_id":"u1","product_id":0}`, false},
		{"string product id", `{"type":"view","user_id":"u1","product_id":"4"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sv.ValidateInteractionEvent([]byte(tt.doc))

			assert.Equal(t, tt.valid, result.Valid, "%+v", result.Errors)
			if tt.valid {
				assert.NoError(t, result.Err())
			} else {
				assert.Error(t, result.Err())
				assert.NotEmpty(t, result.Errors)
			}
		})
	}
}

func TestSchemaValidator_MalformedDocument(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	result := sv.ValidateInteractionEvent("{not json")

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "MALFORMED_JSON", result.Errors[0].Code)
}

func TestSchemaValidator_StructInput(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	result := sv.ValidateInteractionEvent(map[string]interface{}{
		"type":       "view",
		"user_id":    "u1",
		"product_id": 3,
	})

	assert.True(t, result.Valid)
}

func TestSchemaValidator_LoadSchemaFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"s/thing.json":  {Data: []byte(`{"type":"object","required":["id"]}`)},
		"s/README.md":   {Data: []byte("ignored")},
		"s/broken.json": {Data: []byte(`{not json`)},
	}

	sv := &SchemaValidator{schemas: map[string]*gojsonschema.Schema{}}
	err := sv.LoadSchemaFromFS(fsys, "s")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broken.json")
	assert.Equal(t, "SCHEMA_NOT_FOUND", sv.validate("missing", "{}").Errors[0].Code)
}
