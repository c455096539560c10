package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchema_DefinesTables(t *testing.T) {
	schema := Schema()

	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS kv_store")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS artifact_blobs")
	assert.Contains(t, schema, "expires_at")
	assert.Contains(t, schema, "UNIQUE (namespace, name)")
}

func TestBlobInput(t *testing.T) {
	input := &BlobInput{
		Namespace: "job_1/images",
		Name:      "image_1.png",
		Content:   []byte{0x89, 0x50},
	}

	assert.Equal(t, "job_1/images", input.Namespace)
	assert.Equal(t, "image_1.png", input.Name)
	assert.Empty(t, input.ContentType)
	assert.Len(t, input.Content, 2)
}
