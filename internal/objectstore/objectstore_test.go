package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NoEndpointIsNoop(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, m.Enabled())
	assert.NoError(t, m.Put(context.Background(), "k", "/does/not/exist"))
}

func TestNew_MinioRequiresBucket(t *testing.T) {
	_, err := New(Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestNew_Minio(t *testing.T) {
	m, err := New(Config{Endpoint: "localhost:9000", Bucket: "flights", Prefix: "/runs/"})
	require.NoError(t, err)
	assert.True(t, m.Enabled())

	mm, ok := m.(*MinioMirror)
	require.True(t, ok)
	assert.Equal(t, "runs", mm.prefix)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "runs/site a/data.csv", Key("runs", "site a", "data.csv"))
	assert.Equal(t, "site/data.csv", Key("", "/site/", "data.csv"))
	assert.Equal(t, "data.csv", Key("", "", "data.csv"))
}
