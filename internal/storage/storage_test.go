package storage

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	empresaID := uuid.New()
	key := ObjectKey(empresaID, "media", "Foto.JPG")

	assert.True(t, strings.HasPrefix(key, empresaID.String()+"/media/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
	assert.NotEqual(t, key, ObjectKey(empresaID, "media", "Foto.JPG"))
}

func TestExtractObjectKey(t *testing.T) {
	s := &Storage{bucket: "embudo", publicURL: "https://cdn.test"}
	key := "abc/media/x.png"

	got, err := s.ExtractObjectKey(s.PublicURL(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "image", MediaType("image/png"))
	assert.Equal(t, "video", MediaType("video/mp4"))
	assert.Equal(t, "audio", MediaType("audio/ogg"))
	assert.Equal(t, "document", MediaType("application/pdf"))
}
