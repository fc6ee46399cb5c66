package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCursorToken(t *testing.T) {
	createdAt := time.Date(2026, 5, 15, 14, 30, 45, 123456789, time.UTC)

	token := EncodeCursorToken(createdAt, "3f0c3c9e-3f4f-4e59-9d0a-9e6b3c1f2a11")
	assert.NotEmpty(t, token, "Token should not be empty")
	assert.NotContains(t, token, "=", "Token should be URL safe without padding")

	decodedAt, decodedID, err := DecodeCursorToken(token)
	require.NoError(t, err)
	assert.True(t, createdAt.Equal(decodedAt), "Created at should match after decode")
	assert.Equal(t, "3f0c3c9e-3f4f-4e59-9d0a-9e6b3c1f2a11", decodedID)
}

func TestDecodeCursorToken_NonUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, loc)

	decodedAt, _, err := DecodeCursorToken(EncodeCursorToken(createdAt, "id-1"))
	require.NoError(t, err)
	assert.True(t, createdAt.Equal(decodedAt))
}

func TestDecodeCursorToken_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "%%%"},
		{name: "single field", token: EncodeMultiFieldToken("2026-01-01T00:00:00Z")},
		{name: "bad time", token: EncodeMultiFieldToken("yesterday", "id-1")},
		{name: "empty id", token: EncodeMultiFieldToken("2026-01-01T00:00:00Z", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeCursorToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestMultiFieldToken(t *testing.T) {
	fields := []string{"a", "b", "c"}
	decoded, err := DecodeMultiFieldToken(EncodeMultiFieldToken(fields...))
	require.NoError(t, err)
	assert.Equal(t, fields, decoded)
}
