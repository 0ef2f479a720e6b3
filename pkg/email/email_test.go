package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalPart(t *testing.T) {
	assert.Equal(t, "jane.doe", LocalPart("jane.doe@example.com"))
	assert.Equal(t, "jane", LocalPart("jane"))
	assert.Equal(t, "a", LocalPart("a@b@c"))
}

func TestDeriveNameFromEmail(t *testing.T) {
	tests := []struct {
		email string
		first string
		last  string
	}{
		{"jane.doe@example.com", "Jane", "Doe"},
		{"jane@example.com", "Jane", "User"},
		{"jane_van-dam@example.com", "Jane", "Dam"},
		{"j+promo@example.com", "J", "Promo"},
		{"", "User", "User"},
	}
	for _, tt := range tests {
		first, last := DeriveNameFromEmail(tt.email)
		assert.Equal(t, tt.first, first, tt.email)
		assert.Equal(t, tt.last, last, tt.email)
	}
}
