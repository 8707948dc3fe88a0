package id

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUID_Format(t *testing.T) {
	uuidRegex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	for i := 0; i < 50; i++ {
		got := UUID()
		assert.Regexp(t, uuidRegex, got)
	}
}

func TestUUID_Uniqueness(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		got := UUID()
		if seen[got] {
			t.Fatalf("UUID() generated duplicate: %s", got)
		}
		seen[got] = true
	}
}

func TestShort(t *testing.T) {
	got := Short()
	assert.Len(t, got, 16)
	assert.Regexp(t, `^[0-9a-f]{16}$`, got)
	assert.NotEqual(t, got, Short())
}
