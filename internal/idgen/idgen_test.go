package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHex(t *testing.T) {
	id := Hex(16)
	assert.Len(t, id, 32)
	assert.Equal(t, strings.ToLower(id), id)
	assert.NotEqual(t, id, Hex(16))
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("rcpt_")
	assert.True(t, strings.HasPrefix(id, "rcpt_"))
	assert.Len(t, id, len("rcpt_")+24)
}
