package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(empty)", MaskKey(""))
	assert.Equal(t, "****", MaskKey("short"))
	assert.Equal(t, "sk-ant-a...wxyz", MaskKey("sk-ant-api03-abcdefwxyz"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel...", Truncate("hello world", 3))
	assert.Equal(t, "hello", Truncate("hello", 0))
}
