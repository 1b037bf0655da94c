package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductHasStock(t *testing.T) {
	three := 3

	unlimited := &Product{}
	assert.True(t, unlimited.HasStock(1000))

	tracked := &Product{Stock: &three}
	assert.True(t, tracked.HasStock(3))
	assert.False(t, tracked.HasStock(4))
}
