package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "medialib:bulk:lock", Key("bulk", "lock"))
	assert.Equal(t, "medialib:watermark", Key("watermark"))
}
