package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatic(t *testing.T) {
	s := NewStatic([]string{"admin", " foschi ", ""})
	assert.True(t, s.Unlimited("admin"))
	assert.True(t, s.Unlimited("foschi"))
	assert.False(t, s.Unlimited("ana"))
	assert.False(t, s.Unlimited(""))

	var none *Static
	assert.False(t, none.Unlimited("admin"))
}
