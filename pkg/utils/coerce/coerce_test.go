package coerce

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	assert.Equal(t, Canonical(1), Canonical(int64(1)))
	assert.Equal(t, Canonical(1), Canonical(float64(1)))
	assert.Equal(t, Canonical("abc"), Canonical([]byte("abc")))
	assert.Equal(t,
		Canonical([]interface{}{1, "a"}),
		Canonical([]interface{}{int64(1), []byte("a")}),
	)
	assert.NotEqual(t, Canonical([]interface{}{1, 2}), Canonical([]interface{}{12}))
	assert.NotEqual(t, Canonical(nil), Canonical(""))

	assert.Equal(t, Canonical(7), Canonical("7.00"))
	assert.Equal(t, Canonical(7), Canonical([]byte("7.0")))
	assert.Equal(t, Canonical(1.5), Canonical("1.50"))
	assert.Equal(t, "2.25", Canonical(decimal.RequireFromString("2.250")))
	assert.Equal(t, "v1.2", Canonical("v1.2"))
	assert.NotEqual(t, Canonical(7), Canonical("007"))
}

func TestConversions(t *testing.T) {
	i, err := ToInt("42")
	assert.NoError(t, err)
	assert.Equal(t, 42, i)

	_, err = ToInt("budi")
	assert.Error(t, err)

	assert.Equal(t, 7, ToIntDef("", 7))
	assert.Equal(t, 3, ToIntDef("3", 7))

	b, err := ToBool("true")
	assert.NoError(t, err)
	assert.True(t, b)

	assert.True(t, IsZeroID(nil))
	assert.True(t, IsZeroID(int64(0)))
	assert.True(t, IsZeroID(""))
	assert.False(t, IsZeroID(5))
	assert.False(t, IsZeroID("abc"))
}
