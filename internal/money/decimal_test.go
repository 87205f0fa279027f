package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0.0250", "0.0250"},
		{"100", "100.0000"},
		{"100.0000", "100.0000"},
		{"0", "0.0000"},
		{"12.5", "12.5000"},
	}
	for _, c := range cases {
		d, err := Parse(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, d.String(), c.in)
	}
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not-a-number")
	assert.Error(t, err)
}

func TestAddSub(t *testing.T) {
	a := MustParse("100.0000")
	b := MustParse("0.0250")

	sum := a.Add(b)
	assert.Equal(t, "100.0250", sum.String())

	diff := sum.Sub(b)
	assert.Equal(t, "100.0000", diff.String())
}

func TestCmpAndPredicates(t *testing.T) {
	zero := Zero
	positive := MustParse("0.0001")
	negative := MustParse("0.0001").Sub(MustParse("0.0002"))

	assert.True(t, zero.LessOrEqualZero())
	assert.True(t, negative.LessOrEqualZero())
	assert.False(t, positive.LessOrEqualZero())

	assert.True(t, positive.IsPositive())
	assert.False(t, zero.IsPositive())

	assert.Equal(t, -1, zero.Cmp(positive))
	assert.Equal(t, 1, positive.Cmp(zero))
	assert.Equal(t, 0, zero.Cmp(Zero))
}

func TestNew(t *testing.T) {
	d := New(100, 0)
	assert.Equal(t, "100.0000", d.String())

	d2 := New(0, 250)
	assert.Equal(t, "0.0250", d2.String())
}
