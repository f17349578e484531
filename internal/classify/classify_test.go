package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/invoice-rules/constants"
)

func s(v string) *string { return &v }

func TestNormalize(t *testing.T) {
	assert.Equal(t, "acme corp ltd", Normalize("  ACME\t Corp\n\nLtd "))
	assert.Equal(t, "strasse", Normalize("STRASSE"))
	assert.Equal(t, Normalize("Straße"), Normalize("STRASSE"), "full case folding")
	assert.Equal(t, "", Normalize("   "))
}

func TestIsAccurate(t *testing.T) {
	assert.True(t, IsAccurate(nil, nil))
	assert.False(t, IsAccurate(s("x"), nil))
	assert.False(t, IsAccurate(nil, s("x")))
	assert.True(t, IsAccurate(s(" INV-1 "), s("inv-1")))
	assert.False(t, IsAccurate(s("100"), s("100.00")))
}

func TestClassifyMapping(t *testing.T) {
	cases := []struct {
		original, test, actual *string
		want                   constants.ChangeType
	}{
		{s("100"), s("100.00"), s("100.00"), constants.ChangeImproved},
		{s("100.00"), s("100"), s("100.00"), constants.ChangeRegressed},
		{s("a"), s("A "), s("a"), constants.ChangeBothRight},
		{s("b"), nil, s("a"), constants.ChangeBothWrong},
		{nil, nil, nil, constants.ChangeBothRight},
		{nil, s("x"), nil, constants.ChangeRegressed},
		{s("x"), nil, nil, constants.ChangeImproved},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.original, tc.test, tc.actual))
	}
}

func TestClassifySameValueIsBothRight(t *testing.T) {
	for _, v := range []*string{nil, s(""), s("x"), s("  Mixed   Case  "), s("Δ 12,50 €")} {
		assert.Equal(t, constants.ChangeBothRight, Classify(v, v, v))
	}
}

func TestClassifyNeverUnchanged(t *testing.T) {
	for _, o := range []bool{false, true} {
		for _, tt := range []bool{false, true} {
			got := FromAccuracy(o, tt)
			assert.NotEqual(t, constants.ChangeUnchanged, got)
			assert.Contains(t, constants.ChangeTypes, got)
			assert.Equal(t, got, FromAccuracy(o, tt))
		}
	}
}
