package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizedSet(t *testing.T) {
	got := NormalizedSet([]string{" B ", "a", "b", "", "A"})
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestNormalizedSet_OrderIndependent(t *testing.T) {
	assert.Equal(t,
		NormalizedSet([]string{"So11", "DezX"}),
		NormalizedSet([]string{"dezx", "SO11", "So11"}),
	)
}

func TestUniqueOriginal_KeepsFirstSpelling(t *testing.T) {
	got := UniqueOriginal([]string{"DezXAbc", "dezxabc", " So11 "})
	assert.Equal(t, []string{"DezXAbc", "So11"}, got)
}
