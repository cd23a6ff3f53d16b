package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_OrderAndDuplicatesIgnored(t *testing.T) {
	inputs := [][]string{
		{"A", "B"},
		{"B", "A"},
		{"A", "A", "B"},
		{"B", "A", "B", "A"},
		{" A", "B "},
	}

	for _, in := range inputs {
		key, err := Key(in...)
		require.NoError(t, err, "input %v", in)
		assert.Equal(t, "A|B", key, "input %v", in)
	}
}

func TestKey_DistinctSetsDiffer(t *testing.T) {
	ab, err := Key("A", "B")
	require.NoError(t, err)
	a, err := Key("A")
	require.NoError(t, err)
	abc, err := Key("A", "B", "C")
	require.NoError(t, err)

	assert.NotEqual(t, ab, a)
	assert.NotEqual(t, ab, abc)
}

func TestKey_NFCNormalization(t *testing.T) {
	// "é" precomposed vs "e" + combining acute accent
	composed, err := Key("caf\u00e9")
	require.NoError(t, err)
	decomposed, err := Key("cafe\u0301")
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestNewSet_RejectsInvalidNames(t *testing.T) {
	_, err := NewSet()
	assert.ErrorIs(t, err, ErrEmptySet)

	_, err = NewSet("CAMERA", "")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = NewSet("A|B")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestNewSet_KeepsFirstSeenOrder(t *testing.T) {
	s, err := NewSet("LOCATION", "CAMERA", "LOCATION", "MICROPHONE")
	require.NoError(t, err)

	assert.Equal(t, []string{"LOCATION", "CAMERA", "MICROPHONE"}, s.Names())
	assert.Equal(t, "CAMERA|LOCATION|MICROPHONE", s.Key())
	assert.True(t, s.Contains("CAMERA"))
	assert.False(t, s.Contains("CONTACTS"))
}

func TestSplitKey(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, SplitKey("A|B"))
	assert.Nil(t, SplitKey(""))
}

func TestMustSet_Panics(t *testing.T) {
	assert.Panics(t, func() { MustSet() })
	assert.NotPanics(t, func() { MustSet("CAMERA") })
}

func TestKeyDigest_Stable(t *testing.T) {
	d1 := KeyDigest("A|B")
	d2 := KeyDigest("A|B")
	d3 := KeyDigest("A")

	assert.Equal(t, d1, d2)
	assert.NotEqual(t, d1, d3)
	assert.Len(t, d1, 64)
}
