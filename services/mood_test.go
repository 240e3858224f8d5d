package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoodValidatorWhitelist(t *testing.T) {
	v := NewMoodValidator([]string{" 😊 ", "😢", "😊", ""})
	assert.Equal(t, []string{"😊", "😢"}, v.Tags())

	got, err := v.Normalize("  😊 ")
	require.NoError(t, err)
	assert.Equal(t, "😊", got)

	got, err = v.Normalize("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = v.Normalize("😡")
	assert.ErrorIs(t, err, ErrInvalidMoodTag)
}

func TestMoodValidatorWildcard(t *testing.T) {
	v := NewMoodValidator([]string{"*"})
	assert.Nil(t, v.Tags())

	got, err := v.Normalize("开心")
	require.NoError(t, err)
	assert.Equal(t, "开心", got)

	for _, bad := range []string{"a b", "<script>", "x\x00", strings.Repeat("好", 21)} {
		_, err := v.Normalize(bad)
		assert.ErrorIs(t, err, ErrInvalidMoodTag, bad)
	}
	_, err = v.Normalize(strings.Repeat("好", 20))
	assert.NoError(t, err)
}
