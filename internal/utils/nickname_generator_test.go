package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nicknamePattern = regexp.MustCompile(`^[A-Za-z]+_[A-Za-z]+_\d{4}$`)

func TestGenerateNickname(t *testing.T) {
	for i := 0; i < 50; i++ {
		nickname, err := GenerateNickname()
		require.NoError(t, err)
		assert.Regexp(t, nicknamePattern, nickname)
	}
}
