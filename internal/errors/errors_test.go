package errors

import (
	stderrors "errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := Configf("pattern %q is invalid", "[")

	assert.True(t, Is(err, ErrConfig))
	assert.False(t, Is(err, ErrRegistration))
	assert.Equal(t, `pattern "[" is invalid`, err.Error())
}

func TestWrap_KeepsCause(t *testing.T) {
	err := Wrapf(fs.ErrNotExist, CodeRegistration, "cannot watch %q", "/missing")

	assert.True(t, Is(err, ErrRegistration))
	assert.True(t, stderrors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), "cannot watch \"/missing\"")
	assert.Contains(t, err.Error(), fs.ErrNotExist.Error())
}

func TestWithDetails(t *testing.T) {
	base := Validation("validation failed")
	detailed := base.WithDetails(map[string]string{"pattern": "is required"})

	assert.Nil(t, base.Details)
	assert.Equal(t, map[string]string{"pattern": "is required"}, detailed.Details)
	assert.True(t, Is(detailed, ErrValidation))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeWatch, CodeOf(ErrWatch.WithCause(stderrors.New("boom"))))
	assert.Equal(t, CodeInternal, CodeOf(stderrors.New("plain")))
}

func TestCode_ExitCode(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeConfig, 2},
		{CodeValidation, 2},
		{CodeRegistration, 3},
		{CodeNotFound, 3},
		{CodeAlreadyExists, 3},
		{CodeWatch, 4},
		{CodeInternal, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.ExitCode())
		})
	}
}
