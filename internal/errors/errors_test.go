package errors_test

import (
	"fmt"
	"io"
	"testing"

	"codeberg.org/mutker/solardash/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Failed to fetch telemetry", f.New(errors.ErrNetwork).Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrDecode, "custom").Error())
	assert.Equal(t, "Failed to decode telemetry: unexpected EOF", f.Wrap(errors.ErrDecode, io.ErrUnexpectedEOF).Error())
	assert.Equal(t, "Failed to fetch telemetry: 500", f.WithData(errors.ErrNetwork, 500).Error())
	assert.Equal(t, "some_unknown_code", f.New("some_unknown_code").Error())
}

func TestWrapPreservesChain(t *testing.T) {
	err := errors.New().Wrap(errors.ErrNetwork, io.ErrUnexpectedEOF)

	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, errors.ErrNetwork, err.Code())
}

func TestWithDataKeepsCode(t *testing.T) {
	base := errors.New().Wrap(errors.ErrReadConfig, io.EOF)
	withData := base.WithData("solardash.toml")

	assert.Equal(t, errors.ErrReadConfig, withData.Code())
	assert.Equal(t, "solardash.toml", withData.GetData())
	assert.Nil(t, base.GetData())
}

func TestCodeOf(t *testing.T) {
	inner := errors.New().New(errors.ErrDecode)
	wrapped := fmt.Errorf("cycle: %w", inner)

	assert.Equal(t, errors.ErrDecode, errors.CodeOf(wrapped))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(io.EOF))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(nil))
}

func TestHasCode(t *testing.T) {
	inner := errors.New().New(errors.ErrNetwork)
	outer := errors.New().Wrap(errors.ErrOperationFailed, inner)

	require.Equal(t, errors.ErrOperationFailed, errors.CodeOf(outer))
	assert.True(t, errors.HasCode(outer, errors.ErrNetwork))
	assert.True(t, errors.HasCode(outer, errors.ErrOperationFailed))
	assert.False(t, errors.HasCode(outer, errors.ErrDecode))
}
