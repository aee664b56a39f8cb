package exception_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datasus/sihrd/pkg/batch/support/util/exception"
)

func TestBatchError_ErrorAndUnwrap(t *testing.T) {
	orig := errors.New("disk full")
	be := exception.NewBatchError("writer", "write failed", orig)

	assert.Equal(t, "[writer] write failed: disk full", be.Error())
	assert.ErrorIs(t, be, orig)
	assert.NotEmpty(t, be.StackTrace)

	noCause := exception.NewBatchError("config", "missing key", nil)
	assert.Equal(t, "[config] missing key", noCause.Error())
	assert.Nil(t, errors.Unwrap(noCause))
}

func TestNewBatchErrorf_TrailingError(t *testing.T) {
	be := exception.NewBatchErrorf("reader", "read %s failed", "raw", io.EOF)
	assert.Equal(t, "read raw failed", be.Message)
	assert.ErrorIs(t, be, io.EOF)

	noErr := exception.NewBatchErrorf("writer", "flush %d rows", 10)
	assert.Equal(t, "flush 10 rows", noErr.Message)
	assert.Nil(t, noErr.OriginalErr)
}

func TestIsBatchError_WrappedChain(t *testing.T) {
	be := exception.NewBatchError("step", "boom", nil)
	wrapped := fmt.Errorf("job: %w", be)

	assert.True(t, exception.IsBatchError(wrapped))
	assert.False(t, exception.IsBatchError(errors.New("plain")))
	assert.False(t, exception.IsBatchError(nil))
}

func TestIsErrorOfType(t *testing.T) {
	err := fmt.Errorf("outer: %w", errors.New("no such table: tb_lookup"))
	assert.True(t, exception.IsErrorOfType(err, "no such table"))
	assert.False(t, exception.IsErrorOfType(err, "permission denied"))
	assert.False(t, exception.IsErrorOfType(nil, "x"))
}

func TestExtractErrorMessage(t *testing.T) {
	be := exception.NewBatchError("processor", "strict cast failed", errors.New("x"))
	assert.Equal(t, "strict cast failed", exception.ExtractErrorMessage(fmt.Errorf("wrap: %w", be)))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
}
