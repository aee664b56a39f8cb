package item_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasus/sihrd/pkg/batch/component/item"
	port "github.com/datasus/sihrd/pkg/batch/core/application/port"
)

func TestPassThroughItemProcessor(t *testing.T) {
	p := item.NewPassThroughItemProcessor[string]()
	out, err := p.Process(context.Background(), "330455")
	require.NoError(t, err)
	assert.Equal(t, "330455", out)
}

func TestFuncItemProcessor(t *testing.T) {
	p := item.FuncItemProcessor[string, int](func(ctx context.Context, in string) (int, error) {
		if in == "" {
			return 0, port.ErrItemFiltered
		}
		return strconv.Atoi(in)
	})

	n, err := p.Process(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = p.Process(context.Background(), "")
	assert.True(t, errors.Is(err, port.ErrItemFiltered))
}
