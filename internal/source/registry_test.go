package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EBMS/internal/domain"
)

type stubSource string

func (s stubSource) Name() string { return string(s) }

func (s stubSource) Fetch(context.Context, []string) ([]domain.PubmedRecord, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubSource("repo"))
	reg.Register(stubSource("eutils"))

	src, err := reg.Resolve("repo")
	require.NoError(t, err)
	assert.Equal(t, "repo", src.Name())

	_, err = reg.Resolve("ftp")
	assert.Error(t, err)
	assert.Equal(t, []string{"eutils", "repo"}, reg.Names())
}
