package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := Parse("Solana")
	require.NoError(t, err)
	assert.Equal(t, Solana, p)

	p, err = Parse(" cosmos ")
	require.NoError(t, err)
	assert.Equal(t, Cosmos, p)

	_, err = Parse("dogecoin")
	assert.ErrorContains(t, err, "unsupported protocol")
}
