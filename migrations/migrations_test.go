package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredInOrder(t *testing.T) {
	sorted := Migrations.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, "20261015000001", sorted[0].Name)
	assert.Equal(t, "create_users", sorted[0].Comment)
	assert.Equal(t, "20261015000002", sorted[1].Name)
	assert.Equal(t, "create_ml_models", sorted[1].Comment)
	for _, m := range sorted {
		assert.NotNil(t, m.Up, m.Name)
		assert.NotNil(t, m.Down, m.Name)
	}
}
