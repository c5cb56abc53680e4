package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"STORE_BACKEND", "TRAIN_TOKEN_COST", "PREDICT_TOKEN_COST", "INITIAL_TOKENS", "MAX_UPLOAD_BYTES", "ADMIN_USER_IDS"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, StoreBackendPostgres, cfg.StoreBackend)
	assert.Equal(t, int64(1), cfg.TrainTokenCost)
	assert.Equal(t, int64(5), cfg.PredictTokenCost)
	assert.Equal(t, int64(15), cfg.InitialTokens)
	assert.Equal(t, int64(50*1024*1024), cfg.MaxUploadBytes)
	assert.Empty(t, cfg.AdminUserIDs)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("TRAIN_TOKEN_COST", "2")
	t.Setenv("INITIAL_TOKENS", "not-a-number")
	t.Setenv("ADMIN_USER_IDS", " root , ops,,")

	cfg := Load()
	assert.Equal(t, StoreBackendMemory, cfg.StoreBackend)
	assert.Equal(t, int64(2), cfg.TrainTokenCost)
	assert.Equal(t, int64(15), cfg.InitialTokens)
	assert.Equal(t, []string{"root", "ops"}, cfg.AdminUserIDs)
}
