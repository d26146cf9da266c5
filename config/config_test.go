package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "clover", cfg.AppName)
	assert.Equal(t, "sites.yaml", cfg.SitesConfigPath)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.HTTPMaxDelay)
	assert.Equal(t, 500, cfg.StoreChunkSize)
	assert.Equal(t, 1024, cfg.EmbeddingDims)
	assert.Equal(t, "clip-vit-l-14", cfg.EmbeddingModelID)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "db/pg", cfg.DatabaseMigrationFolderPath)
	assert.True(t, cfg.RespectRobots)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORE_URL", "https://db.example.co/")
	t.Setenv("EMBEDDING_DIMENSIONS", "768")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://db.example.co/", cfg.StoreURL)
	assert.Equal(t, 768, cfg.EmbeddingDims)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}
