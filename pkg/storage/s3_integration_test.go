//go:build integration

package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/taskflow/pkg/config"
)

func setupMinIO(t *testing.T) *S3Store {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "minioadmin",
				"MINIO_ROOT_PASSWORD": "minioadmin",
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start MinIO container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate MinIO container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	store, err := NewS3Store(ctx, config.StorageConfig{
		Backend:        "s3",
		S3Endpoint:     "http://" + host + ":" + port.Port(),
		S3Region:       "us-east-1",
		S3Bucket:       "taskflow-attachments",
		S3AccessKey:    "minioadmin",
		S3SecretKey:    "minioadmin",
		S3UsePathStyle: true,
	})
	require.NoError(t, err)
	return store
}

func TestS3Store_Integration(t *testing.T) {
	store := setupMinIO(t)
	ctx := context.Background()

	require.NoError(t, store.HealthCheck(ctx))

	key := NewKey(1, 1, "notes.txt")
	n, err := store.Save(ctx, key, strings.NewReader("minio says hi"), "text/plain")
	require.NoError(t, err)
	assert.EqualValues(t, 13, n)

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "minio says hi", string(data))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Open(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}
