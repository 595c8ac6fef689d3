//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const minioPort = nat.Port("9000/tcp")

// setupMinio starts a MinIO container for testing.
func setupMinio(t *testing.T) MinioConfig {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		Cmd:          []string{"server", "/data"},
		ExposedPorts: []string{string(minioPort)},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "nroy",
			"MINIO_ROOT_PASSWORD": "nroy-secret",
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort(minioPort),
	}

	minioC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start MinIO container: %v", err)
	}
	t.Cleanup(func() {
		if err := minioC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate MinIO container: %v", err)
		}
	})

	host, err := minioC.Host(ctx)
	require.NoError(t, err)
	port, err := minioC.MappedPort(ctx, minioPort)
	require.NoError(t, err)

	return MinioConfig{
		Endpoint:  fmt.Sprintf("%s:%s", host, port.Port()),
		Bucket:    "nroy-test",
		AccessKey: "nroy",
		SecretKey: "nroy-secret",
	}
}

func TestMinioStore(t *testing.T) {
	cfg := setupMinio(t)

	s, err := NewMinioStore(context.Background(), cfg)
	require.NoError(t, err)
	testStoreContract(t, s)

	// Reopening an existing bucket must succeed.
	_, err = Open(context.Background(), Config{Backend: BackendMinio, Minio: cfg})
	require.NoError(t, err)
}
