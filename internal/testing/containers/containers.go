// Package containers starts throwaway Redis and PostgreSQL instances for
// integration tests. Tests skip themselves when Docker is not reachable.
package containers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DockerAvailable reports whether a Docker daemon answers. SKIP_INTEGRATION
// forces false.
func DockerAvailable() bool {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

// Redis starts redis:7-alpine and returns host:port. The container is
// terminated when the test finishes.
func Redis(t testing.TB) string {
	t.Helper()
	if !DockerAvailable() {
		t.Skip("docker not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("could not start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	return endpoint
}

// PostgresInfo describes a started PostgreSQL container.
type PostgresInfo struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
}

func (p PostgresInfo) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.Username, p.Password, p.Host, p.Port, p.Database)
}

// Postgres starts postgres:16-alpine and returns its coordinates.
func Postgres(t testing.TB) PostgresInfo {
	t.Helper()
	if !DockerAvailable() {
		t.Skip("docker not available")
	}

	info := PostgresInfo{Database: "database", Username: "user", Password: "password"}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(info.Database),
		postgres.WithUsername(info.Username),
		postgres.WithPassword(info.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = dbContainer.Terminate(context.Background()) })

	host, err := dbContainer.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := dbContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	info.Host = host
	info.Port = port.Port()
	return info
}
