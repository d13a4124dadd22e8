// Package testutil provides shared utilities for rebind integration
// tests: a singleton SpiceDB container shared by every test in the run.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rebind-io/rebind/spicedb"
)

// PresharedKey is the gRPC preshared key the test container runs with.
const PresharedKey = "rebind-integration"

const spicedbImage = "authzed/spicedb:v1.35.3"

// Singleton container state
var (
	singletonOnce     sync.Once
	singletonEndpoint string
	singletonErr      error
)

// ensureSingleton lazily starts the shared SpiceDB container.
// Safe for concurrent access via sync.Once.
func ensureSingleton() (string, error) {
	singletonOnce.Do(func() {
		ctx := context.Background()

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        spicedbImage,
				Cmd:          []string{"serve", "--grpc-preshared-key", PresharedKey},
				ExposedPorts: []string{"50051/tcp"},
				WaitingFor: wait.ForLog("grpc server started serving").
					WithStartupTimeout(60 * time.Second),
			},
			Started: true,
		})
		if err != nil {
			singletonErr = fmt.Errorf("failed to start SpiceDB container: %w", err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			singletonErr = fmt.Errorf("resolving container host: %w", err)
			return
		}
		port, err := container.MappedPort(ctx, "50051/tcp")
		if err != nil {
			singletonErr = fmt.Errorf("resolving mapped port: %w", err)
			return
		}
		singletonEndpoint = fmt.Sprintf("%s:%s", host, port.Port())
	})
	return singletonEndpoint, singletonErr
}

// Endpoint returns the shared container's gRPC endpoint, starting the
// container on first use.
func Endpoint(t *testing.T) string {
	t.Helper()
	endpoint, err := ensureSingleton()
	if err != nil {
		t.Fatalf("spicedb container: %v", err)
	}
	return endpoint
}

// Adapter returns an adapter connected to the shared container.
func Adapter(t *testing.T) *spicedb.Adapter {
	t.Helper()
	adapter, err := spicedb.New(Endpoint(t), spicedb.Options{
		Token:    PresharedKey,
		Insecure: true,
	})
	if err != nil {
		t.Fatalf("connecting to spicedb: %v", err)
	}
	return adapter
}
