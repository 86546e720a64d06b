// Package dockerx wraps the Docker client used for the container status
// probe and for environment discovery. The engine only observes and
// starts/stops containers; it never builds or removes them.
package dockerx

import (
	"fmt"
	"strings"

	dockerclient "github.com/docker/docker/client"
)

// NewClient returns a Docker client for the configured socket.
//
// The returned client is shared by the probe and the discovery scan and
// must not be closed by individual callers.
func NewClient(socket string) (*dockerclient.Client, error) {
	host := socket
	if !strings.Contains(socket, "://") {
		host = "unix://" + socket
	}

	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.WithHost(host),
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return cli, nil
}
