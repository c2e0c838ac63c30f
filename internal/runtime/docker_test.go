package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/switchyard/internal/endpoint"
)

func TestContainerName(t *testing.T) {
	assert.Equal(t, "jenkins-devops-blue", ContainerName("jenkins", "devops", endpoint.Blue))
	assert.Equal(t, "jenkins-qa-green", ContainerName("jenkins", "qa", endpoint.Green))
}

func TestDockerRuntime_Inspect(t *testing.T) {
	ctx := context.Background()

	inspectJSON := `[{
        "State": {
            "Running": true,
            "StartedAt": "2025-01-15T10:30:00.123456789Z",
            "Health": {"Status": "Healthy"}
        },
        "NetworkSettings": {
            "Ports": {
                "8080/tcp": [{"HostPort": "8180"}],
                "50000/tcp": [{"HostPort": "50100"}],
                "9000/tcp": []
            }
        }
    }]`

	t.Run("parses running container", func(t *testing.T) {
		rt := NewDockerRuntime(func(_ context.Context, name string, args ...string) ([]byte, error) {
			assert.Equal(t, "docker", name)
			assert.Equal(t, []string{"inspect", "jenkins-devops-green"}, args)
			return []byte(inspectJSON), nil
		}, nil)

		status, err := rt.Inspect(ctx, "jenkins-devops-green")
		require.NoError(t, err)
		assert.True(t, status.Running)
		assert.Equal(t, "healthy", status.Health)
		assert.Equal(t, 8180, status.Ports[8080])
		assert.Equal(t, 50100, status.Ports[50000])
		assert.False(t, status.StartedAt.IsZero())
	})

	t.Run("no health section", func(t *testing.T) {
		rt := NewDockerRuntime(func(context.Context, string, ...string) ([]byte, error) {
			return []byte(`[{"State": {"Running": false, "StartedAt": ""}}]`), nil
		}, nil)

		status, err := rt.Inspect(ctx, "jenkins-devops-blue")
		require.NoError(t, err)
		assert.False(t, status.Running)
		assert.Equal(t, "none", status.Health)
	})

	t.Run("missing container", func(t *testing.T) {
		rt := NewDockerRuntime(func(context.Context, string, ...string) ([]byte, error) {
			return []byte(`[]`), nil
		}, nil)

		_, err := rt.Inspect(ctx, "gone")
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("command failure", func(t *testing.T) {
		rt := NewDockerRuntime(func(context.Context, string, ...string) ([]byte, error) {
			return nil, errors.New("exit status 1")
		}, nil)

		_, err := rt.Inspect(ctx, "jenkins-devops-blue")
		assert.Error(t, err)
	})
}

func TestDockerRuntime_StartStop(t *testing.T) {
	ctx := context.Background()

	var commands [][]string
	rt := NewDockerRuntime(func(_ context.Context, name string, args ...string) ([]byte, error) {
		commands = append(commands, append([]string{name}, args...))
		return nil, nil
	}, nil)

	require.NoError(t, rt.Start(ctx, "jenkins-devops-green"))
	require.NoError(t, rt.Stop(ctx, "jenkins-devops-blue"))

	require.Len(t, commands, 2)
	assert.Equal(t, []string{"docker", "start", "jenkins-devops-green"}, commands[0])
	assert.Equal(t, []string{"docker", "stop", "jenkins-devops-blue"}, commands[1])
}
