package e2e

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmokeFlow(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/resolve":
			_, _ = fmt.Fprintf(w, `{"id":%q,"type":%q,"public":true}`, r.URL.Query().Get("id"), r.URL.Query().Get("type"))
		case "/v1/interactions":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer gateway.Close()

	home := t.TempDir()
	binaryPath := buildBinary(t)
	env := []string{
		"HOME=" + home,
		"FLEET_PLATFORM_BASE_URL=" + gateway.URL,
		"FLEET_SECRETS_BACKEND=file",
		"FLEET_SCHEDULER_REQUEST_DELAY=0s",
		"FLEET_COOLDOWNS_USER_COOLDOWN=0s",
	}

	_, stderr, err := runFleet(t, binaryPath, env, "accounts", "add", "--name", "Scout")
	require.NoError(t, err, "stderr: %s", stderr)

	_, stderr, err = runFleet(t, binaryPath, env, "accounts", "set-auth", "--account", "1", "--secret-value", "token-1")
	require.NoError(t, err, "stderr: %s", stderr)

	_, stderr, err = runFleet(t, binaryPath, env, "accounts", "set-status", "1", "online")
	require.NoError(t, err, "stderr: %s", stderr)

	stdout, stderr, err := runFleet(t, binaryPath, env, "request", "favorite", "https://example.com/sharedfiles/filedetails/?id=42")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "favorite/sharedfile 42")
	assert.Contains(t, stdout, "1/1 succeeded")

	stdout, stderr, err = runFleet(t, binaryPath, env, "history", "list", "--target", "42")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "favorite")
}

func buildBinary(t *testing.T) string {
	t.Helper()

	binaryPath := filepath.Join(t.TempDir(), "fleet-e2e")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/fleet")
	cmd.Dir = repoRoot(t)

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "build fleet binary: %s", string(output))
	return binaryPath
}

func runFleet(t *testing.T, binaryPath string, env []string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), env...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func repoRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}
