// Package secrets resolves provider tokens from the environment or a
// subprocess command, tracking every resolved value with
// sensitivedata.Provider so it never reaches a log line verbatim.
package secrets

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/depgate-dev/depgate/internal/infrastructure/sensitivedata"
)

const tokenCommandTimeout = 10 * time.Second

// Resolver resolves and tracks the optional tokens §6 names:
// GITHUB_TOKEN, GITLAB_TOKEN, DEPGATE_OSM_API_TOKEN/DEPGATE_OSM_TOKEN_COMMAND.
type Resolver struct {
	Provider *sensitivedata.Provider
}

// New builds a Resolver backed by the given tracking provider.
func New(provider *sensitivedata.Provider) *Resolver {
	return &Resolver{Provider: provider}
}

// GitHubToken returns GITHUB_TOKEN, tracked if present.
func (r *Resolver) GitHubToken() string {
	return r.trackEnv("GITHUB_TOKEN")
}

// GitLabToken returns GITLAB_TOKEN, tracked if present.
func (r *Resolver) GitLabToken() string {
	return r.trackEnv("GITLAB_TOKEN")
}

// OSMToken resolves the OpenSourceMalware enrichment token: a direct
// DEPGATE_OSM_API_TOKEN env var takes precedence over running
// DEPGATE_OSM_TOKEN_COMMAND. Both are tracked before being returned.
func (r *Resolver) OSMToken(ctx context.Context) (string, error) {
	if tok := r.trackEnv("DEPGATE_OSM_API_TOKEN"); tok != "" {
		return tok, nil
	}
	cmd := os.Getenv("DEPGATE_OSM_TOKEN_COMMAND")
	if cmd == "" {
		return "", nil
	}
	tok, err := r.runTokenCommand(ctx, cmd)
	if err != nil {
		return "", err
	}
	r.track(tok)
	return tok, nil
}

func (r *Resolver) trackEnv(name string) string {
	v := os.Getenv(name)
	r.track(v)
	return v
}

func (r *Resolver) track(v string) {
	if v != "" && r.Provider != nil {
		r.Provider.Track(v)
	}
}

// runTokenCommand executes cmd through the shell with a hard 10s timeout,
// capturing stdout as the opaque secret and discarding stderr from any
// caller-visible output (it is never logged). The captured bytes are held
// in a sensitivedata.SecureString and zeroed as soon as the trimmed token
// has been copied out, shrinking the window the raw command output sits
// in heap memory.
func (r *Resolver) runTokenCommand(ctx context.Context, cmd string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, tokenCommandTimeout)
	defer cancel()

	shell := "/bin/sh"
	c := exec.CommandContext(ctx, shell, "-c", cmd)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("token command timed out after %s", tokenCommandTimeout)
		}
		return "", fmt.Errorf("token command failed: %w", err)
	}

	ss := sensitivedata.NewSecureString(strings.TrimSpace(stdout.String()))
	defer ss.Zero()
	stdout.Reset()
	return ss.String(), nil
}
