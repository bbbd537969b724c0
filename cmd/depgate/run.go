package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/depgate-dev/depgate/internal/application"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Wrap a package-manager command so installs go through the policy proxy",
		Args:  cobra.MinimumNArgs(1),
		// The wrapped command's own flags (e.g. `npm install --save`) must
		// reach it unparsed; depgate never inspects them.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrapAction(cmd, stripLeadingDash(args))
		},
	}
	return cmd
}

// stripLeadingDash drops a conventional `--` separator if present, so
// both `depgate run -- npm install` and `depgate run npm install` work.
func stripLeadingDash(args []string) []string {
	if len(args) > 0 && args[0] == "--" {
		return args[1:]
	}
	return args
}

func runWrapAction(cmd *cobra.Command, args []string) error {
	c, err := application.New(cmd.Context(), application.Options{ConfigPath: cfgFile, Overrides: setFlags, Redactor: stderrRedactor})
	if err != nil {
		return err
	}

	opts := &ProxyOptions{host: "127.0.0.1", port: 0, decisionMode: "block", timeoutSeconds: 30}
	srv, shutdown, err := buildProxyServer(c, opts)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer shutdown()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	proxyURL := fmt.Sprintf("http://%s", srv.Addr())

	manager := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	wrapped, cleanup, err := wrapChildEnv(manager, proxyURL)
	if err != nil {
		return err
	}
	defer cleanup()

	//nolint:gosec // G204: args come from the operator's own command line, same as `env`/`sudo`
	child := exec.CommandContext(cmd.Context(), args[0], args[1:]...)
	child.Env = append(os.Environ(), wrapped.env...)
	child.Args = append(append([]string{args[0]}, args[1:]...), wrapped.extraArgs...)
	child.Stdin, child.Stdout, child.Stderr = os.Stdin, os.Stdout, os.Stderr

	if err := child.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		return err
	}
	return nil
}

// wrappedEnv is what a per-manager wrapper contributes: extra environment
// variables and/or extra CLI arguments that redirect the child at the
// local proxy instead of its real upstream.
type wrappedEnv struct {
	env       []string
	extraArgs []string
}

// wrapChildEnv builds the env/args override for manager, grounded
// directly on original_source/src/run_wrappers.py's per-manager builder
// functions. cleanup removes any temp file the wrapper created.
func wrapChildEnv(manager, proxyURL string) (wrappedEnv, func(), error) {
	noop := func() {}

	switch manager {
	case "npm", "pnpm", "bun":
		return wrappedEnv{env: []string{"npm_config_registry=" + proxyURL}}, noop, nil

	case "yarn":
		return wrappedEnv{env: []string{
			"npm_config_registry=" + proxyURL,
			"YARN_NPM_REGISTRY_SERVER=" + proxyURL,
		}}, noop, nil

	case "pip", "pip3", "pipx", "poetry":
		return wrappedEnv{env: []string{
			"PIP_INDEX_URL=" + proxyURL + "/simple/",
			"PIP_TRUSTED_HOST=" + hostOnly(proxyURL),
		}}, noop, nil

	case "uv":
		return wrappedEnv{env: []string{
			"UV_INDEX_URL=" + proxyURL + "/simple/",
			"UV_INSECURE_HOST=" + hostOnly(proxyURL),
		}}, noop, nil

	case "mvn":
		path, cleanup, err := writeTempFile("depgate-settings-*.xml", mavenSettingsXML(proxyURL))
		if err != nil {
			return wrappedEnv{}, noop, err
		}
		if _, statErr := os.Stat(filepath.Join(os.Getenv("HOME"), ".m2", "settings.xml")); statErr == nil {
			fmt.Fprintln(os.Stderr, "warning: ~/.m2/settings.xml exists; depgate's mirror settings (-s) take precedence for this run only")
		}
		return wrappedEnv{extraArgs: []string{"-s", path}}, cleanup, nil

	case "gradle", "gradlew":
		path, cleanup, err := writeTempFile("depgate-init-*.gradle", gradleInitScript(proxyURL))
		if err != nil {
			return wrappedEnv{}, noop, err
		}
		return wrappedEnv{extraArgs: []string{"--init-script", path}}, cleanup, nil

	case "dotnet", "nuget":
		path, cleanup, err := writeTempFile("depgate-nuget-*.config", nugetConfigXML(proxyURL))
		if err != nil {
			return wrappedEnv{}, noop, err
		}
		return wrappedEnv{extraArgs: []string{"--configfile", path}}, cleanup, nil

	default:
		return wrappedEnv{}, noop, fmt.Errorf("unsupported package manager %q", manager)
	}
}

func hostOnly(proxyURL string) string {
	return strings.TrimPrefix(strings.TrimPrefix(proxyURL, "http://"), "https://")
}

func writeTempFile(pattern, content string) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", func() {}, err
	}
	path := f.Name()
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", func() {}, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", func() {}, err
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func mavenSettingsXML(proxyURL string) string {
	return fmt.Sprintf(`<settings>
  <mirrors>
    <mirror>
      <id>depgate-proxy</id>
      <mirrorOf>*</mirrorOf>
      <url>%s/maven2</url>
    </mirror>
  </mirrors>
</settings>
`, proxyURL)
}

func gradleInitScript(proxyURL string) string {
	return fmt.Sprintf(`allprojects {
    repositories {
        all { repo ->
            if (repo instanceof MavenArtifactRepository) {
                repo.url = "%s/maven2"
            }
        }
    }
}
`, proxyURL)
}

func nugetConfigXML(proxyURL string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<configuration>
  <packageSources>
    <clear />
    <add key="depgate-proxy" value="%s/v3/index.json" />
  </packageSources>
</configuration>
`, proxyURL)
}
