package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/depgate-dev/depgate/internal/application"
	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/orchestrator"
)

// mcpRequest/mcpResponse implement the JSON-RPC 2.0 envelope MCP's stdio
// transport uses: one newline-delimited JSON object per message, no
// Content-Length framing.
type mcpRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *mcpError       `json:"error,omitempty"`
}

type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func init() {
	rootCmd.AddCommand(newMCPCmd())
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run a stdio JSON-RPC server exposing dependency-lookup tools to MCP clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := application.New(cmd.Context(), application.Options{ConfigPath: cfgFile, Overrides: setFlags, Redactor: stderrRedactor})
			if err != nil {
				return err
			}
			srv := &mcpServer{container: c}
			return srv.serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}

type mcpServer struct {
	container *application.Container
}

// mcpTool describes one tool for the tools/list response and dispatches
// its handler for tools/call.
type mcpTool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

func (s *mcpServer) tools() []mcpTool {
	return []mcpTool{
		{
			Name:        "Lookup_Latest_Version",
			Description: "Resolve the latest version of a package against its registry, honoring an optional version range.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"name", "ecosystem"},
				"properties": map[string]interface{}{
					"name":         map[string]string{"type": "string"},
					"ecosystem":    map[string]string{"type": "string", "enum": "npm|pypi|maven|nuget"},
					"versionRange": map[string]string{"type": "string"},
				},
			},
		},
		{
			Name:        "Scan_Dependency",
			Description: "Run the full resolve/enrich/heuristics/policy pipeline for a single package at a specific version.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"name", "version", "ecosystem"},
				"properties": map[string]interface{}{
					"name":      map[string]string{"type": "string"},
					"version":   map[string]string{"type": "string"},
					"ecosystem": map[string]string{"type": "string"},
				},
			},
		},
		{
			Name:        "Scan_Project",
			Description: "Scan a project directory's manifests/lockfiles and run the full pipeline over every dependency found.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"projectDir", "ecosystem"},
				"properties": map[string]interface{}{
					"projectDir":    map[string]string{"type": "string"},
					"ecosystem":     map[string]string{"type": "string"},
					"analysisLevel": map[string]string{"type": "string"},
				},
			},
		},
	}
}

// serve reads one JSON-RPC request per line from r and writes one
// response per line to w until r is exhausted or ctx is canceled.
func (s *mcpServer) serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req mcpRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(mcpResponse{JSONRPC: "2.0", Error: &mcpError{Code: -32700, Message: "parse error"}})
			continue
		}

		resp := s.dispatch(ctx, req)
		if req.ID == nil {
			continue // notification: no response expected
		}
		resp.ID = req.ID
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *mcpServer) dispatch(ctx context.Context, req mcpRequest) mcpResponse {
	switch req.Method {
	case "initialize":
		return mcpResponse{JSONRPC: "2.0", Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]string{"name": "depgate-mcp", "version": version},
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		}}

	case "tools/list":
		return mcpResponse{JSONRPC: "2.0", Result: map[string]interface{}{"tools": s.tools()}}

	case "tools/call":
		return s.callTool(ctx, req.Params)

	default:
		return mcpResponse{JSONRPC: "2.0", Error: &mcpError{Code: -32601, Message: "method not found: " + req.Method}}
	}
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *mcpServer) callTool(ctx context.Context, raw json.RawMessage) mcpResponse {
	var params toolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return mcpResponse{JSONRPC: "2.0", Error: &mcpError{Code: -32602, Message: "invalid params"}}
	}

	var (
		result interface{}
		err    error
	)
	switch params.Name {
	case "Lookup_Latest_Version":
		result, err = s.lookupLatestVersion(ctx, params.Arguments)
	case "Scan_Dependency":
		result, err = s.scanDependency(ctx, params.Arguments)
	case "Scan_Project":
		result, err = s.scanProject(ctx, params.Arguments)
	default:
		return mcpResponse{JSONRPC: "2.0", Error: &mcpError{Code: -32601, Message: "unknown tool: " + params.Name}}
	}
	if err != nil {
		return mcpResponse{JSONRPC: "2.0", Error: &mcpError{Code: -32000, Message: err.Error()}}
	}
	return mcpResponse{JSONRPC: "2.0", Result: map[string]interface{}{
		"content": []map[string]interface{}{{"type": "text", "text": mustJSON(result)}},
	}}
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}

type lookupLatestVersionArgs struct {
	Name         string `json:"name"`
	Ecosystem    string `json:"ecosystem"`
	VersionRange string `json:"versionRange"`
}

func (s *mcpServer) lookupLatestVersion(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a lookupLatestVersionArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	eco, err := domain.ParseEcosystem(a.Ecosystem)
	if err != nil {
		return nil, err
	}

	requests := orchestrator.BuildRequests(eco, []string{joinToken(a.Name, a.VersionRange)}, nil)
	orch := orchestrator.New(s.container.Resolver, s.container.Registry, orchestrator.LevelCompare, s.container.PolicyCfg)
	packages, err := orch.Run(ctx, requests)
	if err != nil {
		return nil, err
	}
	if len(packages) == 0 {
		return nil, fmt.Errorf("no resolution result for %s", a.Name)
	}
	p := packages[0]
	return map[string]interface{}{
		"name":           p.Name,
		"ecosystem":      string(p.Ecosystem),
		"latestVersion":  p.ResolvedVersion,
		"resolutionMode": string(p.ResolutionMode),
		"versionCount":   p.VersionCount,
	}, nil
}

type scanDependencyArgs struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Ecosystem string `json:"ecosystem"`
}

func (s *mcpServer) scanDependency(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a scanDependencyArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	eco, err := domain.ParseEcosystem(a.Ecosystem)
	if err != nil {
		return nil, err
	}

	requests := orchestrator.BuildRequests(eco, []string{joinToken(a.Name, a.Version)}, nil)
	orch := orchestrator.New(s.container.Resolver, s.container.Registry, orchestrator.LevelPolicy, s.container.PolicyCfg)
	packages, err := orch.Run(ctx, requests)
	if err != nil {
		return nil, err
	}
	if len(packages) == 0 {
		return nil, fmt.Errorf("no scan result for %s", a.Name)
	}
	return toMCPPackage(packages[0]), nil
}

type scanProjectArgs struct {
	ProjectDir    string `json:"projectDir"`
	Ecosystem     string `json:"ecosystem"`
	AnalysisLevel string `json:"analysisLevel"`
}

func (s *mcpServer) scanProject(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a scanProjectArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	eco, err := domain.ParseEcosystem(a.Ecosystem)
	if err != nil {
		return nil, err
	}
	level := orchestrator.AnalysisLevel(a.AnalysisLevel)
	if level == "" {
		level = orchestrator.LevelCompare
	}

	entries, err := scanDirectory(eco, &ScanOptions{directory: a.ProjectDir})
	if err != nil {
		return nil, err
	}
	manifestEntries := make([]orchestrator.ManifestEntry, len(entries))
	for i, e := range entries {
		manifestEntries[i] = orchestrator.ManifestEntry{Name: e.Name, RawSpec: e.RawSpec}
	}

	requests := orchestrator.BuildRequests(eco, nil, manifestEntries)
	orch := orchestrator.New(s.container.Resolver, s.container.Registry, level, s.container.PolicyCfg)
	packages, err := orch.Run(ctx, requests)
	if err != nil {
		return nil, err
	}

	out := make([]interface{}, len(packages))
	for i, p := range packages {
		out[i] = toMCPPackage(p)
	}
	return map[string]interface{}{"packages": out, "count": len(out)}, nil
}

func toMCPPackage(p *domain.Package) map[string]interface{} {
	return map[string]interface{}{
		"name":             p.Name,
		"ecosystem":        string(p.Ecosystem),
		"version":          p.ResolvedVersion,
		"exists":           p.Exists,
		"trustScore":       p.Trust.TrustScore,
		"repositoryUrl":    p.RepoURLNormalized,
		"repoVersionMatch": p.RepoVersionMatch.MatchType,
		"policyDecision":   string(p.Policy.Decision),
		"violatedRules":    p.Policy.ViolatedRules,
	}
}

func joinToken(name, spec string) string {
	if spec == "" {
		return name
	}
	return name + ":" + spec
}
