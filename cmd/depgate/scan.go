package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/depgate-dev/depgate/internal/application"
	"github.com/depgate-dev/depgate/internal/apperrors"
	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/infrastructure/output"
	"github.com/depgate-dev/depgate/internal/orchestrator"
	"github.com/depgate-dev/depgate/internal/scan"
	scanmaven "github.com/depgate-dev/depgate/internal/scan/maven"
	scannpm "github.com/depgate-dev/depgate/internal/scan/npm"
	scannuget "github.com/depgate-dev/depgate/internal/scan/nuget"
	scanpypi "github.com/depgate-dev/depgate/internal/scan/pypi"
)

// ScanOptions holds the scan subcommand's flags.
type ScanOptions struct {
	ecoType         string
	loadList        string
	directory       string
	recursive       bool
	directOnly      bool
	requireLockfile bool
	pkgToken        string
	analysis        string
	outPath         string
	format          string
	preset          string
	minReleaseAge   int
}

func init() {
	rootCmd.AddCommand(newScanCmd())
}

func newScanCmd() *cobra.Command {
	opts := &ScanOptions{analysis: "policy", format: "csv", preset: orchestrator.PresetDefault}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Analyze a package, manifest, or directory's dependencies offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScanAction(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ecoType, "type", "", "ecosystem: npm|pypi|maven|nuget (required)")
	cmd.Flags().StringVar(&opts.loadList, "load_list", "", "file with one package token per line")
	cmd.Flags().StringVar(&opts.directory, "directory", "", "project directory to scan for manifests/lockfiles")
	cmd.Flags().BoolVar(&opts.recursive, "recursive", false, "scan --directory's subdirectories too (NuGet/Maven)")
	cmd.Flags().BoolVar(&opts.directOnly, "direct-only", false, "skip transitive closure extraction from lockfiles")
	cmd.Flags().BoolVar(&opts.requireLockfile, "require-lockfile", false, "fail if no lockfile is present for --directory")
	cmd.Flags().StringVar(&opts.pkgToken, "package", "", "single package token, identifier[:spec]")
	cmd.Flags().StringVar(&opts.analysis, "analysis", opts.analysis, "analysis depth: compare|heuristics|policy")
	cmd.Flags().StringVarP(&opts.outPath, "output", "o", "", "output file path (default: stdout)")
	cmd.Flags().StringVar(&opts.format, "format", opts.format, "output format: csv|json|sarif")
	cmd.Flags().StringVar(&opts.preset, "preset", opts.preset, "built-in policy preset: default|supply-chain|supply-chain-strict")
	cmd.Flags().IntVar(&opts.minReleaseAge, "min-release-age-days", 0, "overrides the supply-chain preset's minimum release age (<=0 uses the default)")

	return cmd
}

func runScanAction(cmd *cobra.Command, opts *ScanOptions) error {
	eco, err := domain.ParseEcosystem(opts.ecoType)
	if err != nil {
		return apperrors.NewConfigError("type", err)
	}

	cliTokens, manifestEntries, err := gatherScanInputs(eco, opts)
	if err != nil {
		return err
	}

	requests := orchestrator.BuildRequests(eco, cliTokens, manifestEntries)

	c, err := application.New(cmd.Context(), application.Options{
		ConfigPath:        cfgFile,
		Overrides:         setFlags,
		Preset:            opts.preset,
		MinReleaseAgeDays: opts.minReleaseAge,
		Redactor:          stderrRedactor,
	})
	if err != nil {
		return err
	}

	orch := orchestrator.New(c.Resolver, c.Registry, orchestrator.AnalysisLevel(opts.analysis), c.PolicyCfg)
	packages, err := orch.Run(cmd.Context(), requests)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if opts.outPath != "" {
		//nolint:gosec // G304: user-provided --output path is intentional
		f, ferr := os.Create(opts.outPath)
		if ferr != nil {
			return apperrors.NewFileError(opts.outPath, ferr.Error())
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	if err := output.Write(w, output.Format(opts.format), packages, version); err != nil {
		return err
	}

	if anyDenied(packages) {
		return fmt.Errorf("one or more packages were denied by policy")
	}
	return nil
}

func anyDenied(packages []*domain.Package) bool {
	for _, p := range packages {
		if p.Policy.Decision == domain.Deny {
			return true
		}
	}
	return false
}

// gatherScanInputs resolves --package/--load_list/--directory into the
// (cliTokens, manifestEntries) pair orchestrator.BuildRequests expects.
func gatherScanInputs(eco domain.Ecosystem, opts *ScanOptions) ([]string, []orchestrator.ManifestEntry, error) {
	switch {
	case opts.pkgToken != "":
		return []string{opts.pkgToken}, nil, nil
	case opts.loadList != "":
		tokens, err := readLoadList(opts.loadList)
		if err != nil {
			return nil, nil, err
		}
		return tokens, nil, nil
	case opts.directory != "":
		entries, err := scanDirectory(eco, opts)
		if err != nil {
			return nil, nil, err
		}
		manifestEntries := make([]orchestrator.ManifestEntry, len(entries))
		for i, e := range entries {
			manifestEntries[i] = orchestrator.ManifestEntry{Name: e.Name, RawSpec: e.RawSpec}
		}
		return nil, manifestEntries, nil
	default:
		return nil, nil, fmt.Errorf("one of --package, --load_list, or --directory is required")
	}
}

func readLoadList(path string) ([]string, error) {
	//nolint:gosec // G304: user-provided --load_list path is intentional
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewFileError(path, err.Error())
	}
	defer func() { _ = f.Close() }()

	var tokens []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := s.Err(); err != nil {
		return nil, apperrors.NewFileError(path, err.Error())
	}
	return tokens, nil
}

var scanRegistry = scan.Registry{
	domain.Npm:   scannpm.New(),
	domain.PyPI:  scanpypi.New(),
	domain.Maven: scanmaven.New(),
	domain.NuGet: scannuget.New(),
}

func scanDirectory(eco domain.Ecosystem, opts *ScanOptions) ([]scan.Entry, error) {
	scanner := scanRegistry.For(eco)
	if scanner == nil {
		return nil, fmt.Errorf("no scanner registered for ecosystem %q", eco)
	}
	entries, err := scanner.Scan(afero.NewOsFs(), scan.Options{
		Dir:             opts.directory,
		Recursive:       opts.recursive,
		DirectOnly:      opts.directOnly,
		RequireLockfile: opts.requireLockfile,
	})
	if err != nil {
		return nil, err
	}
	return scan.Dedup(entries), nil
}
