package output

import (
	"fmt"
	"io"

	"github.com/owenrumney/go-sarif/v3/pkg/report/v210/sarif"

	"github.com/depgate-dev/depgate/internal/domain"
)

// sarifRuleID is the single rule DepGate reports under: a package
// "fails" the rule when the policy engine denies it.
const sarifRuleID = "depgate/policy-decision"

// WriteSARIF renders packages as a SARIF 2.1.0 log, one result per
// package, so the report plugs into code-scanning tooling the way other
// SAST/dependency tools do.
func WriteSARIF(w io.Writer, packages []*domain.Package, toolVersion string) error {
	report := sarif.NewReport()
	run := sarif.NewRunWithInformationURI("DepGate", "https://github.com/depgate-dev/depgate")
	run.Tool.Driver.Version = &toolVersion

	run.Tool.Driver.AddRule(sarifRule())
	for _, p := range packages {
		run.AddResult(sarifResult(p))
	}
	report.AddRun(run)

	if err := report.Write(w); err != nil {
		return fmt.Errorf("writing SARIF output: %w", err)
	}
	_, err := w.Write([]byte("\n"))
	return err
}

func sarifRule() *sarif.ReportingDescriptor {
	name := "Dependency policy decision"
	desc := "A package's resolved metadata and risk heuristics were evaluated against the configured policy."
	rule := sarif.NewReportingDescriptor().WithID(sarifRuleID)
	rule.WithName(name)
	rule.WithShortDescription(&sarif.MultiformatMessageString{Text: &name})
	rule.WithFullDescription(&sarif.MultiformatMessageString{Text: &desc})
	rule.WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "warning"})
	return rule
}

func sarifResult(p *domain.Package) *sarif.Result {
	result := sarif.NewRuleResult(sarifRuleID)
	result.Level = sarifLevel(p.Policy.Decision)
	result.Kind = sarifKind(p.Policy.Decision)
	result.Message = sarif.NewTextMessage(sarifMessage(p))

	props := sarif.NewPropertyBag()
	props.Add("package_type", string(p.Ecosystem))
	props.Add("resolved_version", p.ResolvedVersion)
	if len(p.Policy.ViolatedRules) > 0 {
		props.Add("violated_rules", p.Policy.ViolatedRules)
	}
	result.WithProperties(props)

	return result
}

func sarifMessage(p *domain.Package) string {
	if p.Policy.Decision == domain.Deny {
		return fmt.Sprintf("%s denied: %v", p.Name, p.Policy.ViolatedRules)
	}
	return fmt.Sprintf("%s allowed", p.Name)
}

func sarifLevel(d domain.Decision) string {
	if d == domain.Deny {
		return "error"
	}
	return "note"
}

func sarifKind(d domain.Decision) string {
	if d == domain.Deny {
		return "fail"
	}
	return "pass"
}
