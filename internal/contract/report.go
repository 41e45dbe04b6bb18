package contract

// Report is the structured output spec's external interfaces section
// requires alongside the two YAML documents: the full assertion list with
// source coordinates and confidence, for a caller that wants the contract
// without parsing YAML back out. JSON tags follow the teacher's reporter
// output convention (internal/reporter.JSONOutput).
type Report struct {
	BaseImage    string          `json:"base_image"`
	FinalWorkdir string          `json:"final_workdir"`
	FinalUser    string          `json:"final_user"`
	Assertions   []ReportEntry   `json:"assertions"`
	ServiceHints []string        `json:"service_hints,omitempty"`
	Warnings     []ReportWarning `json:"warnings,omitempty"`
}

// ReportEntry is one assertion rendered for the structured report.
type ReportEntry struct {
	Kind       string `json:"kind"`
	Identity   string `json:"identity"`
	Confidence string `json:"confidence"`
	Provenance string `json:"provenance"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
}

// ReportWarning is one warning rendered for the structured report.
type ReportWarning struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

// BuildReport renders rcm and warnings into the caller-facing Report shape.
func BuildReport(rcm *RuntimeContractModel, warnings []Warning) Report {
	report := Report{
		BaseImage:    rcm.BaseImage,
		FinalWorkdir: rcm.FinalWorkdir,
		FinalUser:    rcm.FinalUser,
		ServiceHints: rcm.ServiceHints,
	}
	for _, a := range rcm.Sorted() {
		report.Assertions = append(report.Assertions, ReportEntry{
			Kind:       a.Key.Kind.String(),
			Identity:   a.Key.Identity,
			Confidence: a.Confidence.String(),
			Provenance: a.Provenance.Rendered(),
			Line:       a.Provenance.Span.Start.Line,
			Column:     a.Provenance.Span.Start.Column,
		})
	}
	for _, w := range warnings {
		report.Warnings = append(report.Warnings, ReportWarning{
			Kind:    w.Kind,
			Message: w.Message,
			Line:    w.Span.Start.Line,
			Column:  w.Span.Start.Column,
		})
	}
	return report
}
