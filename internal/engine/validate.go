package engine

import (
	"fmt"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/component"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/scheduler"
)

// ValidationIssue names one problem found in a registered component during
// the dry-run validation pass of §4.2 step 1.
type ValidationIssue struct {
	Component string
	Variant   component.Variant
	Issue     string
}

// ValidationReport is the dry-run result: in dry-run mode the host is
// expected to print this and exit without calling Start.
type ValidationReport struct {
	Issues []ValidationIssue
}

// OK reports whether the report found no issues.
func (r ValidationReport) OK() bool { return len(r.Issues) == 0 }

func (r ValidationReport) String() string {
	if r.OK() {
		return "validation passed: no issues found"
	}
	s := fmt.Sprintf("validation failed: %d issue(s)\n", len(r.Issues))
	for _, issue := range r.Issues {
		s += fmt.Sprintf("  - %s (%s): %s\n", issue.Component, issue.Variant, issue.Issue)
	}
	return s
}

// Validate runs the static checks of §4.2 step 1 against every registered
// component without mutating any store or starting any subsystem: table
// names, endpoint methods, and harvester/collector declarations.
func (e *Engine) Validate() ValidationReport {
	e.mu.Lock()
	components := append([]component.Component(nil), e.components...)
	e.mu.Unlock()

	var report ValidationReport
	fail := func(c component.Component, format string, args ...any) {
		cfg := c.Configuration()
		report.Issues = append(report.Issues, ValidationIssue{
			Component: cfg.Name,
			Variant:   cfg.Variant,
			Issue:     fmt.Sprintf(format, args...),
		})
	}

	for _, c := range components {
		cfg := c.Configuration()
		if hasTable(c) {
			if err := record.ValidateTableName(cfg.Name); err != nil {
				fail(c, "%v", err)
			}
		}

		if servable, ok := c.(component.Servable); ok {
			if err := component.ValidateEndpoints(servable.Endpoints()); err != nil {
				fail(c, "%v", err)
			}
		}

		switch v := c.(type) {
		case *component.Collector:
			if v.CronPattern() == "" {
				fail(c, "collector has no cron pattern configured")
			}
		case *component.Harvester:
			if v.Source == "" {
				fail(c, "harvester has no source configured")
			}
			if err := scheduler.ValidateSourceRange(v.SourceRange); err != nil {
				fail(c, "%v", err)
			}
			if (v.TriggerMode == component.TriggerScheduled || v.TriggerMode == component.TriggerBoth) && v.CronPattern() == "" {
				fail(c, "harvester trigger mode %q requires a cron pattern (call SetSchedule)", v.TriggerMode)
			}
		}
	}

	return report
}
