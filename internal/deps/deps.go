// Package deps checks the external binaries and directories a configuration
// depends on, for the doctor command and worker startup.
package deps

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"imagemill/internal/config"
)

// Requirement defines an external binary the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Requirements derives the binary requirements from the configured optimizer
// chains and variant rules. Each distinct binary appears once; a binary is
// optional only when every chain entry referencing it is optional.
func Requirements(cfg *config.Config) []Requirement {
	type usage struct {
		formats  []string
		optional bool
		variant  bool
	}
	byBinary := make(map[string]*usage)

	record := func(binary, format string, optional, variant bool) {
		binary = strings.TrimSpace(binary)
		if binary == "" {
			return
		}
		entry, ok := byBinary[binary]
		if !ok {
			entry = &usage{optional: true}
			byBinary[binary] = entry
		}
		entry.formats = append(entry.formats, format)
		entry.optional = entry.optional && optional
		entry.variant = entry.variant || variant
	}

	for format, chain := range cfg.Optimizers {
		for _, tool := range chain {
			record(tool.Binary, format, tool.Optional, false)
		}
	}
	for _, rule := range cfg.Variants {
		record(rule.Binary, rule.Format, false, true)
	}

	binaries := make([]string, 0, len(byBinary))
	for binary := range byBinary {
		binaries = append(binaries, binary)
	}
	sort.Strings(binaries)

	requirements := make([]Requirement, 0, len(binaries))
	for _, binary := range binaries {
		entry := byBinary[binary]
		role := "optimizer"
		if entry.variant {
			role = "variant creator"
		}
		requirements = append(requirements, Requirement{
			Name:        binary,
			Command:     binary,
			Description: fmt.Sprintf("%s for %s", role, strings.Join(dedupe(entry.formats), ", ")),
			Optional:    entry.optional,
		})
	}
	return requirements
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
