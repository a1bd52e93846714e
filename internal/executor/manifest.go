package executor

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"jobswarm/internal/parser"

	"gopkg.in/yaml.v3"
)

const (
	FormatAuto   = "auto"
	FormatLines  = "lines"
	FormatBlocks = "blocks"
	FormatYAML   = "yaml"
	FormatJSONL  = "jsonl"

	jobSeparator     = "---JOB---"
	commandSeparator = "---COMMAND---"
)

// DetectFormat picks a manifest format from the file extension, then from
// the content.
func DetectFormat(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".jsonl", ".ndjson":
		return FormatJSONL
	}
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Contains(trimmed, []byte(jobSeparator)):
		return FormatBlocks
	case bytes.HasPrefix(trimmed, []byte("{")):
		return FormatJSONL
	case bytes.HasPrefix(trimmed, []byte("jobs:")):
		return FormatYAML
	}
	return FormatLines
}

// ParseManifest parses a job manifest. path is only used by FormatAuto.
// Jobs without a name get their 1-based position; duplicate names are
// rejected.
func ParseManifest(data []byte, format, path string) ([]JobSpec, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}

	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" || format == FormatAuto {
		format = DetectFormat(path, data)
	}

	var (
		specs []JobSpec
		err   error
	)
	switch format {
	case FormatLines:
		specs = parseLines(data)
	case FormatBlocks:
		specs, err = parseBlocks(data)
	case FormatYAML:
		specs, err = parseYAML(data)
	case FormatJSONL:
		specs, err = parseJSONL(data)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return normalizeSpecs(specs)
}

// parseLines reads a swarm file: one command per line, '#' comments and
// blank lines skipped, a trailing backslash joins the next line.
func parseLines(data []byte) []JobSpec {
	var specs []JobSpec
	var pending strings.Builder
	flush := func() {
		cmd := strings.TrimSpace(pending.String())
		pending.Reset()
		if cmd != "" {
			specs = append(specs, JobSpec{Command: cmd})
		}
	}

	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimRight(raw, " \t\r")
		if pending.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
		}
		if strings.HasSuffix(line, `\`) {
			pending.WriteString(strings.TrimSuffix(line, `\`))
			pending.WriteByte(' ')
			continue
		}
		pending.WriteString(line)
		flush()
	}
	flush()
	return specs
}

func parseBlocks(data []byte) ([]JobSpec, error) {
	blocks := strings.Split(string(bytes.TrimSpace(data)), jobSeparator)
	var specs []JobSpec

	jobIndex := 0
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		jobIndex++

		parts := strings.SplitN(block, commandSeparator, 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("job block #%d missing %s separator", jobIndex, commandSeparator)
		}

		spec := JobSpec{Command: strings.TrimSpace(parts[1])}
		for _, line := range strings.Split(strings.TrimSpace(parts[0]), "\n") {
			kv := strings.SplitN(strings.TrimSpace(line), ":", 2)
			if len(kv) != 2 {
				continue
			}
			value := strings.TrimSpace(kv[1])
			switch strings.TrimSpace(kv[0]) {
			case "name", "id":
				spec.Name = value
			case "workdir":
				spec.WorkDir = value
			}
		}
		if spec.Command == "" {
			return nil, fmt.Errorf("job block #%d missing command", jobIndex)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

type yamlManifest struct {
	Jobs []JobSpec `yaml:"jobs"`
}

func parseYAML(data []byte) ([]JobSpec, error) {
	var m yamlManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse yaml manifest: %w", err)
	}
	return m.Jobs, nil
}

func parseJSONL(data []byte) ([]JobSpec, error) {
	var specs []JobSpec
	err := parser.DecodeJSONLines(bytes.NewReader(data), func(_ int, spec JobSpec) error {
		specs = append(specs, spec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse jsonl manifest: %w", err)
	}
	return specs, nil
}

func normalizeSpecs(specs []JobSpec) ([]JobSpec, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no jobs found")
	}

	seen := make(map[string]int, len(specs))
	for i := range specs {
		specs[i].Name = strings.TrimSpace(specs[i].Name)
		specs[i].Command = strings.TrimSpace(specs[i].Command)
		specs[i].WorkDir = strings.TrimSpace(specs[i].WorkDir)

		if specs[i].Command == "" {
			return nil, fmt.Errorf("job #%d has an empty command", i+1)
		}
		if specs[i].WorkDir == "-" {
			return nil, fmt.Errorf("job #%d has invalid workdir: '-' is not a valid directory path", i+1)
		}
		if specs[i].Name == "" {
			continue
		}
		if prev, ok := seen[specs[i].Name]; ok {
			return nil, fmt.Errorf("job #%d has duplicate name %q (first used by job #%d)", i+1, specs[i].Name, prev)
		}
		seen[specs[i].Name] = i + 1
	}

	for i := range specs {
		if specs[i].Name != "" {
			continue
		}
		name := strconv.Itoa(i + 1)
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("job #%d ordinal name %q collides with job #%d", i+1, name, prev)
		}
		specs[i].Name = name
		seen[name] = i + 1
	}
	return specs, nil
}

// ApplyNames sets specs[i].Name from names[i] where given, then fills the
// remaining names with positions and rejects duplicates.
func ApplyNames(specs []JobSpec, names []string) ([]JobSpec, error) {
	if len(names) > len(specs) {
		return nil, fmt.Errorf("%d names given for %d jobs", len(names), len(specs))
	}
	out := make([]JobSpec, len(specs))
	copy(out, specs)
	for i := range out {
		if i < len(names) && strings.TrimSpace(names[i]) != "" {
			out[i].Name = names[i]
		}
	}
	return normalizeSpecs(out)
}
