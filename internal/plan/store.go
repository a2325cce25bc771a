package plan

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// layerOrder is the deterministic merge order for layer-partitioned plans.
var layerOrder = []string{"domain", "data", "infra", "presentation", "main"}

// document is the on-disk shape. A plan either carries a flat `steps` list
// or partitions steps by layer under `layers`; both forms round-trip.
type document struct {
	Metadata   Metadata           `yaml:"metadata"`
	Steps      []*Step            `yaml:"steps,omitempty"`
	Layers     map[string][]*Step `yaml:"layers,omitempty"`
	Evaluation *Evaluation        `yaml:"evaluation,omitempty"`
}

// Load reads a plan document from disk. Layer-partitioned step arrays are
// merged into one ordered sequence (domain, data, infra, presentation, main);
// the partitioning is remembered so Save writes the same shape back.
func Load(path string) (*Plan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}

	p := &Plan{
		Metadata:   doc.Metadata,
		Evaluation: doc.Evaluation,
		path:       path,
	}

	if len(doc.Layers) > 0 {
		if len(doc.Steps) > 0 {
			return nil, fmt.Errorf("plan %s mixes flat steps with layer sections", path)
		}
		p.partitioned = true
		p.partition = make(map[string]int, len(doc.Layers))
		for _, layer := range layerOrder {
			steps, ok := doc.Layers[layer]
			if !ok {
				continue
			}
			p.partition[layer] = len(steps)
			p.Steps = append(p.Steps, steps...)
		}
		for layer := range doc.Layers {
			if !knownLayer(layer) {
				return nil, fmt.Errorf("plan %s has unknown layer section %q", path, layer)
			}
		}
	} else {
		p.Steps = doc.Steps
	}

	for i, s := range p.Steps {
		if s.ID == "" {
			return nil, fmt.Errorf("plan %s: step %d has no id", path, i)
		}
		if s.Status == "" {
			s.Status = StatusPending
		}
	}

	return p, nil
}

// Save rewrites the whole plan document atomically: the new content lands in
// a temp file in the same directory and replaces the plan via rename, so a
// crash mid-write never leaves a truncated plan behind.
func (p *Plan) Save() error {
	if p.path == "" {
		return fmt.Errorf("plan has no backing file")
	}

	doc := document{
		Metadata:   p.Metadata,
		Evaluation: p.Evaluation,
	}
	if p.partitioned {
		doc.Layers = make(map[string][]*Step, len(p.partition))
		offset := 0
		for _, layer := range layerOrder {
			n, ok := p.partition[layer]
			if !ok {
				continue
			}
			doc.Layers[layer] = p.Steps[offset : offset+n]
			offset += n
		}
	} else {
		doc.Steps = p.Steps
	}

	content, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, ".planexec-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp plan file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write plan: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync plan: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp plan file: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace plan file: %w", err)
	}
	return nil
}

func knownLayer(layer string) bool {
	for _, l := range layerOrder {
		if l == layer {
			return true
		}
	}
	return false
}
