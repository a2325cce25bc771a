// Package commitmsg generates conventional commit messages for plan steps:
// a type from the configured step-type mapping, a scope inferred from the
// step path's layer folder, and a length-capped subject.
package commitmsg

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/planexec/internal/config"
	"github.com/fyrsmithlabs/planexec/internal/layer"
	"github.com/fyrsmithlabs/planexec/internal/plan"
)

const (
	// maxSubjectLen caps the commit subject line.
	maxSubjectLen = 72

	ellipsis = "..."

	// fallbackScope is used when no layer or structural folder matches.
	fallbackScope = "core"
)

// structuralScopes maps conventional folder names to layer scopes for paths
// that do not carry an explicit layer segment.
var structuralScopes = []struct {
	folder string
	scope  string
}{
	{"models", "domain"},
	{"entities", "domain"},
	{"usecases", "data"},
	{"repositories", "infra"},
	{"adapters", "infra"},
	{"controllers", "presentation"},
	{"components", "presentation"},
	{"factories", "main"},
	{"composition", "main"},
}

// Generator builds commit messages from steps.
type Generator struct {
	mapping  map[string]config.CommitType
	coAuthor string
}

// NewGenerator creates a generator from the conventional-commit config.
// A nil mapping falls back to the built-in table.
func NewGenerator(cfg config.ConventionalConfig, coAuthor string) *Generator {
	mapping := cfg.TypeMapping
	if mapping == nil {
		mapping = config.DefaultTypeMapping()
	}
	return &Generator{mapping: mapping, coAuthor: coAuthor}
}

// TypeFor resolves the commit type for a step type. The second return is
// false when steps of this type must not be committed at all.
func (g *Generator) TypeFor(stepType plan.StepType) (config.CommitType, bool) {
	commitType, ok := g.mapping[string(stepType)]
	if !ok || commitType == config.CommitNone {
		return config.CommitNone, false
	}
	return commitType, true
}

// ScopeFor infers the commit scope from a file path: the first recognized
// layer folder wins, then structural folder names, then the generic scope.
func ScopeFor(path string) string {
	if l := layer.FromPath(path); l != "" {
		return string(l)
	}
	lower := strings.ToLower(path)
	for _, s := range structuralScopes {
		if strings.Contains(lower, "/"+s.folder+"/") || strings.HasPrefix(lower, s.folder+"/") {
			return s.scope
		}
	}
	return fallbackScope
}

// Generate produces the full commit message for a step: subject, an optional
// body describing the operation, and the co-author trailer when configured.
// It fails when the step type is non-committing or when the type/scope prefix
// alone exceeds the subject cap.
func (g *Generator) Generate(step *plan.Step) (string, error) {
	commitType, ok := g.TypeFor(step.Type)
	if !ok {
		return "", fmt.Errorf("step type %s does not produce commits", step.Type)
	}

	scope := ScopeFor(step.Path)
	prefix := fmt.Sprintf("%s(%s): ", commitType, scope)
	if len(prefix)+len(ellipsis) > maxSubjectLen {
		return "", fmt.Errorf("commit prefix %q leaves no room for a subject within %d chars", strings.TrimSpace(prefix), maxSubjectLen)
	}

	subject := prefix + describe(step)
	if len(subject) > maxSubjectLen {
		// Back the cut off to a rune boundary so multi-byte names stay valid.
		cut := maxSubjectLen - len(ellipsis)
		for cut > 0 && !utf8.RuneStart(subject[cut]) {
			cut--
		}
		subject = subject[:cut] + ellipsis
	}

	var b strings.Builder
	b.WriteString(subject)

	if body := bodyFor(step); body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	if g.coAuthor != "" {
		b.WriteString("\n\nCo-authored-by: ")
		b.WriteString(g.coAuthor)
	}

	return b.String(), nil
}

// describe builds the subject description from the step operation.
func describe(step *plan.Step) string {
	name := baseName(step.Path)
	switch step.Type {
	case plan.StepCreateFile:
		return fmt.Sprintf("add %s", name)
	case plan.StepRefactorFile:
		return fmt.Sprintf("restructure %s", name)
	case plan.StepDeleteFile:
		return fmt.Sprintf("remove %s", name)
	case plan.StepFolder:
		return "scaffold directories"
	default:
		return step.ID
	}
}

func bodyFor(step *plan.Step) string {
	switch step.Type {
	case plan.StepCreateFile:
		return fmt.Sprintf("Creates %s as planned in step %s.", step.Path, step.ID)
	case plan.StepRefactorFile:
		return fmt.Sprintf("Applies the planned refactor to %s (step %s).", step.Path, step.ID)
	case plan.StepDeleteFile:
		return fmt.Sprintf("Removes %s, no longer needed after step %s.", step.Path, step.ID)
	case plan.StepFolder:
		return fmt.Sprintf("Prepares the directory structure for step %s.", step.ID)
	default:
		return ""
	}
}

func baseName(path string) string {
	if path == "" {
		return "files"
	}
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
