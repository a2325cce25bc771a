package commitmsg

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/planexec/internal/config"
	"github.com/fyrsmithlabs/planexec/internal/plan"
)

func TestScopeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"src/domain/models/user.ts", "domain"},
		{"src/data/usecases/login.ts", "data"},
		{"src/infra/http/client.ts", "infra"},
		{"src/presentation/controllers/login.ts", "presentation"},
		{"src/main/factories/app.ts", "main"},
		// Structural fallbacks when no layer folder is present.
		{"src/models/user.ts", "domain"},
		{"src/entities/account.ts", "domain"},
		{"src/usecases/checkout.ts", "data"},
		{"src/repositories/user-repo.ts", "infra"},
		{"src/adapters/stripe.ts", "infra"},
		{"src/controllers/health.ts", "presentation"},
		{"src/components/button.tsx", "presentation"},
		{"src/factories/login.ts", "main"},
		{"components/nav.tsx", "presentation"},
		// Generic fallback.
		{"src/shared/utils.ts", "core"},
		{"README.md", "core"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScopeFor(tt.path), tt.path)
	}
}

func TestTypeFor(t *testing.T) {
	g := NewGenerator(config.Default().Conventional, "")

	commitType, ok := g.TypeFor(plan.StepCreateFile)
	assert.True(t, ok)
	assert.Equal(t, config.CommitFeat, commitType)

	_, ok = g.TypeFor(plan.StepBranch)
	assert.False(t, ok)

	_, ok = g.TypeFor(plan.StepPullRequest)
	assert.False(t, ok)
}

func TestGenerate_Subject(t *testing.T) {
	g := NewGenerator(config.Default().Conventional, "")

	msg, err := g.Generate(&plan.Step{
		ID:   "create-user",
		Type: plan.StepCreateFile,
		Path: "src/domain/models/user.ts",
	})
	require.NoError(t, err)

	lines := strings.Split(msg, "\n")
	assert.Equal(t, "feat(domain): add user.ts", lines[0])
	assert.Contains(t, msg, "Creates src/domain/models/user.ts")
}

func TestGenerate_CoAuthorTrailer(t *testing.T) {
	g := NewGenerator(config.Default().Conventional, "Plan Bot <bot@example.com>")

	msg, err := g.Generate(&plan.Step{
		ID:   "rm-legacy",
		Type: plan.StepDeleteFile,
		Path: "src/infra/legacy.ts",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(msg, "Co-authored-by: Plan Bot <bot@example.com>"))
	assert.True(t, strings.HasPrefix(msg, "chore(infra): remove legacy.ts"))
}

func TestGenerate_TruncatesLongSubject(t *testing.T) {
	g := NewGenerator(config.Default().Conventional, "")

	long := "src/domain/models/" + strings.Repeat("very-long-name-", 8) + "entity.ts"
	msg, err := g.Generate(&plan.Step{ID: "s", Type: plan.StepCreateFile, Path: long})
	require.NoError(t, err)

	subject := strings.Split(msg, "\n")[0]
	assert.LessOrEqual(t, len(subject), maxSubjectLen)
	assert.True(t, strings.HasPrefix(subject, "feat(domain): "))
	assert.True(t, strings.HasSuffix(subject, "..."))
}

func TestGenerate_TruncatesOnRuneBoundary(t *testing.T) {
	g := NewGenerator(config.Default().Conventional, "")

	// A multi-byte basename long enough that the byte cap lands mid-rune.
	long := "src/domain/models/" + strings.Repeat("é", 40) + ".ts"
	msg, err := g.Generate(&plan.Step{ID: "s", Type: plan.StepCreateFile, Path: long})
	require.NoError(t, err)

	subject := strings.Split(msg, "\n")[0]
	assert.True(t, utf8.ValidString(subject), "subject must stay valid UTF-8: %q", subject)
	assert.LessOrEqual(t, len(subject), maxSubjectLen)
	assert.True(t, strings.HasSuffix(subject, "..."))
}

func TestGenerate_NonCommittingTypeFails(t *testing.T) {
	g := NewGenerator(config.Default().Conventional, "")

	_, err := g.Generate(&plan.Step{ID: "b", Type: plan.StepBranch})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not produce commits")
}

func TestGenerate_CustomMapping(t *testing.T) {
	cfg := config.ConventionalConfig{
		Enabled: true,
		TypeMapping: map[string]config.CommitType{
			"create_file": config.CommitFix,
		},
	}
	g := NewGenerator(cfg, "")

	msg, err := g.Generate(&plan.Step{ID: "s", Type: plan.StepCreateFile, Path: "src/shared/x.ts"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg, "fix(core): "))

	// Types absent from a custom mapping do not commit.
	_, ok := g.TypeFor(plan.StepDeleteFile)
	assert.False(t, ok)
}
