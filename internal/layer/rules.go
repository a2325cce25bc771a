package layer

import (
	"fmt"
	"regexp"
	"strings"
)

// ViolationError is a fatal architectural violation. It is raised before any
// mutation, so no rollback is needed; the guidance tells the plan author how
// to fix the step.
type ViolationError struct {
	Layer    Layer
	Rule     string
	Detail   string
	Guidance string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s layer violation (%s): %s. %s", e.Layer, e.Rule, e.Detail, e.Guidance)
}

// Warning is an advisory finding for the outer layers. Logged, never fatal.
type Warning struct {
	Layer  Layer
	Rule   string
	Detail string
}

// forbiddenDomainImports are externally-coupled packages the domain layer
// must never depend on: HTTP clients, ORMs, and cache clients.
var forbiddenDomainImports = []string{
	"axios", "node-fetch", "got", "superagent", "undici",
	"typeorm", "sequelize", "prisma", "@prisma/client", "mongoose", "knex",
	"redis", "ioredis", "memcached",
}

var importLine = regexp.MustCompile(`(?m)^\s*import\s+(?:[^'"]*\s+from\s+)?['"]([^'"]+)['"]`)
var requireCall = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)

// businessLogicKeywords betray business rules embedded in presentation code.
var businessLogicKeywords = []string{
	"calculatetotal", "applydiscount", "businessrule", "taxrate",
	"interestrate", "pricingpolicy", "validateinvoice",
}

var awaitWithoutTry = regexp.MustCompile(`(?m)^\s*(?:const|let|var|return)?[^\n]*\bawait\b`)
var rawSQL = regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE)\s+(?:\*|INTO|FROM|SET)\b`)

// Enforce applies the layer's rules to step content before it is written.
// Domain and presentation violations are fatal because they represent
// architectural drift a later step cannot undo; the outer layers produce
// advisory warnings only.
func Enforce(l Layer, content string) ([]Warning, error) {
	switch l {
	case LayerDomain:
		if imp := findForbiddenImport(content); imp != "" {
			return nil, &ViolationError{
				Layer:  LayerDomain,
				Rule:   "no-external-coupling",
				Detail: fmt.Sprintf("imports externally-coupled package %q", imp),
				Guidance: "the domain layer must stay framework-free: model the dependency as an " +
					"interface in the domain and implement it in the infra layer",
			}
		}
		return nil, nil

	case LayerPresentation:
		if kw := findBusinessLogicKeyword(content); kw != "" {
			return nil, &ViolationError{
				Layer:  LayerPresentation,
				Rule:   "no-business-logic",
				Detail: fmt.Sprintf("contains business-logic identifier %q", kw),
				Guidance: "move the rule into a domain usecase and call it through the controller's " +
					"injected dependency",
			}
		}
		return nil, nil

	case LayerData:
		var warnings []Warning
		if rawSQL.MatchString(content) {
			warnings = append(warnings, Warning{
				Layer:  LayerData,
				Rule:   "prefer-repository-abstraction",
				Detail: "raw SQL in data layer; consider moving it behind an infra repository",
			})
		}
		warnings = append(warnings, missingErrorHandling(LayerData, content)...)
		return warnings, nil

	case LayerInfra:
		return missingErrorHandling(LayerInfra, content), nil

	case LayerMain:
		var warnings []Warning
		if strings.Contains(content, "console.log") {
			warnings = append(warnings, Warning{
				Layer:  LayerMain,
				Rule:   "no-console",
				Detail: "console.log in composition root; use the injected logger",
			})
		}
		return warnings, nil

	default:
		return nil, nil
	}
}

func findForbiddenImport(content string) string {
	seen := map[string]bool{}
	for _, m := range importLine.FindAllStringSubmatch(content, -1) {
		seen[m[1]] = true
	}
	for _, m := range requireCall.FindAllStringSubmatch(content, -1) {
		seen[m[1]] = true
	}
	for _, forbidden := range forbiddenDomainImports {
		for imp := range seen {
			if imp == forbidden || strings.HasPrefix(imp, forbidden+"/") {
				return imp
			}
		}
	}
	return ""
}

func findBusinessLogicKeyword(content string) string {
	lower := strings.ToLower(content)
	for _, kw := range businessLogicKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// missingErrorHandling flags awaits that sit outside any try block. Crude on
// purpose: the quality gate owns real analysis, this only catches files with
// no error handling at all.
func missingErrorHandling(l Layer, content string) []Warning {
	if !awaitWithoutTry.MatchString(content) {
		return nil
	}
	if strings.Contains(content, "try") && strings.Contains(content, "catch") {
		return nil
	}
	return []Warning{{
		Layer:  l,
		Rule:   "missing-error-handling",
		Detail: "await without surrounding try/catch; tool and network failures will escape unhandled",
	}}
}
