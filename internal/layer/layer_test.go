package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_FromFilename(t *testing.T) {
	info, err := Derive("plans/backend-domain-plan.yaml", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, TargetBackend, info.Target)
	assert.Equal(t, LayerDomain, info.Layer)
}

func TestDerive_FilenameBeatsHints(t *testing.T) {
	info, err := Derive("frontend-presentation.yaml", "", "data", "infra")
	require.NoError(t, err)
	assert.Equal(t, TargetFrontend, info.Target)
	assert.Equal(t, LayerPresentation, info.Layer)
}

func TestDerive_HintsBeatMetadata(t *testing.T) {
	info, err := Derive("plan.yaml", "fullstack", "data", "infra")
	require.NoError(t, err)
	assert.Equal(t, TargetFullstack, info.Target)
	assert.Equal(t, LayerData, info.Layer)
}

func TestDerive_MetadataFallback(t *testing.T) {
	info, err := Derive("plan.yaml", "", "", "main")
	require.NoError(t, err)
	assert.Equal(t, LayerMain, info.Layer)
}

func TestDerive_NothingUsable(t *testing.T) {
	_, err := Derive("plan.yaml", "", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not derive layer")
}

func TestFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Layer
	}{
		{"src/domain/models/user.ts", LayerDomain},
		{"src/presentation/controllers/login.ts", LayerPresentation},
		{"src/main/factories/login-factory.ts", LayerMain},
		{"src/shared/utils.ts", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromPath(tt.path), tt.path)
	}
}

func TestEnforce_DomainForbidsCoupledImports(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"es import", `import axios from 'axios'`},
		{"scoped prisma", `import { PrismaClient } from '@prisma/client'`},
		{"require", `const redis = require('redis')`},
		{"subpath", `import got from 'got/core'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Enforce(LayerDomain, tt.content)
			require.Error(t, err)
			var v *ViolationError
			require.ErrorAs(t, err, &v)
			assert.Equal(t, LayerDomain, v.Layer)
			assert.Contains(t, v.Guidance, "interface")
		})
	}
}

func TestEnforce_DomainAllowsCleanContent(t *testing.T) {
	warnings, err := Enforce(LayerDomain, `
import { Entity } from './entity'

export interface User extends Entity {
  id: string
  email: string
}
`)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestEnforce_PresentationForbidsBusinessLogic(t *testing.T) {
	_, err := Enforce(LayerPresentation, `
export class CheckoutController {
  handle(req) { return calculateTotal(req.items) }
}
`)
	require.Error(t, err)
	var v *ViolationError
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "no-business-logic", v.Rule)
}

func TestEnforce_DataLayerIsAdvisory(t *testing.T) {
	warnings, err := Enforce(LayerData, `
export class UserDb {
  async load(id) {
    const row = await this.conn.query("SELECT * FROM users")
    return row
  }
}
`)
	require.NoError(t, err)
	require.NotEmpty(t, warnings)

	rules := make([]string, 0, len(warnings))
	for _, w := range warnings {
		rules = append(rules, w.Rule)
	}
	assert.Contains(t, rules, "prefer-repository-abstraction")
	assert.Contains(t, rules, "missing-error-handling")
}

func TestEnforce_InfraAwaitWithTryCatchIsClean(t *testing.T) {
	warnings, err := Enforce(LayerInfra, `
export class HttpAdapter {
  async get(url) {
    try {
      return await this.client.get(url)
    } catch (err) {
      throw new AdapterError(err)
    }
  }
}
`)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestEnforce_MainWarnsOnConsole(t *testing.T) {
	warnings, err := Enforce(LayerMain, `console.log('booting')`)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "no-console", warnings[0].Rule)
}

func TestLayer_Strict(t *testing.T) {
	assert.True(t, LayerDomain.Strict())
	assert.True(t, LayerMain.Strict())
	assert.False(t, LayerData.Strict())
	assert.False(t, LayerInfra.Strict())
	assert.False(t, LayerPresentation.Strict())
}
