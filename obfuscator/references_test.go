package obfuscator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadata-obfuscator/model"
	"metadata-obfuscator/obfuscator"
)

const libAndClientModules = `
  - name: lib
    coreLibrary: corlib
    types:
      - name: Util
        namespace: Lib
        visibility: public
        base: "[corlib]System.Object"
        fields:
          - {name: counter, type: "[corlib]System.Int32", visibility: public, static: true}
        methods:
          - name: Compute
            returns: "[corlib]System.Int32"
            visibility: public
            static: true
            params: [{name: input, type: "[corlib]System.Int32"}]
      - name: Factory
        namespace: Lib
        visibility: public
        base: "[corlib]System.Object"
        methods:
          - {name: Make, genericParameters: [T], visibility: public, static: true}
  - name: app
    coreLibrary: corlib
    types:
      - name: Client
        namespace: Demo
        visibility: internal
        base: "[corlib]System.Object"
        methods:
          - name: Use
            returns: "[corlib]System.Int32"
            body:
              - {op: call, method: "[lib]Lib.Factory::Make` + "`" + `1()", instance: true}
              - {op: ldsfld, field: "[lib]Lib.Util::counter:[corlib]System.Int32"}
              - {op: call, method: "[lib]Lib.Util::Compute([corlib]System.Int32):[corlib]System.Int32"}
              - {op: ret}
`

func TestCrossModuleReferencesFollowRenames(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+libAndClientModules)
	obf := runObfuscator(t, project, obfuscator.DefaultConfig())

	util := findType(t, project, "Lib.Util")
	factory := findType(t, project, "Lib.Factory")
	counter := fieldByKeyName(t, util, "counter")
	compute := methodByKeyName(t, util, "Compute")
	makeMethod := methodByKeyName(t, factory, "Make")

	assert.NotEqual(t, "Lib.Util", util.FullName())
	assert.NotEqual(t, "counter", counter.Name)
	assert.NotEqual(t, "Compute", compute.Name)
	assert.NotEqual(t, "Make", makeMethod.Name)
	assert.Equal(t, "A", makeMethod.GenericParameters[0].Name)
	assert.Empty(t, compute.Parameters[0].Name)

	use := methodByKeyName(t, findType(t, project, "Demo.Client"), "Use").Body.Instructions

	generic, ok := use[0].Operand.(*model.MethodReference)
	require.True(t, ok)
	require.True(t, generic.IsGenericInstance())
	assert.Equal(t, makeMethod.Name, generic.Name)
	assert.Equal(t, makeMethod.Name, generic.Element.Name)
	assert.Equal(t, factory.FullName(), generic.DeclaringType.FullName())

	fieldRef, ok := use[1].Operand.(*model.FieldReference)
	require.True(t, ok)
	assert.Equal(t, counter.Name, fieldRef.Name)
	assert.Equal(t, util.FullName(), fieldRef.DeclaringType.FullName())

	methodRef, ok := use[2].Operand.(*model.MethodReference)
	require.True(t, ok)
	assert.Equal(t, compute.Name, methodRef.Name)
	assert.Equal(t, util.FullName(), methodRef.DeclaringType.FullName())

	assert.Empty(t, obf.Diagnostics())
	assert.Equal(t, 2, obf.GetStatistics().Modules)
}

func TestKeepPublicApiLeavesCrossModuleNamesAlone(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+libAndClientModules)
	cfg := obfuscator.DefaultConfig()
	cfg.KeepPublicApi = true
	obf := runObfuscator(t, project, cfg)

	util := findType(t, project, "Lib.Util")
	assert.Equal(t, "Lib.Util", util.FullName())
	rec := obf.Mapping.GetType(util.Key())
	assert.Equal(t, obfuscator.StatusSkipped, rec.Status)
	assert.Equal(t, "KeepPublicApi option in configuration", rec.StatusText)

	compute := obf.Mapping.GetMethod(methodByKeyName(t, util, "Compute").Key())
	assert.Equal(t, obfuscator.StatusSkipped, compute.Status)

	use := methodByKeyName(t, findType(t, project, "Demo.Client"), "Use").Body.Instructions
	methodRef := use[2].Operand.(*model.MethodReference)
	assert.Equal(t, "Compute", methodRef.Name)
	assert.Empty(t, obf.Diagnostics())
}

func TestUnresolvedReferenceDiagnostic(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+`
  - name: app
    coreLibrary: corlib
    types:
      - name: Client
        namespace: Demo
        visibility: internal
        base: "[corlib]System.Object"
        methods:
          - name: Use
            body:
              - {op: call, method: "[corlib]System.Object::Missing()"}
              - {op: ret}
`)
	obf := runObfuscator(t, project, obfuscator.DefaultConfig())

	diags := obf.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, obfuscator.DiagnosticUnresolvedReference, diags[0].Kind)
	assert.Equal(t, "app", diags[0].Module)
	assert.Contains(t, diags[0].Message, "Missing")
	assert.ErrorIs(t, diags[0].Err, obfuscator.ErrUnresolvedReference)
}

const resourcesModule = `
  - name: app
    coreLibrary: corlib
    resources:
      - Demo.Strings.resources
      - Demo.Kept.resources
      - Loose.resources
    types:
      - name: Strings
        namespace: Demo
        visibility: internal
        base: "[corlib]System.Object"
        annotations:
          - type: System.CodeDom.Compiler.GeneratedCodeAttribute
            args: {Tool: System.Resources.Tools.StronglyTypedResourceBuilder}
        methods:
          - name: get_ResourceManager
            returns: "[corlib]System.Resources.ResourceManager"
            visibility: internal
            static: true
            body:
              - {op: ldstr, string: Demo.Strings}
              - {op: ret}
      - name: Kept
        namespace: Demo
        visibility: internal
        base: "[corlib]System.Object"
`

func TestResourcesFollowTypeRenames(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+resourcesModule)
	cfg := obfuscator.DefaultConfig()
	cfg.HideStrings = false
	cfg.SkipRules = []obfuscator.SkipRule{{Kind: obfuscator.RuleType, Name: "Demo.Kept"}}
	obf := runObfuscator(t, project, cfg)

	holder := findType(t, project, "Demo.Strings")
	assert.Equal(t, "A.A", holder.FullName())

	renamed, ok := obf.Mapping.Resource("Demo.Strings.resources")
	require.True(t, ok)
	assert.Equal(t, obfuscator.StatusRenamed, renamed.Status)
	assert.Equal(t, "A.A.resources", renamed.StatusText)

	kept, ok := obf.Mapping.Resource("Demo.Kept.resources")
	require.True(t, ok)
	assert.Equal(t, obfuscator.StatusSkipped, kept.Status)
	assert.Equal(t, "type rule in configuration", kept.StatusText)

	loose, ok := obf.Mapping.Resource("Loose.resources")
	require.True(t, ok)
	assert.Equal(t, obfuscator.StatusSkipped, loose.Status)
	assert.Equal(t, "no clear new name", loose.StatusText)

	var names []string
	for _, r := range project.Module("app").Resources {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"A.A.resources", "Demo.Kept.resources", "Loose.resources"}, names)

	getter := methodByKeyName(t, holder, "get_ResourceManager")
	assert.Equal(t, "A.A", getter.Body.Instructions[0].Operand)
	assert.Equal(t, 1, obf.GetStatistics().ResourcesRenamed)
}

func TestSkipRulesByNameAndGlob(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+`
  - name: app
    coreLibrary: corlib
    types:
      - name: Hidden
        namespace: Demo.Internals
        visibility: internal
        base: "[corlib]System.Object"
      - name: Service
        namespace: Demo
        visibility: internal
        base: "[corlib]System.Object"
        fields:
          - {name: token, type: "[corlib]System.String"}
        methods:
          - {name: get_Id, returns: "[corlib]System.Int32"}
          - {name: Run}
          - {name: Stop, params: [{name: force, type: "[corlib]System.Int32"}]}
`)
	cfg := obfuscator.DefaultConfig()
	cfg.SkipRules = []obfuscator.SkipRule{
		{Kind: obfuscator.RuleNamespace, Glob: "Demo.Intern*"},
		{Kind: obfuscator.RuleMethod, Glob: "get_*"},
		{Kind: obfuscator.RuleMethod, Type: "Demo.Service", Rx: "^St"},
		{Kind: obfuscator.RuleField, Module: "app", Name: "token"},
	}
	obf := runObfuscator(t, project, cfg)

	hidden := findType(t, project, "Demo.Internals.Hidden")
	rec := obf.Mapping.GetType(hidden.Key())
	assert.Equal(t, obfuscator.StatusSkipped, rec.Status)
	assert.Equal(t, "namespace rule in configuration", rec.StatusText)
	assert.Equal(t, "Demo.Internals.Hidden", hidden.FullName())

	service := findType(t, project, "Demo.Service")
	assert.Equal(t, "get_Id", methodByKeyName(t, service, "get_Id").Name)
	assert.Equal(t, "Stop", methodByKeyName(t, service, "Stop").Name)
	assert.NotEqual(t, "Run", methodByKeyName(t, service, "Run").Name)
	assert.Equal(t, "token", fieldByKeyName(t, service, "token").Name)

	stop := obf.Mapping.GetMethod(methodByKeyName(t, service, "Stop").Key())
	assert.Equal(t, "method rule in configuration", stop.StatusText)
	assert.NotEqual(t, "Demo.Service", service.FullName())
}

func TestResourceManagerLiteralKeptWithoutMatchingResource(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+`
  - name: app
    coreLibrary: corlib
    resources:
      - Other.resources
    types:
      - name: Orphan
        namespace: Demo
        visibility: internal
        base: "[corlib]System.Object"
        annotations:
          - type: System.CodeDom.Compiler.GeneratedCodeAttribute
            args: {Tool: System.Resources.Tools.StronglyTypedResourceBuilder}
        methods:
          - name: get_ResourceManager
            returns: "[corlib]System.Resources.ResourceManager"
            visibility: internal
            static: true
            body:
              - {op: ldstr, string: Demo.Orphan}
              - {op: ret}
`)
	cfg := obfuscator.DefaultConfig()
	cfg.HideStrings = false
	obf := runObfuscator(t, project, cfg)

	orphan := findType(t, project, "Demo.Orphan")
	assert.NotEqual(t, "Demo.Orphan", orphan.FullName())

	getter := methodByKeyName(t, orphan, "get_ResourceManager")
	assert.Equal(t, "Demo.Orphan", getter.Body.Instructions[0].Operand)
	assert.Zero(t, obf.GetStatistics().ResourcesRenamed)
}
