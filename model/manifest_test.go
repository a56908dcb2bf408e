package model_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadata-obfuscator/model"
)

const sampleManifest = `
modules:
  - name: corlib
    external: true
    types:
      - {name: Object, namespace: System, visibility: public}
      - {name: Int32, namespace: System, kind: struct, visibility: public}
  - name: app
    coreLibrary: corlib
    resources: [Demo.Widget.resources]
    types:
      - name: Widget
        namespace: Demo
        visibility: public
        base: "[corlib]System.Object"
        fields:
          - {name: size, type: "[corlib]System.Int32"}
        methods:
          - {name: .ctor, visibility: public}
          - name: get_Size
            returns: "[corlib]System.Int32"
            visibility: public
            body:
              - {op: ldarg, int: 0}
              - {op: ldfld, field: "Demo.Widget::size:[corlib]System.Int32"}
              - {op: ret}
        properties:
          - {name: Size, type: "[corlib]System.Int32", getter: get_Size}
        nested:
          - name: Part
            visibility: private
`

func TestParseManifest(t *testing.T) {
	t.Parallel()

	project, err := model.ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)
	require.Len(t, project.Modules, 2)

	app := project.Module("app")
	require.NotNil(t, app)
	assert.Equal(t, "corlib", app.CoreLibrary)
	require.Len(t, app.Resources, 1)

	widget := project.FindType("Demo.Widget")
	require.NotNil(t, widget)
	assert.Equal(t, model.TypeKey{Scope: "app", Namespace: "Demo", Name: "Widget"}, widget.Key())
	assert.True(t, widget.IsVisible())

	require.Len(t, widget.NestedTypes, 1)
	part := widget.NestedTypes[0]
	assert.Equal(t, "Widget/Part", part.Key().Name)
	assert.Equal(t, "Demo.Widget/Part", part.FullName())
	assert.False(t, part.IsVisible())

	ctor := widget.Methods[0]
	assert.True(t, ctor.IsConstructor())
	assert.True(t, ctor.SpecialName)

	getter := widget.Methods[1]
	assert.Equal(t, model.SemanticsGetter, getter.Semantics)
	assert.Equal(t, "System.Int32()", getter.Key().Signature)
	require.Same(t, getter, widget.Properties[0].Getter)

	ldfld := getter.Body.Instructions[1]
	ref, ok := ldfld.Operand.(*model.FieldReference)
	require.True(t, ok)
	assert.Same(t, widget.Fields[0], project.ResolveField(ref))
}

func TestParseManifestRejectsInvalidDocuments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "not yaml", doc: "modules: [\n"},
		{name: "missing module name", doc: "modules:\n  - types: []\n"},
		{name: "unknown field", doc: "modules:\n  - name: app\n    color: red\n"},
		{name: "bad visibility", doc: "modules:\n  - name: app\n    types:\n      - {name: T, visibility: secret}\n"},
		{name: "unknown opcode", doc: "modules:\n  - name: app\n    types:\n      - name: T\n        methods:\n          - name: M\n            body: [{op: jump}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := model.ParseManifest([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalidManifest)
		})
	}
}

func TestParseManifestDuplicateModule(t *testing.T) {
	t.Parallel()

	_, err := model.ParseManifest([]byte("modules:\n  - name: app\n  - name: app\n"))
	assert.ErrorIs(t, err, model.ErrDuplicateModule)
}

func TestLoadManifest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o644))

	project, err := model.LoadManifest(path)
	require.NoError(t, err)
	assert.NotNil(t, project.FindType("Demo.Widget"))

	_, err = model.LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseMethodRef(t *testing.T) {
	t.Parallel()

	ref, err := model.ParseMethodRef("app", "[lib]Lib.Box::Map`2([corlib]System.Int32,Lib.Item[]):[corlib]System.Int32")
	require.NoError(t, err)
	assert.Equal(t, "Map", ref.Name)
	assert.Equal(t, 2, ref.GenericArity)
	assert.Equal(t, "lib", ref.TargetScope())
	require.Len(t, ref.Parameters, 2)
	assert.Equal(t, "corlib", ref.Parameters[0].Scope)
	assert.True(t, ref.Parameters[1].Array)
	assert.Equal(t, "System.Int32(System.Int32,Lib.Item[])`2", ref.Key().Signature)

	_, err = model.ParseMethodRef("app", "Lib.Box.Map()")
	assert.Error(t, err)
	_, err = model.ParseMethodRef("app", "Lib.Box::Map")
	assert.Error(t, err)
}
