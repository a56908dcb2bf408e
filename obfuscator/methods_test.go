package obfuscator_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"metadata-obfuscator/model"
	"metadata-obfuscator/obfuscator"
)

const shapesModule = `
  - name: app
    coreLibrary: corlib
    types:
      - name: Shape
        namespace: Demo
        visibility: internal
        abstract: true
        base: "[corlib]System.Object"
        methods:
          - {name: Area, returns: "[corlib]System.Int32", abstract: true, visibility: public}
      - name: Circle
        namespace: Demo
        visibility: internal
        base: "Demo.Shape"
        methods:
          - {name: Area, returns: "[corlib]System.Int32", virtual: true, visibility: public}
      - name: Square
        namespace: Demo
        visibility: internal
        base: "Demo.Shape"
        methods:
          - {name: Area, returns: "[corlib]System.Int32", virtual: true, visibility: public}
      - name: Caller
        namespace: Demo
        visibility: internal
        base: "[corlib]System.Object"
        methods:
          - name: Compute
            returns: "[corlib]System.Int32"
            params: [{name: shape, type: "Demo.Shape"}]
            body:
              - {op: ldarg, int: 1}
              - {op: callvirt, method: "Demo.Shape::Area():[corlib]System.Int32"}
              - {op: ret}
`

func TestMethodGroupSharesOneName(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+shapesModule)
	obf := runObfuscator(t, project, obfuscator.DefaultConfig())

	shapeArea := methodByKeyName(t, findType(t, project, "Demo.Shape"), "Area")
	circleArea := methodByKeyName(t, findType(t, project, "Demo.Circle"), "Area")
	squareArea := methodByKeyName(t, findType(t, project, "Demo.Square"), "Area")

	assert.NotEqual(t, "Area", shapeArea.Name)
	assert.Equal(t, shapeArea.Name, circleArea.Name)
	assert.Equal(t, shapeArea.Name, squareArea.Name)

	for _, m := range []*model.Method{shapeArea, circleArea, squareArea} {
		rec := obf.Mapping.GetMethod(m.Key())
		assert.Equal(t, obfuscator.StatusRenamed, rec.Status)
		assert.Equal(t, shapeArea.Name, rec.StatusText)
	}

	compute := methodByKeyName(t, findType(t, project, "Demo.Caller"), "Compute")
	call, ok := compute.Body.Instructions[1].Operand.(*model.MethodReference)
	require.True(t, ok)
	assert.Equal(t, shapeArea.Name, call.Name)
	assert.Equal(t, shapeArea.DeclaringType.FullName(), call.DeclaringType.FullName())
	assert.Empty(t, obf.Diagnostics())
}

func TestInheritMapGroupsOverrides(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+shapesModule)
	im := obfuscator.NewInheritMap(project)

	shape := findType(t, project, "Demo.Shape")
	circle := findType(t, project, "Demo.Circle")

	group := im.MethodGroup(methodByKeyName(t, shape, "Area").Key())
	require.NotNil(t, group)
	assert.Len(t, group.Methods, 3)
	assert.False(t, group.External)
	assert.Same(t, group, im.MethodGroup(methodByKeyName(t, circle, "Area").Key()))

	assert.Nil(t, im.MethodGroup(methodByKeyName(t, findType(t, project, "Demo.Caller"), "Compute").Key()))
	assert.Len(t, im.Heirs(shape), 2)
	assert.True(t, im.DerivesFrom(circle, "Demo.Shape"))
	assert.True(t, im.DerivesFrom(circle, "System.Object"))
	assert.False(t, im.DerivesFrom(shape, "Demo.Circle"))

	var names []string
	for _, b := range im.BaseTypes(circle) {
		names = append(names, b.FullName())
	}
	assert.Equal(t, []string{"Demo.Shape", "System.Object"}, names)
}

func TestInheritMapTerminatesOnCycles(t *testing.T) {
	t.Parallel()

	project := loadProject(t, `
  - name: app
    types:
      - {name: A, namespace: Loop, base: "Loop.B"}
      - {name: B, namespace: Loop, base: "Loop.A"}
`)
	im := obfuscator.NewInheritMap(project)
	a := findType(t, project, "Loop.A")
	assert.Len(t, im.BaseTypes(a), 1)
	assert.True(t, im.DerivesFrom(a, "Loop.B"))
}

const overrideToStringModule = `
  - name: app
    coreLibrary: corlib
    types:
      - name: Widget
        namespace: Demo
        visibility: internal
        base: "[corlib]System.Object"
        methods:
          - {name: ToString, returns: "[corlib]System.String", virtual: true, visibility: public}
          - {name: Helper, visibility: private}
`

func TestOverrideOfExternalMethodIsSkipped(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+overrideToStringModule)
	obf := runObfuscator(t, project, obfuscator.DefaultConfig())

	widget := findType(t, project, "Demo.Widget")
	toString := methodByKeyName(t, widget, "ToString")
	assert.Equal(t, "ToString", toString.Name)

	rec := obf.Mapping.GetMethod(toString.Key())
	assert.Equal(t, obfuscator.StatusSkipped, rec.Status)
	assert.Equal(t, "external base class or interface", rec.StatusText)

	helper := methodByKeyName(t, widget, "Helper")
	assert.NotEqual(t, "Helper", helper.Name)
	assert.NotEqual(t, "ToString", helper.Name)
}

func TestOverrideOfUnresolvedBaseIsSkipped(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+`
  - name: app
    coreLibrary: corlib
    types:
      - name: Plugin
        namespace: Demo
        visibility: internal
        base: "[missing]Vendor.PluginBase"
        methods:
          - {name: Start, virtual: true, visibility: public}
          - {name: Fresh, virtual: true, newSlot: true, visibility: public}
`)
	obf := runObfuscator(t, project, obfuscator.DefaultConfig())

	plugin := findType(t, project, "Demo.Plugin")
	start := obf.Mapping.GetMethod(methodByKeyName(t, plugin, "Start").Key())
	assert.Equal(t, obfuscator.StatusSkipped, start.Status)
	assert.Equal(t, "external base class or interface", start.StatusText)

	fresh := obf.Mapping.GetMethod(methodByKeyName(t, plugin, "Fresh").Key())
	assert.Equal(t, obfuscator.StatusRenamed, fresh.Status)
}

const inconsistentModule = `
  - name: app
    coreLibrary: corlib
    types:
      - name: Base
        namespace: Demo
        visibility: internal
        base: "[corlib]System.Object"
        methods:
          - {name: Run, virtual: true, visibility: public}
      - name: Derived
        namespace: Demo
        visibility: internal
        base: "Demo.Base"
        methods:
          - name: Run
            virtual: true
            visibility: public
            annotations:
              - {type: System.Reflection.ObfuscationAttribute}
`

func TestInconsistentGroupAbortsByDefault(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+inconsistentModule)
	obf, err := obfuscator.New(project, obfuscator.DefaultConfig())
	require.NoError(t, err)

	err = obf.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, obfuscator.ErrInconsistentGroupState)

	var groupErr *obfuscator.InconsistentGroupError
	require.True(t, errors.As(err, &groupErr))
	assert.Len(t, groupErr.Members, 2)
	assert.Contains(t, err.Error(), "Inconsistent virtual method obfuscation state detected")

	// 决策阶段中止时尚未改写任何方法名
	base := findType(t, project, "Demo.Base")
	assert.Equal(t, "Run", methodByKeyName(t, base, "Run").Name)
}

func TestInconsistentGroupRecovery(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	project := loadProject(t, corlibModule+inconsistentModule)
	cfg := obfuscator.DefaultConfig()
	cfg.AbortOnInconsistentState = false
	obf := runObfuscator(t, project, cfg, obfuscator.WithLogger(zap.New(core)))

	for _, typeName := range []string{"Demo.Base", "Demo.Derived"} {
		run := methodByKeyName(t, findType(t, project, typeName), "Run")
		assert.Equal(t, "Run", run.Name, typeName)
		assert.Equal(t, obfuscator.StatusSkipped, obf.Mapping.GetMethod(run.Key()).Status, typeName)
	}

	diags := obf.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, obfuscator.DiagnosticRecoveredInconsistency, diags[0].Kind)
	assert.Equal(t, "app", diags[0].Module)
	assert.ErrorIs(t, diags[0].Err, obfuscator.ErrInconsistentGroupState)

	assert.Equal(t, 1, logs.FilterMessage("方法组状态不一致，已整组跳过").Len())
}

func TestInconsistentGroupRecoveryWithoutLogging(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	project := loadProject(t, corlibModule+inconsistentModule)
	cfg := obfuscator.DefaultConfig()
	cfg.AbortOnInconsistentState = false
	cfg.LogRecoveredInconsistentState = false
	obf := runObfuscator(t, project, cfg, obfuscator.WithLogger(zap.New(core)))

	assert.Len(t, obf.Diagnostics(), 1)
	assert.Zero(t, logs.Len())
}

func TestMarkedOnlyRenamesAnnotatedMembers(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+`
  - name: app
    coreLibrary: corlib
    types:
      - name: Service
        namespace: Demo
        visibility: internal
        base: "[corlib]System.Object"
        methods:
          - {name: Keep, visibility: private}
          - name: Hide
            visibility: private
            annotations:
              - {type: System.Reflection.ObfuscationAttribute, args: {Exclude: false}}
`)
	cfg := obfuscator.DefaultConfig()
	cfg.MarkedOnly = true
	obf := runObfuscator(t, project, cfg)

	service := findType(t, project, "Demo.Service")
	keep := obf.Mapping.GetMethod(methodByKeyName(t, service, "Keep").Key())
	assert.Equal(t, obfuscator.StatusSkipped, keep.Status)
	assert.Equal(t, "MarkedOnly option in configuration", keep.StatusText)

	hide := obf.Mapping.GetMethod(methodByKeyName(t, service, "Hide").Key())
	assert.Equal(t, obfuscator.StatusRenamed, hide.Status)

	typ := obf.Mapping.GetType(service.Key())
	assert.Equal(t, obfuscator.StatusSkipped, typ.Status)
}

const externalBaseModules = `
  - name: ext
    external: true
    coreLibrary: corlib
    types:
      - name: ExtBase
        namespace: Lib
        visibility: public
        base: "[corlib]System.Object"
        methods:
          - {name: A, returns: "[corlib]System.String", virtual: true, visibility: public}
  - name: app
    coreLibrary: corlib
    types:
      - name: IFoo
        namespace: Demo
        kind: interface
        visibility: internal
        methods:
          - {name: Foo, returns: "[corlib]System.String", abstract: true, virtual: true, newSlot: true, visibility: public}
      - name: Impl
        namespace: Demo
        visibility: internal
        base: "[ext]Lib.ExtBase"
        interfaces: ["Demo.IFoo"]
        methods:
          - {name: Foo, returns: "[corlib]System.String", virtual: true, newSlot: true, visibility: public}
          - {name: A, returns: "[corlib]System.String", virtual: true, visibility: public}
`

func TestMethodGroupAvoidsNamesKeptBySiblings(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+externalBaseModules)
	obf := runObfuscator(t, project, obfuscator.DefaultConfig())

	impl := findType(t, project, "Demo.Impl")
	kept := methodByKeyName(t, impl, "A")
	assert.Equal(t, "A", kept.Name)
	rec := obf.Mapping.GetMethod(kept.Key())
	assert.Equal(t, obfuscator.StatusSkipped, rec.Status)
	assert.Equal(t, "external base class or interface", rec.StatusText)

	foo := methodByKeyName(t, impl, "Foo")
	ifoo := methodByKeyName(t, findType(t, project, "Demo.IFoo"), "Foo")
	assert.Equal(t, obfuscator.StatusRenamed, obf.Mapping.GetMethod(foo.Key()).Status)
	assert.Equal(t, ifoo.Name, foo.Name)
	assert.NotEqual(t, "A", foo.Name)
	// 外部祖先中同签名的方法名同样不可用
	assert.NotEqual(t, "ToString", foo.Name)

	seen := make(map[string]string)
	for _, m := range impl.Methods {
		id := m.Name + m.Key().Signature
		prev, dup := seen[id]
		assert.False(t, dup, "%s 与 %s 重名", m.Key().Name, prev)
		seen[id] = m.Key().Name
	}
}
