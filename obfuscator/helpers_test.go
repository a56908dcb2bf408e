package obfuscator_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"metadata-obfuscator/model"
	"metadata-obfuscator/obfuscator"
)

// corlibModule 提供基础类型的外部模块
const corlibModule = `
  - name: corlib
    external: true
    types:
      - name: Object
        namespace: System
        visibility: public
        methods:
          - {name: ToString, returns: "[corlib]System.String", virtual: true, visibility: public}
      - {name: String, namespace: System, visibility: public}
      - {name: Int32, namespace: System, kind: struct, visibility: public}
      - {name: Attribute, namespace: System, visibility: public, base: "[corlib]System.Object"}
      - {name: Encoding, namespace: System.Text, visibility: public}
      - {name: ResourceManager, namespace: System.Resources, visibility: public}
      - {name: INotifyPropertyChanged, namespace: System.ComponentModel, kind: interface, visibility: public}
`

// corlibWithoutEncoding 缺少字面量隐藏所需类型的基础模块
const corlibWithoutEncoding = `
  - name: corlib
    external: true
    types:
      - {name: Object, namespace: System, visibility: public}
      - {name: String, namespace: System, visibility: public}
`

func loadProject(t *testing.T, modules string) *model.Project {
	t.Helper()
	project, err := model.ParseManifest([]byte("modules:\n" + modules))
	require.NoError(t, err)
	return project
}

func runObfuscator(t *testing.T, project *model.Project, cfg *obfuscator.Config, opts ...obfuscator.Option) *obfuscator.Obfuscator {
	t.Helper()
	opts = append([]obfuscator.Option{obfuscator.WithLogger(zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)))}, opts...)
	obf, err := obfuscator.New(project, cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, obf.Run())
	return obf
}

func findType(t *testing.T, project *model.Project, fullName string) *model.Type {
	t.Helper()
	typ := project.FindType(fullName)
	require.NotNil(t, typ, fullName)
	return typ
}

// methodByKeyName 按原始名称查找方法
func methodByKeyName(t *testing.T, typ *model.Type, name string) *model.Method {
	t.Helper()
	for _, m := range typ.Methods {
		if m.Key().Name == name {
			return m
		}
	}
	require.Failf(t, "method not found", "%s::%s", typ.Key(), name)
	return nil
}

func fieldByKeyName(t *testing.T, typ *model.Type, name string) *model.Field {
	t.Helper()
	for _, f := range typ.Fields {
		if f.Key().Name == name {
			return f
		}
	}
	require.Failf(t, "field not found", "%s::%s", typ.Key(), name)
	return nil
}
