package obfuscator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadata-obfuscator/model"
	"metadata-obfuscator/obfuscator"
)

const counterModule = `
  - name: app
    coreLibrary: corlib
    types:
      - name: Counter
        namespace: Demo
        visibility: internal
        base: "[corlib]System.Object"
        fields:
          - {name: count, type: "[corlib]System.Int32"}
        methods:
          - {name: .ctor, visibility: public}
          - {name: get_Value, returns: "[corlib]System.Int32", visibility: public}
          - name: set_Value
            visibility: public
            params: [{name: value, type: "[corlib]System.Int32"}]
        properties:
          - {name: Value, type: "[corlib]System.Int32", getter: get_Value, setter: set_Value}
`

func TestFieldAndDroppedPropertyScenario(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+counterModule)
	cfg := obfuscator.DefaultConfig()
	cfg.ReuseNames = false
	obf := runObfuscator(t, project, cfg)

	counter := findType(t, project, "Demo.Counter")
	typeKey := counter.Key()

	count := obf.Mapping.GetField(model.FieldKey{Type: typeKey, Name: "count", FieldType: "System.Int32"})
	assert.Equal(t, obfuscator.StatusRenamed, count.Status)
	assert.Equal(t, "A", count.StatusText)
	assert.Equal(t, "A", counter.Fields[0].Name)

	prop := obf.Mapping.GetProperty(model.PropertyKey{Type: typeKey, Name: "Value", PropertyType: "System.Int32"})
	assert.Equal(t, obfuscator.StatusRenamed, prop.Status)
	assert.Equal(t, "dropped", prop.StatusText)
	assert.Empty(t, counter.Properties)

	getter := methodByKeyName(t, counter, "get_Value")
	setter := methodByKeyName(t, counter, "set_Value")
	assert.Equal(t, "B", getter.Name)
	assert.Equal(t, "C", setter.Name)
	assert.Equal(t, model.SemanticsNone, getter.Semantics)
	assert.Equal(t, model.SemanticsNone, setter.Semantics)
	assert.Empty(t, setter.Parameters[0].Name)

	ctor := obf.Mapping.GetMethod(methodByKeyName(t, counter, ".ctor").Key())
	assert.Equal(t, obfuscator.StatusSkipped, ctor.Status)
	assert.Equal(t, "special name", ctor.StatusText)

	typ := obf.Mapping.GetType(typeKey)
	assert.Equal(t, obfuscator.StatusRenamed, typ.Status)
	assert.Equal(t, "[app]A.A", typ.StatusText)
	assert.Equal(t, "A.A", counter.FullName())

	assert.Equal(t, 1, obf.Mapping.Count(obfuscator.EntryField, obfuscator.StatusRenamed))
	assert.Equal(t, 2, obf.Mapping.Count(obfuscator.EntryMethod, obfuscator.StatusRenamed))
	assert.Equal(t, 1, obf.Mapping.Count(obfuscator.EntryType, obfuscator.StatusRenamed))

	// 丢弃的属性以 Renamed/"dropped" 记账，成员条目共四条
	assert.Equal(t, 1, obf.Mapping.Count(obfuscator.EntryProperty, obfuscator.StatusRenamed))
	renamedMembers := 0
	for _, kind := range []obfuscator.EntryKind{obfuscator.EntryField, obfuscator.EntryMethod, obfuscator.EntryProperty, obfuscator.EntryEvent} {
		renamedMembers += obf.Mapping.Count(kind, obfuscator.StatusRenamed)
	}
	assert.Equal(t, 4, renamedMembers)

	stats := obf.GetStatistics()
	assert.Equal(t, 1, stats.Modules)
	assert.Equal(t, 1, stats.FieldsRenamed)
	assert.Equal(t, 2, stats.MethodsRenamed)
	assert.Equal(t, 1, stats.TypesRenamed)
}

func TestRunIsDeterministic(t *testing.T) {
	t.Parallel()

	snapshot := func() []string {
		project := loadProject(t, corlibModule+counterModule)
		obf := runObfuscator(t, project, obfuscator.DefaultConfig())
		var out []string
		for _, e := range obf.Mapping.Entries() {
			out = append(out, e.Kind.String()+" "+e.Record.Name+" "+e.Record.Status.String()+" "+e.Record.StatusText)
		}
		return out
	}
	assert.Equal(t, snapshot(), snapshot())
}

func TestRunTwiceFails(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+counterModule)
	obf := runObfuscator(t, project, nil)
	assert.ErrorIs(t, obf.Run(), obfuscator.ErrAlreadyRun)
}

const notifyModule = `
  - name: app
    coreLibrary: corlib
    types:
      - name: ViewModel
        namespace: Demo
        visibility: public
        base: "[corlib]System.Object"
        interfaces: ["[corlib]System.ComponentModel.INotifyPropertyChanged"]
        methods:
          - {name: get_Title, returns: "[corlib]System.String", visibility: public}
          - {name: get_Secret, returns: "[corlib]System.String", visibility: private}
        properties:
          - {name: Title, type: "[corlib]System.String", getter: get_Title}
          - {name: Secret, type: "[corlib]System.String", getter: get_Secret}
      - name: DetailViewModel
        namespace: Demo
        visibility: internal
        base: "Demo.ViewModel"
        methods:
          - {name: get_Detail, returns: "[corlib]System.String", visibility: public}
        properties:
          - {name: Detail, type: "[corlib]System.String", getter: get_Detail}
      - name: Plain
        namespace: Demo
        visibility: public
        base: "[corlib]System.Object"
        methods:
          - {name: get_Name, returns: "[corlib]System.String", visibility: public}
        properties:
          - {name: Name, type: "[corlib]System.String", getter: get_Name}
`

func TestNotifyContractScenario(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+notifyModule)
	obf := runObfuscator(t, project, obfuscator.DefaultConfig())

	const reason = "declaring type related to System.ComponentModel.INotifyPropertyChanged"
	propKey := func(typeName, name string) model.PropertyKey {
		return model.PropertyKey{Type: findType(t, project, typeName).Key(), Name: name, PropertyType: "System.String"}
	}

	for _, tc := range []struct{ typ, prop, getter string }{
		{"Demo.ViewModel", "Title", "get_Title"},
		{"Demo.DetailViewModel", "Detail", "get_Detail"},
	} {
		rec := obf.Mapping.GetProperty(propKey(tc.typ, tc.prop))
		assert.Equal(t, obfuscator.StatusSkipped, rec.Status, tc.prop)
		assert.Equal(t, reason, rec.StatusText, tc.prop)

		getter := methodByKeyName(t, findType(t, project, tc.typ), tc.getter)
		assert.Equal(t, tc.getter, getter.Name)
		acc := obf.Mapping.GetMethod(getter.Key())
		assert.Equal(t, obfuscator.StatusSkipped, acc.Status)
		assert.Equal(t, "skip by property", acc.StatusText)
	}

	secret := obf.Mapping.GetProperty(propKey("Demo.ViewModel", "Secret"))
	assert.Equal(t, obfuscator.StatusRenamed, secret.Status)
	assert.Equal(t, "dropped", secret.StatusText)

	plain := obf.Mapping.GetProperty(propKey("Demo.Plain", "Name"))
	assert.Equal(t, obfuscator.StatusRenamed, plain.Status)

	vm := findType(t, project, "Demo.ViewModel")
	require.Len(t, vm.Properties, 1)
	assert.Equal(t, "Title", vm.Properties[0].Name)
}

func TestNotifyContractDisabledByEmptyContractList(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+notifyModule)
	cfg := obfuscator.DefaultConfig()
	cfg.NotifyContracts = nil
	obf := runObfuscator(t, project, cfg)

	title := obf.Mapping.GetProperty(model.PropertyKey{
		Type:         findType(t, project, "Demo.ViewModel").Key(),
		Name:         "Title",
		PropertyType: "System.String",
	})
	assert.Equal(t, obfuscator.StatusRenamed, title.Status)
}

const eventsModule = `
  - name: app
    coreLibrary: corlib
    types:
      - name: Publisher
        namespace: Demo
        visibility: public
        base: "[corlib]System.Object"
        methods:
          - {name: add_Changed, visibility: public, params: [{name: handler, type: "[corlib]System.Object"}]}
          - {name: remove_Changed, visibility: public, params: [{name: handler, type: "[corlib]System.Object"}]}
          - {name: add_Hidden, visibility: private, params: [{name: handler, type: "[corlib]System.Object"}]}
          - {name: remove_Hidden, visibility: private, params: [{name: handler, type: "[corlib]System.Object"}]}
        events:
          - {name: Changed, type: "[corlib]System.Object", add: add_Changed, remove: remove_Changed}
          - {name: Hidden, type: "[corlib]System.Object", add: add_Hidden, remove: remove_Hidden}
`

func TestEventsSkipOrDrop(t *testing.T) {
	t.Parallel()

	project := loadProject(t, corlibModule+eventsModule)
	cfg := obfuscator.DefaultConfig()
	cfg.KeepPublicApi = true
	obf := runObfuscator(t, project, cfg)

	publisher := findType(t, project, "Demo.Publisher")
	eventKey := func(name string) model.EventKey {
		return model.EventKey{Type: publisher.Key(), Name: name, EventType: "System.Object"}
	}

	changed := obf.Mapping.GetEvent(eventKey("Changed"))
	assert.Equal(t, obfuscator.StatusSkipped, changed.Status)
	assert.Equal(t, "KeepPublicApi option in configuration", changed.StatusText)
	for _, name := range []string{"add_Changed", "remove_Changed"} {
		acc := methodByKeyName(t, publisher, name)
		assert.Equal(t, name, acc.Name)
		assert.Equal(t, "skip by event", obf.Mapping.GetMethod(acc.Key()).StatusText)
	}

	hidden := obf.Mapping.GetEvent(eventKey("Hidden"))
	assert.Equal(t, obfuscator.StatusRenamed, hidden.Status)
	assert.Equal(t, "dropped", hidden.StatusText)
	require.Len(t, publisher.Events, 1)
	assert.Equal(t, "Changed", publisher.Events[0].Name)

	add := methodByKeyName(t, publisher, "add_Hidden")
	remove := methodByKeyName(t, publisher, "remove_Hidden")
	assert.NotEqual(t, "add_Hidden", add.Name)
	assert.NotEqual(t, add.Name, remove.Name, "same signature bucket yields distinct names")
	assert.Equal(t, model.SemanticsNone, add.Semantics)
}
