package obfuscator

import "metadata-obfuscator/model"

// Status 符号在决策账本中的状态
type Status int

const (
	StatusUnknown Status = iota
	StatusWillRename
	StatusSkipped
	StatusRenamed
)

func (s Status) String() string {
	switch s {
	case StatusWillRename:
		return "WillRename"
	case StatusSkipped:
		return "Skipped"
	case StatusRenamed:
		return "Renamed"
	}
	return "Unknown"
}

// ObfuscatedThing 一个符号的决策记录
// Renamed 时 StatusText 为新名称，Skipped 时为原因
type ObfuscatedThing struct {
	Name       string
	Status     Status
	StatusText string
}

// Update 按允许的迁移更新状态，非法迁移被忽略并返回 false
// Renamed 与 Skipped 都是终态；WillRename 只能变为 Renamed 或（恢复时）Skipped
func (t *ObfuscatedThing) Update(status Status, text string) bool {
	switch t.Status {
	case StatusRenamed, StatusSkipped:
		return false
	case StatusWillRename:
		if status != StatusRenamed && status != StatusSkipped {
			return false
		}
	}
	t.Status = status
	t.StatusText = text
	return true
}

// EntryKind 账本条目的分类
type EntryKind int

const (
	EntryType EntryKind = iota
	EntryField
	EntryMethod
	EntryProperty
	EntryEvent
	EntryResource
)

func (k EntryKind) String() string {
	return [...]string{"type", "field", "method", "property", "event", "resource"}[k]
}

// Entry 按创建顺序记录的账本条目
type Entry struct {
	Kind   EntryKind
	Owner  model.TypeKey // 所属类型，资源条目为零值
	Record *ObfuscatedThing
}

// ObfuscationMap 决策账本：每个符号一条记录
type ObfuscationMap struct {
	types      map[model.TypeKey]*ObfuscatedThing
	fields     map[model.FieldKey]*ObfuscatedThing
	methods    map[model.MethodKey]*ObfuscatedThing
	properties map[model.PropertyKey]*ObfuscatedThing
	events     map[model.EventKey]*ObfuscatedThing
	resources  map[string]*ObfuscatedThing
	entries    []Entry
}

// NewObfuscationMap 创建空账本
func NewObfuscationMap() *ObfuscationMap {
	return &ObfuscationMap{
		types:      make(map[model.TypeKey]*ObfuscatedThing),
		fields:     make(map[model.FieldKey]*ObfuscatedThing),
		methods:    make(map[model.MethodKey]*ObfuscatedThing),
		properties: make(map[model.PropertyKey]*ObfuscatedThing),
		events:     make(map[model.EventKey]*ObfuscatedThing),
		resources:  make(map[string]*ObfuscatedThing),
	}
}

func getOrCreate[K comparable](m *ObfuscationMap, index map[K]*ObfuscatedThing, key K, name string, kind EntryKind, owner model.TypeKey) *ObfuscatedThing {
	if t, ok := index[key]; ok {
		return t
	}
	t := &ObfuscatedThing{Name: name}
	index[key] = t
	m.entries = append(m.entries, Entry{Kind: kind, Owner: owner, Record: t})
	return t
}

// GetType 返回（必要时创建）类型记录
func (m *ObfuscationMap) GetType(key model.TypeKey) *ObfuscatedThing {
	return getOrCreate(m, m.types, key, key.String(), EntryType, key)
}

// UpdateType 更新类型记录
func (m *ObfuscationMap) UpdateType(key model.TypeKey, status Status, text string) {
	m.GetType(key).Update(status, text)
}

// GetField 返回（必要时创建）字段记录
func (m *ObfuscationMap) GetField(key model.FieldKey) *ObfuscatedThing {
	return getOrCreate(m, m.fields, key, key.String(), EntryField, key.Type)
}

// UpdateField 更新字段记录
func (m *ObfuscationMap) UpdateField(key model.FieldKey, status Status, text string) {
	m.GetField(key).Update(status, text)
}

// GetMethod 返回（必要时创建）方法记录
func (m *ObfuscationMap) GetMethod(key model.MethodKey) *ObfuscatedThing {
	return getOrCreate(m, m.methods, key, key.String(), EntryMethod, key.Type)
}

// UpdateMethod 更新方法记录
func (m *ObfuscationMap) UpdateMethod(key model.MethodKey, status Status, text string) {
	m.GetMethod(key).Update(status, text)
}

// GetProperty 返回（必要时创建）属性记录
func (m *ObfuscationMap) GetProperty(key model.PropertyKey) *ObfuscatedThing {
	return getOrCreate(m, m.properties, key, key.String(), EntryProperty, key.Type)
}

// UpdateProperty 更新属性记录
func (m *ObfuscationMap) UpdateProperty(key model.PropertyKey, status Status, text string) {
	m.GetProperty(key).Update(status, text)
}

// GetEvent 返回（必要时创建）事件记录
func (m *ObfuscationMap) GetEvent(key model.EventKey) *ObfuscatedThing {
	return getOrCreate(m, m.events, key, key.String(), EntryEvent, key.Type)
}

// UpdateEvent 更新事件记录
func (m *ObfuscationMap) UpdateEvent(key model.EventKey, status Status, text string) {
	m.GetEvent(key).Update(status, text)
}

// AddResource 记录资源的决策
func (m *ObfuscationMap) AddResource(name string, status Status, text string) {
	getOrCreate(m, m.resources, name, name, EntryResource, model.TypeKey{}).Update(status, text)
}

// Resource 返回资源记录
func (m *ObfuscationMap) Resource(name string) (*ObfuscatedThing, bool) {
	t, ok := m.resources[name]
	return t, ok
}

// Entries 按创建顺序返回全部条目
func (m *ObfuscationMap) Entries() []Entry {
	return m.entries
}

// Count 统计某类条目中处于给定状态的数量
func (m *ObfuscationMap) Count(kind EntryKind, status Status) int {
	n := 0
	for _, e := range m.entries {
		if e.Kind == kind && e.Record.Status == status {
			n++
		}
	}
	return n
}
