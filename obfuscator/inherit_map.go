package obfuscator

import (
	"golang.org/x/tools/container/intsets"

	"metadata-obfuscator/model"
)

// MethodGroup 通过覆盖或接口实现相互关联、必须同名的虚方法集合
type MethodGroup struct {
	Methods  []*model.Method
	External bool // 含外部模块成员或覆盖了不可见的基方法

	approved bool
}

// PropertyGroup 访问器属于同一方法组的属性集合
type PropertyGroup struct {
	Properties []*model.Property
	External   bool
}

// EventGroup 访问器属于同一方法组的事件集合
type EventGroup struct {
	Events   []*model.Event
	External bool
}

// InheritMap 全项目的继承闭包与成员分组，构建后只读
type InheritMap struct {
	project *model.Project

	ancestors       [][]*model.Type // 按类型 ID
	unresolved      [][]string      // 无法解析的祖先全名
	unresolvedIface []bool          // 无法解析的祖先中含接口
	heirs           [][]*model.Type // 直接派生类

	methodGroups   map[model.MethodKey]*MethodGroup
	propertyGroups map[model.PropertyKey]*PropertyGroup
	eventGroups    map[model.EventKey]*EventGroup
}

// NewInheritMap 为已链接的项目构建继承映射
func NewInheritMap(project *model.Project) *InheritMap {
	types := project.Types()
	im := &InheritMap{
		project:         project,
		ancestors:       make([][]*model.Type, len(types)),
		unresolved:      make([][]string, len(types)),
		unresolvedIface: make([]bool, len(types)),
		heirs:           make([][]*model.Type, len(types)),
		methodGroups:    make(map[model.MethodKey]*MethodGroup),
		propertyGroups:  make(map[model.PropertyKey]*PropertyGroup),
		eventGroups:     make(map[model.EventKey]*EventGroup),
	}
	for _, t := range types {
		im.walkAncestors(t)
		if base := project.Resolve(t.BaseType); base != nil && base != t {
			im.heirs[base.ID()] = append(im.heirs[base.ID()], t)
		}
	}
	im.buildMethodGroups()
	im.buildPropertyGroups()
	im.buildEventGroups()
	return im
}

type superRef struct {
	ref   *model.TypeReference
	iface bool
}

// walkAncestors 广度优先收集基类与全部接口
// 已访问集合保证循环继承时终止，环上不再产生新的祖先
func (im *InheritMap) walkAncestors(t *model.Type) {
	var visited intsets.Sparse
	visited.Insert(t.ID())

	id := t.ID()
	queue := directSupers(t)
	for len(queue) > 0 {
		sr := queue[0]
		queue = queue[1:]

		at := im.project.Resolve(sr.ref)
		if at == nil {
			im.unresolved[id] = append(im.unresolved[id], sr.ref.Key().FullName())
			im.unresolvedIface[id] = im.unresolvedIface[id] || sr.iface
			continue
		}
		if !visited.Insert(at.ID()) {
			continue
		}
		im.ancestors[id] = append(im.ancestors[id], at)
		queue = append(queue, directSupers(at)...)
	}
}

func directSupers(t *model.Type) []superRef {
	var out []superRef
	if t.BaseType != nil {
		out = append(out, superRef{ref: t.BaseType})
	}
	for _, it := range t.Interfaces {
		out = append(out, superRef{ref: it, iface: true})
	}
	return out
}

// BaseTypes 返回类型的全部已解析祖先（基类链与接口）
func (im *InheritMap) BaseTypes(t *model.Type) []*model.Type {
	return im.ancestors[t.ID()]
}

// Heirs 返回直接派生类
func (im *InheritMap) Heirs(t *model.Type) []*model.Type {
	return im.heirs[t.ID()]
}

// HasUnresolvedAncestors 是否存在无法解析的祖先
func (im *InheritMap) HasUnresolvedAncestors(t *model.Type) bool {
	return len(im.unresolved[t.ID()]) > 0
}

// DerivesFrom 类型的祖先（含无法解析的）中是否有给定原始全名
func (im *InheritMap) DerivesFrom(t *model.Type, fullName string) bool {
	for _, a := range im.ancestors[t.ID()] {
		if a.Key().FullName() == fullName {
			return true
		}
	}
	for _, name := range im.unresolved[t.ID()] {
		if name == fullName {
			return true
		}
	}
	return false
}

// classChain 返回类型自身及其已解析的基类链
func (im *InheritMap) classChain(t *model.Type) []*model.Type {
	var visited intsets.Sparse
	var chain []*model.Type
	for cur := t; cur != nil && visited.Insert(cur.ID()); cur = im.project.Resolve(cur.BaseType) {
		chain = append(chain, cur)
	}
	return chain
}

// MethodGroup 返回方法所在的组，不属于任何组时返回 nil
func (im *InheritMap) MethodGroup(key model.MethodKey) *MethodGroup {
	return im.methodGroups[key]
}

// PropertyGroup 返回属性所在的组
func (im *InheritMap) PropertyGroup(key model.PropertyKey) *PropertyGroup {
	return im.propertyGroups[key]
}

// EventGroup 返回事件所在的组
func (im *InheritMap) EventGroup(key model.EventKey) *EventGroup {
	return im.eventGroups[key]
}

func sameSlot(a, b *model.Method) bool {
	return a.Virtual && b.Virtual && !a.Static && !b.Static &&
		a.Key().Name == b.Key().Name && a.Key().Signature == b.Key().Signature
}

func (im *InheritMap) buildMethodGroups() {
	methods := im.project.Methods()
	uf := newUnionFind(len(methods))
	external := make([]bool, len(methods))

	for _, t := range im.project.Types() {
		anc := im.ancestors[t.ID()]
		hasUnresolved := im.HasUnresolvedAncestors(t)
		hasUnresolvedIface := im.unresolvedIface[t.ID()] && !t.IsInterface()

		for _, m := range t.Methods {
			if !m.Virtual || m.Static {
				continue
			}
			matched := false
			for _, a := range anc {
				for _, bm := range a.Methods {
					if sameSlot(m, bm) {
						uf.union(m.ID(), bm.ID())
						matched = true
					}
				}
			}
			for _, o := range m.Overrides {
				if target := im.project.ResolveMethod(o); target != nil {
					uf.union(m.ID(), target.ID())
					matched = true
				} else {
					external[m.ID()] = true
				}
			}
			// 未找到可见的基方法，可能覆盖或实现了未加载模块中的成员
			if !matched && ((hasUnresolved && !m.NewSlot) || hasUnresolvedIface) {
				external[m.ID()] = true
			}
		}

		if t.IsInterface() {
			continue
		}
		// 接口方法可能由基类中的同名方法实现
		chain := im.classChain(t)
		for _, iface := range anc {
			if !iface.IsInterface() {
				continue
			}
			for _, imeth := range iface.Methods {
				if impl := findImplementation(chain, imeth); impl != nil {
					uf.union(imeth.ID(), impl.ID())
				}
			}
		}
	}

	members := make(map[int][]*model.Method)
	var roots []int
	for _, m := range methods {
		root := uf.find(m.ID())
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], m)
	}
	for _, root := range roots {
		group := members[root]
		ext := false
		for _, m := range group {
			if external[m.ID()] || m.DeclaringType.Module.External {
				ext = true
			}
		}
		if len(group) < 2 && !ext {
			continue
		}
		g := &MethodGroup{Methods: group, External: ext}
		for _, m := range group {
			im.methodGroups[m.Key()] = g
		}
	}
}

func findImplementation(chain []*model.Type, imeth *model.Method) *model.Method {
	for _, c := range chain {
		for _, cm := range c.Methods {
			if sameSlot(cm, imeth) {
				return cm
			}
		}
	}
	return nil
}

// accessorGroups 返回访问器所在的方法组
func (im *InheritMap) accessorGroups(accessors []*model.Method) []*MethodGroup {
	var out []*MethodGroup
	for _, a := range accessors {
		if g := im.methodGroups[a.Key()]; g != nil {
			out = append(out, g)
		}
	}
	return out
}

func (im *InheritMap) buildPropertyGroups() {
	var all []*model.Property
	for _, t := range im.project.Types() {
		all = append(all, t.Properties...)
	}
	uf := newUnionFind(len(all))
	firstByGroup := make(map[*MethodGroup]int)
	ext := make([]bool, len(all))
	for i, p := range all {
		for _, g := range im.accessorGroups(p.Accessors()) {
			if g.External {
				ext[i] = true
			}
			if j, ok := firstByGroup[g]; ok {
				uf.union(i, j)
			} else {
				firstByGroup[g] = i
			}
		}
	}

	groups := make(map[int]*PropertyGroup)
	for i, p := range all {
		root := uf.find(i)
		g, ok := groups[root]
		if !ok {
			g = &PropertyGroup{}
			groups[root] = g
		}
		g.Properties = append(g.Properties, p)
		g.External = g.External || ext[i]
	}
	for _, g := range groups {
		if len(g.Properties) < 2 && !g.External {
			continue
		}
		for _, p := range g.Properties {
			im.propertyGroups[p.Key()] = g
		}
	}
}

func (im *InheritMap) buildEventGroups() {
	var all []*model.Event
	for _, t := range im.project.Types() {
		all = append(all, t.Events...)
	}
	uf := newUnionFind(len(all))
	firstByGroup := make(map[*MethodGroup]int)
	ext := make([]bool, len(all))
	for i, e := range all {
		for _, g := range im.accessorGroups(e.Accessors()) {
			if g.External {
				ext[i] = true
			}
			if j, ok := firstByGroup[g]; ok {
				uf.union(i, j)
			} else {
				firstByGroup[g] = i
			}
		}
	}

	groups := make(map[int]*EventGroup)
	for i, e := range all {
		root := uf.find(i)
		g, ok := groups[root]
		if !ok {
			g = &EventGroup{}
			groups[root] = g
		}
		g.Events = append(g.Events, e)
		g.External = g.External || ext[i]
	}
	for _, g := range groups {
		if len(g.Events) < 2 && !g.External {
			continue
		}
		for _, e := range g.Events {
			im.eventGroups[e.Key()] = g
		}
	}
}

// unionFind 按下标的并查集
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// 保持较小的下标为根，使组内顺序与项目顺序一致
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
