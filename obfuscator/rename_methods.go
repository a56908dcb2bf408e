package obfuscator

import (
	"fmt"

	"go.uber.org/zap"

	"metadata-obfuscator/model"
)

// methodRenamer 方法阶段的状态：每个类型按签名分桶的已占用名称
type methodRenamer struct {
	o        *Obfuscator
	sigNames map[model.TypeKey]nameBuckets
	groups   []*MethodGroup // 按决策顺序排列的待命名方法组
}

func (r *methodRenamer) bucket(t *model.Type, sig string) *NameGroup {
	b, ok := r.sigNames[t.Key()]
	if !ok {
		b = make(nameBuckets)
		r.sigNames[t.Key()] = b
	}
	return b.get(sig)
}

// renameMethods 分为决策、命名与应用三个子阶段
// 所有跳过决策完成后才为方法组分配名称，分配时保留原名的同签名方法都已登记；
// 方法组冲突被发现时还没有任何调用点被修改，恢复路径无需回滚
func (o *Obfuscator) renameMethods() error {
	r := &methodRenamer{o: o, sigNames: make(map[model.TypeKey]nameBuckets)}
	r.reserveExternalNames()
	r.reserveSkippedNames()

	for _, m := range o.modules() {
		for _, t := range renamableTypes(m) {
			for _, meth := range t.Methods {
				if err := r.decide(meth); err != nil {
					return err
				}
			}
		}
	}

	for _, group := range r.groups {
		if group.approved {
			r.nameGroup(group)
		}
	}

	// 新名称不能覆盖继承来的名称
	for _, m := range o.modules() {
		for _, t := range renamableTypes(m) {
			for _, base := range o.inherit.BaseTypes(t) {
				for sig, names := range r.sigNames[base.Key()] {
					r.bucket(t, sig).AddAll(names)
				}
			}
		}
	}

	for _, m := range o.modules() {
		for _, t := range renamableTypes(m) {
			for _, meth := range t.Methods {
				r.apply(meth)
			}
		}
	}
	return nil
}

// reserveExternalNames 外部模块中的方法名不会改变，派生类型不能再分配这些名称
func (r *methodRenamer) reserveExternalNames() {
	for _, m := range r.o.project.Modules {
		if !m.External {
			continue
		}
		for _, t := range m.AllTypes() {
			for _, meth := range t.Methods {
				r.bucket(t, meth.Key().Signature).Add(meth.Name)
			}
		}
	}
}

// reserveSkippedNames 预先登记保留原名的方法
func (r *methodRenamer) reserveSkippedNames() {
	for _, m := range r.o.modules() {
		for _, t := range renamableTypes(m) {
			for _, meth := range t.Methods {
				skipped := r.o.Mapping.GetMethod(meth.Key()).Status == StatusSkipped
				if !skipped {
					skipped, _ = r.o.policy.ShouldSkipMethod(meth)
				}
				if skipped {
					r.bucket(t, meth.Key().Signature).Add(meth.Name)
				}
			}
		}
	}
}

func (r *methodRenamer) skip(meth *model.Method, reason string) {
	r.o.Mapping.UpdateMethod(meth.Key(), StatusSkipped, reason)
	r.bucket(meth.DeclaringType, meth.Key().Signature).Add(meth.Name)
}

func (r *methodRenamer) decide(meth *model.Method) error {
	rec := r.o.Mapping.GetMethod(meth.Key())
	if rec.Status == StatusSkipped {
		return nil
	}

	skip, reason := r.o.policy.ShouldSkipMethod(meth)
	if !meth.Virtual {
		if skip {
			r.skip(meth, reason)
		}
		return nil
	}
	if (skip && rec.Status != StatusSkipped) || rec.Status == StatusUnknown {
		return r.decideGroup(meth, skip, reason)
	}
	return nil
}

// decideGroup 组内第一个需要决策的成员决定整组结果
// 决定改名的组只做标记，名称在全部跳过决策完成后由 nameGroup 分配
func (r *methodRenamer) decideGroup(meth *model.Method, skip bool, reason string) error {
	group := r.o.inherit.MethodGroup(meth.Key())
	if group == nil {
		if skip {
			r.skip(meth, reason)
		}
		return nil
	}
	members := inScopeMethods(group.Methods)

	if group.approved {
		if skip {
			return r.inconsistent(group, members, reason)
		}
		return nil
	}

	if group.External {
		skip, reason = true, "external base class or interface"
	}
	if !skip {
		for _, other := range members {
			if cur := r.o.Mapping.GetMethod(other.Key()); cur.Status == StatusSkipped {
				skip = true
				reason = fmt.Sprintf("base class or interface skipped: %s %s", other.Key(), cur.StatusText)
				break
			}
		}
	}
	if skip {
		for _, other := range members {
			if r.o.Mapping.GetMethod(other.Key()).Status != StatusSkipped {
				r.skip(other, reason)
			}
		}
		return nil
	}

	group.approved = true
	r.groups = append(r.groups, group)
	return nil
}

// nameGroup 为方法组取一个在所有相关类型及其祖先中都未占用的名称
func (r *methodRenamer) nameGroup(group *MethodGroup) {
	members := inScopeMethods(group.Methods)
	nameGroups := r.nameGroups(group, members[0].Key().Signature)
	name := NextAcross(r.o.names, nameGroups)
	for _, other := range members {
		r.o.Mapping.UpdateMethod(other.Key(), StatusWillRename, name)
	}
	for _, g := range nameGroups {
		g.Add(name)
	}
}

// inconsistent 已决定改名的组中出现需要跳过的成员
// 整组改为跳过；默认中止运行，开启恢复时记录警告并继续
func (r *methodRenamer) inconsistent(group *MethodGroup, members []*model.Method, reason string) error {
	for _, other := range members {
		if r.o.Mapping.GetMethod(other.Key()).Status != StatusSkipped {
			r.skip(other, reason)
		}
	}

	err := &InconsistentGroupError{}
	for _, other := range members {
		rec := r.o.Mapping.GetMethod(other.Key())
		err.Members = append(err.Members, GroupMemberState{Key: other.Key().String(), Status: rec.Status, Text: rec.StatusText})
	}
	if r.o.Config.AbortOnInconsistentState {
		return err
	}

	group.approved = false
	module := members[0].DeclaringType.Module.Name
	r.o.addDiagnostic(DiagnosticRecoveredInconsistency, module, err.Error(), err)
	if r.o.Config.LogRecoveredInconsistentState {
		r.o.logger.Warn("方法组状态不一致，已整组跳过", zap.String("detail", err.Error()))
	}
	return nil
}

func (r *methodRenamer) apply(meth *model.Method) {
	rec := r.o.Mapping.GetMethod(meth.Key())
	var newName string
	switch rec.Status {
	case StatusSkipped:
		return
	case StatusWillRename, StatusRenamed:
		newName = rec.StatusText
	default:
		newName = r.bucket(meth.DeclaringType, meth.Key().Signature).Next(r.o.names)
		rec.Update(StatusWillRename, newName)
	}
	r.o.renameMethod(meth, newName)
}

// renameMethod 改写所有依赖模块中的引用，再改写方法本身
// 泛型实例引用先入队，在直接引用全部改写后统一修正其元素方法
func (o *Obfuscator) renameMethod(meth *model.Method, newName string) {
	key := meth.Key()
	var generics []*model.MethodReference
	patchReferences(meth.DeclaringType.Module, func(ref model.Reference) bool {
		mr, ok := ref.(*model.MethodReference)
		if !ok || mr.Key() != key {
			return false
		}
		if mr.IsGenericInstance() {
			generics = append(generics, mr)
		} else {
			mr.Name = newName
		}
		return true
	})
	for len(generics) > 0 {
		g := generics[0]
		generics = generics[1:]
		g.SetName(newName)
	}

	meth.Name = newName
	o.Mapping.UpdateMethod(key, StatusRenamed, newName)
}

func inScopeMethods(methods []*model.Method) []*model.Method {
	var out []*model.Method
	for _, m := range methods {
		if inScope(m.DeclaringType) {
			out = append(out, m)
		}
	}
	return out
}
