package obfuscator

import (
	"fmt"

	"metadata-obfuscator/model"
)

// renameEvents 先完成全部跳过判定及其传播，再丢弃其余事件
func (o *Obfuscator) renameEvents() {
	for _, m := range o.modules() {
		for _, t := range renamableTypes(m) {
			for _, e := range t.Events {
				o.decideEvent(e)
			}
		}
	}

	for _, m := range o.modules() {
		for _, t := range renamableTypes(m) {
			var drop []*model.Event
			for _, e := range t.Events {
				if o.Mapping.GetEvent(e.Key()).Status == StatusUnknown {
					drop = append(drop, e)
				}
			}
			for _, e := range drop {
				o.Mapping.UpdateEvent(e.Key(), StatusRenamed, "dropped")
				t.RemoveEvent(e)
				for _, acc := range e.Accessors() {
					acc.Semantics = model.SemanticsNone
				}
			}
		}
	}
}

func (o *Obfuscator) decideEvent(e *model.Event) {
	if o.Mapping.GetEvent(e.Key()).Status == StatusSkipped {
		return
	}

	group := o.inherit.EventGroup(e.Key())
	skip, reason := o.policy.ShouldSkipEvent(e)
	if group != nil && group.External {
		skip, reason = true, "external base class or interface"
	}
	if !skip {
		return
	}

	o.skipEvent(e, reason)
	if group == nil {
		return
	}
	groupReason := fmt.Sprintf("base class or interface skipped: %s %s", e.Key(), reason)
	for _, other := range group.Events {
		if other != e && inScope(other.DeclaringType) {
			o.skipEvent(other, groupReason)
		}
	}
}

func (o *Obfuscator) skipEvent(e *model.Event, reason string) {
	o.Mapping.UpdateEvent(e.Key(), StatusSkipped, reason)
	for _, acc := range e.Accessors() {
		o.forceSkip(acc, "skip by event")
	}
}
