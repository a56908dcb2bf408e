package obfuscator

import (
	"go.uber.org/zap"

	"metadata-obfuscator/model"
)

// stripObfuscationAnnotations 移除要求在混淆后删除的混淆注解
func (o *Obfuscator) stripObfuscationAnnotations() {
	removed := 0
	strip := func(in []model.Annotation) []model.Annotation {
		out := in[:0]
		for _, a := range in {
			if a.Kind == model.AnnotationObfuscation && a.StripAfterObfuscation {
				removed++
				continue
			}
			out = append(out, a)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}

	for _, m := range o.modules() {
		for _, t := range m.AllTypes() {
			t.Annotations = strip(t.Annotations)
			for _, gp := range t.GenericParameters {
				gp.Annotations = strip(gp.Annotations)
			}
			for _, f := range t.Fields {
				f.Annotations = strip(f.Annotations)
			}
			for _, meth := range t.Methods {
				meth.Annotations = strip(meth.Annotations)
				for _, p := range meth.Parameters {
					p.Annotations = strip(p.Annotations)
				}
				for _, gp := range meth.GenericParameters {
					gp.Annotations = strip(gp.Annotations)
				}
			}
			for _, p := range t.Properties {
				p.Annotations = strip(p.Annotations)
			}
			for _, e := range t.Events {
				e.Annotations = strip(e.Annotations)
			}
		}
	}
	o.logger.Debug("移除混淆注解", zap.Int("count", removed))
}
