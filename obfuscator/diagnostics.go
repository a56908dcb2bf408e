package obfuscator

import (
	"fmt"

	"go.uber.org/zap"

	"metadata-obfuscator/model"
)

// collectUnresolvedReferences 运行结束后仍未改写且无法解析的引用记为诊断
func (o *Obfuscator) collectUnresolvedReferences() {
	for _, m := range o.modules() {
		for _, ref := range m.PendingReferences() {
			if o.project.Resolves(ref) {
				continue
			}
			desc := describeReference(ref)
			o.logger.Debug("引用无法解析", zap.String("module", m.Name), zap.String("ref", desc))
			o.addDiagnostic(DiagnosticUnresolvedReference, m.Name, desc,
				fmt.Errorf("%w: %s", ErrUnresolvedReference, desc))
		}
	}
}

func describeReference(ref model.Reference) string {
	switch r := ref.(type) {
	case *model.TypeReference:
		return "type " + r.Key().String()
	case *model.FieldReference:
		return "field " + r.Key().String()
	case *model.MethodReference:
		return "method " + r.Key().String()
	case *model.PropertyReference:
		return "property " + r.Key().String()
	}
	return fmt.Sprintf("%T", ref)
}
