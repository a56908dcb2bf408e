package obfuscator

import "metadata-obfuscator/model"

// renameFields 按字段类型分桶分配新名称
// 先登记所有保留名，保证新名称不会与同类型中保留原名的字段冲突
func (o *Obfuscator) renameFields() {
	for _, m := range o.modules() {
		for _, t := range renamableTypes(m) {
			buckets := make(nameBuckets)
			var pending []*model.Field

			for _, f := range t.Fields {
				if skip, reason := o.policy.ShouldSkipField(f); skip {
					o.Mapping.UpdateField(f.Key(), StatusSkipped, reason)
					buckets.get(f.Key().FieldType).Add(f.Name)
					continue
				}
				pending = append(pending, f)
			}

			for _, f := range pending {
				newName := buckets.get(f.Key().FieldType).Next(o.names)
				o.renameField(m, f, newName)
			}
		}
	}
}

func (o *Obfuscator) renameField(m *model.Module, f *model.Field, newName string) {
	key := f.Key()
	patchReferences(m, func(ref model.Reference) bool {
		fr, ok := ref.(*model.FieldReference)
		if !ok || fr.Key() != key {
			return false
		}
		fr.Name = newName
		return true
	})
	f.Name = newName
	o.Mapping.UpdateField(key, StatusRenamed, newName)
}
