package obfuscator

// renameParams 清除参数名并按位置重命名泛型参数
// 带注解的参数与泛型参数保持不变
func (o *Obfuscator) renameParams() {
	maker := o.names.Maker()
	for _, m := range o.modules() {
		for _, t := range renamableTypes(m) {
			if skip, _ := o.policy.ShouldSkipType(t); !skip && o.Config.RenameParams {
				for i, gp := range t.GenericParameters {
					if len(gp.Annotations) == 0 {
						gp.Name = maker.UniqueName(i)
					}
				}
			}

			for _, meth := range t.Methods {
				if skip, _ := o.policy.ShouldSkipParams(meth); skip {
					continue
				}
				for _, p := range meth.Parameters {
					if len(p.Annotations) == 0 {
						p.Name = ""
					}
				}
				for i, gp := range meth.GenericParameters {
					if len(gp.Annotations) == 0 {
						gp.Name = maker.UniqueName(i)
					}
				}
			}
		}
	}
}
