package obfuscator

import (
	"strings"

	"metadata-obfuscator/model"
)

const (
	attributeBaseType       = "System.Attribute"
	resourceBuilderTool     = "System.Resources.Tools.StronglyTypedResourceBuilder"
	resourceManagerTypeName = "System.Resources.ResourceManager"
	formTypeName            = "System.Windows.Forms.Form"
	userControlTypeName     = "System.Windows.Forms.UserControl"
	privateDetailsPrefix    = "<PrivateImplementationDetails>{"
)

// isSpecialTypeName 模块类型与编译器生成的实现细节类型
func isSpecialTypeName(t *model.Type) bool {
	name := t.Key().Name
	return name == model.ModuleTypeName || strings.HasPrefix(name, privateDetailsPrefix)
}

// isSerializable 类型标记为可序列化，成员名会出现在序列化数据中
func isSerializable(t *model.Type) bool {
	if t.Serializable {
		return true
	}
	for _, a := range t.Annotations {
		if a.Kind == model.AnnotationSerializable {
			return true
		}
	}
	return false
}

// isAttributeType 类型派生自 System.Attribute，其公开 setter 以命名参数的形式被引用
func isAttributeType(im *InheritMap, t *model.Type) bool {
	return im.DerivesFrom(t, attributeBaseType)
}

// resourceTypeCache 单次运行内“资源持有类型”判定的缓存
type resourceTypeCache struct {
	inherit *InheritMap
	results map[model.TypeKey]bool
}

func newResourceTypeCache(im *InheritMap) *resourceTypeCache {
	return &resourceTypeCache{inherit: im, results: make(map[model.TypeKey]bool)}
}

// IsResourcesType 由强类型资源生成器生成，或派生自窗体/用户控件
func (c *resourceTypeCache) IsResourcesType(t *model.Type) bool {
	if v, ok := c.results[t.Key()]; ok {
		return v
	}

	result := false
	generated := false
	for _, a := range t.Annotations {
		if a.Kind == model.AnnotationGeneratedCode {
			generated = true
			result = a.Tool == resourceBuilderTool
			break
		}
	}
	if !generated {
		result = c.inherit.DerivesFrom(t, formTypeName) || c.inherit.DerivesFrom(t, userControlTypeName)
	}

	c.results[t.Key()] = result
	return result
}
