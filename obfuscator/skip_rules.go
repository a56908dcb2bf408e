package obfuscator

import (
	"regexp"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"metadata-obfuscator/model"
)

// ruleMatcher 编译后的跳过规则
type ruleMatcher struct {
	SkipRule
	rx   *regexp.Regexp
	glob *ignore.GitIgnore
}

// ruleSet 按种类索引的规则
type ruleSet struct {
	byKind map[string][]ruleMatcher
}

// compileRules 编译配置中的规则，调用前配置必须已通过校验
func compileRules(rules []SkipRule) (*ruleSet, error) {
	rs := &ruleSet{byKind: make(map[string][]ruleMatcher)}
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		m := ruleMatcher{SkipRule: r}
		if r.Rx != "" {
			m.rx = regexp.MustCompile(r.Rx)
		}
		if r.Glob != "" {
			// 点分名称按路径处理，使 "*" 不跨越命名空间层级
			m.glob = ignore.CompileIgnoreLines(dottedToPath(r.Glob))
		}
		rs.byKind[r.Kind] = append(rs.byKind[r.Kind], m)
	}
	return rs, nil
}

func dottedToPath(s string) string {
	return strings.ReplaceAll(s, ".", "/")
}

func (m ruleMatcher) matchName(name string) bool {
	switch {
	case m.rx != nil:
		return m.rx.MatchString(name)
	case m.glob != nil:
		return m.glob.MatchesPath(dottedToPath(name))
	}
	return m.Name == name
}

func (m ruleMatcher) matchScope(t *model.Type) bool {
	if m.Module != "" && m.Module != t.Key().Scope {
		return false
	}
	if m.Type != "" && m.Type != t.Key().FullName() {
		return false
	}
	return true
}

// matchType 类型规则按原始全名匹配，命名空间规则按原始命名空间匹配
func (rs *ruleSet) matchType(t *model.Type) (bool, string) {
	key := t.Key()
	for _, m := range rs.byKind[RuleNamespace] {
		if (m.Module == "" || m.Module == key.Scope) && m.matchName(key.Namespace) {
			return true, "namespace rule in configuration"
		}
	}
	for _, m := range rs.byKind[RuleType] {
		if (m.Module == "" || m.Module == key.Scope) && m.matchName(key.FullName()) {
			return true, "type rule in configuration"
		}
	}
	return false, ""
}

// matchMember 成员规则按原始成员名匹配
func (rs *ruleSet) matchMember(kind string, declaring *model.Type, name string) (bool, string) {
	for _, m := range rs.byKind[kind] {
		if m.matchScope(declaring) && m.matchName(name) {
			return true, kind + " rule in configuration"
		}
	}
	return false, ""
}
