package obfuscator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

const (
	configType = "yaml"
	envPrefix  = "OBFUSCATOR"

	// DefaultLiteralWorkers 字面量扫描与改写的默认并发数
	DefaultLiteralWorkers = 4
	// DefaultNotifyContract 默认的变更通知契约
	DefaultNotifyContract = "System.ComponentModel.INotifyPropertyChanged"
)

// 跳过规则种类
const (
	RuleNamespace = "namespace"
	RuleType      = "type"
	RuleField     = "field"
	RuleMethod    = "method"
	RuleProperty  = "property"
	RuleEvent     = "event"
	RuleStrings   = "strings"
)

// Config 存储混淆配置
type Config struct {
	// 分类开关
	RenameFields     bool `mapstructure:"rename_fields"`
	RenameParams     bool `mapstructure:"rename_params"`
	RenameProperties bool `mapstructure:"rename_properties"`
	RenameEvents     bool `mapstructure:"rename_events"`
	RenameMethods    bool `mapstructure:"rename_methods"`
	RenameTypes      bool `mapstructure:"rename_types"`
	HideStrings      bool `mapstructure:"hide_strings"`

	MarkedOnly     bool `mapstructure:"marked_only"`     // 只重命名显式标记的符号
	ReuseNames     bool `mapstructure:"reuse_names"`     // 按签名桶复用名称
	KeepPublicApi  bool `mapstructure:"keep_public_api"` // 保留对外可见的符号
	HidePrivateApi bool `mapstructure:"hide_private_api"`

	AbortOnInconsistentState      bool `mapstructure:"abort_on_inconsistent_state"`
	LogRecoveredInconsistentState bool `mapstructure:"log_recovered_inconsistent_state"`
	StripObfuscationAnnotations   bool `mapstructure:"strip_obfuscation_annotations"`

	Alphabet       string `mapstructure:"alphabet"` // ascii、unicode、korean 或自定义字符集
	LiteralWorkers int    `mapstructure:"literal_workers"`

	SkipRules       []SkipRule `mapstructure:"skip_rules"`
	MarkupTypes     []string   `mapstructure:"markup_types"`     // 标记语言中引用的类型全名
	NotifyTypes     []string   `mapstructure:"notify_types"`     // 预先计算的变更通知相关类型
	NotifyContracts []string   `mapstructure:"notify_contracts"` // 视为变更通知契约的接口
}

// SkipRule 一条配置的跳过规则
// Name、Rx、Glob 三者恰好设置一个；Module 与 Type 为可选的精确过滤
type SkipRule struct {
	Kind   string `mapstructure:"kind"`
	Module string `mapstructure:"module"`
	Type   string `mapstructure:"type"`
	Name   string `mapstructure:"name"`
	Rx     string `mapstructure:"rx"`
	Glob   string `mapstructure:"glob"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RenameFields:                  true,
		RenameParams:                  true,
		RenameProperties:              true,
		RenameEvents:                  true,
		RenameMethods:                 true,
		RenameTypes:                   true,
		HideStrings:                   true,
		HidePrivateApi:                true,
		AbortOnInconsistentState:      true,
		LogRecoveredInconsistentState: true,
		StripObfuscationAnnotations:   true,
		Alphabet:                      AlphabetASCII,
		LiteralWorkers:                DefaultLiteralWorkers,
		NotifyContracts:               []string{DefaultNotifyContract},
	}
}

// Validate 校验配置，所有错误都包装 ErrConfiguration
func (c *Config) Validate() error {
	if _, err := ResolveAlphabet(c.Alphabet); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if c.LiteralWorkers < 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, ErrInvalidWorkerCount)
	}
	for _, contract := range c.NotifyContracts {
		if strings.TrimSpace(contract) == "" {
			return fmt.Errorf("%w: %w", ErrConfiguration, ErrInvalidNotifyContract)
		}
	}
	for i, rule := range c.SkipRules {
		if err := rule.validate(); err != nil {
			return fmt.Errorf("%w: skip_rules[%d]: %w", ErrConfiguration, i, err)
		}
	}
	return nil
}

func (r SkipRule) validate() error {
	switch r.Kind {
	case RuleNamespace, RuleType, RuleField, RuleMethod, RuleProperty, RuleEvent, RuleStrings:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRuleKind, r.Kind)
	}

	set := 0
	for _, v := range []string{r.Name, r.Rx, r.Glob} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return ErrRuleWithoutMatcher
	}
	if r.Rx != "" {
		if _, err := regexp.Compile(r.Rx); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRulePattern, err)
		}
	}
	return nil
}

// LoadConfig 从文件、环境变量和默认值加载配置
// configPath 为空时只使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("读取配置失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("rename_fields", def.RenameFields)
	v.SetDefault("rename_params", def.RenameParams)
	v.SetDefault("rename_properties", def.RenameProperties)
	v.SetDefault("rename_events", def.RenameEvents)
	v.SetDefault("rename_methods", def.RenameMethods)
	v.SetDefault("rename_types", def.RenameTypes)
	v.SetDefault("hide_strings", def.HideStrings)
	v.SetDefault("marked_only", def.MarkedOnly)
	v.SetDefault("reuse_names", def.ReuseNames)
	v.SetDefault("keep_public_api", def.KeepPublicApi)
	v.SetDefault("hide_private_api", def.HidePrivateApi)
	v.SetDefault("abort_on_inconsistent_state", def.AbortOnInconsistentState)
	v.SetDefault("log_recovered_inconsistent_state", def.LogRecoveredInconsistentState)
	v.SetDefault("strip_obfuscation_annotations", def.StripObfuscationAnnotations)
	v.SetDefault("alphabet", def.Alphabet)
	v.SetDefault("literal_workers", def.LiteralWorkers)
	v.SetDefault("skip_rules", []SkipRule{})
	v.SetDefault("markup_types", []string{})
	v.SetDefault("notify_types", []string{})
	v.SetDefault("notify_contracts", def.NotifyContracts)
}
