package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const version = "1.0.0"

var (
	verbose bool
	logger  *zap.Logger
)

func printLogo() {
	title := color.New(color.FgMagenta, color.Bold)
	fmt.Println()
	title.Println("  ━━━ Metadata Obfuscator ━━━")
	color.New(color.FgHiBlack).Printf("  模块符号重命名与字符串隐藏工具 | Version %s\n", version)
	fmt.Println()
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "obfuscator",
		Short:         "重命名模块符号并隐藏字符串字面量",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config := zap.NewProductionConfig()
			config.Encoding = "console"
			config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = config.Build()
			if err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "obfuscator %s\n", version)
		},
	}
}
