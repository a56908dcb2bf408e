package main

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"metadata-obfuscator/model"
	"metadata-obfuscator/obfuscator"
)

type runOptions struct {
	configPath  string
	mappingPath string
	metricsPath string
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <model.yaml>",
		Short: "加载模块清单并执行混淆",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runObfuscation(args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "配置文件 (YAML)")
	cmd.Flags().StringVarP(&opts.mappingPath, "mapping", "m", "", "写出决策映射的文件")
	cmd.Flags().StringVar(&opts.metricsPath, "metrics-file", "", "以文本格式写出指标的文件")
	return cmd
}

func runObfuscation(manifestPath string, opts *runOptions) error {
	printLogo()

	config, err := obfuscator.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	project, err := model.LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	metrics := obfuscator.NewMetrics()
	obf, err := obfuscator.New(project, config,
		obfuscator.WithLogger(logger),
		obfuscator.WithMetrics(metrics))
	if err != nil {
		return err
	}

	printConfiguration(manifestPath, project, config)

	fmt.Println("开始混淆...")
	if err := obf.Run(); err != nil {
		return err
	}

	printStatistics(obf.GetStatistics())
	printDiagnostics(obf.Diagnostics())

	if opts.mappingPath != "" {
		if err := writeMapping(opts.mappingPath, obf.Mapping); err != nil {
			return err
		}
		fmt.Printf("决策映射: %s\n", opts.mappingPath)
	}
	if opts.metricsPath != "" {
		if err := prometheus.WriteToTextfile(opts.metricsPath, metrics.Registry()); err != nil {
			return fmt.Errorf("写出指标失败: %w", err)
		}
		fmt.Printf("指标:     %s\n", opts.metricsPath)
	}

	fmt.Println("\n✅ 混淆完成!")
	return nil
}

func writeMapping(path string, mapping *obfuscator.ObfuscationMap) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建映射文件失败: %w", err)
	}
	return writeAndClose(f, renderLedger(mapping))
}

// writeAndClose 关闭失败时同样返回错误，写出的内容可能并未落盘
func writeAndClose(w io.WriteCloser, content string) (err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("关闭映射文件失败: %w", cerr)
		}
	}()
	if _, err := io.WriteString(w, content); err != nil {
		return fmt.Errorf("写出映射失败: %w", err)
	}
	return nil
}
