package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"metadata-obfuscator/model"
	"metadata-obfuscator/obfuscator"
)

func printConfiguration(manifestPath string, project *model.Project, config *obfuscator.Config) {
	on := func(b bool) string {
		if b {
			return color.GreenString("✓")
		}
		return color.HiBlackString("✗")
	}

	fmt.Println("========================================")
	fmt.Println("   模块符号混淆器")
	fmt.Println("========================================")
	fmt.Printf("清单:  %s\n", manifestPath)
	fmt.Printf("模块:  %s\n", humanize.Comma(int64(len(project.Modules))))
	fmt.Printf("类型:  %s\n", humanize.Comma(int64(len(project.Types()))))
	fmt.Println()
	fmt.Println("配置选项:")
	fmt.Printf("  重命名字段:     %s\n", on(config.RenameFields))
	fmt.Printf("  重命名参数:     %s\n", on(config.RenameParams))
	fmt.Printf("  重命名属性:     %s\n", on(config.RenameProperties))
	fmt.Printf("  重命名事件:     %s\n", on(config.RenameEvents))
	fmt.Printf("  重命名方法:     %s\n", on(config.RenameMethods))
	fmt.Printf("  重命名类型:     %s\n", on(config.RenameTypes))
	fmt.Printf("  隐藏字符串:     %s\n", on(config.HideStrings))
	fmt.Printf("  复用名称:       %s\n", on(config.ReuseNames))
	fmt.Printf("  保留公开 API:   %s", on(config.KeepPublicApi))
	if !config.KeepPublicApi {
		color.New(color.FgYellow).Print(" ⚠️  外部模块对公开符号的引用会失效")
	}
	fmt.Println()
	fmt.Printf("  字母表:         %s\n", config.Alphabet)
	if len(config.SkipRules) > 0 {
		fmt.Printf("  跳过规则:       %d\n", len(config.SkipRules))
	}
	fmt.Println()
}

func printStatistics(stats *obfuscator.Statistics) {
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("   混淆统计")
	fmt.Println("========================================")
	fmt.Printf("模块:       %s\n", humanize.Comma(int64(stats.Modules)))
	fmt.Printf("重命名类型: %s (跳过 %s)\n", humanize.Comma(int64(stats.TypesRenamed)), humanize.Comma(int64(stats.TypesSkipped)))
	fmt.Printf("重命名字段: %s\n", humanize.Comma(int64(stats.FieldsRenamed)))
	fmt.Printf("重命名方法: %s\n", humanize.Comma(int64(stats.MethodsRenamed)))
	fmt.Printf("重命名属性: %s\n", humanize.Comma(int64(stats.PropertiesRenamed)))
	fmt.Printf("重命名事件: %s\n", humanize.Comma(int64(stats.EventsRenamed)))
	fmt.Printf("跳过成员:   %s\n", humanize.Comma(int64(stats.MembersSkipped)))
	if stats.ResourcesRenamed > 0 {
		fmt.Printf("重新登记资源: %s\n", humanize.Comma(int64(stats.ResourcesRenamed)))
	}
	if stats.StringsHidden > 0 {
		fmt.Printf("隐藏字符串: %s (%s)\n", humanize.Comma(int64(stats.StringsHidden)), humanize.Bytes(uint64(stats.BlobBytes)))
	}
}

func printDiagnostics(diags []obfuscator.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	warn := color.New(color.FgYellow)
	warn.Printf("\n⚠️  %d 条诊断:\n", len(diags))
	for _, d := range diags {
		warn.Printf("  - %s\n", d)
	}
}

// renderLedger 每类条目一张表，按账本创建顺序排列
func renderLedger(mapping *obfuscator.ObfuscationMap) string {
	kinds := []obfuscator.EntryKind{
		obfuscator.EntryType,
		obfuscator.EntryField,
		obfuscator.EntryMethod,
		obfuscator.EntryProperty,
		obfuscator.EntryEvent,
		obfuscator.EntryResource,
	}
	byKind := make(map[obfuscator.EntryKind][]obfuscator.Entry)
	for _, e := range mapping.Entries() {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	var sb strings.Builder
	for _, kind := range kinds {
		entries := byKind[kind]
		if len(entries) == 0 {
			continue
		}
		tbl := table.NewWriter()
		tbl.SetStyle(table.StyleLight)
		tbl.Style().Options.SeparateRows = false
		tbl.AppendHeader(table.Row{"Name", "Status", "Result"})
		for _, e := range entries {
			tbl.AppendRow(table.Row{e.Record.Name, e.Record.Status, e.Record.StatusText})
		}
		tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d", len(entries))})
		fmt.Fprintf(&sb, "%s:\n%s\n\n", kind, tbl.Render())
	}
	return sb.String()
}
