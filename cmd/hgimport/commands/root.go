package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"hgimport/pkg/app"
	"hgimport/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	HG *app.App
)

var rootCmd = &cobra.Command{
	Use:           "hgimport",
	Short:         "Import Mercurial manifests, trees and file contents into a content-addressed store",
	SilenceUsage:  true,
	SilenceErrors: false,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.LogLevel()})))

		// pack 命令只处理本地文件，不需要存储层
		if !needsApp(cmd) {
			return nil
		}
		var err error
		HG, err = app.NewApp(cmd.Context(), slog.Default())
		if err != nil {
			return fmt.Errorf("failed to initialize hgimport: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if HG == nil {
			return nil
		}
		err := HG.Close()
		HG = nil
		return err
	},
}

func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == packCmd {
			return false
		}
	}
	return true
}

// Execute 是入口
func Execute() error {
	return ExecuteContext(context.Background())
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hgimport/config.yaml)")

	// 用户既可以在 yaml 里写，也可以用参数覆盖
	bind := func(flag, key, usage string) {
		rootCmd.PersistentFlags().String(flag, "", usage)
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
			os.Exit(1)
		}
	}
	bind("repo", "repo.path", "Mercurial repository the helper serves")
	bind("helper", "helper.command", "helper executable")
	bind("storage-type", "storage.type", "object store: disk, bolt, s3 or memory")
	bind("storage-path", "storage.path", "object store location (disk/bolt)")
	bind("log-level", "log.level", "debug, info, warn or error")
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}
