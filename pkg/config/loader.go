package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量前缀 (HGIMPORT_STORAGE_TYPE 等)
const EnvPrefix = "HGIMPORT"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	SetDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 -> ./.hgimport -> ~/.hgimport
		viper.AddConfigPath(".")
		viper.AddConfigPath(".hgimport")
		viper.AddConfigPath(filepath.Join(home, ".hgimport"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量，键中的 "." 换成 "_"
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		slog.Debug("no config file found, using defaults and env vars")
	} else {
		slog.Debug("using config file", slog.String("path", viper.ConfigFileUsed()))
	}

	return nil
}

// SetDefaults 写入全部默认值，测试中在 viper.Reset 之后调用
func SetDefaults() {
	wd, _ := os.Getwd()
	base := filepath.Join(wd, ".hgimport")

	// helper 进程
	viper.SetDefault("helper.command", "hg")
	viper.SetDefault("helper.args", []string{"debugedenimporthelper"})
	viper.SetDefault("helper.shutdown_timeout", 5*time.Second)
	viper.SetDefault("repo.path", wd)

	// 存储默认值
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(base, "objects"))
	viper.SetDefault("s3.region", "us-east-1")

	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.ttl", 24*time.Hour)

	// 元数据库
	viper.SetDefault("meta.driver", "sqlite")
	viper.SetDefault("meta.dsn", filepath.Join(base, "meta.db"))

	// 服务端
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.instances", 4)

	viper.SetDefault("log.level", "info")
}

// LogLevel 解析 log.level
func LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		return slog.LevelInfo
	}
	return level
}
