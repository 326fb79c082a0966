package helpertest

import (
	"fmt"
	"os"
	"time"
)

// EnvHelperMode 非空时，测试二进制扮演 helper 子进程
const EnvHelperMode = "HGIMPORT_FAKE_HELPER"

// 子进程模式
const (
	ModeServe      = "serve"       // 正常服务 Demo 仓库
	ModeBadVersion = "bad-version" // 宣告错误的协议版本
	ModeHang       = "hang"        // stdin 关闭后不退出
	ModeStderr     = "stderr"      // 启动时向 stderr 写日志
	ModeExit       = "exit"        // 不握手直接退出
)

// RunIfHelperProcess 在 TestMain 开头调用
// 环境变量设置时以 helper 身份服务 stdin/stdout 并退出进程，否则立即返回
func RunIfHelperProcess() {
	mode := os.Getenv(EnvHelperMode)
	if mode == "" {
		return
	}

	s := &Server{Repo: Demo(), TreeManifest: true, ChunkSize: 7}
	switch mode {
	case ModeBadVersion:
		s.Version = 99
	case ModeStderr:
		fmt.Fprintln(os.Stderr, "loading repository")
		fmt.Fprint(os.Stderr, "partial line")
	case ModeExit:
		os.Exit(3)
	}

	err := s.Serve(os.Stdin, os.Stdout)
	if mode == ModeHang {
		time.Sleep(time.Hour)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fake helper:", err)
		os.Exit(2)
	}
	os.Exit(0)
}
