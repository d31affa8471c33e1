// Package main 提供 substrate 演示节点
//
// 监听一组地址并响应 /ping/1；指定 -dial 时拨号对端并发送若干次 ping。
//
//	substrate -listen /ip4/127.0.0.1/tcp/4001
//	substrate -listen /ip4/127.0.0.1/tcp/0 -dial /ip4/127.0.0.1/tcp/4001/p2p/12D3Koo... -count 5
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"

	substrate "github.com/dep2p/go-substrate"
	"github.com/dep2p/go-substrate/config"
	"github.com/dep2p/go-substrate/internal/core/identity"
	"github.com/dep2p/go-substrate/internal/core/protocol/ping"
	"github.com/dep2p/go-substrate/pkg/lib/crypto"
	"github.com/dep2p/go-substrate/pkg/lib/log"
)

var logger = log.Logger("substrate/cmd")

var (
	listen     = flag.String("listen", "", "监听地址，逗号分隔（默认取配置）")
	configFile = flag.String("config", "", "JSON 配置文件路径")
	identityF  = flag.String("identity", "", "私钥文件（base64），为空时生成临时身份")
	genKey     = flag.Bool("gen-key", false, "生成私钥并输出到标准输出后退出")
	dial       = flag.String("dial", "", "拨号地址，形如 <multiaddr>/p2p/<PeerID>")
	count      = flag.Int("count", 3, "ping 次数")
	once       = flag.Bool("once", false, "ping 完成后立即退出")
	dedup      = flag.String("dedup", "", "重复连接策略 (keep-existing/keep-both)")
	retries    = flag.Int("retries", 5, "拨号最多尝试次数")
	timeout    = flag.Duration("timeout", 30*time.Second, "拨号与 ping 的总超时")
	logLevel   = flag.String("log-level", "", "日志级别，如 info 或 core/swarm=debug,info")
	logFormat  = flag.String("log-format", "", "日志格式 (text/json)")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()
	setupLogging()

	if *genKey {
		return printNewKey()
	}

	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := substrate.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	node.SetStreamHandler(ping.ProtocolID, ping.Handler)
	node.Notify(&substrate.NotifyBundle{
		ConnectedF: func(c substrate.Conn) {
			logger.Info("连接建立", "peer", c.RemotePeer().ShortString(), "addr", c.RemoteMultiaddr())
		},
		DisconnectedF: func(c substrate.Conn, reason error) {
			logger.Info("连接断开", "peer", c.RemotePeer().ShortString(), "reason", reason)
		},
		SecurityEventF: func(ev substrate.SecurityEvent) {
			logger.Warn("安全事件", "kind", ev.Kind, "peer", ev.Peer.ShortString(), "error", ev.Err)
		},
	})
	printNodeInfo(node)

	if *dial != "" {
		if err := pingPeer(ctx, node, *dial); err != nil {
			return err
		}
		if *once {
			return nil
		}
	}

	fmt.Println("节点已启动，按 Ctrl+C 退出")
	waitForSignal()
	fmt.Println("\n正在关闭节点...")
	return nil
}

// buildOptions 构建选项
//
// 优先级：命令行 > 环境变量 > 配置文件 > 默认值。
func buildOptions() ([]substrate.Option, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadFile(*configFile); err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	}
	applyEnvOverrides(cfg)

	opts := []substrate.Option{substrate.WithConfig(cfg)}

	if *listen != "" {
		opts = append(opts, substrate.WithListenAddrs(splitList(*listen)...))
	}
	if *identityF != "" {
		priv, err := loadKey(*identityF)
		if err != nil {
			return nil, err
		}
		opts = append(opts, substrate.WithIdentity(priv))
	}
	if *dedup != "" {
		p, err := substrate.ParseDedupPolicy(*dedup)
		if err != nil {
			return nil, err
		}
		opts = append(opts, substrate.WithDedupPolicy(p))
	}
	return opts, nil
}

// pingPeer 拨号并发送 count 次 ping
func pingPeer(ctx context.Context, node *substrate.Node, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	policy := substrate.DefaultRetryPolicy()
	policy.MaxAttempts = *retries
	conn, err := node.ConnectWithRetry(ctx, addr, "", policy)
	if err != nil {
		return fmt.Errorf("拨号失败: %w", err)
	}
	fmt.Printf("已连接 %s (%s, %s)\n", conn.RemotePeer(), conn.Transport(), conn.RemoteMultiaddr())

	rtts, err := ping.PingN(ctx, node, conn.RemotePeer(), *count)
	for i, rtt := range rtts {
		fmt.Printf("ping #%d: %s\n", i+1, rtt)
	}
	if err != nil {
		return fmt.Errorf("ping 失败: %w", err)
	}
	return nil
}

func printNodeInfo(node *substrate.Node) {
	fmt.Println()
	fmt.Printf("节点 ID: %s\n", node.ID())
	fmt.Println("监听地址:")
	for _, a := range node.Addrs() {
		fmt.Printf("  %s\n", a)
	}
	fmt.Println()
}

func printNewKey() error {
	id, err := identity.Generate(crypto.KeyTypeEd25519)
	if err != nil {
		return err
	}
	s, err := id.Export()
	if err != nil {
		return err
	}
	fmt.Println(s)
	fmt.Fprintf(os.Stderr, "节点 ID: %s\n", id.PeerID())
	return nil
}

// setupLogging 应用命令行日志参数
func setupLogging() {
	if *logLevel == "" && *logFormat == "" {
		return
	}
	lc := log.ParseConfig(*logLevel, *logFormat)
	log.SetFormat(lc.Format)
	log.SetGlobalLevel(lc.DefaultLevel)
	for comp, lvl := range lc.ComponentLevels {
		log.SetLevel(comp, lvl)
	}
}

// waitForSignal 等待退出信号
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validateAddrs 检查地址列表，汇总全部错误
func validateAddrs(addrs []string) error {
	var errs error
	for _, a := range addrs {
		if _, err := ma.NewMultiaddr(a); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%q: %w", a, err))
		}
	}
	return errs
}
