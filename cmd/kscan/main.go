package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KyberNetwork/kutils/klog"

	kredis "github.com/KyberNetwork/kscan/pkg/client/redis"
	"github.com/KyberNetwork/kscan/pkg/config"
	"github.com/KyberNetwork/kscan/pkg/scan"
	"github.com/KyberNetwork/kscan/pkg/server/scanhttp"
)

func main() {
	configPath := flag.String("config", "", "yaml config file, embedded defaults when empty")
	match := flag.String("match", "", "glob-style pattern keys must match")
	keyType := flag.String("type", "", "value type: string, list, set, zset, hash or stream")
	count := flag.Int64("count", 0, "count hint per scan call, configured default when 0")
	serve := flag.Bool("serve", false, "serve the scan endpoint instead of printing keys")
	remote := flag.String("remote", "", "scan through the scan endpoint at this base url instead of redis")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		klog.Fatalf(ctx, "Failed to load config: %v", err)
	}
	cfg.Init()
	defer func() {
		_ = cfg.Redis.C.Close()
	}()
	session := cfg.Redis.NewSession(cfg.Scan.SessionOptions()...)

	if *serve {
		if err := scanhttp.Serve(ctx, cfg.Server, session); err != nil {
			klog.Errorf(ctx, "Error serving: %v", err)
		}
		return
	}

	f, err := filterFromFlags(*match, *keyType, *count)
	if err != nil {
		klog.Fatalf(ctx, "Invalid filter: %v", err)
	}
	var nexter scan.Nexter = session
	if *remote != "" {
		cfg.Remote.C.SetBaseURL(*remote)
		nexter = cfg.Remote.NewSession()
	}

	if err := printKeys(ctx, nexter, f, cfg.Scan.PaginateOptions()...); err != nil {
		klog.Errorf(ctx, "Scan failed: %v", err)
	}
}

func filterFromFlags(match, keyType string, count int64) (scan.Filter, error) {
	opts := []scan.FilterOption{scan.WithMatch(match)}
	t, err := scan.ParseKeyType(keyType)
	if err != nil {
		return scan.Filter{}, err
	}
	opts = append(opts, scan.WithType(t))
	if count != 0 {
		opts = append(opts, scan.WithCount(count))
	}
	return scan.NewFilter(opts...)
}

// printKeys writes every key of a full scan to stdout, one per line.
func printKeys(ctx context.Context, session scan.Nexter, f scan.Filter, opts ...kredis.PaginateOption) error {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	return kredis.Paginate(ctx, session, f, func(keys []string) error {
		for _, key := range keys {
			if _, err := fmt.Fprintln(w, key); err != nil {
				return err
			}
		}
		return nil
	}, opts...)
}
