// Command mdns-bridge bridges mDNS traffic between the configured network
// interfaces (spec.md section 1): it loads the configuration file, opens a
// multicast socket per enabled address family on each interface, and runs
// one bridge worker per address family until terminated.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/syslog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/mdns-bridge/bridge/internal/bridge"
	"github.com/mdns-bridge/bridge/internal/config"
	"github.com/mdns-bridge/bridge/internal/filter"
	"github.com/mdns-bridge/bridge/internal/iface"
	"github.com/mdns-bridge/bridge/internal/pidfile"
	"github.com/mdns-bridge/bridge/internal/socket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// backgroundEnv marks a process as the re-exec'd, detached child created when
// -f is absent. Go cannot fork the running runtime the way the original
// daemon's main.c does with fork()+setsid(); re-executing the same binary
// under a new session is the idiomatic replacement.
const backgroundEnv = "MDNS_BRIDGE_BACKGROUND=1"

func main() {
	var (
		foreground  bool
		useSyslog   bool
		warn        bool
		configFile  string
		pidfilePath string
	)

	root := &cobra.Command{
		Use:   "mdns-bridge",
		Short: "Bridge mDNS traffic between isolated network segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile, pidfilePath, foreground, useSyslog, warn)
		},
		SilenceUsage: true,
	}

	root.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in foreground")
	root.Flags().BoolVarP(&useSyslog, "syslog", "s", false, "log notifications via syslog")
	root.Flags().BoolVarP(&warn, "warn", "w", false, "warn for mDNS decode errors that are silent by default")
	root.Flags().StringVarP(&configFile, "config", "c", "mdns-bridge.conf", "configuration file name")
	root.Flags().StringVarP(&pidfilePath, "pidfile", "p", "", "process id file name")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile, pidfilePath string, foreground, useSyslog, warn bool) error {
	if !foreground && os.Getenv("MDNS_BRIDGE_BACKGROUND") == "" {
		return daemonize()
	}

	logger, err := buildLogger(useSyslog, warn)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	ifaces, err := buildInterfaces(cfg)
	if err != nil {
		return err
	}

	globalFilter, err := buildList(cfg.GlobalInbound)
	if err != nil {
		return fmt.Errorf("mdns-bridge: [global]: %w", err)
	}
	policy := &filter.Policy{Global: globalFilter}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pf *pidfile.File
	if pidfilePath != "" {
		pf, err = pidfile.Create(pidfilePath)
		if err != nil {
			return err
		}
		if err := pf.Write(); err != nil {
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-sig
		if pf != nil {
			pf.Remove()
		}
		logging.Log(logger, "exiting on signal %s", s)
		cancel()
		os.Exit(0)
	}()

	if err := openSockets(ctx, ifaces, logger); err != nil {
		return err
	}
	iface.BuildPeers(ifaces, iface.IPv4)
	iface.BuildPeers(ifaces, iface.IPv6)

	g, ctx := errgroup.WithContext(ctx)
	for _, family := range []iface.Family{iface.IPv4, iface.IPv6} {
		family := family
		notifier, n, err := newNotifier(ifaces, family)
		if err != nil {
			return err
		}
		if n == 0 {
			notifier.Close()
			continue
		}
		w, err := bridge.NewWorker(family, ifaces, notifier, policy, cfg.DisablePacketFiltering, warn, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			err := w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// daemonize re-execs the running binary with the background marker set and
// its controlling terminal detached, then exits the parent, the Go
// replacement for the original's fork()+setsid().
func daemonize() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("mdns-bridge: locate executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), backgroundEnv)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("mdns-bridge: background: %w", err)
	}
	return nil
}

func buildLogger(useSyslog, warn bool) (logging.Logger, error) {
	var std *log.Logger
	if useSyslog {
		w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, "mdns-bridge")
		if err != nil {
			return nil, fmt.Errorf("mdns-bridge: connect to syslog: %w", err)
		}
		std = log.New(w, "", 0)
	} else {
		std = log.New(os.Stderr, "mdns-bridge: ", log.LstdFlags)
	}

	base := logging.StandardLogger{Caller: std}
	return &logging.DebugLogger{Target: base, Debug: warn}, nil
}

func buildList(spec *config.FilterSpec) (*filter.List, error) {
	if spec == nil {
		return nil, nil
	}
	mode := filter.Deny
	if spec.Allow {
		mode = filter.Allow
	}
	return filter.New(mode, spec.Names)
}

func buildInterfaces(cfg *config.Config) ([]*iface.Interface, error) {
	ifaces := make([]*iface.Interface, 0, len(cfg.Interfaces))
	for _, ic := range cfg.Interfaces {
		in, err := buildList(ic.Inbound)
		if err != nil {
			return nil, fmt.Errorf("mdns-bridge: interface %s: %w", ic.Name, err)
		}
		out, err := buildList(ic.Outbound)
		if err != nil {
			return nil, fmt.Errorf("mdns-bridge: interface %s: %w", ic.Name, err)
		}

		i := &iface.Interface{
			Name:           ic.Name,
			InboundFilter:  in,
			OutboundFilter: out,
		}
		i.V4.Enabled = !ic.DisableIPv4 && !cfg.DisableIPv4
		i.V6.Enabled = !ic.DisableIPv6 && !cfg.DisableIPv6
		ifaces = append(ifaces, i)
	}
	return ifaces, nil
}

func openSockets(ctx context.Context, ifaces []*iface.Interface, logger logging.Logger) error {
	osIfaces, err := socket.Interfaces()
	if err != nil {
		return err
	}
	byName := make(map[string]int, len(osIfaces))
	for idx, osi := range osIfaces {
		byName[osi.Name] = idx
	}

	for _, i := range ifaces {
		idx, ok := byName[i.Name]
		if !ok {
			return fmt.Errorf("mdns-bridge: interface %s not found or not up", i.Name)
		}
		osi := osIfaces[idx]
		i.IfIndex = osi.Index

		if i.V4.Enabled {
			conn, err := socket.OpenV4(ctx, &osi, logger)
			if err != nil {
				return err
			}
			i.V4.Conn = conn
		}
		if i.V6.Enabled {
			conn, err := socket.OpenV6(ctx, &osi, logger)
			if err != nil {
				return err
			}
			i.V6.Conn = conn
		}
	}
	return nil
}

func newNotifier(ifaces []*iface.Interface, family iface.Family) (*socket.Notifier, int, error) {
	n := 0
	for _, i := range ifaces {
		if i.PerFamily(family).Enabled {
			n++
		}
	}
	notifier, err := socket.NewNotifier(n)
	if err != nil {
		return nil, 0, err
	}
	return notifier, n, nil
}
