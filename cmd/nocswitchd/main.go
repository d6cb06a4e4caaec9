// Command nocswitchd runs the NoC switch daemon (pkg/nocswitch): it fans
// RPC/DMA frames between many TCP clients and one hardware-side bridge
// connection, allocating each client a synthetic ephemeral endpoint
// address per SPEC_FULL.md §4.5.
package main

import (
	"fmt"
	"log"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/openjtaghal/jtaghal/pkg/daemonconfig"
	"github.com/openjtaghal/jtaghal/pkg/nocswitch"
)

var (
	verbose    bool
	configPath string
	listenAddr string
	bridgeAddr string
)

var rootCmd = &cobra.Command{
	Use:   "nocswitchd",
	Short: "NoC switch daemon: fans RPC/DMA frames between clients and a bridge",
	Long: `nocswitchd listens for TCP clients speaking pkg/noc's frame protocol,
allocates each an ephemeral endpoint address, and relays frames to and
from a single hardware-side bridge connection.

Examples:
  nocswitchd --bridge 192.0.2.10:9000 --listen 0.0.0.0:2543
  nocswitchd --config /etc/nocswitchd.conf`,
	RunE: runNocswitchd,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.Flags().StringVar(&configPath, "config", "", "daemon configuration file (s-expression); flags below override it")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, host:port (overrides config)")
	rootCmd.Flags().StringVar(&bridgeAddr, "bridge", "", "hardware-side bridge address, host:port (required)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runNocswitchd(cmd *cobra.Command, args []string) error {
	cfg := daemonconfig.Defaults()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		cfg, err = daemonconfig.Load(data)
		if err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		for _, w := range cfg.Warnings {
			log.Printf("nocswitchd: config: %s", w)
		}
	}
	if listenAddr != "" {
		host, port, err := net.SplitHostPort(listenAddr)
		if err != nil {
			return fmt.Errorf("--listen: %w", err)
		}
		cfg.ListenHost = host
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
			return fmt.Errorf("--listen: invalid port %q", port)
		}
		cfg.ListenPort = p
	}
	if bridgeAddr == "" {
		return fmt.Errorf("--bridge is required: nocswitchd has nothing to relay to without a bridge connection")
	}

	bridge, err := net.Dial("tcp", bridgeAddr)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", bridgeAddr, err)
	}
	if verbose {
		log.Printf("nocswitchd: connected to bridge %s", bridgeAddr)
	}

	sw := nocswitch.New(bridge)

	addr := net.JoinHostPort(cfg.ListenHost, fmt.Sprint(cfg.ListenPort))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Printf("nocswitchd: listening on %s, bridged to %s", addr, bridgeAddr)
	return sw.Serve(l)
}
