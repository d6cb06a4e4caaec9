// Command jtagd runs the jtagd wire-protocol daemon (pkg/jtagd) in front
// of either the in-memory simulator or a USB probe adapter, configured by
// an s-expression file per pkg/daemonconfig.
//
// Styled after the teacher's cmd/jtag/cmd cobra layout (root.go's
// Execute()/PersistentFlags pattern, discover.go's createAdapter factory),
// collapsed into a single binary since this daemon has no subcommands of
// its own.
package main

import (
	"fmt"
	"log"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/openjtaghal/jtaghal/internal/adapter"
	"github.com/openjtaghal/jtaghal/internal/adapter/usbprobe"
	"github.com/openjtaghal/jtaghal/pkg/daemonconfig"
	"github.com/openjtaghal/jtaghal/pkg/jtagd"
)

const (
	// usbProbeVendorID and usbProbeProductID match the CMSIS-DAP-style
	// probe internal/adapter/usbprobe was grounded on; there is no
	// per-adapter-family VID/PID table in this module, so a daemon
	// talking to a different probe family must be built against a
	// different internal/adapter backend.
	usbProbeVendorID  = 0x0d28
	usbProbeProductID = 0x0204
)

var (
	verbose       bool
	configPath    string
	listenAddr    string
	adapterKind   string
	adapterSerial string
)

var rootCmd = &cobra.Command{
	Use:   "jtagd",
	Short: "JTAG daemon: serves the pkg/jtagd wire protocol over TCP",
	Long: `jtagd wraps a local JTAG adapter (the in-memory simulator or a USB
probe) and serves it to remote clients over the little-endian jtagd wire
protocol, the same protocol pkg/jtagd.Client speaks and cmd/jtagclient
uses by default.

Examples:
  jtagd --adapter sim --listen 0.0.0.0:2542
  jtagd --config /etc/jtagd.conf
  jtagd --adapter usbprobe --adapter-serial FT1234 -v`,
	RunE: runJtagd,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.Flags().StringVar(&configPath, "config", "", "daemon configuration file (s-expression); flags below override it")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, host:port (overrides config)")
	rootCmd.Flags().StringVar(&adapterKind, "adapter", "", "adapter backend: sim or usbprobe (overrides config)")
	rootCmd.Flags().StringVar(&adapterSerial, "adapter-serial", "", "adapter serial number filter (usbprobe only; first match wins regardless, see below)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runJtagd(cmd *cobra.Command, args []string) error {
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
			log.Printf("jtagd: config: %s", w)
		}
	}
	if adapterKind != "" {
		cfg.AdapterKind = adapterKind
	}
	if adapterSerial != "" {
		cfg.AdapterSerial = adapterSerial
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

	a, info, err := createAdapter(cfg)
	if err != nil {
		return fmt.Errorf("create adapter: %w", err)
	}
	if verbose {
		log.Printf("jtagd: adapter %q serial %q, %d Hz", info.Name, info.SerialNumber, info.MaxFrequency)
	}

	srv := &jtagd.Server{
		Name:    info.Name,
		Serial:  info.SerialNumber,
		UserID:  "jtagd",
		Freq:    info.MaxFrequency,
		Adapter: a,
	}

	addr := net.JoinHostPort(cfg.ListenHost, fmt.Sprint(cfg.ListenPort))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Printf("jtagd: listening on %s (adapter=%s)", addr, cfg.AdapterKind)
	return srv.Serve(l)
}

// createAdapter builds the backing internal/adapter.Adapter named by
// cfg.AdapterKind. usbprobe.Open has no serial-filter parameter — the
// first device matching the VID/PID wins regardless of
// --adapter-serial/cfg.AdapterSerial; that flag is accepted and logged
// for forward compatibility but not yet honored.
func createAdapter(cfg daemonconfig.Config) (adapter.Adapter, adapter.Info, error) {
	switch cfg.AdapterKind {
	case "", "sim":
		sim := adapter.NewSimChain(adapter.Info{
			Name:         "jtagd-sim",
			Vendor:       "openjtaghal",
			Model:        "in-memory simulator",
			MaxFrequency: 10_000_000,
		}, []adapter.SimDevice{
			{IDCode: 0x12345678, HasIDCode: true, IRLength: 8},
		})
		info, _ := sim.Info()
		return sim, info, nil

	case "usbprobe":
		if cfg.AdapterSerial != "" {
			log.Printf("jtagd: warning: adapter-serial filtering is not implemented by internal/adapter/usbprobe; the first matching probe will be used")
		}
		a, err := usbprobe.Open(usbProbeVendorID, usbProbeProductID)
		if err != nil {
			return nil, adapter.Info{}, err
		}
		info, err := a.Info()
		if err != nil {
			return nil, adapter.Info{}, err
		}
		return a, info, nil

	default:
		return nil, adapter.Info{}, fmt.Errorf("unknown adapter kind %q (want sim or usbprobe)", cfg.AdapterKind)
	}
}
