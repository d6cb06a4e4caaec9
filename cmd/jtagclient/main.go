// Command jtagclient drives a remote jtagd daemon to discover, inspect,
// and program devices on a JTAG chain, per SPEC_FULL.md §6's CLI
// surface.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openjtaghal/jtaghal/pkg/chain"
	"github.com/openjtaghal/jtaghal/pkg/device"
	"github.com/openjtaghal/jtaghal/pkg/jtagd"
	"github.com/openjtaghal/jtaghal/pkg/program"
)

var (
	serverHost string
	serverPort int

	infoPos   int
	erasePos  int
	rebootPos int

	programPos      int
	programIndirect int
	programBase     string
	programNoReboot bool
	programRaw      bool

	dumpPos int
)

const defaultDumpSize = 1 << 20 // 1 MiB, absent a --length flag in the spec's CLI surface

var rootCmd = &cobra.Command{
	Use:   "jtagclient",
	Short: "Discover, inspect, and program devices through a remote jtagd",
	Long: `jtagclient connects to a jtagd daemon (pkg/jtagd's wire protocol),
discovers the JTAG chain, and performs one of several mutually exclusive
operations against a chosen chain position.

Examples:
  jtagclient --info 0 --server localhost --port 2542
  jtagclient --erase 0
  jtagclient --program 0 design.bit
  jtagclient --program 0 flash.bin --indirect 256 --base 0x100000
  jtagclient --dump 0 readback.bin
  jtagclient --reboot 0`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverHost, "server", "localhost", "jtagd host")
	rootCmd.PersistentFlags().IntVar(&serverPort, "port", 2542, "jtagd port")

	rootCmd.Flags().IntVar(&infoPos, "info", -1, "show information about the device at chain position N")
	rootCmd.Flags().IntVar(&erasePos, "erase", -1, "erase the device at chain position N")
	rootCmd.Flags().IntVar(&rebootPos, "reboot", -1, "reboot the device at chain position N via its loaded bounce bitstream's USER2 path")
	rootCmd.Flags().IntVar(&programPos, "program", -1, "program the device at chain position N from the given file")
	rootCmd.Flags().IntVar(&programIndirect, "indirect", 0, "program via an already-loaded bounce bitstream, in W-byte pages (0 = direct)")
	rootCmd.Flags().StringVar(&programBase, "base", "0x0", "base address for --indirect programming or --dump, hex")
	rootCmd.Flags().BoolVar(&programNoReboot, "noreboot", false, "skip the post-write reconfiguration command")
	rootCmd.Flags().BoolVar(&programRaw, "raw", false, "treat the program file as a raw payload, skipping .bit/.jed auto-detection")
	rootCmd.Flags().IntVar(&dumpPos, "dump", -1, "read back the device at chain position N's flash into the given file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	modes := 0
	for _, set := range []bool{infoPos >= 0, erasePos >= 0, rebootPos >= 0, programPos >= 0, dumpPos >= 0} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return fmt.Errorf("exactly one of --info, --erase, --program, --dump, --reboot is required")
	}

	addr := fmt.Sprintf("%s:%d", serverHost, serverPort)
	c, err := jtagd.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer c.Close()

	ch, err := chain.InitializeChain(c)
	if err != nil {
		return fmt.Errorf("chain discovery: %w", err)
	}

	switch {
	case infoPos >= 0:
		return cmdInfo(ch, infoPos)
	case erasePos >= 0:
		return cmdErase(ch, erasePos)
	case rebootPos >= 0:
		return cmdReboot(ch, rebootPos)
	case programPos >= 0:
		if len(args) != 1 {
			return fmt.Errorf("--program requires a file path argument")
		}
		return cmdProgram(ch, programPos, args[0])
	case dumpPos >= 0:
		if len(args) != 1 {
			return fmt.Errorf("--dump requires a file path argument")
		}
		return cmdDump(ch, dumpPos, args[0])
	}
	return nil
}

func selectDevice(ch *chain.Chain, pos int) (device.Device, error) {
	descs := ch.Devices()
	if pos < 0 || pos >= len(descs) {
		return nil, fmt.Errorf("chain position %d out of range (chain has %d device(s))", pos, len(descs))
	}
	return device.Create(descs[pos].IDCode, pos, ch), nil
}

func cmdInfo(ch *chain.Chain, pos int) error {
	dev, err := selectDevice(ch, pos)
	if err != nil {
		return err
	}
	base := dev.Base()
	fmt.Printf("position:    %d\n", base.Position)
	fmt.Printf("idcode:      %#08x\n", base.IDCode)
	fmt.Printf("ir length:   %d\n", base.IRLength)
	fmt.Printf("description: %s\n", base.Description)

	if p, ok := dev.(device.Programmable); ok {
		programmed, err := p.IsProgrammed()
		if err != nil {
			return fmt.Errorf("query programmed state: %w", err)
		}
		fmt.Printf("programmed:  %v\n", programmed)
	}
	if f, ok := dev.(device.FPGA); ok {
		fmt.Printf("rpc capable: %v\n", f.HasRPCInterface())
		taps, err := f.ProbeVirtualTAPs()
		if err != nil {
			return fmt.Errorf("probe virtual TAPs: %w", err)
		}
		fmt.Printf("virtual taps: %d\n", len(taps))
		for i, t := range taps {
			fmt.Printf("  [%d] %#08x\n", i, t)
		}
	}
	if d, ok := dev.(device.Debuggable); ok {
		fmt.Printf("debug targets: %d\n", d.NumTargets())
	}
	return nil
}

func cmdErase(ch *chain.Chain, pos int) error {
	dev, err := selectDevice(ch, pos)
	if err != nil {
		return err
	}
	p, ok := dev.(device.Programmable)
	if !ok {
		return fmt.Errorf("device at position %d is not programmable", pos)
	}
	if err := p.Erase(); err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	fmt.Println("erase complete")
	return nil
}

// flashHostFor asserts dev against both halves of program's unexported
// flashHost interface and composes them into a value that structurally
// satisfies it, since program.NewBounceFlash's parameter type is not
// exported for callers to name directly.
func flashHostFor(dev device.Device) (*program.BounceFlash, error) {
	fpga, ok := dev.(device.FPGA)
	if !ok {
		return nil, fmt.Errorf("device does not implement the FPGA interface required for indirect flash access")
	}
	combined := struct {
		device.Device
		device.FPGA
	}{dev, fpga}
	return program.NewBounceFlash(combined), nil
}

func cmdProgram(ch *chain.Chain, pos int, path string) error {
	dev, err := selectDevice(ch, pos)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if programIndirect > 0 {
		return programIndirectFlash(dev, data)
	}

	p, ok := dev.(device.Programmable)
	if !ok {
		return fmt.Errorf("device at position %d is not programmable", pos)
	}
	if programRaw {
		if err := p.Program(data); err != nil {
			return fmt.Errorf("program: %w", err)
		}
	} else if err := autoProgram(p, data); err != nil {
		return err
	}
	return program.Verify(p)
}

// autoProgram tries the .bit container first, falling back to JED since
// those are the two file formats pkg/program's direct path understands.
func autoProgram(p device.Programmable, data []byte) error {
	if _, err := program.Bitstream(p, data); err == nil {
		return nil
	}
	if _, err := program.JEDFuses(p, data); err == nil {
		return nil
	}
	return fmt.Errorf("program: file is neither a recognized .bit container nor a JED file (use --raw to bypass detection)")
}

func programIndirectFlash(dev device.Device, data []byte) error {
	bf, err := flashHostFor(dev)
	if err != nil {
		return err
	}
	base, err := parseHex(programBase)
	if err != nil {
		return err
	}

	pageSize := programIndirect
	for off := 0; off < len(data); off += pageSize {
		end := off + pageSize
		if end > len(data) {
			end = len(data)
		}
		addr := base + uint32(off)
		if off%pageSize == 0 {
			if err := bf.SectorErase(addr); err != nil {
				return fmt.Errorf("sector erase at %#x: %w", addr, err)
			}
		}
		if err := bf.PageProgram(addr, data[off:end]); err != nil {
			return fmt.Errorf("page program at %#x: %w", addr, err)
		}
	}

	if !programNoReboot {
		if err := bf.Reconfigure(); err != nil {
			return fmt.Errorf("reconfigure: %w", err)
		}
	}
	fmt.Printf("programmed %d bytes at base %#x\n", len(data), base)
	return nil
}

func cmdDump(ch *chain.Chain, pos int, path string) error {
	dev, err := selectDevice(ch, pos)
	if err != nil {
		return err
	}
	bf, err := flashHostFor(dev)
	if err != nil {
		return err
	}
	base, err := parseHex(programBase)
	if err != nil {
		return err
	}

	data, err := bf.ReadBack(base, defaultDumpSize)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("dumped %d bytes from %#x to %s\n", len(data), base, path)
	return nil
}

func cmdReboot(ch *chain.Chain, pos int) error {
	dev, err := selectDevice(ch, pos)
	if err != nil {
		return err
	}
	bf, err := flashHostFor(dev)
	if err != nil {
		return err
	}
	if err := bf.Reconfigure(); err != nil {
		return fmt.Errorf("reconfigure: %w", err)
	}
	fmt.Println("reboot command issued")
	return nil
}

func parseHex(s string) (uint32, error) {
	s = trimHexPrefix(s)
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex address %q: %w", s, err)
	}
	return uint32(v), nil
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
