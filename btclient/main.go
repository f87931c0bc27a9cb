// btclient drives the Bluetooth LE deterrent board (an Arduino with the LED
// service) that scares confirmed rodents away. It can fire single commands
// from the command line or run an interactive terminal remote.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagAddress    string
	flagNoResponse bool
	flagTimeout    time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "btclient [command]",
		Short: "Control the BLE deterrent board",
		Long: `btclient connects to the Arduino LED deterrent board over Bluetooth LE
and sends single-byte commands to its control characteristic.

Commands: on, off, toggle, w, a, s, d

With no command, btclient starts an interactive terminal remote.

Requires sudo or CAP_NET_ADMIN capability for Bluetooth access.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off", "toggle", "w", "a", "s", "d"},
		RunE:      run,
	}

	rootCmd.Flags().StringVar(&flagAddress, "address", "", "MAC address of the board (empty = scan for "+deviceName+")")
	rootCmd.Flags().BoolVar(&flagNoResponse, "no-response", false, "Use write-without-response (faster, no delivery confirmation)")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "Scan and connect timeout")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	client, err := Connect(flagAddress, flagTimeout, flagNoResponse)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
		fmt.Fprintln(os.Stderr, "Bluetooth access requires elevated permissions.")
		fmt.Fprintln(os.Stderr, "Try one of:")
		fmt.Fprintln(os.Stderr, "  sudo ./btclient")
		fmt.Fprintln(os.Stderr, "  sudo setcap cap_net_admin+ep ./btclient")
		return err
	}
	defer client.Close()

	if len(args) == 0 {
		return runInteractive(client)
	}

	command := strings.ToLower(args[0])
	if command == "toggle" {
		return client.Toggle()
	}

	b, ok := commandByte(command)
	if !ok {
		return fmt.Errorf("unknown command %q (valid: on, off, toggle, w, a, s, d)", command)
	}
	return client.Send(b)
}
