// Command netdisco discovers devices on the local network.
//
//	netdisco arp [ip...]         neighbour table, resolving the given addresses
//	netdisco mdns [instance...]  DNS-SD services
//	netdisco upnp [usn...]       SSDP devices, --describe fetches descriptions
//	netdisco serve               background discovery with sinks and HTTP API
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	config   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	f := new(rootFlags)
	root := &cobra.Command{
		Use:           "netdisco",
		Short:         "Local network device discovery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.config, "config", "c", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newARPCmd(f),
		newMDNSCmd(f),
		newUPnPCmd(f),
		newServeCmd(f),
	)
	return root
}
