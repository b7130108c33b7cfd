package main

import (
	"context"
	"fmt"

	"github.com/dailyyoga/netdisco/discovery"
	"github.com/dailyyoga/netdisco/mdns"
	"github.com/dailyyoga/netdisco/upnp"
	"github.com/spf13/cobra"
)

// lookup prints the whole snapshot of src, or one probe result per key
func lookup[K comparable, V any](ctx context.Context, cmd *cobra.Command, src discovery.Source[K, V], keys []string) error {
	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		res, err := src.All(ctx)
		if err != nil {
			return err
		}
		entities := make(map[string]any, len(res.Value))
		for k, v := range res.Value {
			entities[fmt.Sprint(k)] = v
		}
		return printJSON(out, discovery.SnapshotResult{
			Source:    src.Name(),
			Entities:  entities,
			FromCache: res.FromCache,
			State:     res.State.String(),
			Version:   res.Version,
		})
	}
	for _, raw := range keys {
		key, err := src.ParseKey(raw)
		if err != nil {
			return discovery.ErrParseKey(src.Name(), raw, err)
		}
		res, err := src.Probe(ctx, key)
		if err != nil {
			return err
		}
		if err := printJSON(out, discovery.ProbeResult{
			Source:    src.Name(),
			Key:       raw,
			Found:     res.Found,
			Entity:    entity(res.Found, res.Value),
			FromCache: res.FromCache,
			State:     res.State.String(),
			Version:   res.Version,
		}); err != nil {
			return err
		}
	}
	return nil
}

func entity(found bool, v any) any {
	if !found {
		return nil
	}
	return v
}

func newARPCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "arp [ip...]",
		Short: "Print the neighbour table or resolve addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()
			c, err := a.arpCache()
			if err != nil {
				return err
			}
			return lookup(cmd.Context(), cmd, c, args)
		},
	}
}

func newMDNSCmd(f *rootFlags) *cobra.Command {
	var services []string
	cmd := &cobra.Command{
		Use:   "mdns [instance...]",
		Short: "Browse DNS-SD services or look up instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()
			if len(services) > 0 {
				a.cfg.MDNS.Services = services
			}
			c, err := a.mdnsCache()
			if err != nil {
				return err
			}
			return lookup(cmd.Context(), cmd, c, args)
		},
	}
	cmd.Flags().StringSliceVarP(&services, "service", "s", nil, "service types to browse, overrides "+mdns.Name+".services")
	return cmd
}

func newUPnPCmd(f *rootFlags) *cobra.Command {
	var describe bool
	cmd := &cobra.Command{
		Use:   "upnp [usn...]",
		Short: "Search SSDP devices or look up USNs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()
			c, err := a.upnpCache()
			if err != nil {
				return err
			}
			if !describe || len(args) == 0 {
				return lookup(cmd.Context(), cmd, c, args)
			}
			for _, usn := range args {
				info, desc, err := c.Describe(cmd.Context(), usn)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), struct {
					Device      upnp.DeviceInfo   `json:"device"`
					Description *upnp.Description `json:"description"`
				}{info, desc}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&describe, "describe", false, "fetch the device description of each USN")
	return cmd
}
