package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgelink/device-agent/pkg/schema"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Publish datastream values on a connected session",
}

var streamIndividualCmd = &cobra.Command{
	Use:   "individual <interface> <path> <value>",
	Short: "Publish one value on an individual-aggregation datastream",
	Long: `Connects, publishes a single value, polls briefly for the publish
acknowledgement, then disconnects.

Examples:
  edgelinkctl stream individual org.example.Sensor /temperature 21.5
  edgelinkctl stream individual org.example.Sensor /tags a,b,c`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ifaceName, path, raw := args[0], trimPath(args[1]), args[2]

		ifaces, err := loadInterfaces()
		if err != nil {
			return err
		}
		mapping, err := findMappingByName(ifaces, ifaceName, path)
		if err != nil {
			return err
		}

		v, err := parseIndividual(mapping.Type, raw)
		if err != nil {
			return err
		}

		dev, err := newDevice()
		if err != nil {
			return err
		}
		defer dev.Destroy()

		ctx := context.Background()
		if err := dev.Connect(ctx); err != nil {
			return err
		}
		waitConnected(dev)

		if err := dev.StreamIndividual(ifaceName, path, v, nil); err != nil {
			return err
		}
		drainBriefly(dev)
		fmt.Println(green("published."))

		return dev.Disconnect()
	},
}

// findMappingByName loads the named interface from the already-loaded set
// and resolves path to its mapping, for client-side type inference before
// the value argument is parsed.
func findMappingByName(ifaces []schema.Interface, ifaceName, path string) (*schema.Mapping, error) {
	for i := range ifaces {
		if ifaces[i].Name == ifaceName {
			return schema.FindMapping(&ifaces[i], path)
		}
	}
	return nil, fmt.Errorf("interface %s not found under --interfaces-dir", ifaceName)
}

var streamAggregatedCmd = &cobra.Command{
	Use:   "aggregated <interface> <prefix> <endpoint>=<value> [<endpoint>=<value> ...]",
	Short: "Publish an object on an object-aggregation datastream",
	Long: `Publishes one BSON object holding every given endpoint=value pair under
prefix, on an object-aggregation interface.

Examples:
  edgelinkctl stream aggregated org.example.Imu /accel x=0.1 y=0.2 z=9.8`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ifaceName, prefix := args[0], trimPath(args[1])

		ifaces, err := loadInterfaces()
		if err != nil {
			return err
		}
		var iface *schema.Interface
		for i := range ifaces {
			if ifaces[i].Name == ifaceName {
				iface = &ifaces[i]
			}
		}
		if iface == nil {
			return fmt.Errorf("interface %s not found under --interfaces-dir", ifaceName)
		}

		var entries []schema.ObjectEntry
		for _, kv := range args[2:] {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("expected endpoint=value, got %q", kv)
			}
			endpoint, raw := parts[0], parts[1]
			mapping, err := schema.FindMapping(iface, prefix+"/"+endpoint)
			if err != nil {
				return err
			}
			v, err := parseIndividual(mapping.Type, raw)
			if err != nil {
				return err
			}
			entries = append(entries, schema.ObjectEntry{Endpoint: endpoint, Value: v})
		}

		dev, err := newDevice()
		if err != nil {
			return err
		}
		defer dev.Destroy()

		ctx := context.Background()
		if err := dev.Connect(ctx); err != nil {
			return err
		}
		waitConnected(dev)

		if err := dev.StreamAggregated(ifaceName, prefix, schema.Object{Entries: entries}, nil); err != nil {
			return err
		}
		drainBriefly(dev)
		fmt.Println(green("published."))

		return dev.Disconnect()
	},
}

func init() {
	streamCmd.AddCommand(streamIndividualCmd)
	streamCmd.AddCommand(streamAggregatedCmd)
}
