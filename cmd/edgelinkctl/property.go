package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var propertyCmd = &cobra.Command{
	Use:   "property",
	Short: "Set or unset device-owned properties on a connected session",
}

var propertySetCmd = &cobra.Command{
	Use:   "set <interface> <path> <value>",
	Short: "Set a device-owned property",
	Long: `Connects, sets a device-owned property, waits for the publish
acknowledgement (the property cache write-through happens only after the
ack lands), then disconnects.

Examples:
  edgelinkctl property set org.example.Config /label "east-rack-3"`,
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

		if err := dev.SetProperty(ifaceName, path, v); err != nil {
			return err
		}
		drainBriefly(dev)
		fmt.Println(green("set."))

		return dev.Disconnect()
	},
}

var propertyUnsetCmd = &cobra.Command{
	Use:   "unset <interface> <path>",
	Short: "Unset a device-owned property",
	Long: `Connects, publishes an empty payload clearing a device-owned property
(a no-op if the path was never set), then disconnects.

Examples:
  edgelinkctl property unset org.example.Config /label`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ifaceName, path := args[0], trimPath(args[1])

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

		if err := dev.UnsetProperty(ifaceName, path); err != nil {
			return err
		}
		drainBriefly(dev)
		fmt.Println(green("unset."))

		return dev.Disconnect()
	},
}

func init() {
	propertyCmd.AddCommand(propertySetCmd)
	propertyCmd.AddCommand(propertyUnsetCmd)
}
