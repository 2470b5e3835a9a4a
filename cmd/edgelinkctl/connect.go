package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgelink/device-agent/pkg/agenterr"
	"github.com/edgelink/device-agent/pkg/devicestate"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the realm and hold the session open",
	Long: `Connect assembles a device from --interfaces-dir, pairs if necessary,
opens the MQTT session, and then polls until interrupted (Ctrl-C).

Examples:
  edgelinkctl connect --realm test --device-id 2TBn-A... --interfaces-dir ./interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		dev, err := newDevice()
		if err != nil {
			return err
		}
		defer dev.Destroy()

		fmt.Printf("connecting device %s on realm %s...\n", bold(app.deviceID), bold(app.realmName))
		if err := dev.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}

		fmt.Println(dim("polling; press Ctrl-C to disconnect"))
		pollUntilInterrupt(ctx, dev)

		fmt.Println("disconnecting...")
		// The interrupt may have landed mid-reconnect, with no session up.
		if err := dev.Disconnect(); err != nil && !agenterr.Is(err, agenterr.DeviceNotReady) {
			return fmt.Errorf("disconnect: %w", err)
		}
		// Drain the final disconnect acknowledgement before exiting.
		for dev.State() != devicestate.Disconnected {
			dev.Poll()
		}
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Connect, then immediately disconnect (handshake smoke test)",
	Long: `Disconnect runs a single connect/handshake/disconnect cycle and exits.
Useful for verifying pairing and interface schemas without holding a
long-lived session open.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		dev, err := newDevice()
		if err != nil {
			return err
		}
		defer dev.Destroy()

		if err := dev.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		for dev.State() != devicestate.Connected {
			dev.Poll()
		}
		fmt.Println(green("handshake complete."))

		if err := dev.Disconnect(); err != nil {
			return fmt.Errorf("disconnect: %w", err)
		}
		for dev.State() != devicestate.Disconnected {
			dev.Poll()
		}
		return nil
	},
}
