// edgelinkctl - Device Agent Control CLI
//
// A noun-group CLI for driving one edgelink device agent instance from a
// terminal: pairing/connecting to a realm, inspecting its introspection,
// and streaming or setting values by hand against a live session. It is a
// thin operator shell around pkg/deviceagent, not a second implementation
// of the protocol.
//
// Noun-group CLI Pattern:
//
//	edgelinkctl <resource> <action> [args]
//
// Examples:
//
//	edgelinkctl connect --realm test --device-id 2TB...A --interfaces-dir ./interfaces
//	edgelinkctl introspection show
//	edgelinkctl stream individual org.example.Sensor /temperature 21.5
//	edgelinkctl property set org.example.Config /label "east-rack-3"
//	edgelinkctl settings show
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgelink/device-agent/pkg/cli"
	device "github.com/edgelink/device-agent/pkg/deviceagent"
	"github.com/edgelink/device-agent/pkg/devicestate"
	"github.com/edgelink/device-agent/pkg/schema"
	"github.com/edgelink/device-agent/pkg/sessionlog"
	"github.com/edgelink/device-agent/pkg/settings"
	"github.com/edgelink/device-agent/pkg/util"
	"github.com/edgelink/device-agent/pkg/version"
)

// App holds CLI state shared across all commands.
type App struct {
	// Context flags
	realmName string
	deviceID  string

	// Option flags
	interfacesDir  string
	pairingURL     string
	credSecret     string
	insecure       bool
	propCacheAddr  string
	propCacheDB    int
	verbose        bool
	jsonOutput     bool

	// Initialized state (set in PersistentPreRunE)
	settings *settings.Settings
	dev      *device.Device
	log      sessionlog.Logger
}

var app = &App{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "edgelinkctl",
	Short:             "Edgelink device agent control CLI",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `edgelinkctl is a noun-group CLI for operating one edgelink device agent.

Commands are organized by resource (connect, introspection, stream, property, settings).

  edgelinkctl <resource> <action> [args]

Examples:
  edgelinkctl connect --realm test --device-id 2TBn-A... --interfaces-dir ./interfaces
  edgelinkctl introspection show
  edgelinkctl stream individual org.example.Sensor /temperature 21.5
  edgelinkctl property set org.example.Config /label "east-rack-3"
  edgelinkctl settings show                          # no connection needed`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isSettingsOrHelp(cmd) {
			return nil
		}

		var err error
		app.settings, err = settings.Load()
		if err != nil {
			util.Logger.Warnf("Could not load settings: %v", err)
			app.settings = &settings.Settings{}
		}

		if app.realmName == "" {
			app.realmName = app.settings.DefaultRealm
		}
		if app.deviceID == "" {
			app.deviceID = app.settings.DefaultDeviceID
		}
		if app.interfacesDir == "" {
			app.interfacesDir = app.settings.GetInterfacesDir()
		}
		if app.pairingURL == "" {
			app.pairingURL = app.settings.PairingBaseURL
		}
		if !app.insecure {
			app.insecure = app.settings.AllowInsecureBroker
		}

		if app.verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel(app.settings.GetLogLevel())
		}
		if app.settings.GetLogFormat() == "json" {
			util.SetJSONFormat()
		}

		logPath := app.settings.GetSessionLogPath(app.interfacesDir)
		fileLogger, err := sessionlog.NewFileLogger(logPath, sessionlog.RotationConfig{
			MaxSize:    int64(app.settings.GetSessionLogMaxSizeMB()) * 1024 * 1024,
			MaxBackups: app.settings.GetSessionLogMaxBackups(),
		})
		if err != nil {
			util.Logger.Warnf("Could not initialize session logging: %v", err)
		} else {
			app.log = fileLogger
			sessionlog.SetDefaultLogger(fileLogger)
		}

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&app.realmName, "realm", "r", "", "Realm name")
	rootCmd.PersistentFlags().StringVarP(&app.deviceID, "device-id", "d", "", "Device ID")
	rootCmd.PersistentFlags().StringVarP(&app.interfacesDir, "interfaces-dir", "I", "", "Interface schema directory")
	rootCmd.PersistentFlags().StringVar(&app.pairingURL, "pairing-url", "", "Pairing API base URL")
	rootCmd.PersistentFlags().StringVar(&app.credSecret, "credentials-secret", "", "Credentials secret (prompted if omitted)")
	rootCmd.PersistentFlags().BoolVar(&app.insecure, "allow-insecure-broker", false, "Permit a non-TLS mqtt:// broker URL")
	rootCmd.PersistentFlags().StringVar(&app.propCacheAddr, "property-cache-addr", "localhost:6379", "Property cache (Redis) address")
	rootCmd.PersistentFlags().IntVar(&app.propCacheDB, "property-cache-db", 0, "Property cache database index")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&app.jsonOutput, "json", false, "JSON output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session Commands:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{connectCmd, disconnectCmd, introspectionCmd, streamCmd, propertyCmd} {
		cmd.GroupID = "session"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("edgelinkctl dev build (use 'make build' for version info)")
		} else {
			fmt.Printf("edgelinkctl %s (%s)\n", version.Version, version.GitCommit)
		}
	},
}

// isSettingsOrHelp checks whether cmd (or any ancestor) is a settings, help, or version command.
func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}

// requireRealmAndDevice validates the realm/device-id flags are set before
// a command tries to build a Device.
func requireRealmAndDevice() error {
	if app.realmName == "" {
		return fmt.Errorf("realm required: use -r/--realm, or edgelinkctl settings set realm <name>")
	}
	if app.deviceID == "" {
		return fmt.Errorf("device id required: use -d/--device-id, or edgelinkctl settings set device-id <id>")
	}
	return nil
}

// loadInterfaces reads every interface schema file under app.interfacesDir.
func loadInterfaces() ([]schema.Interface, error) {
	ifaces, err := schema.LoadInterfaceDir(app.interfacesDir)
	if err != nil {
		return nil, fmt.Errorf("loading interfaces from %s: %w", app.interfacesDir, err)
	}
	out := make([]schema.Interface, len(ifaces))
	for i, iface := range ifaces {
		out[i] = *iface
	}
	return out, nil
}

// newDevice assembles a device.Device from the current flag/settings state,
// prompting for the credentials secret if it was not supplied.
func newDevice() (*device.Device, error) {
	if err := requireRealmAndDevice(); err != nil {
		return nil, err
	}

	ifaces, err := loadInterfaces()
	if err != nil {
		return nil, err
	}

	secret := app.credSecret
	if secret == "" {
		secret, err = promptCredentialsSecret()
		if err != nil {
			return nil, fmt.Errorf("reading credentials secret: %w", err)
		}
	}

	dev, err := device.New(device.Config{
		RealmName:             app.realmName,
		DeviceID:              app.deviceID,
		CredentialSecret:      secret,
		PairingBaseURL:        app.pairingURL,
		AllowInsecureBroker:   app.insecure,
		HTTPTimeout:           30 * time.Second,
		MQTTConnectionTimeout: 30 * time.Second,
		MQTTPollTimeout:       500 * time.Millisecond,
		CleanSession:          false,
		ReconnectBackoff:      device.ReconnectBackoff{Min: time.Second, Max: 2 * time.Minute},
		PropertyCacheAddr:     app.propCacheAddr,
		PropertyCacheDB:       app.propCacheDB,
		Interfaces:            ifaces,
		Callbacks: device.Callbacks{
			Connect:    onConnect,
			Disconnect: onDisconnect,
			DatastreamIndividual: func(iface, path string, v schema.Individual, ts *time.Time) {
				fmt.Printf("%s %s%s = %v\n", dim("<-"), iface, path, v.Raw())
			},
			DatastreamObject: func(iface, path string, entries []schema.ObjectEntry, ts *time.Time) {
				fmt.Printf("%s %s%s { ", dim("<-"), iface, path)
				for _, e := range entries {
					fmt.Printf("%s=%v ", e.Endpoint, e.Value.Raw())
				}
				fmt.Println("}")
			},
			PropertySet: func(iface, path string, v schema.Individual, ts *time.Time) {
				fmt.Printf("%s %s%s = %v\n", dim("<-"), iface, path, v.Raw())
			},
			PropertyUnset: func(iface, path string) {
				fmt.Printf("%s %s%s unset\n", dim("<-"), iface, path)
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("constructing device: %w", err)
	}
	return dev, nil
}

func onConnect() {
	fmt.Println(green("connected."))
}

func onDisconnect(err error) {
	if err != nil {
		fmt.Println(red(fmt.Sprintf("disconnected: %v", err)))
	} else {
		fmt.Println(yellow("disconnected."))
	}
}

// pollUntilInterrupt drives dev.Poll() in a loop until SIGINT/SIGTERM, for
// interactive commands that need to observe inbound server-owned traffic
// rather than exit after one publish. If the session drops it reconnects
// with the device's configured exponential backoff, so a transient broker
// outage doesn't kill the session.
func pollUntilInterrupt(ctx context.Context, dev *device.Device) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	backoff := dev.ReconnectBackoff()
	floor := backoff.Min
	if floor <= 0 {
		floor = time.Second
	}
	delay := floor
	for {
		select {
		case <-sigCh:
			return
		case <-ctx.Done():
			return
		default:
			dev.Poll()
			if dev.State() != devicestate.Disconnected {
				delay = floor
				continue
			}
			fmt.Println(yellow(fmt.Sprintf("session lost; reconnecting in %s", delay)))
			select {
			case <-sigCh:
				return
			case <-time.After(delay):
			}
			if err := dev.Connect(ctx); err != nil {
				fmt.Println(red(fmt.Sprintf("reconnect failed: %v", err)))
			}
			delay *= 2
			if backoff.Max > 0 && delay > backoff.Max {
				delay = backoff.Max
			}
		}
	}
}

// Color helpers — delegate to pkg/cli
func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
func bold(s string) string   { return cli.Bold(s) }
func dim(s string) string    { return cli.Dim(s) }

// defaultStr returns s if non-empty, otherwise def.
func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func dash(s string) string { return defaultStr(s, "-") }

func trimPath(s string) string {
	if !strings.HasPrefix(s, "/") {
		return "/" + s
	}
	return s
}

// waitConnected polls dev until the handshake completes.
func waitConnected(dev *device.Device) {
	for dev.State() != devicestate.Connected {
		dev.Poll()
	}
}

// drainBriefly polls a few more times so a just-issued publish's
// acknowledgement (and any resulting property-cache write-through) lands
// before the command exits.
func drainBriefly(dev *device.Device) {
	for i := 0; i < 20; i++ {
		dev.Poll()
		time.Sleep(50 * time.Millisecond)
	}
}
