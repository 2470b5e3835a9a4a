package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edgelink/device-agent/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent CLI settings",
	Long: `Manage persistent settings stored in ~/.edgelinkctl/settings.json.

Settings provide defaults for context flags:
  - realm:              Used when -r is not specified
  - device-id:           Used when -d is not specified
  - interfaces-dir:      Used when --interfaces-dir is not specified
  - pairing-url:         Used when --pairing-url is not specified

Examples:
  edgelinkctl settings show
  edgelinkctl settings set realm test
  edgelinkctl settings set device-id 2TBn-A...
  edgelinkctl settings set interfaces-dir /etc/edgelinkctl/interfaces
  edgelinkctl settings clear`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SETTING\tVALUE")
		fmt.Fprintln(w, "-------\t-----")

		printSetting := func(name, value string) {
			if value == "" {
				value = "(not set)"
			}
			fmt.Fprintf(w, "%s\t%s\n", name, value)
		}

		printSetting("realm", s.DefaultRealm)
		printSetting("device-id", s.DefaultDeviceID)
		printSetting("interfaces-dir", s.InterfacesDir)
		printSetting("pairing-url", s.PairingBaseURL)
		printSetting("log-level", s.LogLevel)
		printSetting("log-format", s.LogFormat)
		printSetting("session-log-path", s.SessionLogPath)

		w.Flush()
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Set a setting value",
	Long: `Set a persistent setting value.

Available settings:
  realm             - Default realm name (-r flag default)
  device-id         - Default device id (-d flag default)
  interfaces-dir    - Interface schema directory (--interfaces-dir default)
  pairing-url       - Pairing API base URL (--pairing-url default)
  log-level         - logrus level (debug, info, warn, error)
  log-format        - logrus formatter (text, json)
  allow-insecure    - "true"/"false": permit a non-TLS mqtt:// broker
  session-log-path  - Session log file path

Examples:
  edgelinkctl settings set realm test
  edgelinkctl settings set device-id 2TBn-A...
  edgelinkctl settings set interfaces-dir /etc/edgelinkctl/interfaces`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		setting := args[0]
		value := args[1]

		s, err := settings.Load()
		if err != nil {
			s = &settings.Settings{}
		}

		switch setting {
		case "realm":
			s.DefaultRealm = value
		case "device-id":
			s.DefaultDeviceID = value
		case "interfaces-dir":
			s.InterfacesDir = value
		case "pairing-url":
			s.PairingBaseURL = value
		case "log-level":
			s.LogLevel = value
		case "log-format":
			s.LogFormat = value
		case "allow-insecure":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("allow-insecure must be true or false: %w", err)
			}
			s.AllowInsecureBroker = b
		case "session-log-path":
			s.SessionLogPath = value
		default:
			return fmt.Errorf("unknown setting: %s", setting)
		}

		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Printf("%s set to: %s\n", setting, value)
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <setting>",
	Short: "Get a setting value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setting := args[0]

		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		var value string
		switch setting {
		case "realm":
			value = s.DefaultRealm
		case "device-id":
			value = s.DefaultDeviceID
		case "interfaces-dir":
			value = s.InterfacesDir
		case "pairing-url":
			value = s.PairingBaseURL
		case "log-level":
			value = s.LogLevel
		case "log-format":
			value = s.LogFormat
		case "session-log-path":
			value = s.SessionLogPath
		default:
			return fmt.Errorf("unknown setting: %s", setting)
		}

		if value == "" {
			fmt.Println("(not set)")
		} else {
			fmt.Println(value)
		}
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := &settings.Settings{}
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Println("All settings cleared.")
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(settings.DefaultSettingsPath())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsClearCmd)
	settingsCmd.AddCommand(settingsPathCmd)
}
