package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgelink/device-agent/pkg/cli"
	"github.com/edgelink/device-agent/pkg/schema"
)

var introspectionCmd = &cobra.Command{
	Use:   "introspection",
	Short: "Inspect the interfaces loaded from --interfaces-dir",
}

var introspectionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List every loaded interface and its mappings",
	Long: `Show loads every interface schema under --interfaces-dir and prints the
canonical introspection string this device would present to the platform,
followed by a table of mappings per interface.

Examples:
  edgelinkctl introspection show --interfaces-dir ./interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ifaces, err := loadInterfaces()
		if err != nil {
			return err
		}

		for i := range ifaces {
			iface := &ifaces[i]
			fmt.Printf("%s  %s\n", bold(iface.VersionString()), dim(ownershipKind(iface)))

			t := cli.NewTable("PATH", "TYPE", "RELIABILITY", "EXPLICIT_TS", "ALLOW_UNSET")
			for _, m := range iface.Mappings {
				t.Row(
					m.PathTemplate,
					m.Type.String(),
					reliabilityName(m.Reliability),
					dash(boolStr(m.ExplicitTimestamp)),
					dash(boolStr(m.AllowUnset)),
				)
			}
			t.WithPrefix("  ").Flush()
			fmt.Println()
		}

		fmt.Printf("%d interface(s) loaded.\n", len(ifaces))
		return nil
	},
}

func ownershipKind(iface *schema.Interface) string {
	kind := "datastream"
	if iface.Kind == schema.KindProperties {
		kind = "properties"
	}
	agg := "individual"
	if iface.Aggregation == schema.AggregationObject {
		agg = "object"
	}
	return fmt.Sprintf("(%s, %s, %s)", iface.Ownership.String(), kind, agg)
}

func reliabilityName(r schema.Reliability) string {
	switch r {
	case schema.ReliabilityGuaranteed:
		return "guaranteed"
	case schema.ReliabilityUnique:
		return "unique"
	default:
		return "unreliable"
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return ""
}

func init() {
	introspectionCmd.AddCommand(introspectionShowCmd)
}
