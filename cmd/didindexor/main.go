package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
	pkgconfig "github.com/goran-ethernal/DIDIndexor/pkg/config"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║            DIDIndexor v%s              ║
║     DID Registry Event Projector          ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
	paused     bool
	asJSON     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "didindexor",
	Short: "DIDIndexor - DID registry event projector",
	Long: `DIDIndexor follows the events of a DID registry contract and folds them into
a queryable projection of DID records, data pointers and access grants.
It checkpoints atomically with every batch, rolls back on chain reorganizations
and serves the projection over a REST API.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runIndexer,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the registry events the indexer decodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		signatures := decoder.Signatures()

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(signatures)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tTOPIC\tSIGNATURE")
		for _, s := range signatures {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Kind, s.Topic.Hex(), s.Signature)
		}
		return w.Flush()
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := &jsonschema.Reflector{
			FieldNameTag:   "json",
			ExpandedStruct: true,
		}
		schema := r.Reflect(&pkgconfig.Config{})
		schema.Title = "DIDIndexor configuration"

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(schema)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.Flags().BoolVar(&paused, "paused", false, "serve the API without starting the indexer")
	eventsCmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	rootCmd.AddCommand(eventsCmd, schemaCmd)
}
