package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rebind-io/rebind"
	"github.com/rebind-io/rebind/internal/cli"
)

var validateSchema string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a type graph definition",
	Long:  `Validate a type graph definition for unknown parents, cycles, unresolved subjects and malformed bindings.`,
	Example: `  # Validate a specific definition file
  rebind validate --schema rebac.yaml

  # Validate using config file settings
  rebind validate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := cfg.ResolvedSchema(validateSchema)

		config, err := rebind.LoadConfigFile(schemaPath)
		if err != nil {
			return cli.SchemaParseError(fmt.Sprintf("loading %s", schemaPath), err)
		}

		graph, err := rebind.NewTypeGraph(config)
		if err != nil {
			return cli.SchemaParseError("validating type graph", err)
		}

		if !quiet {
			names := graph.Types()
			fmt.Printf("Type graph is valid. Found %d types:\n", len(names))
			for _, name := range names {
				tc, _ := graph.Type(name)
				fmt.Printf("  - %s (%d relations, %d bindings)\n", name, len(tc.Relations), len(tc.Bindings))
			}
		}

		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateSchema, "schema", "", "path to the type graph definition")
}
