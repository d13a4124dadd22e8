package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rebind-io/rebind"
	"github.com/rebind-io/rebind/internal/cli"
)

var (
	compileSchema string
	compileOut    string
	compileHash   bool
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile the type graph to SpiceDB schema text",
	Long: `Compile the type graph to SpiceDB schema text.

Output is deterministic: the same definition always produces the same
schema text, so the result is safe to commit and diff.`,
	Example: `  # Print the compiled schema
  rebind compile

  # Write it to a file
  rebind compile --out schema.zed

  # Print only the schema digest
  rebind compile --hash`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := cfg.ResolvedSchema(compileSchema)

		config, err := rebind.LoadConfigFile(schemaPath)
		if err != nil {
			return cli.SchemaParseError(fmt.Sprintf("loading %s", schemaPath), err)
		}

		graph, err := rebind.NewTypeGraph(config)
		if err != nil {
			return cli.SchemaParseError("validating type graph", err)
		}

		if compileHash {
			fmt.Println(graph.SchemaHash())
			return nil
		}

		text := graph.CompileSchema()

		if compileOut != "" {
			if err := os.WriteFile(compileOut, []byte(text+"\n"), 0o644); err != nil {
				return cli.GeneralError(fmt.Sprintf("writing %s", compileOut), err)
			}
			if !quiet {
				fmt.Printf("Wrote %s (%s)\n", compileOut, graph.SchemaHash()[:12])
			}
			return nil
		}

		fmt.Println(text)
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVar(&compileSchema, "schema", "", "path to the type graph definition")
	compileCmd.Flags().StringVar(&compileOut, "out", "", "write schema text to this file instead of stdout")
	compileCmd.Flags().BoolVar(&compileHash, "hash", false, "print the schema digest instead of the schema text")
}
