package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rebind-io/rebind"
	"github.com/rebind-io/rebind/internal/cli"
	"github.com/rebind-io/rebind/spicedb"
)

var (
	publishSchema   string
	publishEndpoint string
	publishToken    string
	publishInsecure bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the compiled schema to SpiceDB",
	Long: `Compile the type graph and write the resulting schema to a SpiceDB
instance. Prints the token of the schema write; pass it as an
at-least-as-fresh consistency bound to read your own write.`,
	Example: `  # Publish using config file settings
  rebind publish

  # Publish to a local dev instance
  rebind publish --endpoint localhost:50051 --token sometoken --insecure`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaPath := cfg.ResolvedSchema(publishSchema)

		config, err := rebind.LoadConfigFile(schemaPath)
		if err != nil {
			return cli.SchemaParseError(fmt.Sprintf("loading %s", schemaPath), err)
		}

		graph, err := rebind.NewTypeGraph(config)
		if err != nil {
			return cli.SchemaParseError("validating type graph", err)
		}

		endpoint := resolveString(publishEndpoint, cfg.SpiceDB.Endpoint)
		token := resolveString(publishToken, cfg.SpiceDB.Token)
		insecureConn := resolveBool(publishInsecure, cfg.SpiceDB.Insecure)

		if endpoint == "" {
			return cli.ConfigError("spicedb.endpoint is required", nil)
		}

		adapter, err := spicedb.New(endpoint, spicedb.Options{
			Token:    token,
			Insecure: insecureConn,
		})
		if err != nil {
			return cli.ConnectError(fmt.Sprintf("connecting to %s", endpoint), err)
		}

		writtenAt, err := adapter.PublishSchema(cmd.Context(), graph.CompileSchema())
		if err != nil {
			return cli.GeneralError("publishing schema", err)
		}

		if !quiet {
			fmt.Printf("Published schema %s to %s\n", graph.SchemaHash()[:12], endpoint)
			fmt.Printf("Written at: %s\n", writtenAt)
		} else {
			fmt.Println(writtenAt)
		}

		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishSchema, "schema", "", "path to the type graph definition")
	publishCmd.Flags().StringVar(&publishEndpoint, "endpoint", "", "SpiceDB gRPC endpoint (host:port)")
	publishCmd.Flags().StringVar(&publishToken, "token", "", "SpiceDB pre-shared key")
	publishCmd.Flags().BoolVar(&publishInsecure, "insecure", false, "dial without transport security")
}
