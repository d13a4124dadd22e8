// Package main provides a CLI for managing rebind authorization schemas.
//
// The CLI supports:
//   - validate: Check a type graph definition for structural errors
//   - compile: Render the type graph as SpiceDB schema text
//   - publish: Write the compiled schema to a SpiceDB instance
//
// This tool is typically run during development and deployment to keep
// the authorization store synchronized with the type graph definition.
//
// Commands that talk to SpiceDB (publish) need an endpoint and token.
// Commands that only work with files (validate, compile) do not.
package main

func main() {
	Execute()
}
