package rebind

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// CompileSchema renders the graph as canonical schema text, one block per
// type sorted by type name, with relations and permissions sorted within
// each block. Sections are omitted entirely when empty and blocks are
// separated by a blank line.
//
// Determinism is load-bearing: two builds from identical configuration
// produce byte-identical output, so callers can hash the text to detect
// schema drift before publishing.
func (g *TypeGraph) CompileSchema() string {
	var blocks []string

	for _, name := range g.Types() {
		tc := g.types[name]
		var b strings.Builder
		b.WriteString("type " + tc.Name)

		if len(tc.Relations) > 0 {
			b.WriteString("\n  relations")
			for _, rel := range sortedKeys(tc.Relations) {
				b.WriteString("\n    define " + rel + ": " + tc.Relations[rel])
			}
		}
		if len(tc.Permissions) > 0 {
			b.WriteString("\n  permissions")
			for _, perm := range sortedKeys(tc.Permissions) {
				b.WriteString("\n    define " + perm + ": " + tc.Permissions[perm])
			}
		}
		if len(tc.Parents) > 0 {
			b.WriteString("\n  parents")
			for _, parent := range tc.Parents {
				b.WriteString("\n    " + parent)
			}
		}

		blocks = append(blocks, b.String())
	}

	return strings.Join(blocks, "\n\n")
}

// SchemaHash returns the hex SHA-256 of the compiled schema text.
// Because CompileSchema is deterministic, the hash identifies a schema
// revision and changes exactly when the configuration meaningfully does.
func (g *TypeGraph) SchemaHash() string {
	sum := sha256.Sum256([]byte(g.CompileSchema()))
	return hex.EncodeToString(sum[:])
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
