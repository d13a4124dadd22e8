package rebind_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rebind-io/rebind"
)

func TestParseConfig(t *testing.T) {
	data := []byte(`
user: {}
group:
  relations:
    member: user
document:
  relations:
    owner: user
    viewer: group#member
  permissions:
    view: owner | viewer
  bindings:
    owner:
      field: Owner
      kind: fk
  model: Document
`)

	cfg, err := rebind.ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	doc, ok := cfg["document"]
	if !ok {
		t.Fatal("expected document type in config")
	}
	if doc.Relations["viewer"] != "group#member" {
		t.Errorf("viewer subject = %q, want group#member", doc.Relations["viewer"])
	}
	if doc.Bindings["owner"].Kind != rebind.BindingFK {
		t.Errorf("owner binding kind = %q, want fk", doc.Bindings["owner"].Kind)
	}
	if doc.Model != "Document" {
		t.Errorf("model = %q, want Document", doc.Model)
	}
}

func TestParseConfig_UnknownFieldRejected(t *testing.T) {
	data := []byte(`
document:
  relatoins:
    owner: user
`)

	_, err := rebind.ParseConfig(data)
	if err == nil {
		t.Fatal("expected error for misspelled section")
	}
	if !rebind.IsConfigErr(err) {
		t.Errorf("expected IsConfigErr, got: %v", err)
	}
}

func TestNewTypeGraph_EmptyRelationValue(t *testing.T) {
	cfg := rebind.Config{
		"document": {Relations: map[string]string{"owner": ""}},
	}

	_, err := rebind.NewTypeGraph(cfg)
	if err == nil {
		t.Fatal("expected error for empty relation subject")
	}
	if !rebind.IsConfigErr(err) {
		t.Errorf("expected IsConfigErr, got: %v", err)
	}
}

func TestNewTypeGraph_ParentsDedupedAndSorted(t *testing.T) {
	cfg := rebind.Config{
		"org":    {},
		"folder": {},
		"document": {
			Parents: []string{"org", "folder", "org"},
		},
	}

	graph, err := rebind.NewTypeGraph(cfg)
	if err != nil {
		t.Fatalf("NewTypeGraph: %v", err)
	}

	doc, _ := graph.Type("document")
	want := []string{"folder", "org"}
	if len(doc.Parents) != len(want) {
		t.Fatalf("parents = %v, want %v", doc.Parents, want)
	}
	for i := range want {
		if doc.Parents[i] != want[i] {
			t.Errorf("parents = %v, want %v", doc.Parents, want)
			break
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rebac.yaml")
	content := []byte("user: {}\ndocument:\n  relations:\n    owner: user\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := rebind.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if _, ok := cfg["document"]; !ok {
		t.Error("expected document type")
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	_, err := rebind.LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !rebind.IsConfigErr(err) {
		t.Errorf("expected IsConfigErr, got: %v", err)
	}
}
