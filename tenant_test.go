package rebind_test

import (
	"context"
	"testing"

	"github.com/rebind-io/rebind"
)

// tenantDoc is a tenant-scoped object for guard tests.
type tenantDoc struct {
	id     string
	tenant string
}

func (d tenantDoc) RebacObject() rebind.Object {
	return rebind.Object{Type: "document", ID: d.id}
}

func (d tenantDoc) RebacTenant() string {
	return d.tenant
}

func TestTenantEvaluator_CrossTenantDenied(t *testing.T) {
	adapter, graph := evalFixture(t)
	ctx := context.Background()

	user := rebind.Object{Type: "user", ID: "1"}
	doc := tenantDoc{id: "9", tenant: "acme"}

	// Force an allow so a leak through the guard would be visible.
	adapter.ForcedChecks["user:1 owner document:9"] = true

	guard := rebind.NewTenantEvaluator(rebind.NewEvaluator(adapter, graph, user), "globex")

	allowed, err := guard.Can(ctx, "owner", doc)
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if allowed {
		t.Error("cross-tenant check must be denied")
	}
	if got := adapter.CheckCalls(); got != 0 {
		t.Errorf("adapter saw %d check calls, want 0: isolation must not reach the store", got)
	}
}

func TestTenantEvaluator_SameTenantDelegates(t *testing.T) {
	adapter, graph := evalFixture(t)
	ctx := context.Background()

	user := rebind.Object{Type: "user", ID: "1"}
	doc := tenantDoc{id: "9", tenant: "acme"}
	adapter.ForcedChecks["user:1 owner document:9"] = true

	guard := rebind.NewTenantEvaluator(rebind.NewEvaluator(adapter, graph, user), "acme")

	allowed, err := guard.Can(ctx, "owner", doc)
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if !allowed {
		t.Error("same-tenant check should delegate to the store")
	}
	if got := adapter.CheckCalls(); got != 1 {
		t.Errorf("adapter saw %d check calls, want 1", got)
	}
}

func TestTenantEvaluator_TenantAgnosticObjects(t *testing.T) {
	adapter, graph := evalFixture(t)
	ctx := context.Background()

	user := rebind.Object{Type: "user", ID: "1"}
	guard := rebind.NewTenantEvaluator(rebind.NewEvaluator(adapter, graph, user), "acme")

	// Plain objects do not implement TenantScoped and pass through.
	if _, err := guard.Can(ctx, "owner", rebind.Object{Type: "document", ID: "9"}); err != nil {
		t.Fatal(err)
	}
	// An empty tenant id is tenant-agnostic too.
	if _, err := guard.Can(ctx, "owner", tenantDoc{id: "10", tenant: ""}); err != nil {
		t.Fatal(err)
	}

	if got := adapter.CheckCalls(); got != 2 {
		t.Errorf("adapter saw %d check calls, want 2 pass-throughs", got)
	}
}
