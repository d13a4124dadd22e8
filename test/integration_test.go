package test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rebind-io/rebind"
	"github.com/rebind-io/rebind/gormsync"
	"github.com/rebind-io/rebind/test/testutil"
)

// The store-side schema used by the integration tests, in SpiceDB's own
// schema language.
const storeSchema = `
definition user {}

definition group {
	relation member: user
}

definition document {
	relation owner: user
	relation viewer: group#member
	permission view = owner + viewer
}
`

func integrationGraph(t *testing.T) *rebind.TypeGraph {
	t.Helper()
	graph, err := rebind.NewTypeGraph(rebind.Config{
		"user": {Model: "User"},
		"group": {
			Relations: map[string]string{"member": "user"},
			Bindings: map[string]rebind.Binding{
				"member": {Field: "Members", Kind: rebind.BindingM2M},
			},
			Model: "Group",
		},
		"document": {
			Relations: map[string]string{
				"owner":  "user",
				"viewer": "group#member",
			},
			Permissions: map[string]string{"view": "owner | viewer"},
			Bindings: map[string]rebind.Binding{
				"owner":  {Field: "Owner", Kind: rebind.BindingFK},
				"viewer": {Field: "Group", Kind: rebind.BindingFK},
			},
			Model: "Document",
		},
	})
	require.NoError(t, err)
	return graph
}

type User struct {
	ID   uint
	Name string
}

type Group struct {
	ID      uint
	Members []*User `gorm:"many2many:group_members"`
}

type Document struct {
	ID      uint
	Title   string
	OwnerID *uint
	Owner   *User
	GroupID *uint
	Group   *Group
}

// TestAdapter_Integration exercises the adapter contract end to end
// against a real SpiceDB: schema publish, touch writes, consistent
// checks, reverse lookup, and idempotent deletes.
func TestAdapter_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	adapter := testutil.Adapter(t)
	ctx := context.Background()

	token, err := adapter.PublishSchema(ctx, storeSchema)
	require.NoError(t, err)
	assert.NotEmpty(t, token, "schema write should return a version token")

	tuples := []rebind.TupleWrite{
		{Key: rebind.TupleKey{Object: "document:int-1", Relation: "owner", Subject: "user:alice"}},
		{Key: rebind.TupleKey{Object: "document:int-2", Relation: "owner", Subject: "user:alice"}},
		{Key: rebind.TupleKey{Object: "document:int-3", Relation: "viewer", Subject: "group:eng#member"}},
		{Key: rebind.TupleKey{Object: "group:eng", Relation: "member", Subject: "user:bob"}},
	}
	require.NoError(t, adapter.WriteTuples(ctx, tuples))
	// Touch semantics: re-writing the same tuples is not an error.
	require.NoError(t, adapter.WriteTuples(ctx, tuples))

	full := rebind.CheckRequest{Consistency: rebind.ConsistencyFull}

	allowed, err := adapter.Check(ctx, "user:alice", "view", "document:int-1", full)
	require.NoError(t, err)
	assert.True(t, allowed, "direct owner should have view")

	allowed, err = adapter.Check(ctx, "user:bob", "view", "document:int-3", full)
	require.NoError(t, err)
	assert.True(t, allowed, "group member should have view through the userset")

	allowed, err = adapter.Check(ctx, "user:bob", "view", "document:int-1", full)
	require.NoError(t, err)
	assert.False(t, allowed)

	ids, err := adapter.LookupResources(ctx, "user:alice", "view", "document", full)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"int-1", "int-2"}, ids)

	keys := []rebind.TupleKey{
		{Object: "document:int-1", Relation: "owner", Subject: "user:alice"},
	}
	require.NoError(t, adapter.DeleteTuples(ctx, keys))
	// Deleting an already absent tuple is a no-op.
	require.NoError(t, adapter.DeleteTuples(ctx, keys))

	allowed, err = adapter.Check(ctx, "user:alice", "view", "document:int-1", full)
	require.NoError(t, err)
	assert.False(t, allowed, "deleted grant must not check true")
}

// TestSync_Integration drives record mutations through the engine and
// verifies the store answers permission checks accordingly.
func TestSync_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	adapter := testutil.Adapter(t)
	ctx := context.Background()

	_, err := adapter.PublishSchema(ctx, storeSchema)
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}, &Group{}, &Document{}))

	graph := integrationGraph(t)
	engine, err := gormsync.New(db, adapter, graph, gormsync.Models{
		"user":     &User{},
		"group":    &Group{},
		"document": &Document{},
	})
	require.NoError(t, err)

	alice := User{Name: "alice"}
	bob := User{Name: "bob"}
	require.NoError(t, db.Create(&alice).Error)
	require.NoError(t, db.Create(&bob).Error)

	doc := Document{Title: "roadmap", OwnerID: &alice.ID}
	require.NoError(t, engine.Transaction(ctx, func(uow *gormsync.UnitOfWork) error {
		return uow.Create(&doc)
	}))

	docObj := rebind.Object{Type: "document", ID: fmt.Sprint(doc.ID)}
	full := rebind.WithConsistency(rebind.ConsistencyFull)

	ev := rebind.NewEvaluator(adapter, graph, rebind.Object{Type: "user", ID: fmt.Sprint(alice.ID)})
	allowed, err := ev.Can(ctx, "view", docObj, full)
	require.NoError(t, err)
	assert.True(t, allowed, "owner should view after create flush")

	// Reassign ownership; the old grant must be revoked and the new
	// one established by a single transaction.
	doc.OwnerID = &bob.ID
	require.NoError(t, engine.Transaction(ctx, func(uow *gormsync.UnitOfWork) error {
		return uow.Save(&doc)
	}))

	evAlice := rebind.NewEvaluator(adapter, graph, rebind.Object{Type: "user", ID: fmt.Sprint(alice.ID)})
	allowed, err = evAlice.Can(ctx, "view", docObj, full)
	require.NoError(t, err)
	assert.False(t, allowed, "previous owner must lose access")

	evBob := rebind.NewEvaluator(adapter, graph, rebind.Object{Type: "user", ID: fmt.Sprint(bob.ID)})
	allowed, err = evBob.Can(ctx, "view", docObj, full)
	require.NoError(t, err)
	assert.True(t, allowed, "new owner must gain access")

	// Group membership through the m2m binding.
	group := Group{}
	var shared Document
	require.NoError(t, engine.Transaction(ctx, func(uow *gormsync.UnitOfWork) error {
		if err := uow.Create(&group); err != nil {
			return err
		}
		if err := uow.AppendAssociation(&group, "member", &alice); err != nil {
			return err
		}
		shared = Document{Title: "shared", GroupID: &group.ID}
		return uow.Create(&shared)
	}))

	sharedObj := rebind.Object{Type: "document", ID: fmt.Sprint(shared.ID)}
	evAlice = rebind.NewEvaluator(adapter, graph, rebind.Object{Type: "user", ID: fmt.Sprint(alice.ID)})
	allowed, err = evAlice.Can(ctx, "view", sharedObj, full)
	require.NoError(t, err)
	assert.True(t, allowed, "group member views through the userset subject")

	require.NoError(t, engine.Transaction(ctx, func(uow *gormsync.UnitOfWork) error {
		return uow.ClearAssociation(&group, "member")
	}))

	evAlice = rebind.NewEvaluator(adapter, graph, rebind.Object{Type: "user", ID: fmt.Sprint(alice.ID)})
	allowed, err = evAlice.Can(ctx, "view", sharedObj, full)
	require.NoError(t, err)
	assert.False(t, allowed, "cleared membership revokes userset access")
}
