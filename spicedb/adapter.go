// Package spicedb implements the rebind adapter contract against a
// SpiceDB-compatible service over gRPC.
package spicedb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	pb "github.com/authzed/authzed-go/proto/authzed/api/v1"
	authzed "github.com/authzed/authzed-go/v1"
	"github.com/authzed/grpcutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rebind-io/rebind"
)

// Adapter talks to SpiceDB. It satisfies rebind.Adapter.
//
// The adapter does no retrying and sets no timeouts of its own;
// cancellation and deadlines are carried by the caller's context, and
// failures are returned for the caller to classify.
type Adapter struct {
	client *authzed.Client
}

// Options configure the connection.
type Options struct {
	// Token is the pre-shared key presented as a bearer token.
	Token string

	// Insecure dials without transport security. For local development
	// only.
	Insecure bool

	// DialOptions are appended to the computed gRPC options.
	DialOptions []grpc.DialOption
}

// New dials a SpiceDB endpoint ("host:port").
func New(endpoint string, opts Options) (*Adapter, error) {
	var dialOpts []grpc.DialOption
	if opts.Insecure {
		dialOpts = append(dialOpts,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpcutil.WithInsecureBearerToken(opts.Token),
		)
	} else {
		certs, err := grpcutil.WithSystemCerts(grpcutil.VerifyCA)
		if err != nil {
			return nil, fmt.Errorf("spicedb: loading system certs: %w", err)
		}
		dialOpts = append(dialOpts, certs, grpcutil.WithBearerToken(opts.Token))
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	client, err := authzed.NewClient(endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("spicedb: dialing %s: %w", endpoint, err)
	}
	return &Adapter{client: client}, nil
}

// PublishSchema applies schema text and returns the written-at token.
func (a *Adapter) PublishSchema(ctx context.Context, schema string) (string, error) {
	resp, err := a.client.WriteSchema(ctx, &pb.WriteSchemaRequest{Schema: schema})
	if err != nil {
		return "", fmt.Errorf("spicedb: write schema: %w", err)
	}
	return resp.GetWrittenAt().GetToken(), nil
}

// WriteTuples upserts tuples with touch semantics.
func (a *Adapter) WriteTuples(ctx context.Context, tuples []rebind.TupleWrite) error {
	if len(tuples) == 0 {
		return nil
	}

	updates := make([]*pb.RelationshipUpdate, 0, len(tuples))
	for _, tw := range tuples {
		rel, err := buildRelationship(tw)
		if err != nil {
			return err
		}
		updates = append(updates, &pb.RelationshipUpdate{
			Operation:    pb.RelationshipUpdate_OPERATION_TOUCH,
			Relationship: rel,
		})
	}

	if _, err := a.client.WriteRelationships(ctx, &pb.WriteRelationshipsRequest{Updates: updates}); err != nil {
		return fmt.Errorf("spicedb: write relationships: %w", err)
	}
	return nil
}

// DeleteTuples removes tuples by key. Missing tuples are not an error:
// deletion is filter-based and an empty match set is a no-op.
func (a *Adapter) DeleteTuples(ctx context.Context, keys []rebind.TupleKey) error {
	for _, key := range keys {
		resourceType, resourceID, err := parseRef(key.Object)
		if err != nil {
			return err
		}
		subjectType, subjectID, subjectRelation, err := parseSubjectRef(key.Subject)
		if err != nil {
			return err
		}

		subjectFilter := &pb.SubjectFilter{
			SubjectType:       subjectType,
			OptionalSubjectId: subjectID,
		}
		if subjectRelation != "" {
			subjectFilter.OptionalRelation = &pb.SubjectFilter_RelationFilter{Relation: subjectRelation}
		}

		_, err = a.client.DeleteRelationships(ctx, &pb.DeleteRelationshipsRequest{
			RelationshipFilter: &pb.RelationshipFilter{
				ResourceType:          resourceType,
				OptionalResourceId:    resourceID,
				OptionalRelation:      key.Relation,
				OptionalSubjectFilter: subjectFilter,
			},
		})
		if err != nil {
			return fmt.Errorf("spicedb: delete relationships: %w", err)
		}
	}
	return nil
}

// Check reports whether subject holds relation (or permission) on object.
func (a *Adapter) Check(ctx context.Context, subject, relation, object string, req rebind.CheckRequest) (bool, error) {
	resourceType, resourceID, err := parseRef(object)
	if err != nil {
		return false, err
	}
	subjectRef, err := buildSubject(subject)
	if err != nil {
		return false, err
	}

	checkReq := &pb.CheckPermissionRequest{
		Resource:   &pb.ObjectReference{ObjectType: resourceType, ObjectId: resourceID},
		Permission: relation,
		Subject:    subjectRef,
	}
	if checkReq.Context, err = buildContext(req.Context); err != nil {
		return false, err
	}
	checkReq.Consistency = buildConsistency(req.Consistency)

	resp, err := a.client.CheckPermission(ctx, checkReq)
	if err != nil {
		return false, fmt.Errorf("spicedb: check permission: %w", err)
	}
	return resp.GetPermissionship() == pb.CheckPermissionResponse_PERMISSIONSHIP_HAS_PERMISSION, nil
}

// LookupResources drains the reverse-lookup stream into an id slice.
func (a *Adapter) LookupResources(ctx context.Context, subject, relation, resourceType string, req rebind.CheckRequest) ([]string, error) {
	subjectRef, err := buildSubject(subject)
	if err != nil {
		return nil, err
	}

	lookupReq := &pb.LookupResourcesRequest{
		ResourceObjectType: resourceType,
		Permission:         relation,
		Subject:            subjectRef,
	}
	if lookupReq.Context, err = buildContext(req.Context); err != nil {
		return nil, err
	}
	lookupReq.Consistency = buildConsistency(req.Consistency)

	stream, err := a.client.LookupResources(ctx, lookupReq)
	if err != nil {
		return nil, fmt.Errorf("spicedb: lookup resources: %w", err)
	}

	var ids []string
	for {
		item, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return nil, fmt.Errorf("spicedb: lookup resources stream: %w", err)
		}
		ids = append(ids, item.GetResourceObjectId())
	}
}

// ------------------------------------------------------------- builders

func buildRelationship(tw rebind.TupleWrite) (*pb.Relationship, error) {
	resourceType, resourceID, err := parseRef(tw.Key.Object)
	if err != nil {
		return nil, err
	}
	subjectRef, err := buildSubject(tw.Key.Subject)
	if err != nil {
		return nil, err
	}

	rel := &pb.Relationship{
		Resource: &pb.ObjectReference{ObjectType: resourceType, ObjectId: resourceID},
		Relation: tw.Key.Relation,
		Subject:  subjectRef,
	}

	if tw.Condition != nil {
		if tw.Condition.Name == "" {
			return nil, fmt.Errorf("spicedb: tuple condition requires a name")
		}
		caveat := &pb.ContextualizedCaveat{CaveatName: tw.Condition.Name}
		if caveat.Context, err = buildContext(tw.Condition.Context); err != nil {
			return nil, err
		}
		rel.OptionalCaveat = caveat
	}

	return rel, nil
}

func buildSubject(ref string) (*pb.SubjectReference, error) {
	subjectType, subjectID, subjectRelation, err := parseSubjectRef(ref)
	if err != nil {
		return nil, err
	}
	return &pb.SubjectReference{
		Object:           &pb.ObjectReference{ObjectType: subjectType, ObjectId: subjectID},
		OptionalRelation: subjectRelation,
	}, nil
}

func buildContext(ctx map[string]any) (*structpb.Struct, error) {
	if len(ctx) == 0 {
		return nil, nil
	}
	s, err := structpb.NewStruct(ctx)
	if err != nil {
		return nil, fmt.Errorf("spicedb: encoding caveat context: %w", err)
	}
	return s, nil
}

func buildConsistency(mode rebind.Consistency) *pb.Consistency {
	switch mode {
	case "":
		return nil
	case rebind.ConsistencyFull:
		return &pb.Consistency{Requirement: &pb.Consistency_FullyConsistent{FullyConsistent: true}}
	case rebind.ConsistencyMinimizeLatency:
		return &pb.Consistency{Requirement: &pb.Consistency_MinimizeLatency{MinimizeLatency: true}}
	default:
		// Any other value is a version token from a previous write.
		return &pb.Consistency{Requirement: &pb.Consistency_AtLeastAsFresh{
			AtLeastAsFresh: &pb.ZedToken{Token: string(mode)},
		}}
	}
}

// -------------------------------------------------------------- parsing

func parseRef(value string) (string, string, error) {
	typ, id, ok := strings.Cut(value, ":")
	if !ok || typ == "" || id == "" {
		return "", "", fmt.Errorf("spicedb: invalid object reference %q", value)
	}
	return typ, id, nil
}

func parseSubjectRef(value string) (string, string, string, error) {
	objectPart, relation, _ := strings.Cut(value, "#")
	typ, id, err := parseRef(objectPart)
	if err != nil {
		return "", "", "", err
	}
	return typ, id, relation, nil
}
