package terminology

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// fakeModelRepo and fakeValueRepo are small in-memory stand-ins for the
// Catalog Store's terminology collections, mirroring the tuple-keyed
// semantics the Postgres implementation enforces via its unique index.
type fakeModelRepo struct {
	byID map[uuid.UUID]*entity.TerminologyModel
}

func (f *fakeModelRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.TerminologyModel, error) {
	return f.byID[id], nil
}

func (f *fakeModelRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*entity.TerminologyModel, error) {
	var out []*entity.TerminologyModel
	for _, m := range f.byID {
		if m.OwnerID == ownerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeModelRepo) Upsert(_ context.Context, m *entity.TerminologyModel) error {
	f.byID[m.ID] = m
	return nil
}

type tupleKey struct {
	valueID      uuid.UUID
	tenantID     uuid.UUID
	connectionID uuid.UUID
}

func connKey(connectionID *uuid.UUID) uuid.UUID {
	if connectionID == nil {
		return uuid.Nil
	}
	return *connectionID
}

type fakeValueRepo struct {
	byTuple map[tupleKey]*entity.TerminologyClient
}

func newFakeValueRepo() *fakeValueRepo {
	return &fakeValueRepo{byTuple: map[tupleKey]*entity.TerminologyClient{}}
}

func (f *fakeValueRepo) FindClient(_ context.Context, ownerID, tenantID uuid.UUID, sourceKey string) (*entity.TerminologyClient, error) {
	for _, c := range f.byTuple {
		if c.OwnerID == ownerID && c.CompanyID == tenantID && c.SourceKey == sourceKey {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeValueRepo) FindClientByTuple(_ context.Context, valueID, tenantID uuid.UUID, connectionID *uuid.UUID) (*entity.TerminologyClient, error) {
	key := tupleKey{valueID, tenantID, connKey(connectionID)}
	c, ok := f.byTuple[key]
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (f *fakeValueRepo) ListClientsForTenant(_ context.Context, ownerID, tenantID uuid.UUID) ([]*entity.TerminologyClient, error) {
	var out []*entity.TerminologyClient
	for _, c := range f.byTuple {
		if c.OwnerID == ownerID && c.CompanyID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeValueRepo) UpsertClient(_ context.Context, c *entity.TerminologyClient) error {
	key := tupleKey{c.ValueID, c.CompanyID, connKey(c.ConnectionID)}
	f.byTuple[key] = c
	return nil
}

func TestUpsertClientFirstInsertDefaultsToPending(t *testing.T) {
	ownerID := uuid.New()
	tenantID := uuid.New()
	modelID := uuid.New()
	models := &fakeModelRepo{byID: map[uuid.UUID]*entity.TerminologyModel{
		modelID: {ID: modelID, OwnerID: ownerID, Type: valueobject.TerminologyTypeDefault, Code: "M", Description: "Male"},
	}}
	values := newFakeValueRepo()
	store := New(models, values)

	err := store.UpsertClient(context.Background(), UpsertClientInput{
		ValueID:   modelID,
		TenantID:  tenantID,
		SourceKey: "1",
	})
	if err != nil {
		t.Fatalf("UpsertClient() error = %v", err)
	}

	client, err := values.FindClientByTuple(context.Background(), modelID, tenantID, nil)
	if err != nil {
		t.Fatalf("FindClientByTuple() error = %v", err)
	}
	if client == nil {
		t.Fatal("expected a client entry to be created")
	}
	if client.Status != valueobject.TerminologyClientStatusPending {
		t.Errorf("Status = %v, want Pending on first insert", client.Status)
	}
	if client.Code != "M" || client.Description != "Male" {
		t.Errorf("client = %+v, want code/description defaulted from the model", client)
	}
}

func TestUpsertClientFirstInsertHonorsSuppliedActiveStatus(t *testing.T) {
	// A seed/admin insert that supplies an explicit status must not be
	// demoted to Pending just because there is no prior entry: forcePending
	// is driven solely by a sourceKey/code change, neither of which can be
	// true on a first insert.
	ownerID := uuid.New()
	tenantID := uuid.New()
	modelID := uuid.New()
	models := &fakeModelRepo{byID: map[uuid.UUID]*entity.TerminologyModel{
		modelID: {ID: modelID, OwnerID: ownerID, Type: valueobject.TerminologyTypeDefault, Code: "M", Description: "Male"},
	}}
	values := newFakeValueRepo()
	store := New(models, values)

	active := valueobject.TerminologyClientStatusActive
	err := store.UpsertClient(context.Background(), UpsertClientInput{
		ValueID:   modelID,
		TenantID:  tenantID,
		SourceKey: "1",
		Status:    &active,
	})
	if err != nil {
		t.Fatalf("UpsertClient() error = %v", err)
	}

	client, _ := values.FindClientByTuple(context.Background(), modelID, tenantID, nil)
	if client.Status != valueobject.TerminologyClientStatusActive {
		t.Errorf("Status = %v, want Active to be honored on a fresh insert", client.Status)
	}
}

func TestUpsertClientSourceKeyChangeForcesPending(t *testing.T) {
	ownerID := uuid.New()
	tenantID := uuid.New()
	modelID := uuid.New()
	models := &fakeModelRepo{byID: map[uuid.UUID]*entity.TerminologyModel{
		modelID: {ID: modelID, OwnerID: ownerID, Type: valueobject.TerminologyTypeDefault, Code: "M", Description: "Male"},
	}}
	values := newFakeValueRepo()
	store := New(models, values)
	ctx := context.Background()

	active := valueobject.TerminologyClientStatusActive
	if err := store.UpsertClient(ctx, UpsertClientInput{ValueID: modelID, TenantID: tenantID, SourceKey: "1", Status: &active}); err != nil {
		t.Fatalf("initial UpsertClient() error = %v", err)
	}

	// Same tuple, different sourceKey: per the (valueId, tenantId,
	// connectionId) uniqueness invariant this must replace the prior
	// entry (not create a second one) and force status back to pending.
	if err := store.UpsertClient(ctx, UpsertClientInput{ValueID: modelID, TenantID: tenantID, SourceKey: "2", Status: &active}); err != nil {
		t.Fatalf("second UpsertClient() error = %v", err)
	}

	if len(values.byTuple) != 1 {
		t.Fatalf("expected exactly one client entry for the tuple, got %d", len(values.byTuple))
	}
	client, _ := values.FindClientByTuple(ctx, modelID, tenantID, nil)
	if client.SourceKey != "2" {
		t.Errorf("SourceKey = %v, want replaced to 2", client.SourceKey)
	}
	if client.Status != valueobject.TerminologyClientStatusPending {
		t.Errorf("Status = %v, want forced to Pending after a sourceKey change", client.Status)
	}
}

func TestUpsertClientCustomCodeChangeForcesPending(t *testing.T) {
	ownerID := uuid.New()
	tenantID := uuid.New()
	modelID := uuid.New()
	models := &fakeModelRepo{byID: map[uuid.UUID]*entity.TerminologyModel{
		modelID: {ID: modelID, OwnerID: ownerID, Type: valueobject.TerminologyTypeCustom, Code: "A", Description: "Alpha"},
	}}
	values := newFakeValueRepo()
	store := New(models, values)
	ctx := context.Background()

	active := valueobject.TerminologyClientStatusActive
	codeA := "A"
	if err := store.UpsertClient(ctx, UpsertClientInput{ValueID: modelID, TenantID: tenantID, SourceKey: "x", Status: &active, Code: &codeA}); err != nil {
		t.Fatalf("initial UpsertClient() error = %v", err)
	}

	codeB := "B"
	if err := store.UpsertClient(ctx, UpsertClientInput{ValueID: modelID, TenantID: tenantID, SourceKey: "x", Status: &active, Code: &codeB}); err != nil {
		t.Fatalf("second UpsertClient() error = %v", err)
	}

	client, _ := values.FindClientByTuple(ctx, modelID, tenantID, nil)
	if client.Status != valueobject.TerminologyClientStatusPending {
		t.Errorf("Status = %v, want forced to Pending after a CUSTOM code change", client.Status)
	}
	if client.Code != "B" {
		t.Errorf("Code = %v, want B", client.Code)
	}
}

func TestUpsertClientDefaultCodeChangeDoesNotForcePending(t *testing.T) {
	// Per spec.md §4.4, the "code changed" pending-force rule applies only
	// to CUSTOM models; DEFAULT models' code is not tenant-overridable in
	// a way that should flip status, since in.Code overriding a DEFAULT
	// model's own canonical code is not the documented path.
	ownerID := uuid.New()
	tenantID := uuid.New()
	modelID := uuid.New()
	models := &fakeModelRepo{byID: map[uuid.UUID]*entity.TerminologyModel{
		modelID: {ID: modelID, OwnerID: ownerID, Type: valueobject.TerminologyTypeDefault, Code: "M", Description: "Male"},
	}}
	values := newFakeValueRepo()
	store := New(models, values)
	ctx := context.Background()

	active := valueobject.TerminologyClientStatusActive
	if err := store.UpsertClient(ctx, UpsertClientInput{ValueID: modelID, TenantID: tenantID, SourceKey: "1", Status: &active}); err != nil {
		t.Fatalf("initial UpsertClient() error = %v", err)
	}
	codeF := "F"
	if err := store.UpsertClient(ctx, UpsertClientInput{ValueID: modelID, TenantID: tenantID, SourceKey: "1", Status: &active, Code: &codeF}); err != nil {
		t.Fatalf("second UpsertClient() error = %v", err)
	}

	client, _ := values.FindClientByTuple(ctx, modelID, tenantID, nil)
	if client.Status != valueobject.TerminologyClientStatusActive {
		t.Errorf("Status = %v, want left as Active (unchanged sourceKey, DEFAULT model)", client.Status)
	}
}

func TestUpsertClientDistinctConnectionsDoNotCollide(t *testing.T) {
	ownerID := uuid.New()
	tenantID := uuid.New()
	modelID := uuid.New()
	models := &fakeModelRepo{byID: map[uuid.UUID]*entity.TerminologyModel{
		modelID: {ID: modelID, OwnerID: ownerID, Type: valueobject.TerminologyTypeDefault, Code: "M", Description: "Male"},
	}}
	values := newFakeValueRepo()
	store := New(models, values)
	ctx := context.Background()

	connA := uuid.New()
	connB := uuid.New()

	if err := store.UpsertClient(ctx, UpsertClientInput{ValueID: modelID, TenantID: tenantID, ConnectionID: &connA, SourceKey: "a"}); err != nil {
		t.Fatalf("UpsertClient(connA) error = %v", err)
	}
	if err := store.UpsertClient(ctx, UpsertClientInput{ValueID: modelID, TenantID: tenantID, ConnectionID: &connB, SourceKey: "b"}); err != nil {
		t.Fatalf("UpsertClient(connB) error = %v", err)
	}

	if len(values.byTuple) != 2 {
		t.Fatalf("expected two independent client entries (one per connection), got %d", len(values.byTuple))
	}
}

func TestLookupReturnsCodeAndDescription(t *testing.T) {
	ownerID := uuid.New()
	tenantID := uuid.New()
	modelID := uuid.New()
	models := &fakeModelRepo{byID: map[uuid.UUID]*entity.TerminologyModel{
		modelID: {ID: modelID, OwnerID: ownerID, Type: valueobject.TerminologyTypeDefault, Code: "M", Description: "Male"},
	}}
	values := newFakeValueRepo()
	store := New(models, values)
	ctx := context.Background()

	if err := store.UpsertClient(ctx, UpsertClientInput{ValueID: modelID, TenantID: tenantID, SourceKey: "1"}); err != nil {
		t.Fatalf("UpsertClient() error = %v", err)
	}

	code, desc, found, err := store.Lookup(ctx, ownerID, tenantID, "1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !found || code != "M" || desc != "Male" {
		t.Errorf("Lookup() = (%q, %q, %v), want (M, Male, true)", code, desc, found)
	}

	if _, _, found, _ := store.Lookup(ctx, ownerID, tenantID, "missing"); found {
		t.Error("Lookup() should not find an unregistered sourceKey")
	}
}

func TestListForTenantFiltersCustomModelsByClientPresence(t *testing.T) {
	ownerID := uuid.New()
	tenantID := uuid.New()
	defaultID := uuid.New()
	customWithClientID := uuid.New()
	customWithoutClientID := uuid.New()

	models := &fakeModelRepo{byID: map[uuid.UUID]*entity.TerminologyModel{
		defaultID:             {ID: defaultID, OwnerID: ownerID, Type: valueobject.TerminologyTypeDefault, Code: "A"},
		customWithClientID:    {ID: customWithClientID, OwnerID: ownerID, Type: valueobject.TerminologyTypeCustom, Code: "B"},
		customWithoutClientID: {ID: customWithoutClientID, OwnerID: ownerID, Type: valueobject.TerminologyTypeCustom, Code: "C"},
	}}
	values := newFakeValueRepo()
	store := New(models, values)
	ctx := context.Background()

	if err := store.UpsertClient(ctx, UpsertClientInput{ValueID: customWithClientID, TenantID: tenantID, SourceKey: "x"}); err != nil {
		t.Fatalf("UpsertClient() error = %v", err)
	}

	out, err := store.ListForTenant(ctx, ownerID, tenantID)
	if err != nil {
		t.Fatalf("ListForTenant() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("ListForTenant() returned %d models, want 2 (default + custom-with-client)", len(out))
	}
	if out[0].Code != "A" || out[1].Code != "B" {
		t.Errorf("ListForTenant() = [%s, %s], want sorted [A, B]", out[0].Code, out[1].Code)
	}
}

func TestUpsertClientUnknownModelReturnsNotFound(t *testing.T) {
	models := &fakeModelRepo{byID: map[uuid.UUID]*entity.TerminologyModel{}}
	values := newFakeValueRepo()
	store := New(models, values)

	err := store.UpsertClient(context.Background(), UpsertClientInput{ValueID: uuid.New(), TenantID: uuid.New(), SourceKey: "1"})
	if err == nil {
		t.Error("UpsertClient() should fail for an unknown ValueID")
	}
}
