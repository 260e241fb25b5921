package conversation

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wfsantos/agendabot/pkg/logging"
)

// fakeDynamo keeps items in memory keyed by tenantId|phone.
type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
	fail  error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	tenant, _ := item["tenantId"].(*types.AttributeValueMemberS)
	phone, _ := item["phone"].(*types.AttributeValueMemberS)
	if tenant == nil || phone == nil {
		return ""
	}
	return tenant.Value + "|" + phone.Value
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	item, ok := f.items[itemKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func TestStoreGetAbsentRowIsIdle(t *testing.T) {
	store := NewStore(newFakeDynamo(), "conversations", logging.New("error"))
	conv, err := store.Get(context.Background(), "t1", "5511987654321")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if conv.State != StateIdle || conv.TenantID != "t1" || conv.Phone != "5511987654321" {
		t.Fatalf("unexpected fresh row: %+v", conv)
	}
	if conv.LastMessageID != "" || conv.Slots.ServiceID != "" {
		t.Fatalf("fresh row must be empty: %+v", conv)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(newFakeDynamo(), "conversations", logging.New("error"))
	ctx := context.Background()

	conv := &Conversation{
		TenantID:      "t1",
		Phone:         "5511987654321",
		State:         StateAwaitTime,
		LastMessageID: "msg-1",
		Slots: Slots{
			ServiceID:   "svc1",
			ServiceName: "Corte Masculino",
			Capacity:    1,
			Quantity:    1,
			Date:        "2025-12-25",
		},
	}
	if err := store.Put(ctx, conv); err != nil {
		t.Fatalf("put: %v", err)
	}
	if conv.UpdatedAt == "" || conv.ExpiresAt == 0 {
		t.Fatalf("put must stamp timestamps: %+v", conv)
	}

	got, err := store.Get(ctx, "t1", "5511987654321")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateAwaitTime || got.LastMessageID != "msg-1" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Slots.ServiceName != "Corte Masculino" || got.Slots.Date != "2025-12-25" {
		t.Fatalf("slots lost in round trip: %+v", got.Slots)
	}
}

func TestStoreLastWriteWins(t *testing.T) {
	store := NewStore(newFakeDynamo(), "conversations", logging.New("error"))
	ctx := context.Background()

	first := &Conversation{TenantID: "t1", Phone: "p1", State: StateAwaitDate}
	second := &Conversation{TenantID: "t1", Phone: "p1", State: StateAwaitConfirm}
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("put second: %v", err)
	}
	got, err := store.Get(ctx, "t1", "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateAwaitConfirm {
		t.Fatalf("expected later write to win, got %s", got.State)
	}
}
