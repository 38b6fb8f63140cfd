package domain

import (
	"encoding/json"
	"testing"
)

func TestProductRefAcceptsIDOrExpandedObject(t *testing.T) {
	var input struct {
		Items []struct {
			ProductID ProductRef `json:"product_id"`
		} `json:"items"`
	}
	payload := `{"items":[
		{"product_id":" prd-mooncake "},
		{"product_id":{"_id":"prd-sponge","name":"Sponge Cake"}},
		{"product_id":{"id":"prd-tart","sku":"TART-01"}}
	]}`
	if err := json.Unmarshal([]byte(payload), &input); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"prd-mooncake", "prd-sponge", "prd-tart"}
	for i, id := range want {
		if input.Items[i].ProductID.ID != id {
			t.Fatalf("item %d: expected %s, got %q", i, id, input.Items[i].ProductID.ID)
		}
	}
	if input.Items[0].ProductID.Expanded() {
		t.Fatalf("bare id should not be expanded")
	}
	if !input.Items[1].ProductID.Expanded() || input.Items[1].ProductID.Product.Name != "Sponge Cake" {
		t.Fatalf("expected expanded product, got %+v", input.Items[1].ProductID.Product)
	}
}

func TestProductRefRejectsObjectWithoutID(t *testing.T) {
	var ref ProductRef
	if err := json.Unmarshal([]byte(`{"name":"Nameless"}`), &ref); err == nil {
		t.Fatalf("expected error for object without id")
	}
}

func TestProductRefMarshalsBackToID(t *testing.T) {
	raw, err := json.Marshal(RefTo("prd-mooncake"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"prd-mooncake"` {
		t.Fatalf("expected bare id, got %s", raw)
	}
}
