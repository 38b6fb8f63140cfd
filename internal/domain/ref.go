package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var errEmptyProductRef = errors.New("product reference has no id")

// ProductRef accepts either a bare product id or an expanded product object
// ({"_id": ..., "name": ...} or {"id": ...}).
type ProductRef struct {
	ID      string
	Product *Product
}

func RefTo(id string) ProductRef {
	return ProductRef{ID: id}
}

func (r ProductRef) Expanded() bool {
	return r.Product != nil
}

func (r *ProductRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ProductRef{}
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = ProductRef{ID: strings.TrimSpace(id)}
		return nil
	}

	var expanded struct {
		LegacyID string `json:"_id"`
		ID       string `json:"id"`
		SKU      string `json:"sku"`
		Name     string `json:"name"`
		Unit     string `json:"unit"`
	}
	if err := json.Unmarshal(data, &expanded); err != nil {
		return err
	}
	id := strings.TrimSpace(expanded.ID)
	if id == "" {
		id = strings.TrimSpace(expanded.LegacyID)
	}
	if id == "" {
		return errEmptyProductRef
	}
	*r = ProductRef{
		ID:      id,
		Product: &Product{ID: id, SKU: expanded.SKU, Name: expanded.Name, Unit: expanded.Unit},
	}
	return nil
}

func (r ProductRef) MarshalJSON() ([]byte, error) {
	if r.Product != nil {
		return json.Marshal(r.Product)
	}
	return json.Marshal(r.ID)
}
