package marketing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Asset is a product, audience or expert. Columns other than the common
// ones vary per kind and are kept in Attributes; on the wire they are
// flattened next to the common fields.
type Asset struct {
	ID         string
	UserID     string
	Kind       AssetKind
	Name       string
	Attributes map[string]any
	CreatedAt  time.Time
}

var assetColumns = map[string]struct{}{
	"id": {}, "user_id": {}, "name": {}, "created_at": {},
}

// Attr returns a string attribute or "".
func (a Asset) Attr(name string) string {
	v, ok := a.Attributes[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (a Asset) validate() error {
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: unknown asset kind %q", ErrInvalidInput, a.Kind)
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: asset name is required", ErrInvalidInput)
	}
	return nil
}

func (a Asset) MarshalJSON() ([]byte, error) {
	row := make(map[string]any, len(a.Attributes)+4)
	for k, v := range a.Attributes {
		if _, reserved := assetColumns[k]; reserved {
			continue
		}
		row[k] = v
	}
	if a.ID != "" {
		row["id"] = a.ID
	}
	if a.UserID != "" {
		row["user_id"] = a.UserID
	}
	row["name"] = a.Name
	if !a.CreatedAt.IsZero() {
		row["created_at"] = a.CreatedAt
	}
	return json.Marshal(row)
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var row map[string]json.RawMessage
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	out := Asset{Kind: a.Kind}
	for k, raw := range row {
		var err error
		switch k {
		case "id":
			err = json.Unmarshal(raw, &out.ID)
		case "user_id":
			err = json.Unmarshal(raw, &out.UserID)
		case "name":
			err = json.Unmarshal(raw, &out.Name)
		case "created_at":
			err = json.Unmarshal(raw, &out.CreatedAt)
		default:
			var v any
			if err = json.Unmarshal(raw, &v); err == nil {
				if out.Attributes == nil {
					out.Attributes = make(map[string]any)
				}
				out.Attributes[k] = v
			}
		}
		if err != nil {
			return fmt.Errorf("marketing: asset field %s: %w", k, err)
		}
	}
	*a = out
	return nil
}

// SplitTags turns a comma separated form value into a tag list, dropping
// blanks.
func SplitTags(s string) []string {
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// WithoutAsset returns list minus the asset with id.
func WithoutAsset(list []Asset, id string) []Asset {
	out := make([]Asset, 0, len(list))
	for _, a := range list {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}
