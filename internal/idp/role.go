package idp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"clientdesk.app/identity/internal/model"
)

// RoleLabel is a provider membership role. The provider sends it either as a
// bare string or as an object with slug and name.
type RoleLabel struct {
	Slug string `json:"slug,omitempty"`
	Name string `json:"name,omitempty"`
}

func (r *RoleLabel) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*r = RoleLabel{}
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = RoleLabel{Slug: s}
		return nil
	case len(b) > 0 && b[0] == '{':
		var obj struct {
			Slug string `json:"slug"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*r = RoleLabel{Slug: obj.Slug, Name: obj.Name}
		return nil
	}
	return fmt.Errorf("idp: role label must be a string or object, got %s", b)
}

func (r RoleLabel) IsZero() bool {
	return r.Slug == "" && r.Name == ""
}

// NormalizeRole maps a provider role label to a local role. An empty label
// yields nil; a label that names no known role maps to staff. Admin is only
// returned for an explicit admin label.
func NormalizeRole(label RoleLabel) *model.Role {
	if label.IsZero() {
		return nil
	}
	for _, candidate := range []string{label.Slug, label.Name} {
		switch model.Role(strings.ToLower(strings.TrimSpace(candidate))) {
		case model.RoleAdmin:
			return model.RolePtr(model.RoleAdmin)
		case model.RoleStaff, "member":
			return model.RolePtr(model.RoleStaff)
		case model.RoleClient:
			return model.RolePtr(model.RoleClient)
		}
	}
	return model.RolePtr(model.RoleStaff)
}
