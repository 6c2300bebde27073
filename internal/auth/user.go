package auth

import (
	"encoding/json"
	"errors"
	"math"
)

// DefaultRole is shown when neither the response nor the token names a role.
const DefaultRole = "Usuário"

// Credentials is the body of the remote authenticate call.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ConID    *int   `json:"conId,omitempty"`
}

// User is the signed-in profile. Username and Role are the fields the console
// relies on; everything else the issuer sends is kept verbatim in Extra and is
// not validated.
type User struct {
	Username string
	Role     string
	Exp      *int64
	Extra    map[string]any
}

var errNullUser = errors.New("user profile is null")

// Claim returns an extension field.
func (u *User) Claim(key string) (any, bool) {
	if u == nil || u.Extra == nil {
		return nil, false
	}
	v, ok := u.Extra[key]
	return v, ok
}

// MarshalJSON writes the profile as one flat object.
func (u User) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(u.Extra)+3)
	for k, v := range u.Extra {
		m[k] = v
	}
	m["username"] = u.Username
	if _, raw := u.Extra["role"]; !raw && u.Role != "" {
		m["role"] = u.Role
	}
	if u.Exp != nil {
		m["exp"] = *u.Exp
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the flat object written by MarshalJSON.
func (u *User) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if m == nil {
		return errNullUser
	}
	*u = userFromMap(m)
	return nil
}

// userFromMap lifts the core fields out of m; the rest goes to Extra. A role
// that is not a string (an array of roles, say) stays in Extra and Role falls
// back to DefaultRole.
func userFromMap(m map[string]any) User {
	var u User
	u.Username, _ = m["username"].(string)
	role, isString := m["role"].(string)
	u.Role = role
	if exp, ok := numeric(m["exp"]); ok {
		u.Exp = &exp
	}
	for k, v := range m {
		switch k {
		case "username", "exp":
			continue
		case "role":
			if isString {
				continue
			}
		}
		if u.Extra == nil {
			u.Extra = make(map[string]any)
		}
		u.Extra[k] = v
	}
	if _, raw := u.Extra["role"]; raw && u.Role == "" {
		u.Role = DefaultRole
	}
	return u
}

func numeric(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
