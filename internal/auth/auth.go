package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

const (
	RoleInteractionWriter = "interaction_writer"
	RoleInteractionReader = "interaction_reader"
)

// Identity is the caller behind an API key.
type Identity struct {
	Principal string
	Roles     []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses "key:principal:role|role" entries separated by commas.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:principal:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		principal := strings.TrimSpace(parts[1])
		if key == "" || principal == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/principal", entry)
		}
		roles := make([]string, 0, 2)
		for _, role := range strings.Split(parts[2], "|") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
		}
		if _, exists := validator.keys[key]; exists {
			return nil, fmt.Errorf("duplicate static key entry for principal %q", principal)
		}
		slices.Sort(roles)
		validator.keys[key] = Identity{Principal: principal, Roles: roles}
	}
	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

// RequireRole passes when no identity is attached, which is the case when
// authentication is disabled.
func RequireRole(ctx context.Context, role string) error {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
