package auth

import (
	"fmt"
	"strings"

	gojwt "github.com/golang-jwt/jwt/v5"

	"sharing/pkg/types"
)

// PortalClaims are the classroom claims a portal puts into a custom token
type PortalClaims struct {
	Domain     string
	UserType   string
	UserID     string
	ClassHash  string
	OfferingID string
}

func portalClaimsFrom(claims gojwt.MapClaims) *PortalClaims {
	nested, ok := claims["claims"].(map[string]interface{})
	if !ok {
		return nil
	}
	return &PortalClaims{
		Domain:     stringClaim(claims["domain"]),
		UserType:   stringClaim(nested["user_type"]),
		UserID:     stringClaim(nested["user_id"]),
		ClassHash:  stringClaim(nested["class_hash"]),
		OfferingID: stringClaim(nested["offering_id"]),
	}
}

func (pc *PortalClaims) apply(claims gojwt.MapClaims) {
	claims["domain"] = pc.Domain
	claims["claims"] = map[string]interface{}{
		"user_type":   pc.UserType,
		"user_id":     pc.UserID,
		"class_hash":  pc.ClassHash,
		"offering_id": pc.OfferingID,
	}
}

// offering ids arrive as JSON numbers
func stringClaim(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// ClassUser is one person in a portal class roster
type ClassUser struct {
	ID        string `json:"id" yaml:"id"`
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
}

// DisplayName returns "First L."
func (u ClassUser) DisplayName() string {
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	if last == "" {
		return first
	}
	initial := []rune(last)[0]
	if first == "" {
		return string(initial) + "."
	}
	return fmt.Sprintf("%s %c.", first, initial)
}

// ClassInfo is the class roster document served by the portal
type ClassInfo struct {
	ClassHash string      `json:"class_hash" yaml:"class_hash"`
	Teachers  []ClassUser `json:"teachers" yaml:"teachers"`
	Students  []ClassUser `json:"students" yaml:"students"`
}

// UserMap builds the display-name map from the student roster
// Roster ids are portal user paths and are normalized like token user ids.
func (c *ClassInfo) UserMap() types.UserMap {
	m := types.UserMap{}
	if c == nil {
		return m
	}
	for _, s := range c.Students {
		id := types.NormalizePathSegment(s.ID)
		if id == "" {
			continue
		}
		m[id] = s.DisplayName()
	}
	return m
}

// ParamsFromToken builds authenticated session parameters from a portal token
// The token is decoded without verification; the store verifies it at sign-in.
func ParamsFromToken(token string, class *ClassInfo, pluginID, interactiveName string) (types.AuthenticatedParams, error) {
	identity, err := NewAuthenticator("").VerifyCustomToken(token)
	if err != nil {
		return types.AuthenticatedParams{}, err
	}
	pc := identity.Claims
	if pc == nil || pc.UserID == "" {
		return types.AuthenticatedParams{}, ErrMissingClaims
	}

	classHash := pc.ClassHash
	userMap := types.UserMap{}
	if class != nil {
		if class.ClassHash != "" {
			classHash = class.ClassHash
		}
		userMap = class.UserMap()
	}

	params := types.AuthenticatedParams{
		CredentialToken: token,
		Scope: types.ClassroomScope{
			Domain:     pc.Domain,
			ClassHash:  classHash,
			OfferingID: pc.OfferingID,
			PluginID:   pluginID,
		},
		CurrentUserID:   types.NormalizePathSegment(pc.UserID),
		UserMap:         userMap,
		InteractiveName: interactiveName,
	}
	if err := params.Validate(); err != nil {
		return types.AuthenticatedParams{}, err
	}
	return params, nil
}
