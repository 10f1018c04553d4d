package session

import (
	"golang.org/x/oauth2"
)

// Role is a named role assigned to a portal user.
type Role struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	Name string `json:"name" yaml:"name"`
}

// Identity is the cached profile of the logged-in user.
type Identity struct {
	ID          string   `json:"id" yaml:"id"`
	Email       string   `json:"email" yaml:"email"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Roles       []Role   `json:"roles" yaml:"roles"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// Normalize guarantees that Roles and Permissions are non-nil so that
// consumers can range over them and serialize them as empty lists.
func (i *Identity) Normalize() *Identity {
	if i == nil {
		return nil
	}
	if i.Roles == nil {
		i.Roles = []Role{}
	}
	if i.Permissions == nil {
		i.Permissions = []string{}
	}
	return i
}

// HasPermission reports whether the identity carries the named permission.
func (i *Identity) HasPermission(name string) bool {
	if i == nil {
		return false
	}
	for _, p := range i.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// HasRole reports whether the identity carries a role with the given name.
func (i *Identity) HasRole(name string) bool {
	if i == nil {
		return false
	}
	for _, r := range i.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Store is the persisted holder of the current credential pair and the
// cached identity. It is shared by every component of one Manager and, for
// FileStore, by every process pointed at the same directory.
//
// Get returns (nil, nil) when nothing is stored. Set replaces both halves of
// the pair in one write; a reader never observes a new access credential
// next to an old refresh credential. Subscribe registers a callback that
// fires whenever the stored pair may have changed, including changes made
// by other processes.
type Store interface {
	Get() (*oauth2.Token, error)
	Set(token *oauth2.Token) error
	Clear() error

	Identity() (*Identity, error)
	SetIdentity(identity *Identity) error

	Subscribe(onChange func()) (unsubscribe func(), err error)
}

// cloneToken returns a copy so that callers cannot mutate stored state.
func cloneToken(token *oauth2.Token) *oauth2.Token {
	if token == nil {
		return nil
	}
	out := &oauth2.Token{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		ExpiresIn:    token.ExpiresIn,
	}
	return out
}

func cloneIdentity(identity *Identity) *Identity {
	if identity == nil {
		return nil
	}
	out := *identity
	out.Roles = append([]Role(nil), identity.Roles...)
	out.Permissions = append([]string(nil), identity.Permissions...)
	return out.Normalize()
}

// hasAccess reports whether token carries an access credential.
func hasAccess(token *oauth2.Token) bool {
	return token != nil && token.AccessToken != ""
}
