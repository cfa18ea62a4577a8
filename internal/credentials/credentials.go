// Package credentials resolves the provider credential for one request from
// an optional inline blob and the configured defaults.
package credentials

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissing means neither the inline blob nor the defaults carry a
	// usable credential.
	ErrMissing = errors.New("credential not configured")
	// ErrParse means the inline blob could not be decoded.
	ErrParse = errors.New("credential could not be parsed")
)

// Credential is what a provider needs to authenticate. Secret is empty for
// single-key providers.
type Credential struct {
	APIKeyOrAppID string
	Secret        string
}

// String masks both values so a Credential is safe to log.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{key=%s, secret=%s}", mask(c.APIKeyOrAppID), mask(c.Secret))
}

func mask(v string) string {
	if v == "" {
		return "<empty>"
	}
	if len(v) <= 4 {
		return "****"
	}
	return v[:2] + "****" + v[len(v)-2:]
}

// Fields lists the accepted property names of an inline blob, in lookup order.
type Fields struct {
	Primary        []string
	Secret         []string
	SecretRequired bool
}

var (
	GoAPIFields = Fields{
		Primary: []string{"api_key", "apiKey", "apikey", "x-api-key", "key"},
	}
	YouchuanFields = Fields{
		Primary:        []string{"app_id", "appId", "appid", "app", "x-youchuan-app"},
		Secret:         []string{"secret", "app_secret", "appSecret", "secret_key", "x-youchuan-secret"},
		SecretRequired: true,
	}
)

func (f Fields) lookup(values map[string]string, names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(values[name]); v != "" {
			return v
		}
	}
	return ""
}

// Resolver picks the credential for one provider.
type Resolver struct {
	provider string
	fields   Fields
	defaults Credential
	decoder  Decoder
}

// NewResolver builds a Resolver. A nil decoder selects JSONDecoder.
func NewResolver(provider string, fields Fields, defaults Credential, decoder Decoder) *Resolver {
	if decoder == nil {
		decoder = JSONDecoder{}
	}
	return &Resolver{
		provider: provider,
		fields:   fields,
		defaults: defaults,
		decoder:  decoder,
	}
}

// Resolve returns the inline credential when inline is non-empty, the
// configured defaults otherwise. An inline blob that decodes but lacks the
// required fields does not fall back to the defaults.
func (r *Resolver) Resolve(inline string) (Credential, error) {
	if strings.TrimSpace(inline) == "" {
		return r.fromDefaults()
	}

	values, err := r.decoder.Decode(inline)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %s: %v", ErrParse, r.provider, err)
	}

	cred := Credential{
		APIKeyOrAppID: r.fields.lookup(values, r.fields.Primary),
		Secret:        r.fields.lookup(values, r.fields.Secret),
	}
	if cred.APIKeyOrAppID == "" {
		return Credential{}, fmt.Errorf("%w: %s credential has none of the fields %s",
			ErrMissing, r.provider, strings.Join(r.fields.Primary, ", "))
	}
	if r.fields.SecretRequired && cred.Secret == "" {
		return Credential{}, fmt.Errorf("%w: %s credential has none of the fields %s",
			ErrMissing, r.provider, strings.Join(r.fields.Secret, ", "))
	}
	return cred, nil
}

func (r *Resolver) fromDefaults() (Credential, error) {
	if r.defaults.APIKeyOrAppID == "" {
		return Credential{}, fmt.Errorf("%w: no %s credential provided and no default configured", ErrMissing, r.provider)
	}
	if r.fields.SecretRequired && r.defaults.Secret == "" {
		return Credential{}, fmt.Errorf("%w: default %s credential has no secret", ErrMissing, r.provider)
	}
	return r.defaults, nil
}
