package credentials_test

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"midjourney-adapter/internal/credentials"
)

func TestResolve_GoAPIAliases(t *testing.T) {
	r := credentials.NewResolver("goapi", credentials.GoAPIFields, credentials.Credential{}, nil)

	for _, field := range credentials.GoAPIFields.Primary {
		t.Run(field, func(t *testing.T) {
			cred, err := r.Resolve(`{"` + field + `":"k-123"}`)
			require.NoError(t, err)
			assert.Equal(t, "k-123", cred.APIKeyOrAppID)
			assert.Empty(t, cred.Secret)
		})
	}
}

func TestResolve_FirstAliasWins(t *testing.T) {
	r := credentials.NewResolver("goapi", credentials.GoAPIFields, credentials.Credential{}, nil)

	cred, err := r.Resolve(`{"key":"later","api_key":"first"}`)
	require.NoError(t, err)
	assert.Equal(t, "first", cred.APIKeyOrAppID)
}

func TestResolve_YouchuanAliases(t *testing.T) {
	r := credentials.NewResolver("youchuan", credentials.YouchuanFields, credentials.Credential{}, nil)

	for i, app := range credentials.YouchuanFields.Primary {
		secret := credentials.YouchuanFields.Secret[i]
		t.Run(app+"/"+secret, func(t *testing.T) {
			cred, err := r.Resolve(`{"` + app + `":"app-1","` + secret + `":"s3cr3t"}`)
			require.NoError(t, err)
			assert.Equal(t, "app-1", cred.APIKeyOrAppID)
			assert.Equal(t, "s3cr3t", cred.Secret)
		})
	}
}

func TestResolve_YouchuanMissingSecret(t *testing.T) {
	defaults := credentials.Credential{APIKeyOrAppID: "default-app", Secret: "default-secret"}
	r := credentials.NewResolver("youchuan", credentials.YouchuanFields, defaults, nil)

	_, err := r.Resolve(`{"app_id":"app-1"}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, credentials.ErrMissing))
}

func TestResolve_InlineWinsOverDefaults(t *testing.T) {
	r := credentials.NewResolver("goapi", credentials.GoAPIFields, credentials.Credential{APIKeyOrAppID: "default"}, nil)

	cred, err := r.Resolve(`{"apiKey":"inline"}`)
	require.NoError(t, err)
	assert.Equal(t, "inline", cred.APIKeyOrAppID)
}

func TestResolve_Defaults(t *testing.T) {
	r := credentials.NewResolver("goapi", credentials.GoAPIFields, credentials.Credential{APIKeyOrAppID: "default"}, nil)

	cred, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "default", cred.APIKeyOrAppID)

	empty := credentials.NewResolver("goapi", credentials.GoAPIFields, credentials.Credential{}, nil)
	_, err = empty.Resolve("   ")
	assert.ErrorIs(t, err, credentials.ErrMissing)
}

func TestResolve_InlineWithoutUsableField(t *testing.T) {
	r := credentials.NewResolver("goapi", credentials.GoAPIFields, credentials.Credential{APIKeyOrAppID: "default"}, nil)

	_, err := r.Resolve(`{"token":"abc"}`)
	assert.ErrorIs(t, err, credentials.ErrMissing)
}

func TestResolve_ParseError(t *testing.T) {
	r := credentials.NewResolver("goapi", credentials.GoAPIFields, credentials.Credential{APIKeyOrAppID: "default"}, nil)

	for _, blob := range []string{"{not json", "%%%", `["api_key"]`, "null"} {
		_, err := r.Resolve(blob)
		assert.ErrorIs(t, err, credentials.ErrParse, blob)
	}
}

func TestJSONDecoder_Base64AndScalars(t *testing.T) {
	blob := base64.StdEncoding.EncodeToString([]byte(`{"app_id":12345,"secret":"s","debug":true}`))

	values, err := credentials.JSONDecoder{}.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, "12345", values["app_id"])
	assert.Equal(t, "s", values["secret"])
	assert.Equal(t, "true", values["debug"])

	urlBlob := base64.RawURLEncoding.EncodeToString([]byte(`{"api_key":"k?>"}`))
	values, err = credentials.JSONDecoder{}.Decode(urlBlob)
	require.NoError(t, err)
	assert.Equal(t, "k?>", values["api_key"])
}

func TestCredential_StringMasksSecrets(t *testing.T) {
	c := credentials.Credential{APIKeyOrAppID: "abcdefgh", Secret: "topsecret"}
	s := c.String()
	assert.NotContains(t, s, "abcdefgh")
	assert.NotContains(t, s, "topsecret")
}
