package stack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionSecret(t *testing.T) {
	s, err := ProvisionSecret("pgsql_secret", GenerationPolicy{Length: 32, ExcludeCharacters: `"@/\`, Username: "dbadmin"})
	require.NoError(t, err)

	res := s.Resource()
	assert.Equal(t, ir.TypeSecret, res.Type)
	assert.Equal(t, map[string]any{"length": 32, "excludeCharacters": `"@/\`, "username": "dbadmin"}, res.Properties["generate"])
	assert.NotContains(t, res.Properties, "value")
	assert.NotContains(t, res.Properties, "secretString")
	assert.Equal(t, "ptr://aws:SecretsManager.Secret/pgsql_secret/arnPattern", s.ARNPattern())
}

func TestProvisionSecret_Invalid(t *testing.T) {
	_, err := ProvisionSecret("", GenerationPolicy{Length: 32, Username: "dbadmin"})
	assert.True(t, errdefs.IsConfiguration(err))
	_, err = ProvisionSecret("db", GenerationPolicy{Length: 8, Username: "dbadmin"})
	assert.True(t, errdefs.IsConfiguration(err))
	_, err = ProvisionSecret("db", GenerationPolicy{Length: 32})
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestSecretHandle_NeverRenders(t *testing.T) {
	s, err := ProvisionSecret("pgsql_secret", GenerationPolicy{Length: 32, Username: "dbadmin"})
	require.NoError(t, err)
	h := s.Materialize()
	require.True(t, h.Valid())

	for _, rendered := range []string{
		fmt.Sprint(h),
		fmt.Sprintf("%v %+v %#v %s", h, h, h, h),
	} {
		assert.NotContains(t, rendered, "pgsql_secret")
		assert.Contains(t, rendered, "redacted")
	}

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("creating database", "credential", h)
	assert.NotContains(t, buf.String(), "pgsql_secret")

	assert.False(t, SecretHandle{}.Valid())
}
