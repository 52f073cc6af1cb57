package eval

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePkl(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("pkl"); err != nil {
		t.Skip("pkl binary not on PATH")
	}
}

func TestEvaluator_Resolve(t *testing.T) {
	e := NewEvaluator("/work")
	assert.Equal(t, "/work/deploy.pkl", e.Resolve("deploy.pkl"))
	assert.Equal(t, "/abs/deploy.pkl", e.Resolve("/abs/deploy.pkl"))
	assert.Equal(t, "deploy.pkl", NewEvaluator("").Resolve("deploy.pkl"))
}

func TestEvaluator_EvaluateInto(t *testing.T) {
	requirePkl(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.pkl"), []byte(`
name = "web"
port = read("prop:port").toInt()
`), 0644))

	var out struct {
		Name string `pkl:"name"`
		Port int    `pkl:"port"`
	}
	err := NewEvaluator(dir).EvaluateInto(context.Background(), "m.pkl", map[string]string{"port": "8080"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "web", out.Name)
	assert.Equal(t, 8080, out.Port)
}

func TestEvaluator_LoadStateMissingFile(t *testing.T) {
	requirePkl(t)

	_, err := NewEvaluator(t.TempDir()).LoadState(context.Background(), "absent.pkl")
	assert.Error(t, err)
}
