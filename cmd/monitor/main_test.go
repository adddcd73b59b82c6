package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"imovel-monitor/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSitesPrintsBuiltInAgencies(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")
	out, err := execute(t, "sites", "--config", missing)
	require.NoError(t, err)

	var doc struct {
		Sites []config.SiteConfig `yaml:"sites"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Sites, 4)
	assert.Equal(t, "Plaza Chapecó", doc.Sites[0].Agency)
	assert.Equal(t, "Chapecó", doc.Sites[0].City)
}

func TestRunRejectsUnknownDealType(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")
	_, err := execute(t, "run", "--dry-run", "--deal-type", "permuta", "--config", missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --deal-type")
}
