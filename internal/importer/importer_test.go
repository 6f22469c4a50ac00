package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitushen/langdonboard/internal/models"
	"github.com/hitushen/langdonboard/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestCSV(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	input := strings.Join([]string{
		"asset_type,name,notes",
		"URL,https://Shop.Example.com/path,main",
		"WILDCARD,*.api.example.com,",
		"WILDCARD,example.*,",
		"GOOGLE_PLAY_APP_ID,com.example.app,",
		"IOS_APP_ID,123456,",
		"URL,bad host!,",
		"URL",
	}, "\n")

	report, err := New(st).CSV(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Domains)
	assert.Equal(t, 1, report.AndroidApps)
	assert.Equal(t, 3, report.Skipped)
	require.Len(t, report.Problems, 3)
	assert.Contains(t, report.Problems[0], "line 6")
	assert.Contains(t, report.Problems[0], ErrUnsupportedAssetType.Error())

	got, err := st.ListPromising(ctx, models.FindingDomain, 0, 10)
	require.NoError(t, err)
	var names []string
	for _, f := range got {
		names = append(names, f.Label)
	}
	assert.Equal(t, []string{"shop.example.com", "api.example.com", "example"}, names)
}

func TestCSVNeedsColumns(t *testing.T) {
	_, err := New(newStore(t)).CSV(context.Background(), strings.NewReader("type,value\nURL,a.example\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = New(newStore(t)).CSV(context.Background(), strings.NewReader(""))
	assert.Error(t, err)
}

func TestYAMLSeed(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	f, err := os.Open(filepath.Join("testdata", "seed.yaml"))
	require.NoError(t, err)
	defer f.Close()

	report, err := New(st).YAML(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Domains)
	assert.Equal(t, 1, report.AndroidApps)
	assert.Equal(t, 2, report.IPAddresses)
	assert.Equal(t, 2, report.Technologies)
	assert.Equal(t, 1, report.Vulnerabilities)
	assert.Equal(t, 2, report.UsedPorts)
	assert.Equal(t, 1, report.WebDirectories)
	assert.Equal(t, 5, report.Skipped, report.Problems)

	o, err := st.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.OverviewStatistics{
		AndroidApps:     1,
		Domains:         2,
		HTTPCookies:     1,
		HTTPHeaders:     1,
		IPAddresses:     2,
		Technologies:    2,
		UsedPorts:       2,
		Vulnerabilities: 1,
		WebDirectories:  1,
	}, o)

	counts, err := st.CountPromising(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.PromisingCounts{Domains: 1, Technologies: 1, UsedPorts: 1, Vulnerabilities: 1, WebDirectories: 1}, counts)
}

func TestYAMLRejectsUnknownFields(t *testing.T) {
	_, err := New(newStore(t)).YAML(context.Background(), strings.NewReader("hosts: [a]\n"))
	assert.Error(t, err)

	report, err := New(newStore(t)).YAML(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, report.Skipped)
}
