package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/burstfit"
)

func parse(t *testing.T, text string) ([]Entry, error) {
	t.Helper()
	return NewParser().Parse(strings.NewReader(text))
}

func TestParse(t *testing.T) {
	entries, err := parse(t, `# shot 12
C1pump00000.csv, PUMP, 1.5e-8
C2refl00000.csv,REFLECTED

C3trans00000.csv, TRANSMITTED,
`)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, 2, entries[0].Line)
	assert.Equal(t, burstfit.PUMP, entries[0].Type)
	require.NotNil(t, entries[0].T0)
	assert.Equal(t, 1.5e-8, *entries[0].T0)
	assert.Equal(t, "C1pump00000", entries[0].Name())

	assert.Equal(t, burstfit.REFLECTED, entries[1].Type)
	assert.Nil(t, entries[1].T0)
	assert.Nil(t, entries[2].T0)
	assert.Equal(t, 5, entries[2].Line)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"missing type", "a.csv, PUMP\nb.csv\n", "line 2"},
		{"empty type", "a.csv, ,1e-9\n", "line 1"},
		{"lowercase type", "a.csv, pump\n", "line 1"},
		{"bad t0", "a.csv, PUMP, soon\n", "line 1"},
		{"too many columns", "a.csv, PUMP, 1, 2\n", "line 1"},
		{"empty", "# nothing\n", "no traces"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.text)
			require.ErrorIs(t, err, burstfit.ErrInvalidManifestRow)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.txt")
	require.NoError(t, os.WriteFile(path, []byte("a.csv,PUMP\n"), 0o644))

	entries, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = ParseFile(filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorIs(t, err, burstfit.ErrInvalidConfig)
}

func ptr(v float64) *float64 { return &v }

func TestResolveStartTimes(t *testing.T) {
	withT0 := []Entry{
		{Line: 1, Filename: "a.csv", Type: burstfit.PUMP, T0: ptr(1e-9)},
		{Line: 2, Filename: "b.csv", Type: burstfit.REFLECTED, T0: ptr(2e-9)},
	}
	without := []Entry{
		{Line: 1, Filename: "a.csv", Type: burstfit.PUMP},
		{Line: 2, Filename: "b.csv", Type: burstfit.REFLECTED},
	}

	t.Run("manifest", func(t *testing.T) {
		jobs, err := ResolveStartTimes(withT0, "data", 8, StartTimePolicy{FromManifest: true})
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, 2e-9, jobs[1].T0)
		assert.Equal(t, 1, jobs[1].Index)
		assert.Equal(t, "b", jobs[1].Name)
		assert.Equal(t, filepath.Join("data", "b.csv"), jobs[1].Path)
		assert.Equal(t, 8, jobs[1].Pulses)
	})

	t.Run("command line", func(t *testing.T) {
		jobs, err := ResolveStartTimes(without, "data", 8, StartTimePolicy{CommandLine: ptr(5e-9)})
		require.NoError(t, err)
		assert.Equal(t, 5e-9, jobs[0].T0)
		assert.Equal(t, 5e-9, jobs[1].T0)
	})

	errTests := []struct {
		name    string
		entries []Entry
		policy  StartTimePolicy
		want    error
	}{
		{"both sources", withT0, StartTimePolicy{FromManifest: true, CommandLine: ptr(1)}, burstfit.ErrAmbiguousStartTime},
		{"no source", without, StartTimePolicy{}, burstfit.ErrMissingStartTime},
		{"row lacks t0", without, StartTimePolicy{FromManifest: true}, burstfit.ErrMissingStartTime},
		{"row carries t0", withT0, StartTimePolicy{CommandLine: ptr(1)}, burstfit.ErrAmbiguousStartTime},
		{"duplicate name", []Entry{without[0], without[0]}, StartTimePolicy{CommandLine: ptr(1)}, burstfit.ErrInvalidManifestRow},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveStartTimes(tt.entries, "data", 4, tt.policy)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, burstfit.KindConfig, burstfit.Classify(err))
		})
	}

	_, err := ResolveStartTimes(without, "data", 0, StartTimePolicy{CommandLine: ptr(1)})
	assert.ErrorIs(t, err, burstfit.ErrInvalidConfig)
}
