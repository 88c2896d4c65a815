package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveHistoryLimit(t *testing.T) {
	tests := []struct {
		name string
		s    Settings
		want int
	}{
		{"default", Default(), DefaultHistoryLimit},
		{"disabled uses ceiling", Settings{HistoryLimitEnabled: false, HistoryLimit: 3}, MaxHistory},
		{"clamped to ceiling", Settings{HistoryLimitEnabled: true, HistoryLimit: MaxHistory * 10}, MaxHistory},
		{"zero clamps to one", Settings{HistoryLimitEnabled: true, HistoryLimit: 0}, 1},
		{"explicit", Settings{HistoryLimitEnabled: true, HistoryLimit: 3}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.EffectiveHistoryLimit())
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())
	assert.ErrorIs(t, Settings{HistoryLimitEnabled: true, HistoryLimit: 0}.Validate(), ErrInvalid)
	assert.ErrorIs(t, Settings{ExcludedApps: []string{"  "}}.Validate(), ErrInvalid)
	assert.NoError(t, Settings{HistoryLimitEnabled: false, HistoryLimit: 0}.Validate())
}

func TestNormalize(t *testing.T) {
	s := Settings{
		HistoryLimitEnabled: true,
		HistoryLimit:        9999,
		ExcludedApps:        []string{"KeePass.exe", "keepass", `C:\Program Files\1Password\1Password.EXE`, ""},
	}.Normalize()
	assert.Equal(t, MaxHistory, s.HistoryLimit)
	assert.Equal(t, []string{"1password", "keepass"}, s.ExcludedApps)
}

func TestIsExcluded(t *testing.T) {
	s := Settings{ExcludedApps: []string{"KeePassXC.exe", "bitwarden"}}
	for _, app := range []string{"keepassxc", "KEEPASSXC.EXE", "/usr/bin/keepassxc", "Bitwarden.exe", `C:\x\bitwarden.exe`} {
		assert.True(t, s.IsExcluded(app), app)
	}
	for _, app := range []string{"", "code.exe", "keepass"} {
		assert.False(t, s.IsExcluded(app), app)
	}
}

func TestEqualAndClone(t *testing.T) {
	a := Settings{ExcludedApps: []string{"A.exe"}}
	b := Settings{ExcludedApps: []string{"a"}}
	assert.True(t, a.Equal(b))

	c := a.Clone()
	c.ExcludedApps[0] = "z"
	assert.Equal(t, "A.exe", a.ExcludedApps[0])
}
