package util

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexpertsdev/flexios-v1/internal/config"
	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.User
		flags    TargetFlags
		exp      models.SyncTarget
		expError bool
	}{
		{
			name: "config only",
			cfg:  config.User{Owner: "octo", Repo: "specs"},
			exp:  models.SyncTarget{Owner: "octo", Repo: "specs", Branch: "main"},
		},
		{
			name:  "flags override",
			cfg:   config.User{Owner: "octo", Repo: "specs", Branch: "dev"},
			flags: TargetFlags{Repo: "other", Branch: "release"},
			exp:   models.SyncTarget{Owner: "octo", Repo: "other", Branch: "release"},
		},
		{
			name:     "missing repo",
			cfg:      config.User{Owner: "octo"},
			expError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			target, err := test.flags.Resolve(test.cfg)
			if test.expError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.exp, target)
		})
	}
}

func TestHandleFatalError(t *testing.T) {
	var out bytes.Buffer
	var code int
	stderr = &out
	exit = func(c int) { code = c }

	HandleFatalError(syncerr.WrapError(syncerr.ErrRefConflict, "advance ref"))
	assert.Equal(t, 1, code)
	assert.Equal(t, syncerr.Summary(syncerr.ErrRefConflict)+"\n", out.String())

	out.Reset()
	HandleFatalError(errors.New("boom"))
	assert.Equal(t, "boom\n", out.String())
}

func TestRemoteRequiresToken(t *testing.T) {
	env := &Env{Config: config.User{}}
	_, err := env.Remote()
	assert.True(t, errors.Is(err, syncerr.ErrAuth))
	assert.Contains(t, err.Error(), config.TokenEnv)
}
