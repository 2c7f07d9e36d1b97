package clone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexpertsdev/flexios-v1/internal/models"
)

func TestParseRepoArg(t *testing.T) {
	tests := []struct {
		arg      string
		exp      models.SyncTarget
		expError bool
	}{
		{arg: "octo/specs", exp: models.SyncTarget{Owner: "octo", Repo: "specs"}},
		{arg: "octo/specs@dev", exp: models.SyncTarget{Owner: "octo", Repo: "specs", Branch: "dev"}},
		{arg: "https://github.com/octo/specs", exp: models.SyncTarget{Owner: "octo", Repo: "specs"}},
		{arg: "https://github.com/octo/specs.git", exp: models.SyncTarget{Owner: "octo", Repo: "specs"}},
		{arg: "https://github.com/octo/specs/", exp: models.SyncTarget{Owner: "octo", Repo: "specs"}},
		{
			arg: "https://github.com/octo/specs/tree/feature/login",
			exp: models.SyncTarget{Owner: "octo", Repo: "specs", Branch: "feature/login"},
		},
		{arg: "specs", expError: true},
		{arg: "octo/", expError: true},
		{arg: "/specs", expError: true},
		{arg: "https://github.com/octo", expError: true},
		{arg: "https://github.com/octo/specs/issues", expError: true},
	}

	for _, test := range tests {
		t.Run(test.arg, func(t *testing.T) {
			got, err := parseRepoArg(test.arg)
			if test.expError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.exp, got)
		})
	}
}
