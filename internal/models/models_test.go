package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncTargetValidate(t *testing.T) {
	tests := []struct {
		name   string
		target SyncTarget
		valid  bool
	}{
		{"complete", SyncTarget{Owner: "octo", Repo: "specs", Branch: "main"}, true},
		{"no branch", SyncTarget{Owner: "octo", Repo: "specs"}, true},
		{"no owner", SyncTarget{Repo: "specs"}, false},
		{"no repo", SyncTarget{Owner: "octo"}, false},
		{"slash in repo", SyncTarget{Owner: "octo", Repo: "a/b"}, false},
		{"space in owner", SyncTarget{Owner: "oc to", Repo: "specs"}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.target.Validate()
			if test.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSyncTargetDefaults(t *testing.T) {
	target := SyncTarget{Owner: "octo", Repo: "specs"}.WithDefaults()
	assert.Equal(t, "octo/specs@main", target.String())

	target = SyncTarget{Owner: "octo", Repo: "specs", Branch: "dev"}.WithDefaults()
	assert.Equal(t, "dev", target.Branch)
}
