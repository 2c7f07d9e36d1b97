package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexpertsdev/flexios-v1/internal/models"
)

func TestSetTarget(t *testing.T) {
	s := New()
	_, ok := s.Target()
	assert.False(t, ok)

	target, err := s.SetTarget(models.SyncTarget{Owner: "octo", Repo: "specs"})
	require.NoError(t, err)
	assert.Equal(t, "main", target.Branch)

	got, ok := s.Target()
	assert.True(t, ok)
	assert.Equal(t, target, got)

	_, err = s.SetTarget(models.SyncTarget{Owner: "octo"})
	assert.Error(t, err)
	got, _ = s.Target()
	assert.Equal(t, target, got, "an invalid target does not replace the current one")
}

func TestRegistryKeepsSessionsApart(t *testing.T) {
	r := NewRegistry(models.SyncTarget{Owner: "octo", Repo: "default"})

	a := r.Get("a")
	b := r.Get("b")
	assert.Same(t, a, r.Get("a"))

	_, err := a.SetTarget(models.SyncTarget{Owner: "octo", Repo: "other", Branch: "dev"})
	require.NoError(t, err)

	ta, _ := a.Target()
	tb, _ := b.Target()
	assert.Equal(t, "other", ta.Repo)
	assert.Equal(t, models.SyncTarget{Owner: "octo", Repo: "default", Branch: "main"}, tb)

	r.Close()
	ta, _ = r.Get("a").Target()
	assert.Equal(t, "default", ta.Repo)
}

func TestRegistryWithoutDefault(t *testing.T) {
	r := NewRegistry(models.SyncTarget{})
	_, ok := r.Get("").Target()
	assert.False(t, ok)
}

func TestRegistryIgnoresInvalidDefault(t *testing.T) {
	tests := []models.SyncTarget{
		{Owner: "oc to", Repo: "specs"},
		{Owner: "octo", Repo: "a/b"},
		{Owner: "octo"},
	}

	for _, test := range tests {
		r := NewRegistry(test)
		_, ok := r.Get("a").Target()
		assert.False(t, ok, "default %v", test)
	}
}
