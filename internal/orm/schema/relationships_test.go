package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBackpop(t *testing.T) {
	t.Run("single candidate wins regardless of name", func(t *testing.T) {
		r := NewRegistry()
		team, err := r.MetadataFor(Team{})
		require.NoError(t, err)

		edge, err := r.ResolveBackpop(team, "athletes")
		require.NoError(t, err)
		assert.Equal(t, "Athlete", edge.Target.Name)
		assert.Equal(t, "team", edge.ForwardField)
	})

	t.Run("several candidates disambiguated by name", func(t *testing.T) {
		r := NewRegistry()
		club, err := r.MetadataFor(Club{})
		require.NoError(t, err)

		primary, err := r.ResolveBackpop(club, "primary_teams")
		require.NoError(t, err)
		assert.Equal(t, "primary_team", primary.ForwardField)

		secondary, err := r.ResolveBackpop(club, "SecondaryTeams")
		require.NoError(t, err)
		assert.Equal(t, "secondary_team", secondary.ForwardField)
	})

	t.Run("independent of declaration order", func(t *testing.T) {
		r := NewRegistry()
		// Patron is declared after Sponsor, and registered from the other side
		_, err := r.MetadataFor(Sponsor{})
		require.NoError(t, err)
		patron, err := r.MetadataFor(Patron{})
		require.NoError(t, err)

		edge, err := r.ResolveBackpop(patron, "backer_of")
		require.NoError(t, err)
		assert.Equal(t, "backer", edge.ForwardField)

		edge, err = r.ResolveBackpop(patron, "beneficiary_of")
		require.NoError(t, err)
		assert.Equal(t, "beneficiary", edge.ForwardField)
	})

	t.Run("no prefix match is ambiguous", func(t *testing.T) {
		r := NewRegistry()
		patron, err := r.MetadataFor(Patron{})
		require.NoError(t, err)

		_, err = r.ResolveBackpop(patron, "sponsorships_list")
		var ambErr *AmbiguousBackpopError
		require.ErrorAs(t, err, &ambErr)
		assert.ElementsMatch(t, []string{"backer", "beneficiary"}, ambErr.Candidates)
	})

	t.Run("no referencing field is ambiguous", func(t *testing.T) {
		type Lonely struct {
			Table
			ID    *int64
			Teams []Person
		}
		r := NewRegistry()
		meta, err := r.MetadataFor(Lonely{})
		require.NoError(t, err)

		_, err = r.ResolveBackpop(meta, "teams")
		var ambErr *AmbiguousBackpopError
		require.ErrorAs(t, err, &ambErr)
		assert.Empty(t, ambErr.Candidates)
		assert.ErrorIs(t, err, ErrModelDefinition)
	})

	t.Run("memoized on the owner", func(t *testing.T) {
		r := NewRegistry()
		team, err := r.MetadataFor(Team{})
		require.NoError(t, err)

		_, ok := team.Backpop("athletes")
		assert.False(t, ok)

		_, err = r.ResolveBackpop(team, "athletes")
		require.NoError(t, err)

		edge, ok := team.Backpop("athletes")
		require.True(t, ok)
		assert.Equal(t, "team", edge.ForwardField)
		assert.Len(t, team.BackpopEdges(), 1)
	})

	t.Run("rejects non backpop fields", func(t *testing.T) {
		r := NewRegistry()
		team, err := r.MetadataFor(Team{})
		require.NoError(t, err)

		_, err = r.ResolveBackpop(team, "league")
		assert.ErrorIs(t, err, ErrModelDefinition)
		_, err = r.ResolveBackpop(team, "nope")
		assert.ErrorIs(t, err, ErrModelDefinition)
	})
}

func TestResolveAll(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Team{}, Club{}))
	require.NoError(t, r.ResolveAll())

	club, _ := r.Lookup(TypeOf(Club{}))
	assert.Len(t, club.BackpopEdges(), 2)

	require.NoError(t, r.Register(Patron{}))
	assert.Error(t, r.ResolveAll())
}

func TestStripCollectionSuffix(t *testing.T) {
	tests := map[string]string{
		"manager_of":        "manager",
		"lead_developer_of": "lead_developer",
		"primary_teams":     "primary_team",
		"athletes_list":     "athletes",
		"members_set":       "members",
		"s":                 "s",
		"roster":            "roster",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripCollectionSuffix(in), in)
	}
}

func TestRelationshipGraph(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Athlete{}, Node{}, Person{}))

	g := r.Graph()

	order := g.TopologicalSort()
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["League"], pos["Team"])
	assert.Less(t, pos["Team"], pos["Athlete"])
	assert.Less(t, pos["Club"], pos["Person"])
	assert.Contains(t, order, "Node")

	// Node's self references are not edges
	assert.Empty(t, g.DetectCycles())
	assert.Equal(t, []string{"Team"}, g.Dependencies("Athlete"))
}

type Chicken struct {
	Table
	ID  *int64
	Egg *Egg
}

type Egg struct {
	Table
	ID      *int64
	Chicken *Chicken
}

func TestRelationshipGraph_Cycles(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Chicken{}))

	g := r.Graph()
	cycles := g.DetectCycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"Chicken", "Egg"}, cycles[0])
	assert.Contains(t, FormatCycles(cycles), "Chicken -> Egg -> Chicken")

	// cyclic tables are still ordered
	assert.Equal(t, []string{"Chicken", "Egg"}, g.TopologicalSort())
}
