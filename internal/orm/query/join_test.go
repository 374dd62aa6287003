package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

func TestResolve(t *testing.T) {
	athlete := metaFor(t, Athlete{})

	t.Run("root column", func(t *testing.T) {
		jp, err := Resolve(athlete, []string{"name"})
		require.NoError(t, err)
		assert.Empty(t, jp.Steps)
		assert.Equal(t, "Athlete.name", jp.Column.String())
	})

	t.Run("walks forward references", func(t *testing.T) {
		jp, err := Resolve(athlete, []string{"team", "league", "league_name"})
		require.NoError(t, err)
		require.Len(t, jp.Steps, 2)

		assert.Equal(t, "LEFT JOIN Team team ON Athlete.team = team.id", jp.Steps[0].SQL())
		// once a hop is nullable every join below it is outer
		assert.Equal(t, "LEFT JOIN League team__league ON team.league = team__league.id", jp.Steps[1].SQL())
		assert.Equal(t, "team__league.league_name", jp.Column.String())
	})

	t.Run("non-null hops are inner joins", func(t *testing.T) {
		jp, err := Resolve(metaFor(t, Team{}), []string{"league", "league_name"})
		require.NoError(t, err)
		assert.Equal(t, "JOIN League league ON Team.league = league.id", jp.Steps[0].SQL())
	})

	t.Run("accepts Go field names", func(t *testing.T) {
		jp, err := Resolve(athlete, []string{"Team", "TeamName"})
		require.NoError(t, err)
		assert.Equal(t, "team.team_name", jp.Column.String())
		assert.Equal(t, []string{"team"}, jp.Steps[0].Prefix)
	})

	t.Run("terminal forward field is its key column", func(t *testing.T) {
		jp, err := Resolve(athlete, []string{"team"})
		require.NoError(t, err)
		assert.Empty(t, jp.Steps)
		assert.Equal(t, "Athlete.team", jp.Column.String())
	})
}

func TestResolve_Errors(t *testing.T) {
	athlete := metaFor(t, Athlete{})

	tests := []struct {
		name   string
		root   any
		path   []string
		reason string
	}{
		{"empty", Athlete{}, nil, "empty path"},
		{"unknown hop", Athlete{}, []string{"club", "name"}, "no field club"},
		{"scalar hop", Athlete{}, []string{"name", "length"}, "not a reference"},
		{"unknown terminal", Athlete{}, []string{"team", "mascot"}, "no field mascot"},
		{"backpop hop", Roster{}, []string{"athletes", "name"}, "backpop"},
		{"backpop terminal", Roster{}, []string{"athletes"}, "backpop"},
		{"adhoc root", Score{}, []string{"name"}, "no table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := athlete
			if _, ok := tt.root.(Athlete); !ok {
				root = metaFor(t, tt.root)
			}
			_, err := Resolve(root, tt.path)

			var pathErr *PathResolutionError
			require.ErrorAs(t, err, &pathErr)
			assert.Contains(t, pathErr.Reason, tt.reason)
		})
	}
}

func TestJoinPlan_SharesPrefixes(t *testing.T) {
	plan := NewJoinPlan(metaFor(t, Athlete{}))

	teamName, err := plan.Add([]string{"team", "team_name"})
	require.NoError(t, err)
	leagueName, err := plan.Add([]string{"team", "league", "league_name"})
	require.NoError(t, err)
	_, err = plan.Add([]string{"team", "team_name"})
	require.NoError(t, err)

	steps := plan.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "team", steps[0].Alias)
	assert.Equal(t, "team__league", steps[1].Alias)
	assert.Equal(t, "team.team_name", teamName.String())
	assert.Equal(t, "team__league.league_name", leagueName.String())

	assert.Equal(t,
		"LEFT JOIN Team team ON Athlete.team = team.id\n"+
			"LEFT JOIN League team__league ON team.league = team__league.id",
		plan.SQL())
}

func TestJoinPlan_DistinctPrefixesToSameTable(t *testing.T) {
	plan := NewJoinPlan(metaFor(t, Athlete{}))

	_, err := plan.Add([]string{"team", "league", "league_name"})
	require.NoError(t, err)
	_, err = plan.Add([]string{"coach", "team", "league", "league_name"})
	require.NoError(t, err)

	aliases := []string{}
	for _, s := range plan.Steps() {
		aliases = append(aliases, s.Alias)
	}
	assert.Equal(t, []string{"team", "team__league", "coach", "coach__team", "coach__team__league"}, aliases)
}

type Folder struct {
	schema.Table
	ID     *int64
	Name   string
	Folder *Folder
}

func TestJoinPlan_AliasClashWithRoot(t *testing.T) {
	plan := NewJoinPlan(metaFor(t, Folder{}))

	col, err := plan.Add([]string{"folder", "folder", "name"})
	require.NoError(t, err)

	steps := plan.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "folder__", steps[0].Alias)
	assert.Equal(t, "LEFT JOIN Folder folder__ ON Folder.folder = folder__.id", steps[0].SQL())
	assert.Equal(t, "folder__folder", steps[1].Alias)
	assert.Equal(t, "folder__folder.name", col.String())
}

func TestPath(t *testing.T) {
	p := On[Athlete]().Get("team").Get("league").Get("league_name")

	assert.Equal(t, "{Athlete.team.league.league_name}", p.String())
	assert.Equal(t, []string{"team", "league", "league_name"}, p.Names())

	// Get does not alias earlier paths
	base := On[Athlete]().Get("team")
	a := base.Get("team_name")
	b := base.Get("league")
	assert.Equal(t, []string{"team", "team_name"}, a.Names())
	assert.Equal(t, []string{"team", "league"}, b.Names())

	jp, err := p.Resolve(schema.NewRegistry())
	require.NoError(t, err)
	assert.Len(t, jp.Steps, 2)
	assert.Equal(t, "team__league.league_name", jp.Column.String())
}
