package crud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAthletes(t *testing.T, ops *Operations) (*Athlete, *Athlete) {
	t.Helper()
	ctx := context.Background()

	bulls := &Team{TeamName: "Bulls", League: League{LeagueName: "NBA"}}
	out, err := ops.SaveAll(ctx, []any{
		&Athlete{Name: "Ann", Team: bulls, Rating: 9.5},
		&Athlete{Name: "Bob", Rating: 4},
	}, true)
	require.NoError(t, err)
	return out[0].(*Athlete), out[1].(*Athlete)
}

func TestFind_RoundTrip(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ctx := context.Background()

	saved, err := ops.Save(ctx, &League{LeagueName: "NBA"}, false)
	require.NoError(t, err)
	league := saved.(*League)
	require.NotNil(t, league.ID)

	found, err := ops.Find(ctx, League{}, league.ID)
	require.NoError(t, err)
	assert.Equal(t, league, found)
}

func TestFind_LoadsJoinedReferences(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ctx := context.Background()
	ann, bob := seedAthletes(t, ops)

	found, err := ops.Find(ctx, Athlete{}, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, ann, found)
	assert.Equal(t, "NBA", found.(*Athlete).Team.League.LeagueName)

	found, err = ops.Find(ctx, Athlete{}, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, found.(*Athlete).Team)
}

func TestFind_DeepResaveIsIdempotent(t *testing.T) {
	ops, db := newSQLiteOps(t)
	ctx := context.Background()
	ann, _ := seedAthletes(t, ops)

	found, err := ops.Find(ctx, Athlete{}, ann.ID)
	require.NoError(t, err)

	out, err := ops.Save(ctx, found, true)
	require.NoError(t, err)
	assert.Equal(t, found, out)
	assert.Equal(t, 1, countRows(t, db, "League"))
	assert.Equal(t, 1, countRows(t, db, "Team"))
	assert.Equal(t, 2, countRows(t, db, "Athlete"))
}

func TestFind_SelfReference(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ctx := context.Background()

	out, err := ops.Save(ctx, &Coach{Name: "Phil"}, false)
	require.NoError(t, err)
	phil := out.(*Coach)
	phil.Mentor = phil
	_, err = ops.Save(ctx, phil, false)
	require.NoError(t, err)

	found, err := ops.Find(ctx, Coach{}, phil.ID)
	require.NoError(t, err)
	coach := found.(*Coach)
	assert.Same(t, coach, coach.Mentor)
}

func TestFind_MentorChain(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ctx := context.Background()

	out, err := ops.Save(ctx, &Coach{Name: "Pupil", Mentor: &Coach{Name: "Master"}}, true)
	require.NoError(t, err)

	found, err := ops.Find(ctx, Coach{}, out.(*Coach).ID)
	require.NoError(t, err)
	pupil := found.(*Coach)
	require.NotNil(t, pupil.Mentor)
	assert.Equal(t, "Master", pupil.Mentor.Name)
	assert.Nil(t, pupil.Mentor.Mentor)
}

func TestFind_AltModel(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ann, _ := seedAthletes(t, ops)

	found, err := ops.Find(context.Background(), AthleteName{}, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, &AthleteName{ID: ann.ID, Name: "Ann"}, found)
}

func TestFind_Errors(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ctx := context.Background()

	_, err := ops.Find(ctx, League{}, nil)
	assert.ErrorIs(t, err, ErrIDNone)
	assert.Contains(t, err.Error(), "cannot SELECT, id=None")

	_, err = ops.Find(ctx, Score{}, ptr(int64(1)))
	assert.ErrorIs(t, err, ErrLookupByAdhocModel)

	_, err = ops.Find(ctx, League{}, ptr(int64(99)))
	assert.True(t, IsNotFound(err))
}

func TestFindBy(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ctx := context.Background()
	ann, bob := seedAthletes(t, ops)

	found, err := ops.FindBy(ctx, Athlete{}, map[string]any{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, bob, found)

	// Go field names, row values and nil all work as lookups
	found, err = ops.FindBy(ctx, Athlete{}, map[string]any{"Team": ann.Team, "Rating": 9.5})
	require.NoError(t, err)
	assert.Equal(t, ann.ID, found.(*Athlete).ID)

	found, err = ops.FindBy(ctx, Athlete{}, map[string]any{"team": nil})
	require.NoError(t, err)
	assert.Equal(t, bob.ID, found.(*Athlete).ID)

	found, err = ops.FindBy(ctx, Athlete{}, map[string]any{"team": *ann.Team.ID})
	require.NoError(t, err)
	assert.Equal(t, ann.ID, found.(*Athlete).ID)
}

func TestFindBy_Errors(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ctx := context.Background()

	_, err := ops.FindBy(ctx, League{}, nil)
	assert.ErrorIs(t, err, ErrNoFieldsSpecified)

	_, err = ops.FindBy(ctx, League{}, map[string]any{"nickname": "x"})
	assert.ErrorIs(t, err, ErrInvalidField)
	assert.Contains(t, err.Error(), "id, league_name")

	_, err = ops.FindBy(ctx, Score{}, map[string]any{"name": "x"})
	assert.ErrorIs(t, err, ErrLookupByAdhocModel)

	_, err = ops.FindBy(ctx, League{}, map[string]any{"league_name": "NHL"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuery(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ctx := context.Background()
	ann, _ := seedAthletes(t, ops)

	rows, err := ops.Query(ctx, Athlete{},
		"{team.league.league_name} = :league AND {rating} > :min",
		map[string]any{"league": "NBA", "min": 5})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ann, rows[0])

	rows, err = ops.Query(ctx, Athlete{}, "", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestQuery_Adhoc(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ctx := context.Background()
	seedAthletes(t, ops)

	rows, err := ops.Query(ctx, Score{},
		"SELECT name, CAST(rating * 10 AS INTEGER) FROM Athlete WHERE rating > :min ORDER BY name",
		map[string]any{"min": 1})
	require.NoError(t, err)
	assert.Equal(t, []any{&Score{Name: "Ann", Total: 95}, &Score{Name: "Bob", Total: 40}}, rows)

	_, err = ops.Query(ctx, Score{}, "SELECT name FROM Athlete", nil)
	assert.ErrorContains(t, err, "expected 2")
}

func TestLoad_DefersUnjoinedReferences(t *testing.T) {
	ops, _ := newMockOps(t)
	meta, err := ops.Registry().MetadataFor(Coach{})
	require.NoError(t, err)

	row, deferred, err := ops.Load(meta, []any{int64(1), "Phil", int64(2)})
	require.NoError(t, err)

	coach := row.(*Coach)
	assert.Equal(t, int64(1), *coach.ID)
	require.Len(t, deferred, 1)
	assert.Equal(t, "Coach", deferred[0].Meta.Name)
	assert.Equal(t, int64(2), deferred[0].ID)
	assert.Same(t, coach.Mentor, deferred[0].Into.Interface())

	_, _, err = ops.Load(meta, []any{int64(1)})
	assert.Error(t, err)
}

func TestLoad_AbsentJoin(t *testing.T) {
	ops, _ := newMockOps(t)
	meta, err := ops.Registry().MetadataFor(Athlete{})
	require.NoError(t, err)

	row, deferred, err := ops.Load(meta, []any{
		int64(1), "Ann", nil, 2.5,
		nil, nil, nil,
		nil, nil,
	})
	require.NoError(t, err)
	assert.Empty(t, deferred)
	assert.Equal(t, &Athlete{ID: ptr(int64(1)), Name: "Ann", Rating: 2.5}, row)
}

func TestFind_WideReferenceGraph(t *testing.T) {
	ops, db := newSQLiteOps(t)
	ctx := context.Background()

	leaf := &StageLeaf{Name: "leaf"}
	s5a, s5b := &Stage5{A: leaf, B: leaf}, &Stage5{A: leaf, B: leaf}
	s4a, s4b := &Stage4{A: s5a, B: s5b}, &Stage4{A: s5b, B: s5a}
	s3a, s3b := &Stage3{A: s4a, B: s4b}, &Stage3{A: s4b, B: s4a}
	s2a, s2b := &Stage2{A: s3a, B: s3b}, &Stage2{A: s3b, B: s3a}
	s1a, s1b := &Stage1{A: s2a, B: s2b}, &Stage1{A: s2b, B: s2a}
	root := &Stage0{A: s1a, B: s1b}

	out, err := ops.Save(ctx, root, true)
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, db, "StageLeaf"))
	assert.Equal(t, 2, countRows(t, db, "Stage5"))

	found, err := ops.Find(ctx, Stage0{}, out.(*Stage0).ID)
	require.NoError(t, err)
	assert.Equal(t, out, found)

	got := found.(*Stage0)
	assert.Equal(t, "leaf", got.A.A.A.A.A.A.Name)
	assert.Equal(t, "leaf", got.B.B.B.B.B.B.Name)
	assert.Equal(t, *got.A.B.A.B.A.ID, *got.B.A.B.A.B.ID)
}

func TestQuery_ValueReferenceIsFetchedInPlace(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ctx := context.Background()
	seedAthletes(t, ops)

	rows, err := ops.Query(ctx, Pick{}, "SELECT name, team FROM Athlete WHERE team IS NOT NULL", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	pick := rows[0].(*Pick)
	assert.Equal(t, "Ann", pick.Name)
	assert.Equal(t, "Bulls", pick.Team.TeamName)
	assert.Equal(t, "NBA", pick.Team.League.LeagueName)
}

func TestQuery_RepeatedValueReference(t *testing.T) {
	ops, _ := newSQLiteOps(t)
	ctx := context.Background()

	bulls := &Team{TeamName: "Bulls", League: League{LeagueName: "NBA"}}
	_, err := ops.SaveAll(ctx, []any{
		&Fixture{Home: bulls, Away: bulls},
		&Fixture{Home: bulls, Away: bulls},
	}, true)
	require.NoError(t, err)

	rows, err := ops.Query(ctx, Matchup{}, "SELECT home, away FROM Fixture", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		m := row.(*Matchup)
		assert.Equal(t, "Bulls", m.Home.TeamName)
		assert.Equal(t, m.Home, m.Away)
		assert.Equal(t, "NBA", m.Away.League.LeagueName)
	}
}

func TestLoad_DefersValueReferences(t *testing.T) {
	ops, _ := newMockOps(t)
	meta, err := ops.Registry().MetadataFor(Pick{})
	require.NoError(t, err)

	row, deferred, err := ops.Load(meta, []any{"Ann", int64(7)})
	require.NoError(t, err)

	pick := row.(*Pick)
	require.Len(t, deferred, 1)
	assert.Equal(t, int64(7), deferred[0].ID)
	assert.Same(t, &pick.Team, deferred[0].Into.Interface())
	assert.Empty(t, deferred[0].Copies)

	*deferred[0].Into.Interface().(*Team) = Team{ID: ptr(int64(7)), TeamName: "Bulls"}
	assert.Equal(t, "Bulls", pick.Team.TeamName)
}

func TestLoad_RepeatedValueReferenceIsCopied(t *testing.T) {
	ops, _ := newMockOps(t)
	meta, err := ops.Registry().MetadataFor(Matchup{})
	require.NoError(t, err)

	row, deferred, err := ops.Load(meta, []any{int64(7), int64(7)})
	require.NoError(t, err)

	m := row.(*Matchup)
	require.Len(t, deferred, 1)
	assert.Same(t, &m.Home, deferred[0].Into.Interface())
	require.Len(t, deferred[0].Copies, 1)
	assert.Same(t, &m.Away, deferred[0].Copies[0].Addr().Interface())
}
