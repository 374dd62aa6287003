package tuplesaver_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tuplesaver/tuplesaver/pkg/tuplesaver"
)

type League struct {
	tuplesaver.Table
	ID   *int64
	Name string
}

type Team struct {
	tuplesaver.Table
	ID       *int64
	Name     string
	League   *League
	TeamList []Athlete
}

type Venue struct {
	tuplesaver.Table
	ID     *int64
	Name   string
	League *League
}

type Stats struct {
	Games int
	Goals []int
}

type Athlete struct {
	tuplesaver.Table
	ID     *int64
	Name   string
	Team   *Team
	Rating float64
	Stats  Stats
}

type AthleteName struct {
	tuplesaver.Alt[Athlete]
	ID   *int64
	Name string
}

type Standing struct {
	Team    string
	Players int64
}

func ptr[T any](v T) *T { return &v }

func openEngine(t *testing.T, driver string) *tuplesaver.Engine {
	t.Helper()
	ctx := context.Background()
	e, err := tuplesaver.Open(ctx, filepath.Join(t.TempDir(), "app.sqlite"),
		tuplesaver.WithDriver(driver),
		tuplesaver.WithJournalMode("WAL"),
		tuplesaver.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	require.NoError(t, tuplesaver.RegisterMsgpack[Stats](e))
	require.NoError(t, e.EnsureTablesCreated(ctx, Athlete{}, Team{}, League{}))
	return e
}

func seed(t *testing.T, e *tuplesaver.Engine) (*Athlete, *Athlete) {
	t.Helper()
	ctx := context.Background()
	nba := &League{Name: "NBA"}
	bulls := &Team{Name: "Bulls", League: nba}
	out, err := e.SaveAll(ctx, []any{
		&Athlete{Name: "Ann", Team: bulls, Rating: 9.5, Stats: Stats{Games: 3, Goals: []int{1, 0, 2}}},
		&Athlete{Name: "Bob", Team: bulls, Rating: 4},
	}, true)
	require.NoError(t, err)
	return out[0].(*Athlete), out[1].(*Athlete)
}

func TestEngine(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			e := openEngine(t, driver)
			ann, bob := seed(t, e)

			require.NotNil(t, ann.ID)
			assert.Same(t, ann.Team, bob.Team, "shared sub-row saved once")

			found, err := tuplesaver.Find[Athlete](ctx, e, *ann.ID)
			require.NoError(t, err)
			assert.Equal(t, "Ann", found.Name)
			assert.Equal(t, "Bulls", found.Team.Name)
			assert.Equal(t, "NBA", found.Team.League.Name)
			assert.Equal(t, Stats{Games: 3, Goals: []int{1, 0, 2}}, found.Stats)

			byName, err := tuplesaver.FindBy[AthleteName](ctx, e, map[string]any{"name": "Bob"})
			require.NoError(t, err)
			assert.Equal(t, *bob.ID, *byName.ID)

			rows, err := tuplesaver.Query[Athlete](ctx, e, "{team.league.name} = :league AND {rating} > :min",
				map[string]any{"league": "NBA", "min": 5})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "Ann", rows[0].Name)

			standings, err := tuplesaver.Query[Standing](ctx, e,
				"SELECT t.name, COUNT(*) FROM Athlete a JOIN Team t ON a.team = t.id GROUP BY t.name", nil)
			require.NoError(t, err)
			assert.Equal(t, []*Standing{{Team: "Bulls", Players: 2}}, standings)

			team := found.Team
			require.NoError(t, e.Fill(ctx, team, "team_list"))
			assert.Len(t, team.TeamList, 2)

			ann.Rating = 7
			_, err = tuplesaver.Save(ctx, e, ann)
			require.NoError(t, err)
			found, err = tuplesaver.Find[Athlete](ctx, e, *ann.ID)
			require.NoError(t, err)
			assert.Equal(t, 7.0, found.Rating)

			require.NoError(t, e.DeleteRow(ctx, bob))
			_, err = tuplesaver.Find[Athlete](ctx, e, *bob.ID)
			assert.ErrorIs(t, err, tuplesaver.ErrNotFound)
		})
	}
}

func TestEngine_SaveErrors(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, "sqlite3")

	_, err := e.Save(ctx, &Athlete{Name: "Cid", Team: &Team{Name: "Owls"}})
	var unsaved *tuplesaver.UnpersistedRelationshipError
	assert.ErrorAs(t, err, &unsaved)

	_, err = e.Save(ctx, &AthleteName{Name: "Cid"})
	assert.ErrorIs(t, err, tuplesaver.ErrNonTableModelImmutable)

	_, err = e.Find(ctx, Athlete{}, nil)
	assert.ErrorIs(t, err, tuplesaver.ErrIDNone)
}

func TestEngine_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, "sqlite3")

	err := e.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := e.SaveDeep(ctx, &Athlete{Name: "Dee", Team: &Team{Name: "Hawks"}}); err != nil {
			return err
		}
		_, err := e.Save(ctx, &Athlete{ID: ptr(int64(999)), Name: "Ghost"})
		return err
	})
	assert.ErrorIs(t, err, tuplesaver.ErrNotFound)

	rows, err := tuplesaver.Query[Team](ctx, e, "", nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEngine_EnsureTableCreated(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, "sqlite3")

	// already there and matching
	require.NoError(t, e.EnsureTableCreated(ctx, Team{}))

	err := e.EnsureTablesCreated(ctx, AthleteName{})
	assert.Error(t, err)

	_, err = e.DB().ExecContext(ctx, "CREATE TABLE Other (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	type Other struct {
		tuplesaver.Table
		ID   *int64
		Name string
	}
	var mismatch *tuplesaver.TableSchemaMismatchError
	assert.ErrorAs(t, e.EnsureTableCreated(ctx, Other{}), &mismatch)
}

func TestEngine_EnsureTableCreatedInTransaction(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, "sqlite3")

	undo := errors.New("undo")
	err := e.WithTransaction(ctx, func(ctx context.Context) error {
		if err := e.EnsureTableCreated(ctx, Venue{}); err != nil {
			return err
		}
		if _, err := e.SaveDeep(ctx, &Venue{Name: "Garden", League: &League{Name: "NBA"}}); err != nil {
			return err
		}
		return undo
	})
	assert.ErrorIs(t, err, undo)

	// the table went with the transaction
	var n int
	require.NoError(t, e.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'Venue'").Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, e.EnsureTableCreated(ctx, Venue{}))
	require.NoError(t, e.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'Venue'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestEngine_ResolveJoin(t *testing.T) {
	e := openEngine(t, "sqlite3")

	jp, err := e.ResolveJoin(Athlete{}, "team", "league", "name")
	require.NoError(t, err)
	assert.Len(t, jp.Steps, 2)

	_, err = e.ResolveJoin(Athlete{}, "team", "nope")
	assert.Error(t, err)
}

func TestEngine_Migrator(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := tuplesaver.Open(ctx, filepath.Join(dir, "app.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	_, err = e.MetadataFor(Venue{})
	require.NoError(t, err)

	m := e.Migrator(tuplesaver.MigrateConf{Dir: filepath.Join(dir, "migrations"), DBPath: filepath.Join(dir, "app.sqlite")})
	path, err := m.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0001_create_league_venue.sql", filepath.Base(path))

	applied, err := m.ApplyPending(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_create_league_venue.sql"}, applied)

	venue, err := tuplesaver.SaveDeep(ctx, e, &Venue{Name: "Arena", League: &League{Name: "AHL"}})
	require.NoError(t, err)
	assert.NotNil(t, venue.League.ID)

	result, err := m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, "current", result.State().String())
}

func TestNewCommand(t *testing.T) {
	cmd := tuplesaver.NewCommand(Venue{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"ddl", "--dir", t.TempDir()})
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.Contains(out.String(), "CREATE TABLE Venue"))
	assert.True(t, strings.Contains(out.String(), "CREATE TABLE League"))
}

func TestEngine_BusyRetryDisabled(t *testing.T) {
	ctx := context.Background()
	e, err := tuplesaver.Open(ctx, "", tuplesaver.WithBusyRetry(0, 0))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.EnsureTablesCreated(ctx, Venue{}, League{}))

	out, err := e.SaveAll(ctx, []any{Venue{Name: "Dome", League: &League{Name: "WNBA"}}}, true)
	require.NoError(t, err)
	venue := out[0].(Venue)
	require.NotNil(t, venue.ID)
	require.NotNil(t, venue.League.ID)
}

func TestEngine_Load(t *testing.T) {
	e := openEngine(t, "sqlite3")

	row, deferred, err := e.Load(League{}, []any{int64(4), "NHL"})
	require.NoError(t, err)
	assert.Empty(t, deferred)
	assert.Equal(t, &League{ID: ptr(int64(4)), Name: "NHL"}, row)
}
