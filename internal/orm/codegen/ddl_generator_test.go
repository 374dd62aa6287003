package codegen

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tuplesaver/tuplesaver/internal/orm/codec"
	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

type League struct {
	schema.Table
	ID         *int64
	LeagueName string
}

type Team struct {
	schema.Table
	ID      *int64
	Name    string
	League  League
	Founded time.Time
	Code    *string
	Members []Member
}

type Member struct {
	schema.Table
	ID     *int64
	Team   *Team
	Mentor *Member
	Score  float64
}

type MemberName struct {
	schema.Alt[Member]
	ID *int64
}

type Color struct {
	R, G, B uint8
}

type Paint struct {
	schema.Table
	ID    *int64
	Color Color
}

func metaFor(t *testing.T, model any) *schema.ModelMeta {
	t.Helper()
	meta, err := schema.NewRegistry().MetadataFor(model)
	if err != nil {
		t.Fatalf("MetadataFor(%T) error = %v", model, err)
	}
	return meta
}

func TestDDLGenerator_GenerateCreateTable(t *testing.T) {
	gen := NewDDLGenerator(nil)

	tests := []struct {
		model any
		want  string
	}{
		{
			League{},
			"CREATE TABLE League (\nid [INTEGER] PRIMARY KEY NOT NULL, league_name [TEXT] NOT NULL\n)",
		},
		{
			Team{},
			"CREATE TABLE Team (\nid [INTEGER] PRIMARY KEY NOT NULL, name [TEXT] NOT NULL, " +
				"league [League_ID] NOT NULL REFERENCES League(id), founded [time.Time] NOT NULL, code [TEXT] NULL\n)",
		},
		{
			Member{},
			"CREATE TABLE Member (\nid [INTEGER] PRIMARY KEY NOT NULL, team [Team_ID] NULL REFERENCES Team(id), " +
				"mentor [Member_ID] NULL REFERENCES Member(id), score [REAL] NOT NULL\n)",
		},
	}

	for _, tt := range tests {
		got, err := gen.GenerateCreateTable(metaFor(t, tt.model))
		if err != nil {
			t.Fatalf("GenerateCreateTable(%T) error = %v", tt.model, err)
		}
		if got != tt.want {
			t.Errorf("GenerateCreateTable(%T) =\n%s\nwant\n%s", tt.model, got, tt.want)
		}
	}
}

func TestDDLGenerator_NotATable(t *testing.T) {
	gen := NewDDLGenerator(nil)
	_, err := gen.GenerateCreateTable(metaFor(t, MemberName{}))
	if !errors.Is(err, ErrNotATable) {
		t.Errorf("expected ErrNotATable, got %v", err)
	}
}

func TestDDLGenerator_OpaqueTypes(t *testing.T) {
	_, err := NewDDLGenerator(nil).GenerateCreateTable(metaFor(t, Paint{}))
	var unregistered *codec.UnregisteredFieldTypeError
	if !errors.As(err, &unregistered) {
		t.Fatalf("expected UnregisteredFieldTypeError, got %v", err)
	}

	codecs := codec.NewRegistry()
	if err := codec.RegisterMsgpack[Color](codecs); err != nil {
		t.Fatalf("RegisterMsgpack() error = %v", err)
	}
	ddl, err := NewDDLGenerator(codecs).GenerateCreateTable(metaFor(t, Paint{}))
	if err != nil {
		t.Fatalf("GenerateCreateTable() error = %v", err)
	}
	if !strings.Contains(ddl, "color [codegen.Color] NOT NULL") {
		t.Errorf("unexpected DDL:\n%s", ddl)
	}
}

func TestDDLGenerator_GenerateSchema(t *testing.T) {
	registry := schema.NewRegistry()
	if err := registry.Register(Member{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	stmts, err := NewDDLGenerator(nil).GenerateSchema(registry.Models())
	if err != nil {
		t.Fatalf("GenerateSchema() error = %v", err)
	}
	var tables []string
	for _, s := range stmts {
		tables = append(tables, strings.Fields(s)[2])
	}
	if got := strings.Join(tables, ","); got != "League,Team,Member" {
		t.Errorf("tables in order %s, want League,Team,Member", got)
	}
}

func TestDDLGenerator_ForeignKeyIndexes(t *testing.T) {
	got := NewDDLGenerator(nil).GenerateForeignKeyIndexes(metaFor(t, Member{}))
	want := []string{
		"CREATE INDEX IF NOT EXISTS idx_Member_team ON Member(team)",
		"CREATE INDEX IF NOT EXISTS idx_Member_mentor ON Member(mentor)",
	}
	if strings.Join(got, ";") != strings.Join(want, ";") {
		t.Errorf("GenerateForeignKeyIndexes() = %v, want %v", got, want)
	}
}

func TestNormalizeDDL(t *testing.T) {
	if got := NormalizeDDL("CREATE TABLE  A (\n  id [INTEGER]\n)"); got != "CREATE TABLE A ( id [INTEGER] )" {
		t.Errorf("NormalizeDDL() = %q", got)
	}
	if got := NormalizeDDL(`CREATE TABLE "A" (id [INTEGER])`); got != "CREATE TABLE A (id [INTEGER])" {
		t.Errorf("NormalizeDDL() quoted = %q", got)
	}
}

func TestEnsureTable(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	ctx := context.Background()
	gen := NewDDLGenerator(nil)
	league := metaFor(t, League{})

	created, err := gen.EnsureTable(ctx, db, league)
	if err != nil || !created {
		t.Fatalf("first EnsureTable() = %v, %v; want created", created, err)
	}
	created, err = gen.EnsureTable(ctx, db, league)
	if err != nil || created {
		t.Fatalf("second EnsureTable() = %v, %v; want existing table accepted", created, err)
	}

	if _, err := db.Exec("CREATE TABLE Team (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = gen.EnsureTable(ctx, db, metaFor(t, Team{}))
	var mismatch *TableSchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected TableSchemaMismatchError, got %v", err)
	}
	if mismatch.Table != "Team" || mismatch.Existing != "CREATE TABLE Team (id INTEGER PRIMARY KEY)" {
		t.Errorf("unexpected mismatch %+v", mismatch)
	}
}
