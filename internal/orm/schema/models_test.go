package schema

type League struct {
	Table
	ID         *int64
	LeagueName string
}

type Team struct {
	Table
	ID       *int64
	TeamName string
	League   League
	Athletes []Athlete
}

type Athlete struct {
	Table
	ID     *int64
	Name   string
	Team   *Team
	Rating float64
}

type AthleteName struct {
	Alt[Athlete]
	ID   *int64
	Name string
}

type Score struct {
	Row
	Name  string
	Total int64
}

// Person and Club reference each other twice
type Club struct {
	Table
	ID             *int64
	Name           string
	PrimaryTeams   []Person
	SecondaryTeams []*Person
}

type Person struct {
	Table
	ID            *int64
	Name          string
	PrimaryTeam   Club
	SecondaryTeam *Club
}

// declared in the opposite order to Club and Person
type Sponsor struct {
	Table
	ID          *int64
	Backer      *Patron
	Beneficiary *Patron
}

type Patron struct {
	Table
	ID               *int64
	BeneficiaryOf    []Sponsor
	BackerOf         []*Sponsor
	SponsorshipsList []Sponsor
}

type Node struct {
	Table
	ID    *int64
	Label string
	Left  *Node
	Right *Node
}
