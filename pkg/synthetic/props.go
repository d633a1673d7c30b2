package synthetic

import (
	"strings"

	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NFLTeams are the team codes props are generated for.
var NFLTeams = []string{
	"ari", "atl", "bal", "buf", "car", "chi", "cin", "cle", "dal", "den", "det", "gb",
	"hou", "ind", "jax", "kc", "lv", "lac", "lar", "mia", "min", "ne", "no", "nyg",
	"nyj", "phi", "pit", "sf", "sea", "tb", "ten", "wsh",
}

// Positions that get a generated player per team, in output order.
var Positions = []string{"QB", "RB", "WR", "TE"}

// Market is a single prop line.
type Market struct {
	Key  string          `json:"key"`
	Line decimal.Decimal `json:"line"`
}

// Prop is one player or team unit with its markets.
type Prop struct {
	PlayerID string   `json:"PlayerID"`
	Name     string   `json:"Name"`
	Team     string   `json:"Team"`
	Position string   `json:"Position,omitempty"`
	Markets  []Market `json:"markets"`
}

func line(key, value string) Market {
	return Market{Key: key, Line: decimal.RequireFromString(value)}
}

var positionMarkets = map[string][]Market{
	"QB": {
		line("player_pass_yards", "255.5"),
		line("player_pass_attempts", "33.5"),
		line("player_pass_completions", "21.5"),
		line("player_pass_tds", "1.8"),
		line("player_interceptions", "0.7"),
		line("player_rush_yards", "28.5"),
		line("longest_completion", "39.5"),
	},
	"RB": {
		line("player_rush_yards", "64.5"),
		line("player_rush_attempts", "14.5"),
		line("player_rush_tds", "0.5"),
		line("player_rec_yards", "22.5"),
		line("player_rec_receptions", "2.5"),
		line("longest_rush", "18.5"),
		line("anytime_td", "0.25"),
	},
	"WR": {
		line("player_rec_yards", "68.5"),
		line("player_rec_receptions", "5.5"),
		line("player_rec_tds", "0.45"),
		line("longest_reception", "26.5"),
		line("anytime_td", "0.22"),
	},
	"TE": {
		line("player_rec_yards", "42.5"),
		line("player_rec_receptions", "4"),
		line("player_rec_tds", "0.35"),
		line("longest_reception", "18.5"),
		line("anytime_td", "0.2"),
	},
}

var (
	defenseMarket      = line("team_defense_anytime_td", "0.05")
	specialTeamsMarket = line("team_special_teams_anytime_td", "0.06")
)

// MarketsFor returns a copy of the default markets of a position, nil for unknown ones.
func MarketsFor(position string) []Market {
	markets, ok := positionMarkets[strings.ToUpper(position)]
	if !ok {
		return nil
	}
	return append([]Market(nil), markets...)
}

// NFLProps generates one player per position plus defense and special teams units for every team.
type NFLProps struct {
	Teams []string
}

func (g NFLProps) Generate(_ model.Resource) ([]byte, int, error) {
	teams := g.Teams
	if len(teams) == 0 {
		teams = NFLTeams
	}

	props := make([]Prop, 0, len(teams)*(len(Positions)+2))
	for _, code := range teams {
		team := strings.ToUpper(code)
		for _, pos := range Positions {
			props = append(props, Prop{
				PlayerID: team + "_" + pos,
				Name:     team + " " + pos + " (Synthetic)",
				Team:     team,
				Position: pos,
				Markets:  MarketsFor(pos),
			})
		}
		props = append(props,
			Prop{PlayerID: team + "_DEF", Name: team + " Defense", Team: team, Markets: []Market{defenseMarket}},
			Prop{PlayerID: team + "_ST", Name: team + " Special Teams", Team: team, Markets: []Market{specialTeamsMarket}},
		)
	}

	payload, err := json.Marshal(props)
	if err != nil {
		return nil, 0, err
	}
	return payload, len(props), nil
}
