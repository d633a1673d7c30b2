package synthetic

import (
	"errors"
	"testing"

	"github.com/Borislavv/sports-data-aggregator/pkg/model"
)

func TestNFLPropsCoversEveryTeam(t *testing.T) {
	res := model.NewResource(model.KindProps, "americanfootball_nfl", nil)

	payload, count, err := Default().Generate(res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := len(NFLTeams) * (len(Positions) + 2)
	if count != want {
		t.Fatalf("count = %d, want %d", count, want)
	}

	var props []Prop
	if err = json.Unmarshal(payload, &props); err != nil {
		t.Fatalf("payload is not a prop list: %v", err)
	}
	if len(props) != count {
		t.Fatalf("decoded %d props, count says %d", len(props), count)
	}

	first := props[0]
	if first.PlayerID != "ARI_QB" || first.Team != "ARI" || len(first.Markets) != 7 {
		t.Fatalf("first prop = %+v", first)
	}
	if first.Markets[0].Key != "player_pass_yards" || first.Markets[0].Line.String() != "255.5" {
		t.Fatalf("first market = %+v", first.Markets[0])
	}
	if last := props[len(props)-1]; last.PlayerID != "WSH_ST" || last.Markets[0].Key != "team_special_teams_anytime_td" {
		t.Fatalf("last prop = %+v", last)
	}
}

func TestNFLPropsCustomTeams(t *testing.T) {
	_, count, err := NFLProps{Teams: []string{"kc", "buf"}}.Generate(model.Resource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 12 {
		t.Fatalf("count = %d, want 12", count)
	}
}

func TestMarketsForReturnsCopy(t *testing.T) {
	markets := MarketsFor("wr")
	if len(markets) != 5 {
		t.Fatalf("got %d WR markets", len(markets))
	}
	markets[0].Key = "mutated"
	if MarketsFor("WR")[0].Key != "player_rec_yards" {
		t.Fatal("defaults were mutated through the returned slice")
	}
	if MarketsFor("K") != nil {
		t.Fatal("unknown position must have no markets")
	}
}

func TestRegistryUnsupported(t *testing.T) {
	_, _, err := Default().Generate(model.NewResource(model.KindRoster, "nfl", nil))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
