package quiz

import (
	"strings"
	"testing"
)

func TestRankSumsMatchingChallenges(t *testing.T) {
	q := LeaderboardQuery{BotID: "bot-1", Topic: "T", Subtopic: "S", Level: "Easy", Set: "2"}
	hit := func(score int) Challenge {
		return Challenge{Topic: "T", Subtopic: "S", Level: "Easy", Set: "2", Score: score}
	}
	sessions := []Session{
		{Phone: "1", BotID: "bot-1", Name: "Asha", Challenges: []Challenge{hit(4), hit(5)}},
		{Phone: "2", BotID: "bot-1", Name: "Ravi", Challenges: []Challenge{hit(10), {Topic: "T", Subtopic: "S", Level: "Hard", Set: "2", Score: 10}}},
		{Phone: "3", BotID: "bot-1", Challenges: []Challenge{hit(6)}},
		{Phone: "4", BotID: "bot-1", Name: "Zero", Challenges: []Challenge{hit(0)}},
		{Phone: "5", BotID: "bot-2", Name: "Other", Challenges: []Challenge{hit(10), hit(10)}},
		{Phone: "6", BotID: "bot-1", Name: "Late", Challenges: []Challenge{hit(1)}},
	}

	got := Rank(sessions, q, LeaderboardSize)
	if len(got) != 3 {
		t.Fatalf("entries = %+v", got)
	}
	want := []struct {
		name  string
		total int
		badge Badge
	}{
		{"Ravi", 10, BadgeGold},
		{"Asha", 9, BadgeSilver},
		{"Unknown", 6, BadgeBronze},
	}
	for i, w := range want {
		if got[i].DisplayName() != w.name || got[i].Total != w.total || got[i].Badge != w.badge {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], w)
		}
	}
}

func TestRankGoldNeedsExactlyOnePerfectTotal(t *testing.T) {
	q := LeaderboardQuery{Topic: "T", Subtopic: "S", Level: "Easy", Set: "1"}
	hit := func(score int) Challenge {
		return Challenge{Topic: "T", Subtopic: "S", Level: "Easy", Set: "1", Score: score}
	}
	sessions := []Session{
		{Phone: "1", Name: "Twice", Challenges: []Challenge{hit(10), hit(10)}},
		{Phone: "2", Name: "Once", Challenges: []Challenge{hit(10)}},
		{Phone: "3", Name: "Split", Challenges: []Challenge{hit(3), hit(3)}},
	}
	got := Rank(sessions, q, LeaderboardSize)
	want := map[string]Badge{"Twice": BadgeSilver, "Once": BadgeGold, "Split": BadgeBronze}
	for _, e := range got {
		if e.Badge != want[e.Name] {
			t.Fatalf("%s (total %d) badge = %s, want %s", e.Name, e.Total, e.Badge, want[e.Name])
		}
	}
	if got[0].Name != "Twice" || got[0].Total != 20 {
		t.Fatalf("ranking = %+v", got)
	}
}

func TestRenderLeaderboard(t *testing.T) {
	empty := RenderLeaderboard(nil)
	if len(empty) != 2 || empty[0].Body != noChallengesText || empty[1].Body != endText {
		t.Fatalf("empty leaderboard = %s", bodies(empty))
	}

	msgs := RenderLeaderboard([]LeaderboardEntry{{Name: "Asha", Total: 7, Badge: BadgeSilver}})
	body := msgs[0].Body
	for _, want := range []string{"Top 3 Users:", "1. Asha", "Score: 7", "Badge: Silver 🥈"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in %q", want, body)
		}
	}
}

func TestBadgeLabels(t *testing.T) {
	cases := map[int]string{10: "Gold 🥇", 8: "Silver 🥈", 5: "Bronze 🥉", 4: "No", 0: "No"}
	for score, want := range cases {
		if got := BadgeFor(score).Label(); got != want {
			t.Fatalf("BadgeFor(%d).Label() = %q, want %q", score, got, want)
		}
	}
}
