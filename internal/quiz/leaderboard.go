package quiz

import "sort"

// LeaderboardSize is how many users View Challenges lists.
const LeaderboardSize = 3

// LeaderboardQuery selects challenges of one quiz attempt shape.
type LeaderboardQuery struct {
	BotID    string
	Topic    string
	Subtopic string
	Level    string
	Set      string
}

// Matches reports whether c was completed on the queried quiz.
func (q LeaderboardQuery) Matches(c Challenge) bool {
	return c.Topic == q.Topic && c.Subtopic == q.Subtopic && c.Level == q.Level && c.Set == q.Set
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Name  string
	Phone string
	Total int
	Badge Badge
}

// DisplayName falls back to Unknown for users who never gave a name.
func (e LeaderboardEntry) DisplayName() string {
	if e.Name == "" {
		return "Unknown"
	}
	return e.Name
}

// Rank sums matching challenge scores per user, drops users without
// points and returns the best limit entries. Ties keep input order.
func Rank(sessions []Session, q LeaderboardQuery, limit int) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(sessions))
	for _, s := range sessions {
		if q.BotID != "" && s.BotID != q.BotID {
			continue
		}
		total := 0
		for _, c := range s.Challenges {
			if q.Matches(c) {
				total += c.Score
			}
		}
		if total <= 0 {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Name:  s.Name,
			Phone: s.Phone,
			Total: total,
			Badge: leaderboardBadge(total),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Total > entries[j].Total
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// leaderboardBadge grades a summed total. Gold needs exactly one perfect
// attempt; larger sums over several attempts fall through to Silver.
func leaderboardBadge(total int) Badge {
	if total == QuestionsPerQuiz {
		return BadgeGold
	}
	if total > QuestionsPerQuiz {
		return BadgeSilver
	}
	return BadgeFor(total)
}

// RenderLeaderboard turns ranked entries into the reply sequence.
func RenderLeaderboard(entries []LeaderboardEntry) []Message {
	if len(entries) == 0 {
		return []Message{TextMessage(noChallengesText), TextMessage(endText)}
	}
	return []Message{TextMessage(leaderboardText(entries)), TextMessage(endText)}
}

// LeaderboardUnavailable is the reply sequence when the store query fails.
func LeaderboardUnavailable() []Message {
	return []Message{TextMessage(leaderboardFailed), TextMessage(endText)}
}
