// Package content holds the static quiz catalog: topics, their subtopics and
// the question sets attached to each subtopic. A Catalog is read-only once
// loaded and safe for concurrent use.
package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Difficulty levels a question set may be tagged with.
const (
	LevelEasy   = "Easy"
	LevelMedium = "Medium"
	LevelHard   = "Hard"
)

// Levels lists difficulty levels in presentation order.
var Levels = []string{LevelEasy, LevelMedium, LevelHard}

// IsLevel reports whether s is one of the difficulty levels (exact match).
func IsLevel(s string) bool {
	for _, l := range Levels {
		if s == l {
			return true
		}
	}
	return false
}

// Catalog is the root of the content tree.
type Catalog struct {
	Topics []Topic `json:"topics"`
}

// Topic is a first-level entry shown on the main menu.
type Topic struct {
	Name      string     `json:"topicName"`
	Subtopics []Subtopic `json:"subtopics"`
}

// Subtopic carries the explanation paragraphs and the quiz sets.
type Subtopic struct {
	Name         string        `json:"subtopicName"`
	Description  []string      `json:"description"`
	QuestionSets []QuestionSet `json:"questionSets"`
}

// QuestionSet is an ordered list of questions, optionally tagged by level.
type QuestionSet struct {
	Number    int        `json:"setNumber"`
	Level     string     `json:"level,omitempty"`
	Questions []Question `json:"questions"`
}

// ID returns the identifier stored in user sessions for this set.
func (s QuestionSet) ID() string {
	return strconv.Itoa(s.Number)
}

// Question is one multiple choice item.
type Question struct {
	Text        string   `json:"question"`
	Options     []string `json:"options"`
	Answer      Answer   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// Answer is the correct option. Catalog files write it either as a plain
// string or as a single-element list; both decode to the same value.
type Answer []string

// UnmarshalJSON accepts "x" and ["x"].
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*a = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = Answer{s}
	return nil
}

// Value returns the first (and normally only) answer element.
func (a Answer) Value() string {
	if len(a) == 0 {
		return ""
	}
	return a[0]
}

// TopicByName returns the topic with the exact name.
func (c *Catalog) TopicByName(name string) (*Topic, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Topics {
		if c.Topics[i].Name == name {
			return &c.Topics[i], true
		}
	}
	return nil, false
}

// TopicNames lists topic names in catalog order.
func (c *Catalog) TopicNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Topics))
	for _, t := range c.Topics {
		names = append(names, t.Name)
	}
	return names
}

// SubtopicByName searches every topic for the subtopic and returns it with its parent.
func (c *Catalog) SubtopicByName(name string) (*Subtopic, *Topic, bool) {
	if c == nil {
		return nil, nil, false
	}
	for i := range c.Topics {
		if sub, ok := c.Topics[i].Subtopic(name); ok {
			return sub, &c.Topics[i], true
		}
	}
	return nil, nil, false
}

// Subtopic returns the named subtopic of t.
func (t *Topic) Subtopic(name string) (*Subtopic, bool) {
	for i := range t.Subtopics {
		if t.Subtopics[i].Name == name {
			return &t.Subtopics[i], true
		}
	}
	return nil, false
}

// SubtopicNames lists subtopic names of t in catalog order.
func (t *Topic) SubtopicNames() []string {
	names := make([]string, 0, len(t.Subtopics))
	for _, s := range t.Subtopics {
		names = append(names, s.Name)
	}
	return names
}

// Subtopic resolves topic and subtopic names together.
func (c *Catalog) Subtopic(topic, subtopic string) (*Subtopic, bool) {
	t, ok := c.TopicByName(topic)
	if !ok {
		return nil, false
	}
	return t.Subtopic(subtopic)
}

// QuestionSetsByDifficulty returns the sets eligible for level. When no set
// of the subtopic carries a level tag every set is eligible.
func (c *Catalog) QuestionSetsByDifficulty(topic, subtopic, level string) []QuestionSet {
	sub, ok := c.Subtopic(topic, subtopic)
	if !ok {
		return nil
	}
	return sub.SetsForLevel(level)
}

// SetsForLevel filters the subtopic's sets by level; see QuestionSetsByDifficulty.
func (s *Subtopic) SetsForLevel(level string) []QuestionSet {
	tagged := false
	for _, set := range s.QuestionSets {
		if set.Level != "" {
			tagged = true
			break
		}
	}
	if !tagged {
		return append([]QuestionSet(nil), s.QuestionSets...)
	}
	var out []QuestionSet
	for _, set := range s.QuestionSets {
		if strings.EqualFold(set.Level, level) {
			out = append(out, set)
		}
	}
	return out
}

// QuestionSet resolves a set by its session identifier.
func (c *Catalog) QuestionSet(topic, subtopic, setID string) (*QuestionSet, bool) {
	sub, ok := c.Subtopic(topic, subtopic)
	if !ok {
		return nil, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(setID))
	if err != nil {
		return nil, false
	}
	for i := range sub.QuestionSets {
		if sub.QuestionSets[i].Number == n {
			return &sub.QuestionSets[i], true
		}
	}
	return nil, false
}

// QuestionAt returns the question at index within set.
func QuestionAt(set *QuestionSet, index int) (*Question, bool) {
	if set == nil || index < 0 || index >= len(set.Questions) {
		return nil, false
	}
	return &set.Questions[index], true
}

// ErrInvalidCatalog wraps every validation failure.
var ErrInvalidCatalog = errors.New("invalid catalog")

// QuestionsPerSet is the number of questions one quiz walks through.
const QuestionsPerSet = 10

// Validate checks structural rules the conversation relies on: unique
// button labels, tagged levels from the known set, full question sets and
// answerable questions.
func (c *Catalog) Validate() error {
	if c == nil || len(c.Topics) == 0 {
		return fmt.Errorf("%w: no topics", ErrInvalidCatalog)
	}
	var errs []error
	topics := make(map[string]struct{}, len(c.Topics))
	subtopics := make(map[string]string)
	for _, t := range c.Topics {
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, fmt.Errorf("topic with empty name"))
			continue
		}
		if _, dup := topics[t.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate topic %q", t.Name))
		}
		topics[t.Name] = struct{}{}
		for _, s := range t.Subtopics {
			if prev, dup := subtopics[s.Name]; dup {
				errs = append(errs, fmt.Errorf("subtopic %q appears under %q and %q", s.Name, prev, t.Name))
			}
			subtopics[s.Name] = t.Name
			errs = append(errs, validateSubtopic(t.Name, s)...)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
}

func validateSubtopic(topic string, s Subtopic) []error {
	var errs []error
	where := topic + "/" + s.Name
	if len(s.Description) == 0 {
		errs = append(errs, fmt.Errorf("%s: empty description", where))
	}
	numbers := make(map[int]struct{}, len(s.QuestionSets))
	for _, set := range s.QuestionSets {
		if _, dup := numbers[set.Number]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate set %d", where, set.Number))
		}
		numbers[set.Number] = struct{}{}
		if set.Level != "" && !IsLevel(set.Level) {
			errs = append(errs, fmt.Errorf("%s: set %d has unknown level %q", where, set.Number, set.Level))
		}
		if len(set.Questions) < QuestionsPerSet {
			errs = append(errs, fmt.Errorf("%s: set %d has %d questions, need %d",
				where, set.Number, len(set.Questions), QuestionsPerSet))
		}
		for i, q := range set.Questions {
			if len(q.Options) == 0 {
				errs = append(errs, fmt.Errorf("%s: set %d question %d has no options", where, set.Number, i))
			}
			if q.Answer.Value() == "" {
				errs = append(errs, fmt.Errorf("%s: set %d question %d has no answer", where, set.Number, i))
			}
		}
	}
	return errs
}
