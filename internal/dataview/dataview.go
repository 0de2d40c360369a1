package dataview

import "strings"

// Category is one of the fixed personal-data views the store can serve.
type Category string

const (
	CategoryAboutMe     Category = "about_me"
	CategoryPreferences Category = "preferences"
	CategoryFacts       Category = "facts"
	CategoryHistory     Category = "history"
	CategoryUnknown     Category = "unknown"
)

// stopwords are subtracted from the keyword set during normalization:
// articles, pronouns, auxiliary verbs, and generic query words that carry
// no category signal.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
	"i": {}, "me": {}, "my": {}, "mine": {}, "you": {}, "your": {}, "yours": {},
	"we": {}, "our": {}, "it": {}, "its": {}, "they": {}, "them": {}, "their": {},
	"this": {}, "that": {}, "these": {}, "those": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"do": {}, "does": {}, "did": {}, "have": {}, "has": {}, "had": {},
	"can": {}, "could": {}, "will": {}, "would": {}, "should": {},
	"what": {}, "which": {}, "who": {}, "when": {}, "where": {}, "how": {},
	"show": {}, "list": {}, "tell": {}, "give": {}, "get": {}, "about": {},
	"all": {}, "any": {}, "some": {}, "please": {},
	"of": {}, "to": {}, "for": {}, "in": {}, "on": {}, "at": {}, "with": {},
	"and": {}, "or": {}, "saved": {}, "stored": {},
}

type record struct {
	category Category
	phrases  []string
	keywords []string
}

// records are evaluated in order. about_me comes first because its phrases
// are broader and would otherwise be shadowed by the keyword categories.
var records = []record{
	{
		category: CategoryAboutMe,
		phrases: []string{
			"what do you know about me",
			"know about me",
			"about me",
			"who am i",
		},
		keywords: []string{"myself", "profile"},
	},
	{
		category: CategoryPreferences,
		phrases: []string{
			"my preferences",
			"user preferences",
			"preferences have i",
		},
		keywords: []string{"preferences", "preference", "settings"},
	},
	{
		category: CategoryFacts,
		phrases: []string{
			"list my facts",
			"all facts",
			"what facts",
		},
		keywords: []string{"facts", "fact"},
	},
	{
		category: CategoryHistory,
		phrases: []string{
			"interaction history",
			"list history",
			"asked you before",
		},
		keywords: []string{"history", "interactions", "conversations"},
	},
}

// Normalize lower-cases the text, strips punctuation, and returns the clean
// text plus its keyword set with stopwords removed.
func Normalize(text string) (string, map[string]struct{}) {
	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '\t', r == '\n':
			builder.WriteRune(r)
		default:
			builder.WriteRune(' ')
		}
	}
	clean := strings.Join(strings.Fields(builder.String()), " ")

	keywords := map[string]struct{}{}
	for _, token := range strings.Fields(clean) {
		if _, stop := stopwords[token]; stop {
			continue
		}
		keywords[token] = struct{}{}
	}
	return clean, keywords
}

// Categorize maps free text to a personal-data view. Total: every input
// yields exactly one category. Phrase matches win over keyword matches and
// both passes respect record order.
func Categorize(text string) Category {
	clean, keywords := Normalize(text)

	for _, rec := range records {
		for _, phrase := range rec.phrases {
			if strings.Contains(clean, phrase) {
				return rec.category
			}
		}
	}
	for _, rec := range records {
		for _, keyword := range rec.keywords {
			if _, ok := keywords[keyword]; ok {
				return rec.category
			}
		}
	}
	return CategoryUnknown
}
