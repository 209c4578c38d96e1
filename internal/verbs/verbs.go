// Package verbs implements the conjugator (spec.md C2): given a base
// verb it derives the action/activity/event triple plus the reverse
// relation names a schema attaches to every verb definition.
package verbs

import "strings"

// Conjugation is the full derived form set for one base verb.
type Conjugation struct {
	Action      string `json:"action"`
	Activity    string `json:"activity"`
	Event       string `json:"event"`
	ReverseBy   string `json:"reverseBy"`
	ReverseAt   string `json:"reverseAt"`
	ThirdPerson string `json:"thirdPerson"`
}

var vowels = "aeiou"

// irregular holds verbs whose gerund/past-participle don't follow the
// regular suffix rules. Consulted before any rule is applied.
var irregular = map[string]Conjugation{
	"be":    {Action: "be", Activity: "being", Event: "been", ThirdPerson: "is"},
	"do":    {Action: "do", Activity: "doing", Event: "done", ThirdPerson: "does"},
	"go":    {Action: "go", Activity: "going", Event: "gone", ThirdPerson: "goes"},
	"have":  {Action: "have", Activity: "having", Event: "had", ThirdPerson: "has"},
	"make":  {Action: "make", Activity: "making", Event: "made", ThirdPerson: "makes"},
	"send":  {Action: "send", Activity: "sending", Event: "sent", ThirdPerson: "sends"},
	"build": {Action: "build", Activity: "building", Event: "built", ThirdPerson: "builds"},
	"win":   {Action: "win", Activity: "winning", Event: "won", ThirdPerson: "wins"},
	"lose":  {Action: "lose", Activity: "losing", Event: "lost", ThirdPerson: "loses"},
	"buy":   {Action: "buy", Activity: "buying", Event: "bought", ThirdPerson: "buys"},
	"pay":   {Action: "pay", Activity: "paying", Event: "paid", ThirdPerson: "pays"},
}

// Conjugate derives the full form set for a lowercase base verb.
func Conjugate(base string) Conjugation {
	base = strings.ToLower(strings.TrimSpace(base))
	if c, ok := irregular[base]; ok {
		c.ReverseBy = c.Event + "By"
		c.ReverseAt = c.Event + "At"
		return c
	}
	event := pastParticiple(base)
	c := Conjugation{
		Action:      base,
		Activity:    gerund(base),
		Event:       event,
		ThirdPerson: thirdPerson(base),
	}
	c.ReverseBy = event + "By"
	c.ReverseAt = event + "At"
	return c
}

func isVowel(b byte) bool { return strings.IndexByte(vowels, b) >= 0 }

func endsInAny(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// isCVC reports whether word ends consonant-vowel-consonant, excluding
// a trailing w/x/y which never doubles.
func isCVC(word string) bool {
	if len(word) < 3 {
		return false
	}
	a, b, c := word[len(word)-3], word[len(word)-2], word[len(word)-1]
	if isVowel(a) || !isVowel(b) || isVowel(c) {
		return false
	}
	if c == 'w' || c == 'x' || c == 'y' {
		return false
	}
	return true
}

func thirdPerson(base string) string {
	if endsInAny(base, "s", "x", "z", "ch", "sh") {
		return base + "es"
	}
	if n := len(base); n >= 2 && base[n-1] == 'y' && !isVowel(base[n-2]) {
		return base[:n-1] + "ies"
	}
	return base + "s"
}

func gerund(base string) string {
	if strings.HasSuffix(base, "ee") {
		return base + "ing"
	}
	if strings.HasSuffix(base, "e") {
		return base[:len(base)-1] + "ing"
	}
	if strings.HasSuffix(base, "ie") {
		return base[:len(base)-2] + "ying"
	}
	if isCVC(base) && len(base) <= 6 {
		return base + string(base[len(base)-1]) + "ing"
	}
	return base + "ing"
}

func pastParticiple(base string) string {
	if strings.HasSuffix(base, "e") {
		return base + "d"
	}
	if n := len(base); n >= 2 && base[n-1] == 'y' && !isVowel(base[n-2]) {
		return base[:n-1] + "ied"
	}
	if isCVC(base) && len(base) <= 6 {
		return base + string(base[len(base)-1]) + "ed"
	}
	return base + "ed"
}
