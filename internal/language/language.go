// Package language normalizes configured transcription languages to the
// two-letter codes the speech engine understands.
package language

import "strings"

type entry struct {
	code2 string   // ISO 639-1
	code3 string   // ISO 639-2 primary
	alt3  string   // ISO 639-2 alternate (e.g. "fre" vs "fra")
	words []string // full word forms (e.g. "english")
}

var languages = []entry{
	{"en", "eng", "", []string{"english"}},
	{"es", "spa", "", []string{"spanish"}},
	{"fr", "fra", "fre", []string{"french"}},
	{"de", "deu", "ger", []string{"german"}},
	{"it", "ita", "", []string{"italian"}},
	{"pt", "por", "", []string{"portuguese"}},
	{"ja", "jpn", "", []string{"japanese"}},
	{"ko", "kor", "", []string{"korean"}},
	{"zh", "zho", "chi", []string{"chinese"}},
	{"ru", "rus", "", []string{"russian"}},
	{"ar", "ara", "", []string{"arabic"}},
	{"hi", "hin", "", []string{"hindi"}},
	{"nl", "nld", "dut", []string{"dutch"}},
	{"pl", "pol", "", []string{"polish"}},
	{"sv", "swe", "", []string{"swedish"}},
	{"da", "dan", "", []string{"danish"}},
	{"no", "nor", "", []string{"norwegian"}},
	{"fi", "fin", "", []string{"finnish"}},
}

var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

// ToISO2 converts a recognized language code or word to ISO 639-1. Unknown
// 2-letter codes pass through so uncommon languages still reach the engine;
// anything else unrecognized returns "".
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	if len(code) == 2 {
		return code
	}
	return ""
}
