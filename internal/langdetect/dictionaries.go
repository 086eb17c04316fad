package langdetect

import "regexp"

// languageProfile holds the lexical evidence used to score one language:
// a stop-word list (frequency-weighted), diacritic/inflection patterns,
// and a tuning weight that compensates for list size differences.
type languageProfile struct {
	words    []string
	patterns []*regexp.Regexp
	weight   float64
}

// Primary pair checked in phase 1. The extended set is only scored when
// neither primary language dominates.
var (
	primaryLanguages  = []string{"en", "es"}
	extendedLanguages = []string{"pt", "fr", "it", "de", "ca", "gl"}
)

var profiles = map[string]*languageProfile{
	"en": {
		words: []string{
			"the", "and", "for", "that", "with", "this", "from", "have",
			"are", "was", "not", "you", "all", "will", "has", "been",
			"which", "their", "there", "would",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b\w+ing\b`),
			regexp.MustCompile(`(?i)\b\w+tion\b`),
			regexp.MustCompile(`(?i)\b\w+ly\b`),
		},
		weight: 1.0,
	},
	"es": {
		words: []string{
			"que", "los", "las", "por", "con", "para", "una", "del",
			"como", "pero", "más", "este", "esta", "entre", "cuando",
			"también", "donde", "sobre", "desde", "hasta",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`[ñ¿¡]`),
			regexp.MustCompile(`(?i)\b\w+ción\b`),
			regexp.MustCompile(`(?i)\b\w+(idad|mente|ando|iendo)\b`),
		},
		weight: 1.1,
	},
	"pt": {
		words: []string{
			"que", "não", "uma", "com", "por", "para", "como", "mas",
			"dos", "das", "ele", "ela", "seu", "sua", "são", "foi",
			"mais", "quando", "muito", "também",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`[ãõ]`),
			regexp.MustCompile(`(?i)\b\w+ção\b`),
			regexp.MustCompile(`(?i)\b\w+(mente|ções|inho|inha)\b`),
		},
		weight: 1.1,
	},
	"fr": {
		words: []string{
			"les", "des", "est", "dans", "pour", "que", "une", "sur",
			"avec", "pas", "sont", "mais", "nous", "vous", "leur",
			"cette", "être", "fait", "tout", "aussi",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`[àâçèéêëîïôùûœ]`),
			regexp.MustCompile(`(?i)\b\w+(ment|tion|eur|eux)\b`),
			regexp.MustCompile(`(?i)\b(c'est|d'un|d'une|qu'il|l'on)\b`),
		},
		weight: 1.0,
	},
	"it": {
		words: []string{
			"che", "per", "con", "non", "una", "sono", "della", "nella",
			"come", "anche", "più", "questo", "questa", "degli", "delle",
			"gli", "alla", "dal", "nel", "tra", "loro",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`[àèéìòù]`),
			regexp.MustCompile(`(?i)\b\w+(zione|mente|ità)\b`),
			regexp.MustCompile(`(?i)\b(perché|più|però)\b`),
		},
		weight: 1.0,
	},
	"de": {
		words: []string{
			"der", "die", "das", "und", "ist", "nicht", "mit", "für",
			"auf", "ein", "eine", "den", "von", "sich", "auch", "werden",
			"haben", "wird", "sind", "noch",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`[äöüß]`),
			regexp.MustCompile(`(?i)\b\w+(ung|keit|heit|lich|schaft)\b`),
			regexp.MustCompile(`(?i)\b\w{12,}\b`),
		},
		weight: 1.0,
	},
	"ca": {
		words: []string{
			"que", "els", "les", "amb", "per", "una", "més", "com",
			"dels", "aquest", "aquesta", "són", "està", "quan", "també",
			"però", "fins", "sense", "molt", "seva",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`l·l`),
			regexp.MustCompile(`[àèòç]`),
			regexp.MustCompile(`(?i)\b\w+(ció|ment|tat)\b`),
		},
		weight: 0.9,
	},
	"gl": {
		words: []string{
			"que", "non", "unha", "con", "por", "para", "como", "máis",
			"dos", "das", "eles", "elas", "seu", "súa", "son", "foi",
			"cando", "moi", "tamén", "onde",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(unha|ningunha|algunha)\b`),
			regexp.MustCompile(`(?i)\b\w+ción\b`),
			regexp.MustCompile(`[áéíóú]`),
		},
		weight: 0.9,
	},
}

// iberianMarkers disambiguates the closely related Iberian languages that
// share most of their phase-1 vocabulary. Each entry maps a language to
// marker-word regexes that are strong evidence for that language alone.
var iberianMarkers = map[string][]*regexp.Regexp{
	"es": {
		regexp.MustCompile(`(?i)\b(usted|ustedes|muy|ahora|después|aquí)\b`),
		regexp.MustCompile(`[ñ]`),
		regexp.MustCompile(`(?i)\b(hay|está|están|tiene|tienen)\b`),
	},
	"pt": {
		regexp.MustCompile(`(?i)\b(você|vocês|muito|agora|depois|aqui)\b`),
		regexp.MustCompile(`[ãõ]`),
		regexp.MustCompile(`(?i)\b(há|está|estão|tem|têm|não)\b`),
	},
	"ca": {
		regexp.MustCompile(`(?i)\b(vostè|molt|ara|després|aquí|això)\b`),
		regexp.MustCompile(`l·l`),
		regexp.MustCompile(`(?i)\b(hi ha|està|estan|té|tenen)\b`),
	},
	"gl": {
		regexp.MustCompile(`(?i)\b(vostede|moi|agora|despois|aquí|iso)\b`),
		regexp.MustCompile(`(?i)\b(unha|dunha|nunha)\b`),
		regexp.MustCompile(`(?i)\b(hai|está|están|ten|teñen)\b`),
	},
}

// iberianFamily is the set of languages the marker pass applies to.
var iberianFamily = map[string]bool{"es": true, "pt": true, "ca": true, "gl": true}
