// Package vocab holds the static ATC lookup tables used by the normalizer
// and the callsign extractor. Everything here is read-only.
package vocab

// PhoneticAlphabet maps ICAO phonetic words to their letter.
var PhoneticAlphabet = map[string]string{
	"alpha": "A", "bravo": "B", "charlie": "C", "delta": "D",
	"echo": "E", "foxtrot": "F", "golf": "G", "hotel": "H",
	"india": "I", "juliett": "J", "kilo": "K", "lima": "L",
	"mike": "M", "november": "N", "oscar": "O", "papa": "P",
	"quebec": "Q", "romeo": "R", "sierra": "S", "tango": "T",
	"uniform": "U", "victor": "V", "whiskey": "W", "xray": "X",
	"yankee": "Y", "zulu": "Z",
}

// LexicalCorrections maps recognizer mishearings to standard ATC words.
// Keys are matched whole-word and case-insensitively; multi-word keys are
// matched as a phrase. "niner" is deliberately absent: it is already
// correct ATC usage and must never be rewritten.
var LexicalCorrections = []struct {
	From string
	To   string
}{
	{"tree", "three"},
	{"fife", "five"},
	{"won", "one"},
	{"to altitude", "two altitude"},
	{"for altitude", "four altitude"},
}

// AirlineDesignators lists ICAO three-letter airline codes seen on the
// frequencies this system is pointed at. The extractor does not validate
// against this table (extraction is lexical), but the presentation layer
// uses it to resolve display names.
var AirlineDesignators = map[string]string{
	"BEL": "Brussels Airlines",
	"DLH": "Lufthansa",
	"AFR": "Air France",
	"KLM": "KLM Royal Dutch Airlines",
	"BAW": "British Airways",
	"RYR": "Ryanair",
	"EZY": "easyJet",
	"UAE": "Emirates",
	"TAP": "TAP Air Portugal",
	"SAS": "Scandinavian Airlines",
}

// RegistrationPrefixes are the national registration prefixes recognized
// by the general-aviation callsign pattern.
var RegistrationPrefixes = []string{"OO", "OE", "PH", "D", "F", "G", "LX"}

// Airports maps ICAO airport codes to display names for the frequencies
// shipped in DefaultFrequencies.
var Airports = map[string]string{
	"EBBR": "Brussels",
	"EBAW": "Antwerp",
	"EBOS": "Ostend-Bruges",
	"EBLG": "Liège",
	"EBCI": "Brussels South Charleroi",
	"EHAM": "Amsterdam Schiphol",
}

// Frequency is one published radio channel.
type Frequency struct {
	Airport string
	Label   string
	MHz     string
}

// DefaultFrequencies seeds the channel picker.
var DefaultFrequencies = []Frequency{
	{"EBBR", "Brussels Tower", "118.600"},
	{"EBBR", "Brussels Approach", "118.250"},
	{"EBBR", "Brussels Departure", "126.625"},
	{"EBAW", "Antwerp Tower", "121.855"},
	{"EBOS", "Ostend Tower", "120.605"},
	{"EBLG", "Liège Tower", "122.105"},
	{"EHAM", "Schiphol Tower", "119.225"},
}

// InstructionKeywords are phrase heads the presentation layer highlights.
var InstructionKeywords = []string{
	"cleared", "climb", "descend", "maintain", "contact", "squawk",
	"hold short", "line up and wait", "taxi", "go around", "expedite",
	"reduce speed", "turn left", "turn right", "flight level", "runway",
}
