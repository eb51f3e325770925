package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	slugStrip   = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces  = regexp.MustCompile(`[\s_]+`)
	slugHyphens = regexp.MustCompile(`-+`)
	sizePattern = regexp.MustCompile(`(\d+\.?\d*)\s*[xX×]\s*(\d+)`)
)

// brandAliases is scanned in order; the first alias contained in the upper-cased input wins,
// so longer aliases must precede their substrings.
var brandAliases = []struct {
	alias string
	name  string
}{
	{"1875 BY ROMEO Y JULIETA", "Romeo y Julieta"},
	{"ROMEO Y JULIETA", "Romeo y Julieta"},
	{"H. UPMANN", "H. Upmann"},
	{"MONTECRISTO", "Montecristo"},
	{"HOYO DE MONTERREY", "Hoyo de Monterrey"},
	{"ARTURO FUENTE", "Arturo Fuente"},
	{"LA FLOR DOMINICANA", "La Flor Dominicana"},
	{"MY FATHER", "My Father"},
	{"DREW ESTATE", "Drew Estate"},
	{"J.C. NEWMAN", "J.C. Newman"},
	{"CUESTA-REY", "Cuesta-Rey"},
	{"OLIVA", "Oliva"},
	{"PADRÓN", "Padron"},
	{"PADRON", "Padron"},
	{"ROCKY PATEL", "Rocky Patel"},
	{"A.J. FERNANDEZ", "AJ Fernandez"},
	{"AJ FERNANDEZ", "AJ Fernandez"},
	{"FOUNDATION", "Foundation"},
	{"ASHTON", "Ashton"},
	{"DAVIDOFF", "Davidoff"},
	{"PERDOMO", "Perdomo"},
	{"ESPINOSA", "Espinosa"},
	{"PLASENCIA", "Plasencia"},
	{"LA AURORA", "La Aurora"},
	{"LIGA PRIVADA", "Liga Privada"},
	{"UNDERCROWN", "Undercrown"},
	{"HERRERA ESTELI", "Herrera Esteli"},
	{"DEADWOOD", "Deadwood"},
	{"PUNCH", "Punch"},
	{"ACID", "Acid"},
}

// shortBrandCodes only match the whole input; as substrings they would hit unrelated names.
var shortBrandCodes = map[string]string{
	"AF":  "Arturo Fuente",
	"LFD": "La Flor Dominicana",
	"JCN": "J.C. Newman",
	"CR":  "Cuesta-Rey",
}

// Slugify lowers text and collapses it into a URL-safe, hyphen separated token.
func Slugify(text string) string {
	slug := strings.ToLower(strings.TrimSpace(text))
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugSpaces.ReplaceAllString(slug, "-")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// NormalizeBrand maps manufacturer spellings onto canonical brand names.
func NormalizeBrand(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	upper := strings.ToUpper(name)
	if canonical, ok := shortBrandCodes[upper]; ok {
		return canonical
	}
	for _, entry := range brandAliases {
		if strings.Contains(upper, entry.alias) {
			return entry.name
		}
	}
	return titleCase(name)
}

// FullName joins brand, line and vitola the way the catalog displays cigars.
func FullName(brand, line, vitola string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{brand, line, vitola} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ParseSize extracts length in inches and ring gauge from strings like "5 x 50" or "6 1/8x52".
// Values outside plausible ranges are repaired when swapped and dropped otherwise.
func ParseSize(size string) (*decimal.Decimal, *int) {
	match := sizePattern.FindStringSubmatch(size)
	if match == nil {
		return nil, nil
	}

	first, err := decimal.NewFromString(match[1])
	if err != nil {
		return nil, nil
	}
	second, err := decimal.NewFromString(match[2])
	if err != nil {
		return nil, nil
	}

	length, ring := first, second
	switch {
	case length.GreaterThan(decimal.NewFromInt(15)) && ring.LessThan(decimal.NewFromInt(15)):
		length, ring = ring, length
	case length.GreaterThan(decimal.NewFromInt(30)) && ring.GreaterThan(decimal.NewFromInt(30)):
		return nil, nil
	}

	if length.GreaterThan(decimal.NewFromInt(12)) || ring.LessThan(decimal.NewFromInt(15)) || ring.GreaterThan(decimal.NewFromInt(80)) {
		return nil, nil
	}

	gauge := int(ring.IntPart())
	return &length, &gauge
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
