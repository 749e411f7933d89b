package services

import (
	_ "embed"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/metrics"
)

// SimilarityThreshold is the minimum normalised Levenshtein similarity for
// a fallback match.
const SimilarityThreshold = 0.85

const matcherCacheSize = 4096

// Match stages, in cascade order.
const (
	StageID         = "id"
	StageExact      = "exact"
	StageNumber     = "number"
	StageAlias      = "alias"
	StageNameSet    = "name_set"
	StageSimilarity = "similarity"
	StageNone       = "none"
)

//go:embed set_aliases.yaml
var defaultAliasYAML []byte

// AliasTable is the versioned static mapping of external set names and card
// id prefixes onto database names.
type AliasTable struct {
	Version int                 `yaml:"version"`
	Sets    map[string][]string `yaml:"sets"`
	SetIDs  map[string][]string `yaml:"set_ids"`
}

// ParseAliasTable reads an alias table. Keys and values are lowercased.
func ParseAliasTable(data []byte) (*AliasTable, error) {
	var t AliasTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse alias table: %w", err)
	}
	if t.Version <= 0 {
		return nil, fmt.Errorf("alias table has no version")
	}
	t.Sets = lowerAliases(t.Sets)
	t.SetIDs = lowerAliases(t.SetIDs)
	return &t, nil
}

// DefaultAliasTable returns the embedded alias table.
func DefaultAliasTable() *AliasTable {
	t, err := ParseAliasTable(defaultAliasYAML)
	if err != nil {
		panic(err)
	}
	return t
}

func lowerAliases(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, vs := range in {
		key := normalizeSetName(k)
		for _, v := range vs {
			out[key] = append(out[key], normalizeSetName(v))
		}
	}
	return out
}

// MatchRecord is one side of a match: a database card or product, or an
// incoming CSV row.
type MatchRecord struct {
	ID     string
	Name   string
	Set    string
	Number string
}

// MatchResult is the outcome of Match. Record is zero when Stage is
// StageNone.
type MatchResult struct {
	Record MatchRecord
	Stage  string
	Score  float64
}

func (r MatchResult) Matched() bool {
	return r.Stage != StageNone
}

// Matcher joins records that live in different identifier spaces using
// name, set and number. Records are indexed once; queries cascade from an
// exact key to the similarity fallback.
type Matcher struct {
	aliases   *AliasTable
	threshold float64

	byID    map[string]MatchRecord
	byKey   map[string]MatchRecord
	bySet   map[string][]MatchRecord
	results *lru.Cache[string, MatchResult]
}

// NewMatcher indexes records. A nil alias table uses the embedded default.
func NewMatcher(records []MatchRecord, aliases *AliasTable) *Matcher {
	if aliases == nil {
		aliases = DefaultAliasTable()
	}
	cache, _ := lru.New[string, MatchResult](matcherCacheSize)

	m := &Matcher{
		aliases:   aliases,
		threshold: SimilarityThreshold,
		byID:      make(map[string]MatchRecord, len(records)),
		byKey:     make(map[string]MatchRecord, len(records)*2),
		bySet:     make(map[string][]MatchRecord),
		results:   cache,
	}

	for _, r := range records {
		if r.ID != "" {
			m.byID[strings.ToLower(r.ID)] = r
		}
		name := normalizeCardName(r.Name)
		set := normalizeSetName(r.Set)
		for _, num := range []string{strings.TrimSpace(r.Number), CleanCardNumber(r.Number)} {
			key := matchKey(name, set, num)
			if _, exists := m.byKey[key]; !exists {
				m.byKey[key] = r
			}
		}
		if key := matchKey(name, set, ""); m.byKey[key] == (MatchRecord{}) {
			m.byKey[key] = r
		}
		m.bySet[set] = append(m.bySet[set], r)
	}

	log.Printf("Matcher: indexed %d records in %d sets (alias table v%d)", len(records), len(m.bySet), aliases.Version)
	return m
}

// Match finds the indexed record for q. The cascade is: id (with set id
// variations), exact name||set||number, cleaned number, aliased set, name
// and set without number, then similarity within the resolved sets. A set
// name that is neither indexed nor aliased never matches.
func (m *Matcher) Match(q MatchRecord) MatchResult {
	cacheKey := strings.Join([]string{q.ID, q.Name, q.Set, q.Number}, "\x00")
	if res, ok := m.results.Get(cacheKey); ok {
		return res
	}
	res := m.match(q)
	m.results.Add(cacheKey, res)
	metrics.MatcherDecisionsTotal.WithLabelValues(res.Stage).Inc()
	return res
}

func (m *Matcher) match(q MatchRecord) MatchResult {
	if q.ID != "" {
		for _, id := range append([]string{q.ID}, m.IDVariations(q.ID)...) {
			if r, ok := m.byID[strings.ToLower(id)]; ok {
				return MatchResult{Record: r, Stage: StageID, Score: 1}
			}
		}
	}

	name := normalizeCardName(q.Name)
	set := normalizeSetName(q.Set)
	number := strings.TrimSpace(q.Number)
	cleaned := CleanCardNumber(q.Number)

	if r, ok := m.byKey[matchKey(name, set, number)]; ok && number != "" {
		return MatchResult{Record: r, Stage: StageExact, Score: 1}
	}
	if r, ok := m.byKey[matchKey(name, set, cleaned)]; ok && cleaned != "" {
		return MatchResult{Record: r, Stage: StageNumber, Score: 1}
	}

	aliased := m.aliases.Sets[set]
	for _, dbSet := range aliased {
		for _, num := range []string{number, cleaned} {
			if num == "" {
				continue
			}
			if r, ok := m.byKey[matchKey(name, dbSet, num)]; ok {
				return MatchResult{Record: r, Stage: StageAlias, Score: 1}
			}
		}
	}

	// Without a number on one side, name and set alone decide.
	for _, s := range append([]string{set}, aliased...) {
		if r, ok := m.byKey[matchKey(name, s, "")]; ok && (number == "" || strings.TrimSpace(r.Number) == "") {
			return MatchResult{Record: r, Stage: StageNameSet, Score: 1}
		}
	}

	return m.similar(q, name, append([]string{set}, aliased...))
}

// similar scores every record in the resolved sets and accepts the best one
// at or above the threshold. Every decision is logged.
func (m *Matcher) similar(q MatchRecord, name string, sets []string) MatchResult {
	var (
		best      MatchRecord
		bestScore float64
		found     bool
	)
	for _, set := range sets {
		for _, r := range m.bySet[set] {
			if cleaned := CleanCardNumber(q.Number); cleaned != "" && r.Number != "" && cleaned != CleanCardNumber(r.Number) {
				continue
			}
			score := Similarity(name+" "+set, normalizeCardName(r.Name)+" "+normalizeSetName(r.Set))
			if !found || score > bestScore {
				best, bestScore, found = r, score, true
			}
		}
	}

	if !found {
		return MatchResult{Stage: StageNone}
	}
	if bestScore < m.threshold {
		log.Printf("Matcher: rejected %q (%s) -> %q (%s), score %.3f below %.2f",
			q.Name, q.Set, best.Name, best.Set, bestScore, m.threshold)
		return MatchResult{Stage: StageNone, Score: bestScore}
	}
	log.Printf("Matcher: similarity match %q (%s) -> %q (%s), score %.3f",
		q.Name, q.Set, best.Name, best.Set, bestScore)
	return MatchResult{Record: best, Stage: StageSimilarity, Score: bestScore}
}

// IDVariations returns database card ids an external id may correspond to:
// the set prefix is mapped through the alias table and the number padded to
// three digits ("rsv10pt5-163" -> "sv10.5w-163", "sv9-5" -> "sv09-005").
func (m *Matcher) IDVariations(id string) []string {
	prefix, num, ok := strings.Cut(strings.ToLower(strings.TrimSpace(id)), "-")
	if !ok || num == "" {
		return nil
	}
	var out []string
	for _, dbPrefix := range m.aliases.SetIDs[prefix] {
		out = append(out, dbPrefix+"-"+PadCardNumber(num))
	}
	if padded := prefix + "-" + PadCardNumber(num); padded != strings.ToLower(id) {
		out = append(out, padded)
	}
	return out
}

var (
	leadingDigits  = regexp.MustCompile(`^(\d+)`)
	trailingNumber = regexp.MustCompile(`\s*-\s*\d+/?\d*$`)
)

// CleanCardNumber reduces a printed number to its integer part
// ("001/064" -> "1", "045" -> "45"). Non-numeric numbers ("SWSH050",
// "TG01") are returned trimmed.
func CleanCardNumber(number string) string {
	number = strings.TrimSpace(number)
	match := leadingDigits.FindString(number)
	if match == "" {
		return number
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return number
	}
	return strconv.Itoa(n)
}

// PadCardNumber left-pads a numeric card number to three digits.
func PadCardNumber(number string) string {
	cleaned := CleanCardNumber(number)
	if _, err := strconv.Atoi(cleaned); err != nil {
		return number
	}
	for len(cleaned) < 3 {
		cleaned = "0" + cleaned
	}
	return cleaned
}

// normalizeCardName lowercases a card name, strips a trailing
// " - 123/456" and folds the spellings that differ between sources.
func normalizeCardName(name string) string {
	name = trailingNumber.ReplaceAllString(strings.TrimSpace(name), "")
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "♀", " f")
	name = strings.ReplaceAll(name, "♂", " m")
	name = strings.ReplaceAll(name, "é", "e")
	name = strings.ReplaceAll(name, "δ", " delta")
	name = strings.ReplaceAll(name, "'", "")
	name = strings.ReplaceAll(name, "’", "")
	name = strings.ReplaceAll(name, ".", "")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

func normalizeSetName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func matchKey(name, set, number string) string {
	return name + "||" + set + "||" + number
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
