package services

import (
	"reflect"
	"testing"
)

func testMatcher() *Matcher {
	return NewMatcher([]MatchRecord{
		{ID: "sv10.5w-012", Name: "Charizard ex", Set: "SV: White Flare", Number: "012/086"},
		{ID: "sv10.5w-045", Name: "Reshiram", Set: "SV: White Flare", Number: "045/086"},
		{ID: "sv09-005", Name: "Pikachu", Set: "Journey Together", Number: "5"},
		{ID: "base1-4", Name: "Charizard", Set: "Base", Number: "4"},
	}, nil)
}

func TestMatcherCascade(t *testing.T) {
	m := testMatcher()

	tests := []struct {
		name      string
		query     MatchRecord
		wantID    string
		wantStage string
	}{
		{"exact", MatchRecord{Name: "Charizard", Set: "Base", Number: "4"}, "base1-4", StageExact},
		{"raw printed number", MatchRecord{Name: "Reshiram", Set: "SV: White Flare", Number: "045/086"}, "sv10.5w-045", StageExact},
		{"cleaned number", MatchRecord{Name: "Pikachu", Set: "Journey Together", Number: "005/190"}, "sv09-005", StageNumber},
		{"alias set", MatchRecord{Name: "Charizard ex", Set: "White Flare", Number: "12"}, "sv10.5w-012", StageAlias},
		{"name and set without number", MatchRecord{Name: "Charizard ex - 012/086", Set: "SV: White Flare"}, "sv10.5w-012", StageNameSet},
		{"id", MatchRecord{ID: "BASE1-4"}, "base1-4", StageID},
		{"id variation", MatchRecord{ID: "rsv10pt5-12"}, "sv10.5w-012", StageID},
		{"similarity", MatchRecord{Name: "Charizrd ex", Set: "SV: White Flare"}, "sv10.5w-012", StageSimilarity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(tt.query)
			if got.Stage != tt.wantStage || got.Record.ID != tt.wantID {
				t.Errorf("Match(%+v) = (%q, %q), want (%q, %q)", tt.query, got.Record.ID, got.Stage, tt.wantID, tt.wantStage)
			}
		})
	}
}

func TestMatcherWhiteFlareAlias(t *testing.T) {
	m := NewMatcher([]MatchRecord{{ID: "1", Name: "Zekrom", Set: "SV: White Flare", Number: "30"}}, nil)

	got := m.Match(MatchRecord{Name: "Zekrom", Set: "White Flare", Number: "030"})
	if !got.Matched() || got.Record.Set != "SV: White Flare" {
		t.Errorf("expected White Flare to resolve to SV: White Flare, got %+v", got)
	}
}

func TestMatcherNoFalsePositives(t *testing.T) {
	m := testMatcher()

	tests := []struct {
		name  string
		query MatchRecord
	}{
		{"unmapped set", MatchRecord{Name: "Charizard ex", Set: "Mystery Set", Number: "12"}},
		{"dissimilar name", MatchRecord{Name: "Mewtwo", Set: "SV: White Flare"}},
		{"number mismatch", MatchRecord{Name: "Charizard ex", Set: "SV: White Flare", Number: "99"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Match(tt.query); got.Matched() {
				t.Errorf("Match(%+v) = %+v, want no match", tt.query, got)
			}
		})
	}
}

func TestIDVariations(t *testing.T) {
	m := testMatcher()

	tests := []struct {
		id   string
		want []string
	}{
		{"rsv10pt5-163", []string{"sv10.5w-163"}},
		{"zsv10pt5-7", []string{"sv10.5b-007", "zsv10pt5-007"}},
		{"sv9-5", []string{"sv09-005", "sv9-005"}},
		{"base1-004", nil},
		{"nodash", nil},
	}

	for _, tt := range tests {
		if got := m.IDVariations(tt.id); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("IDVariations(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestCleanCardNumber(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"001/064", "1"},
		{"045", "45"},
		{"12", "12"},
		{"TG01", "TG01"},
		{" 7 ", "7"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CleanCardNumber(tt.in); got != tt.want {
			t.Errorf("CleanCardNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPadCardNumber(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1", "001"},
		{"45", "045"},
		{"163", "163"},
		{"1000", "1000"},
		{"SWSH050", "SWSH050"},
	}

	for _, tt := range tests {
		if got := PadCardNumber(tt.in); got != tt.want {
			t.Errorf("PadCardNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("abc", "abc"); got != 1 {
		t.Errorf("Similarity(equal) = %v, want 1", got)
	}
	if got := Similarity("", ""); got != 1 {
		t.Errorf("Similarity(empty) = %v, want 1", got)
	}
	if got := Similarity("abcd", "abce"); got != 0.75 {
		t.Errorf("Similarity(abcd, abce) = %v, want 0.75", got)
	}
}

func TestParseAliasTableRequiresVersion(t *testing.T) {
	if _, err := ParseAliasTable([]byte("sets:\n  a: [b]\n")); err == nil {
		t.Error("expected error for alias table without version")
	}

	table, err := ParseAliasTable([]byte("version: 2\nsets:\n  White Flare: [\"SV: White Flare\"]\n"))
	if err != nil {
		t.Fatalf("ParseAliasTable() error: %v", err)
	}
	if got := table.Sets["white flare"]; len(got) != 1 || got[0] != "sv: white flare" {
		t.Errorf("Sets[white flare] = %v", got)
	}
}

func TestDefaultAliasTable(t *testing.T) {
	table := DefaultAliasTable()
	if table.Version < 1 {
		t.Errorf("Version = %d", table.Version)
	}
	if got := table.Sets["151"]; len(got) == 0 || got[0] != "sv: scarlet & violet 151" {
		t.Errorf("Sets[151] = %v", got)
	}
}
