package domain

import "testing"

func TestParseExternalID(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"tt0111161", true},
		{"  tt0903747 ", true},
		{"", false},
		{"tt01/episodes", false},
		{"tt01?x=1", false},
		{"tt 01", false},
	}
	for _, tc := range cases {
		_, ok := ParseExternalID(tc.in)
		if ok != tc.ok {
			t.Fatalf("ParseExternalID(%q) ok=%v，期望 %v", tc.in, ok, tc.ok)
		}
	}
}

func TestMediaRecord_KindDeterminesDetails(t *testing.T) {
	movie := MediaRecord{Kind: KindMovie, Movie: &MovieDetails{Runtime: "2h22min"}}
	if err := movie.Validate(); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rt, ok := movie.Runtime(); !ok || rt != "2h22min" {
		t.Fatalf("runtime 不符合预期：%q ok=%v", rt, ok)
	}
	if _, ok := movie.SeasonCount(); ok {
		t.Fatalf("movie 不应有 season count")
	}

	series := MediaRecord{Kind: KindSeries, Series: &SeriesDetails{SeasonCount: 5, EpisodeCount: 62}}
	if err := series.Validate(); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, ok := series.Runtime(); ok {
		t.Fatalf("series 不应有 runtime")
	}
	if n, ok := series.EpisodeCount(); !ok || n != 62 {
		t.Fatalf("episode count 不符合预期：%d ok=%v", n, ok)
	}

	both := MediaRecord{Kind: KindSeries, Movie: &MovieDetails{}, Series: &SeriesDetails{}}
	if err := both.Validate(); err == nil {
		t.Fatalf("同时包含 movie/series 字段时应报错")
	}
}

func TestMediaRecord_ValidateRejectsEmptyRole(t *testing.T) {
	m := MediaRecord{Kind: KindMovie, Movie: &MovieDetails{}, Cast: []CastMember{{Actor: "A", Role: ""}}}
	if err := m.Validate(); err == nil {
		t.Fatalf("空 role 应报错")
	}
}
