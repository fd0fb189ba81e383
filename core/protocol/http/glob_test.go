package http

import "testing"

func TestMatchGlobLiteral(t *testing.T) {
	if !MatchGlob("/api/users", "/api/users") {
		t.Fatal("expected literal match")
	}
	if MatchGlob("/api/users", "/api/user") {
		t.Fatal("expected literal mismatch")
	}
}

func TestMatchGlobQuestion(t *testing.T) {
	if !MatchGlob("/item?", "/item1") {
		t.Fatal("expected ? to match one character")
	}
	if MatchGlob("/item?", "/item") {
		t.Fatal("? must match exactly one character")
	}
}

func TestMatchGlobStarExcludesSlash(t *testing.T) {
	if !MatchGlob("/api/*", "/api/users") {
		t.Fatal("expected * to match within a segment")
	}
	if MatchGlob("/api/*", "/api/users/1") {
		t.Fatal("* must not cross a /")
	}
}

func TestMatchGlobHashCrossesSlash(t *testing.T) {
	if !MatchGlob("/api/#", "/api/users/1/edit") {
		t.Fatal("expected # to match across /")
	}
}

func TestMatchGlobAnchoredEnd(t *testing.T) {
	if MatchGlob("/api/users", "/api/users/extra") {
		t.Fatal("pattern without trailing wildcard should not match longer uri")
	}
}
