package gateway

import "testing"

func TestEstimateCost_BaseCostOnly(t *testing.T) {
	got := EstimateCost(`query { shop { name } }`)
	if got != 1 {
		t.Fatalf("EstimateCost = %v, want 1", got)
	}
}

func TestEstimateCost_ConnectionArgument(t *testing.T) {
	got := EstimateCost(`query { products(first: 50) { edges { node { id } } } }`)
	// base 1 + 2*ceil(50/100)=2 + 2*1 edges block = 5
	if got != 5 {
		t.Fatalf("EstimateCost = %v, want 5", got)
	}
}

func TestEstimateCost_LargeConnectionArgument(t *testing.T) {
	got := EstimateCost(`query { products(first: 250) { edges { node { id } } } }`)
	// base 1 + 2*ceil(250/100)=6 + 2*1 edges = 9
	if got != 9 {
		t.Fatalf("EstimateCost = %v, want 9", got)
	}
}

func TestEstimateCost_MultipleConnections(t *testing.T) {
	query := `query {
		products(first: 100) { edges { node { id } } }
		collections(last: 20) { edges { node { id } } }
	}`
	got := EstimateCost(query)
	// base 1 + (2*1 + 2*1) for connection args + (2+2) for two edges blocks = 9
	if got != 9 {
		t.Fatalf("EstimateCost = %v, want 9", got)
	}
}

func TestSlimQuery_StripsComments(t *testing.T) {
	got := SlimQuery("query {\n  # a comment\n  shop { name }\n}")
	if contains(got, "#") {
		t.Fatalf("SlimQuery left a comment: %q", got)
	}
}

func TestSlimQuery_StripsPageInfoWithoutCursor(t *testing.T) {
	query := `query { products(first: 10) { pageInfo { hasNextPage } edges { node { id } } } }`
	got := SlimQuery(query)
	if contains(got, "pageInfo") {
		t.Fatalf("SlimQuery left pageInfo block without cursor arg: %q", got)
	}
}

func TestSlimQuery_KeepsPageInfoWithCursor(t *testing.T) {
	query := `query { products(first: 10, after: "abc") { pageInfo { hasNextPage } edges { node { id } } } }`
	got := SlimQuery(query)
	if !contains(got, "pageInfo") {
		t.Fatalf("SlimQuery dropped pageInfo block despite cursor arg: %q", got)
	}
}

func TestSlimQuery_StripsTypename(t *testing.T) {
	got := SlimQuery(`query { shop { __typename name } }`)
	if contains(got, "__typename") {
		t.Fatalf("SlimQuery left __typename: %q", got)
	}
}

func TestSlimQuery_CollapsesWhitespace(t *testing.T) {
	got := SlimQuery("query {\n\n  shop {   name  }\n}")
	if contains(got, "\n") || contains(got, "  ") {
		t.Fatalf("SlimQuery left redundant whitespace: %q", got)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
