package migrations

import "testing"

func TestNames_SortedAndEmbedded(t *testing.T) {
	names, err := Names()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	want := []string{"0001_assets_transactions.sql", "0002_settlement_reviews.sql"}
	if len(names) != len(want) {
		t.Fatalf("expected %d migrations, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("migration %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}
