package fixture

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jask/bountyledger/internal/remote"
)

// Sample generates n plausible open contributions for demos. The same seed
// always yields the same set relative to now.
func Sample(n int, seed int64, now time.Time) []remote.Contribution {
	rng := rand.New(rand.NewSource(seed))
	authors := []string{"alice", "bob", "carol", "dmitri", "erin", "fatima"}
	features := []string{
		"Add retry to package index fetch",
		"Harden config loader against symlinks",
		"Parallelize dependency resolution",
		"Document the plugin API",
		"Fix flaky scheduler test",
		"Support rebase merges in CLI",
	}
	bounties := []int64{0, 0, 25, 50, 100, 200, 500, 1000}

	out := make([]remote.Contribution, 0, n)
	for i := 0; i < n; i++ {
		number := 100 + i
		out = append(out, remote.Contribution{
			ID:        fmt.Sprintf("%d", number),
			Author:    authors[rng.Intn(len(authors))],
			Title:     features[rng.Intn(len(features))],
			Bounty:    bounties[rng.Intn(len(bounties))],
			Unblocks:  rng.Intn(6) == 0,
			OpenedAt:  now.Add(-time.Duration(rng.Intn(30*24)) * time.Hour).UTC().Truncate(time.Hour),
			Mergeable: rng.Intn(5) != 0,
			Branch:    "contrib/" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%d:%d", seed, number))).String()[:8],
		})
	}
	return out
}

// Encode writes cs in the format Load reads.
func Encode(w io.Writer, cs []remote.Contribution) error {
	f := file{Contributions: make([]item, 0, len(cs))}
	for _, c := range cs {
		f.Contributions = append(f.Contributions, item{
			ID: c.ID, Author: c.Author, Title: c.Title, Bounty: c.Bounty, Unblocks: c.Unblocks,
			OpenedAt: c.OpenedAt.UTC(), Mergeable: c.Mergeable, Branch: c.Branch,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("fixture: encode: %w", err)
	}
	return enc.Close()
}
