package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/courtsidelabs/parlayengine/internal/config"
	"github.com/courtsidelabs/parlayengine/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestQuoteFromGame(t *testing.T) {
	updated := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	g := domain.Game{
		ID:        "g1",
		HomePrice: intPtr(-150),
		AwayPrice: intPtr(130),
		UpdatedAt: updated,
	}

	q := quoteFromGame(g)

	assert.Equal(t, "g1", q.GameID)
	assert.Equal(t, "consensus", q.Book)
	assert.True(t, q.HasPrices())
	assert.Equal(t, -150, *q.HomePrice)
	assert.Equal(t, updated, q.FetchedAt)

	// A game the feed never priced produces an empty quote.
	empty := quoteFromGame(domain.Game{ID: "g2"})
	assert.True(t, empty.Empty())
}

func TestHasPrices(t *testing.T) {
	priced := domain.Game{HomePrice: intPtr(-110), AwayPrice: intPtr(-110)}
	halfPriced := domain.Game{HomePrice: intPtr(-110)}
	unpriced := domain.Game{}

	assert.False(t, hasPrices(nil))
	assert.False(t, hasPrices([]domain.Game{unpriced, halfPriced}))
	assert.True(t, hasPrices([]domain.Game{unpriced, priced}))
}

func TestPickSideFavorsHigherProbability(t *testing.T) {
	home := advisoryPick{prob: domain.ModelProbability{HomeProb: 0.62, AwayProb: 0.38}}
	side, prob := home.pickSide()
	assert.Equal(t, domain.PickHome, side)
	assert.Equal(t, 0.62, prob)

	away := advisoryPick{prob: domain.ModelProbability{HomeProb: 0.41, AwayProb: 0.59}}
	side, prob = away.pickSide()
	assert.Equal(t, domain.PickAway, side)
	assert.Equal(t, 0.59, prob)
}

func TestNeedsS3(t *testing.T) {
	cfg := config.Defaults()

	cfg.Mode = "settle"
	cfg.Settle.ArchiveEnabled = false
	assert.False(t, needsS3(&cfg))

	cfg.Settle.ArchiveEnabled = true
	assert.True(t, needsS3(&cfg))

	cfg.Mode = "full"
	assert.True(t, needsS3(&cfg))

	// Advise mode never archives, enabled or not.
	cfg.Mode = "advise"
	assert.False(t, needsS3(&cfg))
}
