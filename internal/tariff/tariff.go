package tariff

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/wattlinehq/wattline/internal/config"
	"go.uber.org/fx"
)

var ErrInvalidUnits = errors.New("invalid_units")

// Line is the charge for one tariff band actually spanned by a reading.
type Line struct {
	FromUnits float64 `json:"from_units"`
	ToUnits   float64 `json:"to_units"`
	Units     float64 `json:"units"`
	Rate      float64 `json:"rate"`
	Amount    float64 `json:"amount"`
}

// Quote is the full costing of a unit count: per-band lines plus the total.
type Quote struct {
	Units          float64 `json:"units"`
	WheelingCharge float64 `json:"wheeling_charge"`
	Lines          []Line  `json:"lines"`
	Amount         float64 `json:"amount"`
}

// Calculator prices consumed units against the active progressive tariff
// table. It is the single costing path shared by bill generation and the
// preview endpoint.
type Calculator struct {
	tariffs *config.TariffHolder
}

func NewCalculator(tariffs *config.TariffHolder) *Calculator {
	return &Calculator{tariffs: tariffs}
}

var Module = fx.Module("tariff",
	fx.Provide(NewCalculator),
)

// Compute returns the billed amount for the given units, rounded to two
// decimal places.
func (c *Calculator) Compute(units float64) (float64, error) {
	quote, err := c.Quote(units)
	if err != nil {
		return 0, err
	}
	return quote.Amount, nil
}

// Quote prices units band by band. The wheeling charge is added uniformly to
// every band's rate.
func (c *Calculator) Quote(units float64) (Quote, error) {
	if units <= 0 {
		return Quote{}, ErrInvalidUnits
	}

	cfg := c.tariffs.Current()
	quote := Quote{
		Units:          units,
		WheelingCharge: cfg.WheelingCharge,
	}

	prev := 0.0
	remaining := units
	total := 0.0
	for _, band := range cfg.Bands {
		if remaining <= 0 {
			break
		}

		width := remaining
		upper := units
		if band.UpTo != nil {
			upper = *band.UpTo
			if width > upper-prev {
				width = upper - prev
			}
		}

		rate := band.Rate + cfg.WheelingCharge
		amount := round2(width * rate)
		quote.Lines = append(quote.Lines, Line{
			FromUnits: prev,
			ToUnits:   prev + width,
			Units:     width,
			Rate:      rate,
			Amount:    amount,
		})

		total += width * rate
		remaining -= width
		prev = upper
	}

	quote.Amount = round2(total)
	return quote, nil
}

// Describe renders the quote as a human-readable breakdown string for the
// preview response.
func (q Quote) Describe() string {
	parts := make([]string, 0, len(q.Lines)+1)
	for _, line := range q.Lines {
		parts = append(parts, fmt.Sprintf("%.0f units @ %.2f = %.2f", line.Units, line.Rate, line.Amount))
	}
	parts = append(parts, fmt.Sprintf("total = %.2f", q.Amount))
	return strings.Join(parts, "; ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
