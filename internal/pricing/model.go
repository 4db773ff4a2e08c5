package pricing

import (
	"fmt"
	"strings"

	"hotswap/internal/model"
)

// Model selects how a direction settles.
type Model uint8

const (
	// ModelSpot settles at the standing reserve ratio.
	ModelSpot Model = iota
	// ModelImpact settles at the hypothetical post-trade ratio.
	ModelImpact
)

func (m Model) String() string {
	switch m {
	case ModelSpot:
		return "spot"
	case ModelImpact:
		return "impact"
	default:
		return fmt.Sprintf("model(%d)", uint8(m))
	}
}

// ParseModel parses "spot" or "impact".
func ParseModel(input string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "spot":
		return ModelSpot, nil
	case "impact":
		return ModelImpact, nil
	default:
		return 0, fmt.Errorf("unknown pricing model: %q", input)
	}
}

// Quote prices a trade with the selected model.
func (m Model) Quote(r model.Reserves, nftAmount uint64, dir model.Direction) (Quote, error) {
	if m == ModelImpact {
		return Impact(r, nftAmount, dir)
	}
	return Spot(r, nftAmount, dir)
}
