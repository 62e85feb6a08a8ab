package metadata

import (
	"encoding/json"
	"fmt"

	"thecore.gg/internal/sim/game/model"
)

const (
	Name        = "The Arbitrum Core"
	Symbol      = "CORE"
	Description = "Hot Potato NFT on Arbitrum. Pass it before it melts!"
)

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

type Token struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Attributes  []Attribute `json:"attributes"`
}

// Status values rendered into token metadata.
const (
	StatusStable   = "STABLE"
	StatusMeltdown = "MELTDOWN"
	StatusDead     = "DEAD"
)

func Build(gen model.GenerationID, holder model.ParticipantID, status string) Token {
	return Token{
		Name:        fmt.Sprintf("The Core [Held by %s]", holder),
		Description: Description,
		Attributes: []Attribute{
			{TraitType: "Status", Value: status},
			{TraitType: "Generation", Value: uint64(gen)},
		},
	}
}

// TokenURI renders the metadata JSON document for a generation.
func TokenURI(gen model.GenerationID, holder model.ParticipantID, status string) string {
	b, err := json.Marshal(Build(gen, holder, status))
	if err != nil {
		return ""
	}
	return string(b)
}
