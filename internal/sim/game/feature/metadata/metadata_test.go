package metadata

import (
	"encoding/json"
	"testing"
)

func TestTokenURI(t *testing.T) {
	raw := TokenURI(3, "0xabc", StatusMeltdown)
	var tok Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, raw)
	}
	if tok.Name != "The Core [Held by 0xabc]" {
		t.Fatalf("name=%q", tok.Name)
	}
	if tok.Description != "Hot Potato NFT on Arbitrum. Pass it before it melts!" {
		t.Fatalf("description=%q", tok.Description)
	}
	if len(tok.Attributes) != 2 || tok.Attributes[0].Value != StatusMeltdown {
		t.Fatalf("attributes=%+v", tok.Attributes)
	}
	if gen, _ := tok.Attributes[1].Value.(float64); gen != 3 {
		t.Fatalf("generation attribute=%v", tok.Attributes[1].Value)
	}
}
