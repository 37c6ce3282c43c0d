// Package ruleset parses the rule-set document consumed by the loader
// and flattens it into the four-slot RULE_SET policy vector read by
// pkg/egress and pkg/ingress. The document schema is grounded on the
// original Rust loader's serde_yaml rule-set structure.
package ruleset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Traffic is the direction a rule applies to.
type Traffic string

const (
	Outbound Traffic = "outbound"
	Inbound  Traffic = "inbound"
)

// Medium is the protocol/attack-stage a rule applies to.
type Medium string

const (
	MediumTCP      Medium = "tcp"
	MediumHTTP     Medium = "http"
	MediumLDAP     Medium = "ldap"
	MediumJNDI     Medium = "jndi"
	MediumJNDILDAP Medium = "jndi:ldap"
)

// Block is the enforcement mode for a rule.
type Block string

const (
	BlockNone    Block = ""
	BlockLookup  Block = "lookup"
	BlockRequest Block = "request"
	BlockAlways  Block = "always"
)

// Rule is one (traffic, medium, block) tuple from the document.
type Rule struct {
	Traffic Traffic `yaml:"traffic_type"`
	Medium  Medium  `yaml:"medium"`
	Block   Block   `yaml:"block_type"`
}

// Document is the top-level rule-set document shape.
type Document struct {
	LogType           string `yaml:"log_type"`
	JNDIPayloadHeader string `yaml:"jndi_payload_header"`
	Block             []Rule `yaml:"block"`
}

// Set is the flattened four-slot RULE_SET policy vector.
//
//	[0] outbound/tcp -> 1, outbound/http -> 2
//	[1] outbound/ldap -> 1
//	[2] inbound/jndi: lookup -> 1, request -> 2
//	[3] inbound/jndi:ldap: lookup -> 1, request -> 2
type Set [4]uint32

// Load reads and parses a rule-set document from path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("ruleset: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a rule-set document from raw YAML bytes.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("ruleset: decode: %w", err)
	}
	if doc.JNDIPayloadHeader == "" {
		return Document{}, fmt.Errorf("ruleset: jndi_payload_header is required")
	}
	return doc, nil
}

// Flatten derives the RULE_SET[4] policy vector from the document's
// block rules, per the slot table in the external-interfaces section.
func (d Document) Flatten() Set {
	var s Set
	for _, r := range d.Block {
		switch {
		case r.Traffic == Outbound && r.Medium == MediumTCP:
			s[0] = 1
		case r.Traffic == Outbound && r.Medium == MediumHTTP:
			s[0] = 2
		case r.Traffic == Outbound && r.Medium == MediumLDAP:
			s[1] = 1
		case r.Traffic == Inbound && r.Medium == MediumJNDI:
			s[2] = blockSlotValue(r.Block)
		case r.Traffic == Inbound && r.Medium == MediumJNDILDAP:
			s[3] = blockSlotValue(r.Block)
		}
	}
	return s
}

func blockSlotValue(b Block) uint32 {
	switch b {
	case BlockLookup:
		return 1
	case BlockRequest:
		return 2
	default:
		return 0
	}
}
