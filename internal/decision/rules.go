package decision

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"compliancelab/internal/regulatory"
)

//go:embed rules.yaml
var defaultRules []byte

// Wildcard matches any value in a rule field.
const Wildcard = "*"

// AttestationRule contributes attestations when state, intent and practice
// type all match. Empty or "*" fields match anything.
type AttestationRule struct {
	ID             string        `yaml:"id"`
	State          string        `yaml:"state"`
	PurchaseIntent string        `yaml:"purchase_intent"`
	PracticeType   string        `yaml:"practice_type"`
	Attestations   []Attestation `yaml:"attestations"`
}

// BlockingRule refuses checkout for a purchase intent when the quantity falls
// below MinQuantity or above MaxQuantity. Zero bounds are unset.
type BlockingRule struct {
	ID             string `yaml:"id"`
	PurchaseIntent string `yaml:"purchase_intent"`
	MinQuantity    int    `yaml:"min_quantity"`
	MaxQuantity    int    `yaml:"max_quantity"`
}

// Block is one blocking rule that fired.
type Block struct {
	RuleID string
	Reason Reason
}

// RuleTable is the immutable jurisdiction/intent rule set.
type RuleTable struct {
	KnownPurchaseIntents []string          `yaml:"known_purchase_intents"`
	AttestationRules     []AttestationRule `yaml:"attestation_rules"`
	BlockingRules        []BlockingRule    `yaml:"blocking_rules"`
}

// ParseRules decodes and validates a YAML rule document.
func ParseRules(data []byte) (*RuleTable, error) {
	var rt RuleTable
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := rt.validate(); err != nil {
		return nil, err
	}
	return &rt, nil
}

// DefaultRules returns the embedded rule table.
func DefaultRules() (*RuleTable, error) {
	return ParseRules(defaultRules)
}

// LoadRulesFile reads a rule document from disk.
func LoadRulesFile(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// validate rejects tables where one rule could silently shadow another:
// every rule id must be unique across both rule kinds.
func (rt *RuleTable) validate() error {
	seen := make(map[string]struct{})
	claim := func(id string) error {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("rule id is required")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate rule id %q", id)
		}
		seen[id] = struct{}{}
		return nil
	}

	for _, r := range rt.AttestationRules {
		if err := claim(r.ID); err != nil {
			return err
		}
		for _, a := range r.Attestations {
			if a.ID == "" {
				return fmt.Errorf("rule %q: attestation id is required", r.ID)
			}
		}
	}
	for _, r := range rt.BlockingRules {
		if err := claim(r.ID); err != nil {
			return err
		}
		if r.PurchaseIntent == "" {
			return fmt.Errorf("rule %q: purchase_intent is required", r.ID)
		}
		if r.MinQuantity < 0 || r.MaxQuantity < 0 {
			return fmt.Errorf("rule %q: quantity bounds must be non-negative", r.ID)
		}
		if r.MaxQuantity > 0 && r.MinQuantity > r.MaxQuantity {
			return fmt.Errorf("rule %q: min_quantity exceeds max_quantity", r.ID)
		}
	}
	return nil
}

// AttestationsFor unions the attestations of every matching rule by id, in
// rule order. The first occurrence of an id wins.
func (rt *RuleTable) AttestationsFor(req LicenseRequest) []Attestation {
	out := []Attestation{}
	seen := make(map[string]struct{})
	for _, r := range rt.AttestationRules {
		if !matchField(r.State, req.State) ||
			!matchField(r.PurchaseIntent, req.PurchaseIntent) ||
			!matchField(r.PracticeType, req.PracticeType) {
			continue
		}
		for _, a := range r.Attestations {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			if a.Jurisdiction == "" {
				a.Jurisdiction = ruleJurisdiction(r.State)
			}
			a.Text = strings.TrimSpace(a.Text)
			out = append(out, a)
		}
	}
	return out
}

// BlocksFor returns every blocking rule that fires for req, in rule order.
func (rt *RuleTable) BlocksFor(req LicenseRequest) []Block {
	var out []Block
	for _, r := range rt.BlockingRules {
		if !matchField(r.PurchaseIntent, req.PurchaseIntent) {
			continue
		}
		switch {
		case r.MinQuantity > 0 && req.Quantity < r.MinQuantity:
			out = append(out, Block{RuleID: r.ID, Reason: ReasonUnderThreshold})
		case r.MaxQuantity > 0 && req.Quantity > r.MaxQuantity:
			out = append(out, Block{RuleID: r.ID, Reason: ReasonOverThreshold})
		}
	}
	return out
}

// KnowsIntent reports whether intent is listed or referenced by any rule.
func (rt *RuleTable) KnowsIntent(intent string) bool {
	for _, k := range rt.KnownPurchaseIntents {
		if strings.EqualFold(k, intent) {
			return true
		}
	}
	for _, r := range rt.AttestationRules {
		if r.PurchaseIntent != Wildcard && strings.EqualFold(r.PurchaseIntent, intent) {
			return true
		}
	}
	for _, r := range rt.BlockingRules {
		if strings.EqualFold(r.PurchaseIntent, intent) {
			return true
		}
	}
	return false
}

func matchField(pattern, value string) bool {
	if pattern == "" || pattern == Wildcard {
		return true
	}
	return strings.EqualFold(pattern, value)
}

func ruleJurisdiction(state string) string {
	if state == "" || state == Wildcard {
		return regulatory.JurisdictionFederal
	}
	return strings.ToUpper(state)
}
