package contract

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var contractSchema string

//go:embed contracts.json
var defaultContracts []byte

// document is the top-level shape of a contract file.
type document struct {
	Stages map[string]Contract `json:"stages"`
}

// Registry serves immutable stage contracts with deterministic ordering.
type Registry struct {
	ordered []Contract
	index   map[string]Contract
}

// Load parses and validates a contract document.
func Load(r io.Reader) (*Registry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read contracts: %w", err)
	}

	return loadBytes(raw)
}

// LoadFile loads a contract document from disk.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contracts %s: %w", path, err)
	}

	return loadBytes(raw)
}

// Default returns the registry built from the embedded contract set.
func Default() (*Registry, error) {
	return loadBytes(defaultContracts)
}

func loadBytes(raw []byte) (*Registry, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var doc document

	err := json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("decode contracts: %w", err)
	}

	return newRegistry(doc)
}

// validateSchema checks the raw document against the embedded JSON Schema
// before decoding, so malformed files fail with a precise message.
func validateSchema(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(contractSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidContract, err)
	}

	if !result.Valid() {
		first := result.Errors()[0]

		return fmt.Errorf("%w: %s: %s", ErrInvalidContract, first.Field(), first.Description())
	}

	return nil
}

func newRegistry(doc document) (*Registry, error) {
	ordered := make([]Contract, 0, len(doc.Stages))
	index := make(map[string]Contract, len(doc.Stages))

	for key, c := range doc.Stages {
		if c.ID == "" {
			c.ID = key
		}

		if !c.Kind.Valid() {
			return nil, fmt.Errorf("%w: stage %s has kind %q", ErrInvalidContract, c.ID, c.Kind)
		}

		if _, dup := index[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate stage id %s", ErrInvalidContract, c.ID)
		}

		index[c.ID] = c
		ordered = append(ordered, c)
	}

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Ordinal != ordered[j].Ordinal {
			return ordered[i].Ordinal < ordered[j].Ordinal
		}

		return ordered[i].ID < ordered[j].ID
	})

	// Dependencies must reference declared stages.
	for _, c := range ordered {
		for _, dep := range c.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, fmt.Errorf("%w: stage %s depends on undeclared %s", ErrInvalidContract, c.ID, dep)
			}
		}
	}

	return &Registry{ordered: ordered, index: index}, nil
}

// Get returns the contract for the given stage id.
func (r *Registry) Get(stageID string) (Contract, error) {
	c, ok := r.index[stageID]
	if !ok {
		return Contract{}, fmt.Errorf("%w: %s", ErrUnknownStage, stageID)
	}

	return c, nil
}

// AllInOrder returns every contract sorted by ordinal, ties broken by id.
func (r *Registry) AllInOrder() []Contract {
	out := make([]Contract, len(r.ordered))
	copy(out, r.ordered)

	return out
}

// Len returns the number of declared stages.
func (r *Registry) Len() int {
	return len(r.ordered)
}
