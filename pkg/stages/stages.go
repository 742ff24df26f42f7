// Package stages assembles the built-in stage set against a contract
// registry. Each stage lives in its own subpackage; this package only
// maps contract ids to constructors.
package stages

import (
	"fmt"

	"github.com/stemforge/stemforge/pkg/contract"
	"github.com/stemforge/stemforge/pkg/stages/buscomp"
	"github.com/stemforge/stemforge/pkg/stages/limiter"
	"github.com/stemforge/stemforge/pkg/stages/loudness"
	"github.com/stemforge/stemforge/pkg/stages/normalize"
	"github.com/stemforge/stemforge/pkg/stages/spectral"
	"github.com/stemforge/stemforge/pkg/stages/stage"
	"github.com/stemforge/stemforge/pkg/stages/stemeq"
	"github.com/stemforge/stemforge/pkg/stages/stemgain"
	"github.com/stemforge/stemforge/pkg/stages/stereoimage"
	"github.com/stemforge/stemforge/pkg/stages/tempokey"
)

// builders maps contract ids to stage constructors.
var builders = map[string]func(contract.Contract) stage.Stage{
	"normalize":   func(c contract.Contract) stage.Stage { return normalize.New(c) },
	"loudness":    func(c contract.Contract) stage.Stage { return loudness.New(c) },
	"spectral":    func(c contract.Contract) stage.Stage { return spectral.New(c) },
	"tempokey":    func(c contract.Contract) stage.Stage { return tempokey.New(c) },
	"stemgain":    func(c contract.Contract) stage.Stage { return stemgain.New(c) },
	"stemeq":      func(c contract.Contract) stage.Stage { return stemeq.New(c) },
	"buscomp":     func(c contract.Contract) stage.Stage { return buscomp.New(c) },
	"stereoimage": func(c contract.Contract) stage.Stage { return stereoimage.New(c) },
	"limiter":     func(c contract.Contract) stage.Stage { return limiter.New(c) },
}

// BuildRegistry instantiates every stage the contract registry names.
// A contract without a matching builder is an error: contracts and
// implementations must ship together.
func BuildRegistry(contracts *contract.Registry) (*stage.Registry, error) {
	all := contracts.AllInOrder()
	built := make([]stage.Stage, 0, len(all))

	for _, c := range all {
		builder, ok := builders[c.ID]
		if !ok {
			return nil, fmt.Errorf("no implementation for stage %q: %w", c.ID, contract.ErrUnknownStage)
		}

		built = append(built, builder(c))
	}

	return stage.NewRegistry(built...)
}
