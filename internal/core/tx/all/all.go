// Package all imports every transaction handler package to trigger their
// init() registrations. Import it wherever the full dispatcher is needed.
package all

import (
	_ "github.com/echelon-net/echelond/internal/core/farm"
	_ "github.com/echelon-net/echelond/internal/core/launchpad"
	_ "github.com/echelon-net/echelond/internal/core/market"
	_ "github.com/echelon-net/echelond/internal/core/nft"
	_ "github.com/echelon-net/echelond/internal/core/pool"
	_ "github.com/echelon-net/echelond/internal/core/token"
	_ "github.com/echelon-net/echelond/internal/core/witness"
)
