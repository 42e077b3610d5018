package common

const (
	ComponentPoller    = "poller"
	ComponentDecoder   = "decoder"
	ComponentReconcile = "reconcile"
	ComponentStore     = "store"
	ComponentRecompute = "recompute"
	ComponentRPC       = "rpc"
	ComponentAPI       = "api"
)

var AllComponents = map[string]struct{}{
	ComponentPoller:    {},
	ComponentDecoder:   {},
	ComponentReconcile: {},
	ComponentStore:     {},
	ComponentRecompute: {},
	ComponentRPC:       {},
	ComponentAPI:       {},
}
