package adapter

// Registry resolves a provider identifier to its adapter. The orchestrator
// goes through this lookup instead of ever type-switching on providers; an
// empty name selects the configured default.
type Registry interface {
	Resolve(name string) (PaymentProvider, error)
	Names() []string
}
