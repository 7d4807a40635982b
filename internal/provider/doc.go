// Package provider defines synchronization providers and the capabilities
// they may offer: polling data sources, reconciling automatically, proposing
// findings for supervision and applying approved actions.
//
// Capabilities are small interfaces. The package level functions dispatch to
// a capability when the provider implements it and return ErrUnsupported
// otherwise, so callers never type assert themselves.
package provider
