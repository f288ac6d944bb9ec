package providers

import (
	"fmt"

	"github.com/dmitrijs2005/listkeeper/internal/server/models"
)

// Registry resolves the Connector for a provider type. Providers are flat,
// self-contained implementations; there is no hierarchy beyond the interface.
type Registry struct {
	connectors map[models.ProviderType]Connector
}

// NewRegistry returns a registry with all built-in connectors registered.
func NewRegistry() *Registry {
	r := &Registry{connectors: map[models.ProviderType]Connector{}}
	r.Register(models.ProviderMailchimp, NewMailchimpConnector())
	r.Register(models.ProviderConvertKit, NewConvertKitConnector())
	r.Register(models.ProviderMailerLite, NewMailerLiteConnector())
	return r
}

// Register adds or replaces the connector for a provider type.
func (r *Registry) Register(p models.ProviderType, c Connector) {
	r.connectors[p] = c
}

// Get returns the connector for a provider type.
func (r *Registry) Get(p models.ProviderType) (Connector, error) {
	c, ok := r.connectors[p]
	if !ok {
		return nil, fmt.Errorf("unsupported provider %q", p)
	}
	return c, nil
}
