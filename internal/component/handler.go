package component

// Handler is the stateless HTTP variant of §4.1: it owns no record-store
// table and contributes whatever endpoints its constructor declared via the
// EndpointSpec builder (Design Notes §9).
type Handler struct {
	Base
	endpoints []EndpointSpec
}

// NewHandler builds a Handler with a fixed endpoint list.
func NewHandler(name, endpoint string, endpoints []EndpointSpec) *Handler {
	return &Handler{
		Base:      Base{Name: name, Variant: VariantHandler, Endpoint: endpoint},
		endpoints: endpoints,
	}
}

func (h *Handler) Endpoints() []EndpointSpec { return h.endpoints }

var _ Servable = (*Handler)(nil)
