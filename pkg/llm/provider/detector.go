package provider

// Detector routes a prompt to a provider by its model identifier.
type Detector struct {
	providers []Provider
	fallback  Provider
}

// NewDetector creates a Detector over the enabled providers. Providers are
// checked in order; fallback serves prompts without a model and models no
// provider claims.
func NewDetector(fallback Provider, providers ...Provider) *Detector {
	return &Detector{
		providers: providers,
		fallback:  fallback,
	}
}

// Detect returns the provider that should serve model.
func (d *Detector) Detect(model string) Provider {
	if model == "" {
		return d.fallback
	}
	if d.fallback != nil && d.fallback.CanHandle(model) {
		return d.fallback
	}
	for _, p := range d.providers {
		if p.CanHandle(model) {
			return p
		}
	}
	return d.fallback
}

// Providers returns the fallback followed by every other enabled provider.
func (d *Detector) Providers() []Provider {
	all := make([]Provider, 0, len(d.providers)+1)
	if d.fallback != nil {
		all = append(all, d.fallback)
	}
	for _, p := range d.providers {
		if p != d.fallback {
			all = append(all, p)
		}
	}
	return all
}
