package emailauth

import "sync/atomic"

// ConfigProvider caches the Config parsed from the invoker's attribute map
// and re-parses on an explicit update signal. Readers always see a complete
// snapshot: updates swap the cached value atomically and never mutate a
// Config already handed out.
type ConfigProvider struct {
	current atomic.Pointer[Config]
}

// NewConfigProvider describes the newconfigprovider operation and its observable behavior.
//
// NewConfigProvider may return an error when input validation, dependency calls, or security checks fail.
// NewConfigProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewConfigProvider(attributes map[string]string) (*ConfigProvider, error) {
	p := &ConfigProvider{}
	if err := p.Update(attributes); err != nil {
		return nil, err
	}
	return p, nil
}

// Config returns the current snapshot. The returned value is a copy; mutating
// it does not affect the provider or other readers.
func (p *ConfigProvider) Config() Config {
	return cloneConfig(*p.current.Load())
}

// Update re-parses the attribute map and swaps the snapshot. A parse failure
// leaves the previous snapshot in place.
func (p *ConfigProvider) Update(attributes map[string]string) error {
	cfg, err := ParseAttributes(attributes)
	if err != nil {
		return err
	}
	p.current.Store(&cfg)
	return nil
}
