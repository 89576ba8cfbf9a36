package config

// mapProvider implements koanf.Provider over a plain map of dotted
// keys, so CLI-flag overrides can be loaded as the highest-priority
// layer without parsing anything.
type mapProvider map[string]any

func (m mapProvider) Read() (map[string]any, error) {
	return map[string]any(m), nil
}

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, nil
}
