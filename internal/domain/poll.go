package domain

// PollResult holds what a provider collected for each configuration of a
// group, along with the errors raised for each of them. It is assembled once
// by a PollBuilder and never modified afterwards.
type PollResult struct {
	order  []*DataSourceConfiguration
	tables map[*DataSourceConfiguration][]TableData
	errs   map[*DataSourceConfiguration][]error
}

// Configurations returns every configuration that produced tables or errors,
// in the order they were first recorded
func (p *PollResult) Configurations() []*DataSourceConfiguration {
	if p == nil {
		return nil
	}
	out := make([]*DataSourceConfiguration, len(p.order))
	copy(out, p.order)
	return out
}

// Tables returns the tables collected for a configuration
func (p *PollResult) Tables(cfg *DataSourceConfiguration) []TableData {
	if p == nil {
		return nil
	}
	return p.tables[cfg]
}

// Errors returns the errors recorded for a configuration
func (p *PollResult) Errors(cfg *DataSourceConfiguration) []error {
	if p == nil {
		return nil
	}
	return p.errs[cfg]
}

// HasTables reports whether the configuration produced data
func (p *PollResult) HasTables(cfg *DataSourceConfiguration) bool {
	return len(p.Tables(cfg)) > 0
}

// ErrorCount returns the total number of recorded errors
func (p *PollResult) ErrorCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, errs := range p.errs {
		n += len(errs)
	}
	return n
}

// SuccessCount returns the number of configurations with data and no errors
func (p *PollResult) SuccessCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, cfg := range p.order {
		if len(p.tables[cfg]) > 0 && len(p.errs[cfg]) == 0 {
			n++
		}
	}
	return n
}

// PollBuilder accumulates poll output. It is not safe for concurrent use.
type PollBuilder struct {
	res  *PollResult
	seen map[*DataSourceConfiguration]bool
}

// NewPollBuilder creates an empty builder
func NewPollBuilder() *PollBuilder {
	return &PollBuilder{
		res: &PollResult{
			tables: make(map[*DataSourceConfiguration][]TableData),
			errs:   make(map[*DataSourceConfiguration][]error),
		},
		seen: make(map[*DataSourceConfiguration]bool),
	}
}

func (b *PollBuilder) track(cfg *DataSourceConfiguration) {
	if !b.seen[cfg] {
		b.seen[cfg] = true
		b.res.order = append(b.res.order, cfg)
	}
}

// AddTables records collected tables for a configuration
func (b *PollBuilder) AddTables(cfg *DataSourceConfiguration, tables ...TableData) *PollBuilder {
	b.track(cfg)
	b.res.tables[cfg] = append(b.res.tables[cfg], tables...)
	return b
}

// AddError records a failure for a configuration
func (b *PollBuilder) AddError(cfg *DataSourceConfiguration, err error) *PollBuilder {
	if err == nil {
		return b
	}
	b.track(cfg)
	b.res.errs[cfg] = append(b.res.errs[cfg], err)
	return b
}

// Build returns the result. The builder must not be used afterwards.
func (b *PollBuilder) Build() *PollResult {
	res := b.res
	b.res = nil
	return res
}
