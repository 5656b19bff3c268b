package config

const (
	defaultLogLevel       = "info"
	defaultHTTPAddr       = ":9985"
	defaultDBPath         = "data/optrix.db"
	defaultPurgeAfterDays = 30
	defaultTenant         = "default"
	defaultTimezone       = "Asia/Kolkata"
	defaultOpenHour       = 9
	defaultOpenMinute     = 15
	defaultCloseHour      = 15
	defaultCloseMinute    = 30
	defaultHTTPTimeout    = 10
	defaultProduct        = "MIS"
	defaultBrokerMode     = "paper"
	defaultInterval       = "5m"
	defaultRiskInterval   = 15
)

func (c *Config) applyDefaults() {
	if c.Tenant == "" {
		c.Tenant = defaultTenant
	}
	c.App.applyDefaults()
	c.MarketData.applyDefaults()
	c.Broker.applyDefaults()
	c.Session.applyDefaults()
	if c.Risk.IntervalSeconds <= 0 {
		c.Risk.IntervalSeconds = defaultRiskInterval
	}
	for i := range c.Segments {
		c.Segments[i].applyDefaults()
	}
}

func (a *AppConfig) applyDefaults() {
	if a.LogLevel == "" {
		a.LogLevel = defaultLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultHTTPAddr
	}
	if a.DBPath == "" {
		a.DBPath = defaultDBPath
	}
	if a.PurgeAfterDay <= 0 {
		a.PurgeAfterDay = defaultPurgeAfterDays
	}
}

func (m *MarketDataConfig) applyDefaults() {
	if m.TimeoutSeconds <= 0 {
		m.TimeoutSeconds = defaultHTTPTimeout
	}
}

func (b *BrokerConfig) applyDefaults() {
	if b.Mode == "" {
		b.Mode = defaultBrokerMode
	}
	if b.Product == "" {
		b.Product = defaultProduct
	}
	if b.TimeoutSeconds <= 0 {
		b.TimeoutSeconds = defaultHTTPTimeout
	}
}

func (s *SessionConfig) applyDefaults() {
	if s.Timezone == "" {
		s.Timezone = defaultTimezone
	}
	if s.OpenHour == 0 && s.OpenMinute == 0 {
		s.OpenHour = defaultOpenHour
		s.OpenMinute = defaultOpenMinute
	}
	if s.CloseHour == 0 && s.CloseMinute == 0 {
		s.CloseHour = defaultCloseHour
		s.CloseMinute = defaultCloseMinute
	}
}

func (s *SegmentConfig) applyDefaults() {
	if s.Name == "" {
		s.Name = s.Instrument
	}
	if s.Regime == "" {
		s.Regime = "buy"
	}
	if s.Interval == "" {
		s.Interval = defaultInterval
	}
	if s.Lots <= 0 {
		s.Lots = 1
	}
}
