package config

import (
	"fmt"
	"strings"
	"time"
)

func validate(c *Config) error {
	if len(c.Segments) == 0 {
		return fmt.Errorf("segments requires at least one entry")
	}
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.MarketData.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Segments))
	for i := range c.Segments {
		s := &c.Segments[i]
		if err := s.validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("segments contains duplicate name: %s", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	switch b.Mode {
	case "paper":
	case "live":
		if strings.TrimSpace(b.BaseURL) == "" {
			return fmt.Errorf("broker.base_url required in live mode")
		}
		if strings.TrimSpace(b.APIKey) == "" || strings.TrimSpace(b.AccessToken) == "" {
			return fmt.Errorf("broker.api_key and broker.access_token required in live mode")
		}
	default:
		return fmt.Errorf("broker.mode must be paper or live, got %q", b.Mode)
	}
	return nil
}

func (m *MarketDataConfig) validate() error {
	if strings.TrimSpace(m.BaseURL) == "" {
		return fmt.Errorf("market_data.base_url cannot be empty")
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("session.timezone invalid: %w", err)
	}
	open := s.OpenHour*60 + s.OpenMinute
	close := s.CloseHour*60 + s.CloseMinute
	if open >= close {
		return fmt.Errorf("session open %02d:%02d must precede close %02d:%02d",
			s.OpenHour, s.OpenMinute, s.CloseHour, s.CloseMinute)
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.DailyLossLimit < 0 {
		return fmt.Errorf("risk.daily_loss_limit must be >= 0")
	}
	if r.LockActivation < 0 || r.LockIncrement < 0 {
		return fmt.Errorf("risk lock levels must be >= 0")
	}
	if r.LockActivation > 0 && r.LockIncrement <= 0 {
		return fmt.Errorf("risk.lock_increment required when lock_activation is set")
	}
	return nil
}

func (s *SegmentConfig) validate() error {
	if strings.TrimSpace(s.Instrument) == "" {
		return fmt.Errorf("segment %s: instrument cannot be empty", s.Name)
	}
	switch s.Regime {
	case "buy", "sell":
	default:
		return fmt.Errorf("segment %s: regime must be buy or sell, got %q", s.Name, s.Regime)
	}
	if _, err := parseInterval(s.Interval); err != nil {
		return fmt.Errorf("segment %s: interval: %w", s.Name, err)
	}
	if s.SecondaryInterval != "" {
		if _, err := parseInterval(s.SecondaryInterval); err != nil {
			return fmt.Errorf("segment %s: secondary_interval: %w", s.Name, err)
		}
	}
	if strings.TrimSpace(s.SymbolPrefix) == "" || strings.TrimSpace(s.Expiry) == "" {
		return fmt.Errorf("segment %s: symbol_prefix and expiry cannot be empty", s.Name)
	}
	if s.StrikeStep <= 0 {
		return fmt.Errorf("segment %s: strike_step must be > 0", s.Name)
	}
	if s.LotSize <= 0 {
		return fmt.Errorf("segment %s: lot_size must be > 0", s.Name)
	}
	if s.MaxQuantity > 0 && s.MaxQuantity < s.Lots*s.LotSize {
		return fmt.Errorf("segment %s: max_quantity %d below base quantity %d",
			s.Name, s.MaxQuantity, s.Lots*s.LotSize)
	}
	if s.StopLossPoints <= 0 && s.StopLossPct <= 0 {
		return fmt.Errorf("segment %s: one of stop_loss_points or stop_loss_pct required", s.Name)
	}
	return nil
}
