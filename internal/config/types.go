package config

// Config is the engine's main configuration carrier.
type Config struct {
	App        AppConfig        `yaml:"app" mapstructure:"app"`
	Tenant     string           `yaml:"tenant" mapstructure:"tenant"`
	MarketData MarketDataConfig `yaml:"market_data" mapstructure:"market_data"`
	Broker     BrokerConfig     `yaml:"broker" mapstructure:"broker"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Risk       RiskConfig       `yaml:"risk" mapstructure:"risk"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Segments   []SegmentConfig  `yaml:"segments" mapstructure:"segments"`

	// SegmentsFile optionally points to a standalone YAML profile holding
	// the segments list; entries there override the inline list.
	SegmentsFile string `yaml:"segments_file" mapstructure:"segments_file"`
}

type AppConfig struct {
	LogLevel      string `yaml:"log_level" mapstructure:"log_level"`
	LogPath       string `yaml:"log_path" mapstructure:"log_path"`
	HTTPAddr      string `yaml:"http_addr" mapstructure:"http_addr"`
	DBPath        string `yaml:"db_path" mapstructure:"db_path"`
	PurgeAfterDay int    `yaml:"purge_after_days" mapstructure:"purge_after_days"`
}

type MarketDataConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	WSURL          string `yaml:"ws_url" mapstructure:"ws_url"`
	APIKey         string `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type BrokerConfig struct {
	Mode           string `yaml:"mode" mapstructure:"mode"` // "paper" | "live"
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	APIKey         string `yaml:"api_key" mapstructure:"api_key"`
	AccessToken    string `yaml:"access_token" mapstructure:"access_token"`
	Product        string `yaml:"product" mapstructure:"product"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type SessionConfig struct {
	Timezone    string `yaml:"timezone" mapstructure:"timezone"`
	OpenHour    int    `yaml:"open_hour" mapstructure:"open_hour"`
	OpenMinute  int    `yaml:"open_minute" mapstructure:"open_minute"`
	CloseHour   int    `yaml:"close_hour" mapstructure:"close_hour"`
	CloseMinute int    `yaml:"close_minute" mapstructure:"close_minute"`
}

type RiskConfig struct {
	DailyLossLimit  float64 `yaml:"daily_loss_limit" mapstructure:"daily_loss_limit"`
	WarnFraction    float64 `yaml:"warn_fraction" mapstructure:"warn_fraction"`
	LockActivation  float64 `yaml:"lock_activation" mapstructure:"lock_activation"`
	LockIncrement   float64 `yaml:"lock_increment" mapstructure:"lock_increment"`
	IntervalSeconds int     `yaml:"interval_seconds" mapstructure:"interval_seconds"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram" mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	BotToken string `yaml:"bot_token" mapstructure:"bot_token"`
	ChatID   string `yaml:"chat_id" mapstructure:"chat_id"`
}

// SegmentConfig configures one traded instrument.
type SegmentConfig struct {
	Name              string `yaml:"name" mapstructure:"name"`
	Instrument        string `yaml:"instrument" mapstructure:"instrument"`
	Regime            string `yaml:"regime" mapstructure:"regime"` // "buy" | "sell"
	Interval          string `yaml:"interval" mapstructure:"interval"`
	SecondaryInterval string `yaml:"secondary_interval" mapstructure:"secondary_interval"`
	TickOffsetSeconds int    `yaml:"tick_offset_seconds" mapstructure:"tick_offset_seconds"`
	MaxTradesPerDay   int    `yaml:"max_trades_per_day" mapstructure:"max_trades_per_day"`

	// Contract parameters.
	SymbolPrefix string  `yaml:"symbol_prefix" mapstructure:"symbol_prefix"`
	Expiry       string  `yaml:"expiry" mapstructure:"expiry"`
	StrikeStep   float64 `yaml:"strike_step" mapstructure:"strike_step"`
	LotSize      int     `yaml:"lot_size" mapstructure:"lot_size"`
	Lots         int     `yaml:"lots" mapstructure:"lots"`
	MaxQuantity  int     `yaml:"max_quantity" mapstructure:"max_quantity"`

	// Exit and pyramiding.
	StopLossPoints    float64 `yaml:"stop_loss_points" mapstructure:"stop_loss_points"`
	StopLossPct       float64 `yaml:"stop_loss_pct" mapstructure:"stop_loss_pct"`
	TrailPoints       float64 `yaml:"trail_points" mapstructure:"trail_points"`
	TrailPct          float64 `yaml:"trail_pct" mapstructure:"trail_pct"`
	PyramidProfitStep float64 `yaml:"pyramid_profit_step" mapstructure:"pyramid_profit_step"`

	// Indicator lookbacks.
	RSIPeriod    int `yaml:"rsi_period" mapstructure:"rsi_period"`
	PSSpan       int `yaml:"ps_span" mapstructure:"ps_span"`
	VSWindow     int `yaml:"vs_window" mapstructure:"vs_window"`
	ATRPeriod    int `yaml:"atr_period" mapstructure:"atr_period"`
	ATRAvgWindow int `yaml:"atr_avg_window" mapstructure:"atr_avg_window"`

	// Filter thresholds.
	EntryDelayMin     int     `yaml:"entry_delay_min" mapstructure:"entry_delay_min"`
	EntryCutoffMin    int     `yaml:"entry_cutoff_min" mapstructure:"entry_cutoff_min"`
	ATRRatioMin       float64 `yaml:"atr_ratio_min" mapstructure:"atr_ratio_min"`
	ATRRatioMax       float64 `yaml:"atr_ratio_max" mapstructure:"atr_ratio_max"`
	RSIUpper          float64 `yaml:"rsi_upper" mapstructure:"rsi_upper"`
	RSILower          float64 `yaml:"rsi_lower" mapstructure:"rsi_lower"`
	DiffTightMin      float64 `yaml:"diff_tight_min" mapstructure:"diff_tight_min"`
	DiffTightMax      float64 `yaml:"diff_tight_max" mapstructure:"diff_tight_max"`
	DiffWideMin       float64 `yaml:"diff_wide_min" mapstructure:"diff_wide_min"`
	DiffWideMax       float64 `yaml:"diff_wide_max" mapstructure:"diff_wide_max"`
	VolumeSpikeMult   float64 `yaml:"volume_spike_mult" mapstructure:"volume_spike_mult"`
	VolumeSpikeWindow int     `yaml:"volume_spike_window" mapstructure:"volume_spike_window"`
}
