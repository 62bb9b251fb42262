package config

// Overrides holds command-line values that take priority over the config
// file. Zero values leave the file setting alone.
type Overrides struct {
	ConfigPath string
	Debug      bool
	LogFile    string
	OutDir     string
	Backend    string
	Width      int
	Height     int
	BitDepth   int
	Workers    int
	CacheSize  int
	NoCache    bool
	NoLedger   bool
	LedgerPath string
	Plot       bool
	Normals    bool
}

// apply applies CLI overrides to the config.
func (ov *Overrides) apply(cfg *Config) {
	if ov == nil {
		return
	}
	if ov.Debug {
		cfg.Logging.Level = "debug"
	}
	if ov.LogFile != "" {
		cfg.Logging.LogFile = ov.LogFile
	}
	if ov.OutDir != "" {
		cfg.Output.Dir = ov.OutDir
	}
	if ov.Backend != "" {
		cfg.Render.Backend = ov.Backend
	}
	if ov.Width > 0 {
		cfg.Render.Width = ov.Width
	}
	if ov.Height > 0 {
		cfg.Render.Height = ov.Height
	}
	if ov.BitDepth > 0 {
		cfg.Output.BitDepth = ov.BitDepth
	}
	if ov.Workers > 0 {
		cfg.Pipeline.Workers = ov.Workers
	}
	if ov.CacheSize > 0 {
		cfg.Cache.MaxFrames = ov.CacheSize
	}
	if ov.NoCache {
		cfg.Cache.MaxFrames = -1
	}
	if ov.NoLedger {
		cfg.Ledger.Enabled = false
	}
	if ov.LedgerPath != "" {
		cfg.Ledger.Path = ov.LedgerPath
	}
	if ov.Plot {
		cfg.Diagnostics.Plot = true
	}
	if ov.Normals {
		cfg.Output.Normals = true
	}
}
