package config

const redacted = "***"

// secretFields lists every credential-bearing field of cfg.
func secretFields(cfg *Config) []*string {
	return []*string{
		&cfg.Wallet.PrivateKey,
		&cfg.Wallet.KeyPassword,
		&cfg.Polymarket.ApiKey,
		&cfg.Polymarket.ApiSecret,
		&cfg.Polymarket.ApiPassphrase,
		&cfg.Kalshi.ApiKey,
		&cfg.Postgres.DSN,
		&cfg.Postgres.Password,
		&cfg.Redis.Password,
		&cfg.S3.AccessKey,
		&cfg.S3.SecretKey,
		&cfg.Server.APIKey,
		&cfg.Notify.TelegramToken,
		&cfg.Notify.DiscordWebhookURL,
	}
}

// RedactedConfig returns a copy of cfg that is safe to log: every non-empty
// secret reads "***" and slices are cloned.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	for _, f := range secretFields(&out) {
		if *f != "" {
			*f = redacted
		}
	}
	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
