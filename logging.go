package forge

import "go.uber.org/zap"

// NewLogger builds the structured logger used across the core package.
// debug selects zap's human-readable development encoder (for CLI use);
// production mode uses the default JSON encoder suited to log shipping.
func NewLogger(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
