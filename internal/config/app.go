package config

type AppConfig struct {
	Server  ServerConfig
	Log     LogConfig
	Notify  NotifyConfig
	Metrics MetricsConfig
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	notifyCfg, err := LoadNotify()
	if err != nil {
		return AppConfig{}, err
	}
	metricsCfg, err := LoadMetrics()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server:  serverCfg,
		Log:     logCfg,
		Notify:  notifyCfg,
		Metrics: metricsCfg,
	}, nil
}
