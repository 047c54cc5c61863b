package config

import "github.com/spf13/viper"

// setDefaultConfig registers every option's default with viper so a
// partial or missing config.yaml still produces a fully populated
// Settings struct.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "chordverify")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.rotation", "size")
	viper.SetDefault("main.log.max_size_mb", 100)

	viper.SetDefault("capture.source", "default")
	viper.SetDefault("capture.sample_rate", 44100)
	viper.SetDefault("capture.gain", 1.0)

	viper.SetDefault("verify.window_sec", 1.3)
	viper.SetDefault("verify.tick_ms", 40)
	viper.SetDefault("verify.model_sample_rate", 22050)
	viper.SetDefault("verify.frames_confirm", 3)
	viper.SetDefault("verify.miss_cooldown_ms", 250)
	viper.SetDefault("verify.salience_threshold", 0.2)
	viper.SetDefault("verify.cents_tolerance", 50)
	viper.SetDefault("verify.transpose_semitones", 0)
	viper.SetDefault("verify.accept_inversions", true)
	viper.SetDefault("verify.policy", "K_OF_N")
	viper.SetDefault("verify.aggregator_max_len", 5)

	viper.SetDefault("model.path", "")
	viper.SetDefault("model.threads", 0)
	viper.SetDefault("model.use_xnnpack", true)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.listen_address", "127.0.0.1:9107")

	viper.SetDefault("diagnostics.verdict_log_size", 256)

	viper.SetDefault("osc.enabled", false)
	viper.SetDefault("osc.host", "127.0.0.1")
	viper.SetDefault("osc.port", 9000)
	viper.SetDefault("osc.address_prefix", "/chordverify")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	viper.SetDefault("mqtt.client_id", "chordverify")
	viper.SetDefault("mqtt.topic", "chordverify/verdict")
}
