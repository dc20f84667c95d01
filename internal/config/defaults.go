package config

const (
	defaultDownloadDir         = "~/.local/share/platewatch/videos"
	defaultLogDir              = "~/.local/share/platewatch/logs"
	defaultDetectorModel       = "yolo11n.onnx"
	defaultMinConfidence       = 0.5
	defaultMinArea             = 40000
	defaultStrategy            = "complete"
	defaultDevice              = "cpu"
	defaultPlateBinary         = "fast-alpr"
	defaultPlateDetectorModel  = "yolo-v9-s-608-license-plate-end2end"
	defaultPlateOCRModel       = "global-plates-mobile-vit-v2-model"
	defaultSimilarityThreshold = 0.85
	defaultHistogramBins       = 64
	defaultNotifyTimeout       = 10
	defaultQueuePollInterval   = 1
	defaultIdleTimeout         = 5
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Strategies lists the supported best-frame selection strategies.
var Strategies = []string{"first", "largest", "complete"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
		},
		Detector: Detector{
			ModelPath:     defaultDetectorModel,
			MinConfidence: defaultMinConfidence,
			MinArea:       defaultMinArea,
			Strategy:      defaultStrategy,
			Device:        defaultDevice,
		},
		Plates: Plates{
			Binary:        defaultPlateBinary,
			DetectorModel: defaultPlateDetectorModel,
			OCRModel:      defaultPlateOCRModel,
		},
		Dedupe: Dedupe{
			SimilarityThreshold: defaultSimilarityThreshold,
			HistogramBins:       defaultHistogramBins,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval: defaultQueuePollInterval,
			IdleTimeout:       defaultIdleTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
