package config

const (
	defaultOutputDir                = "~/Videos/wmclean"
	defaultLogDir                   = "~/.local/share/wmclean/logs"
	defaultModelsDir                = "~/.local/share/wmclean/models"
	defaultStateDir                 = "~/.local/share/wmclean"
	defaultLogRetentionDays         = 30
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultMethod                   = MethodRemote
	defaultMaxDurationSeconds       = 300
	defaultReplicateBaseURL         = "https://api.replicate.com/v1"
	defaultReplicateModel           = "uglyrobot/sora2-watermark-remover"
	defaultReplicateVersion         = "7b636d39f482f129dfa3429fdc7c5c2d4f4ef36e4cbc6d919b701c1d39162797"
	defaultMaxUploadMB              = 100
	defaultInlineUploadMB           = 50
	defaultPollIntervalSeconds      = 2
	defaultPredictionTimeoutSeconds = 1800
	defaultRequestTimeoutSeconds    = 60
	defaultDownloadTimeoutSeconds   = 300
	defaultDetector                 = DetectorHTTP
	defaultDetectorURL              = "http://127.0.0.1:8085/detect"
	defaultDetectorModelURL         = "https://github.com/linkedlist771/SoraWatermarkCleaner/releases/download/V0.0.1/best.pt"
	defaultConfidenceThreshold      = 0.3
	defaultIoUThreshold             = 0.45
	defaultInpainter                = InpainterDiffuse
	defaultInpaintRadius            = 3
	defaultIOPaintURL               = "http://127.0.0.1:8080"
	defaultIOPaintModel             = "lama"
	defaultLocalTimeoutSeconds      = 30
	defaultVideoCodec               = "libx264"
	defaultEnhanceScale             = 4
	defaultUpscaler                 = UpscalerResize
	defaultUpscalerCommand          = "realesrgan-ncnn-vulkan"
	defaultUpscalerModel            = "realesrgan-x4plus"
	defaultInterpolation            = "bicubic"
	defaultUpscalerModelURL         = "https://github.com/xinntao/Real-ESRGAN/releases/download/v0.1.0/RealESRGAN_x4plus.pth"
	defaultRestorerCommand          = "codeformer"
	defaultFidelity                 = 0.5
	defaultFFmpegMinVersion         = "4.4.0"
	defaultFFmpegBundleURL          = "https://github.com/GyanD/codexffmpeg/releases/download/6.1/ffmpeg-6.1-full_build.zip"
	defaultFFmpegBundleDir          = "~/.local/share/wmclean/ffmpeg"
	defaultWatchInboxDir            = "~/Videos/wmclean-inbox"
	defaultWatchSchedule            = "@every 5m"
	defaultWatchDebounceSeconds     = 2
	defaultNtfyTimeoutSeconds       = 10
)

// Removal methods.
const (
	MethodRemote   = "remote"
	MethodLocalGPU = "local_gpu"
)

// Detector, inpainter, and upscaler implementations.
const (
	DetectorHTTP     = "http"
	DetectorStatic   = "static"
	InpainterDiffuse = "diffuse"
	InpainterIOPaint = "iopaint"
	UpscalerResize   = "resize"
	UpscalerCommand  = "command"
)

func defaultSupportedFormats() []string {
	return []string{"mp4", "mov", "avi", "mkv", "webm", "flv", "wmv"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			TempDir:   defaultTempDir(),
			LogDir:    defaultLogDir,
			ModelsDir: defaultModelsDir,
			StateDir:  defaultStateDir,
		},
		Processing: Processing{
			Method:             defaultMethod,
			SupportedFormats:   defaultSupportedFormats(),
			MaxDurationSeconds: defaultMaxDurationSeconds,
		},
		Replicate: Replicate{
			BaseURL:                  defaultReplicateBaseURL,
			Model:                    defaultReplicateModel,
			Version:                  defaultReplicateVersion,
			MaxUploadMB:              defaultMaxUploadMB,
			InlineUploadMB:           defaultInlineUploadMB,
			PollIntervalSeconds:      defaultPollIntervalSeconds,
			PredictionTimeoutSeconds: defaultPredictionTimeoutSeconds,
			RequestTimeoutSeconds:    defaultRequestTimeoutSeconds,
			DownloadTimeoutSeconds:   defaultDownloadTimeoutSeconds,
		},
		Local: Local{
			Detector:              defaultDetector,
			DetectorURL:           defaultDetectorURL,
			DetectorModelURL:      defaultDetectorModelURL,
			ConfidenceThreshold:   defaultConfidenceThreshold,
			IoUThreshold:          defaultIoUThreshold,
			Inpainter:             defaultInpainter,
			InpaintRadius:         defaultInpaintRadius,
			IOPaintURL:            defaultIOPaintURL,
			IOPaintModel:          defaultIOPaintModel,
			RequestTimeoutSeconds: defaultLocalTimeoutSeconds,
			VideoCodec:            defaultVideoCodec,
		},
		Enhance: Enhance{
			Scale:           defaultEnhanceScale,
			Upscaler:        defaultUpscaler,
			UpscalerCommand: defaultUpscalerCommand,
			UpscalerModel:   defaultUpscalerModel,
			Interpolation:   defaultInterpolation,

			UpscalerModelURL: defaultUpscalerModelURL,
			RestorerCommand:  defaultRestorerCommand,
			Fidelity:         defaultFidelity,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
			MinVersion:    defaultFFmpegMinVersion,
			BundleURL:     defaultFFmpegBundleURL,
			BundleDir:     defaultFFmpegBundleDir,
		},
		Watch: Watch{
			InboxDir:        defaultWatchInboxDir,
			Schedule:        defaultWatchSchedule,
			DebounceSeconds: defaultWatchDebounceSeconds,
		},
		History: History{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
			NotifyEachVideo:       true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
