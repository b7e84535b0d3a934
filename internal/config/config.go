package config

import (
	"strconv"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	RedisURL    string

	StoragePath string // merged artifacts + encoder outputs
	TempPath    string // chunk staging area

	MaxFileSize int64 // per-file cap, default ~30 GiB
	ChunkSize   int64 // default chunk size, ~50 MiB

	UploadConcurrency   int // C9 default upload pool size
	DownloadConcurrency int // C9 default download pool size

	DiskBudgetEnabled bool
	MaxTotalSpaceGB   int64
	ReservedSpaceGB   int64

	QuickFingerprintThreshold int64 // bytes, default ~500 MiB

	UploadSessionTTLHours int

	RetentionWindowHours   int // download -> scheduled cleanup
	TempTTLHours           int // orphan temp sweep age
	LogRetentionDays       int
	AggressiveUsagePercent int
	EmergencyUsagePercent  int

	EncoderPath         string
	EncoderArgsTemplate string

	ArchiveProvider   string // "none" | "s3" | "gcs" | "azure"
	ArchiveBucket     string
	ArchiveRegion     string
	ArchiveContainer  string
	ArchiveKMSKeyID   string
	CleanupReportToMail string
	SMTPHost          string
	SMTPPort          int
	SMTPUser          string
	SMTPPassword      string

	OIDCIssuerURL string
	OIDCClientID  string
}

func Load() (*Config, error) {
	LoadEnvOnce()

	maxFileSize, _ := strconv.ParseInt(GetEnvWithFallback("MAX_FILE_SIZE", "32212254720"), 10, 64)           // 30 GiB
	chunkSize, _ := strconv.ParseInt(GetEnvWithFallback("CHUNK_SIZE", "52428800"), 10, 64)                   // 50 MiB
	uploadConcurrency, _ := strconv.Atoi(GetEnvWithFallback("UPLOAD_CONCURRENCY", "4"))
	downloadConcurrency, _ := strconv.Atoi(GetEnvWithFallback("DOWNLOAD_CONCURRENCY", "4"))
	diskBudgetEnabled, _ := strconv.ParseBool(GetEnvWithFallback("DISK_BUDGET_ENABLED", "true"))
	maxTotalSpaceGB, _ := strconv.ParseInt(GetEnvWithFallback("MAX_TOTAL_SPACE_GB", "500"), 10, 64)
	reservedSpaceGB, _ := strconv.ParseInt(GetEnvWithFallback("RESERVED_SPACE_GB", "20"), 10, 64)
	quickFPThreshold, _ := strconv.ParseInt(GetEnvWithFallback("QUICK_FINGERPRINT_THRESHOLD", "524288000"), 10, 64) // 500 MiB
	sessionTTLHours, _ := strconv.Atoi(GetEnvWithFallback("UPLOAD_SESSION_TTL_HOURS", "24"))
	retentionWindowHours, _ := strconv.Atoi(GetEnvWithFallback("RETENTION_WINDOW_HOURS", "24"))
	tempTTLHours, _ := strconv.Atoi(GetEnvWithFallback("TEMP_TTL_HOURS", "24"))
	logRetentionDays, _ := strconv.Atoi(GetEnvWithFallback("LOG_RETENTION_DAYS", "30"))
	aggressiveUsagePercent, _ := strconv.Atoi(GetEnvWithFallback("AGGRESSIVE_USAGE_PERCENT", "80"))
	emergencyUsagePercent, _ := strconv.Atoi(GetEnvWithFallback("EMERGENCY_USAGE_PERCENT", "95"))
	smtpPort, _ := strconv.Atoi(GetEnvWithFallback("SMTP_PORT", "587"))

	return &Config{
		Port:        GetEnvWithFallback("PORT", "8080"),
		Environment: GetEnvWithFallback("ENVIRONMENT", "development"),
		DatabaseURL: GetEnvWithFallback("DATABASE_URL", "postgresql://localhost:5432/videoforge?sslmode=disable"),
		RedisURL:    GetEnvWithFallback("REDIS_URL", "redis://localhost:6379/0"),

		StoragePath: GetEnvWithFallback("STORAGE_PATH", "./data/storage"),
		TempPath:    GetEnvWithFallback("TEMP_PATH", "./data/temp"),

		MaxFileSize: maxFileSize,
		ChunkSize:   chunkSize,

		UploadConcurrency:   uploadConcurrency,
		DownloadConcurrency: downloadConcurrency,

		DiskBudgetEnabled: diskBudgetEnabled,
		MaxTotalSpaceGB:   maxTotalSpaceGB,
		ReservedSpaceGB:   reservedSpaceGB,

		QuickFingerprintThreshold: quickFPThreshold,

		UploadSessionTTLHours: sessionTTLHours,

		RetentionWindowHours:   retentionWindowHours,
		TempTTLHours:           tempTTLHours,
		LogRetentionDays:       logRetentionDays,
		AggressiveUsagePercent: aggressiveUsagePercent,
		EmergencyUsagePercent:  emergencyUsagePercent,

		EncoderPath:         GetEnvWithFallback("ENCODER_PATH", "/usr/bin/ffmpeg"),
		EncoderArgsTemplate: GetEnvWithFallback("ENCODER_ARGS_TEMPLATE", "-i {input} -c:v {codec} -y {output}"),

		ArchiveProvider:     GetEnvWithFallback("ARCHIVE_PROVIDER", "none"),
		ArchiveBucket:       GetEnvWithFallback("ARCHIVE_BUCKET", ""),
		ArchiveRegion:       GetEnvWithFallback("ARCHIVE_REGION", "us-east-1"),
		ArchiveContainer:    GetEnvWithFallback("ARCHIVE_CONTAINER", ""),
		ArchiveKMSKeyID:     GetEnvWithFallback("ARCHIVE_KMS_KEY_ID", ""),
		CleanupReportToMail: GetEnvWithFallback("CLEANUP_REPORT_TO", ""),
		SMTPHost:            GetEnvWithFallback("SMTP_HOST", ""),
		SMTPPort:            smtpPort,
		SMTPUser:            GetEnvWithFallback("SMTP_USER", ""),
		SMTPPassword:        GetEnvWithFallback("SMTP_PASSWORD", ""),

		OIDCIssuerURL: GetEnvWithFallback("OIDC_ISSUER_URL", ""),
		OIDCClientID:  GetEnvWithFallback("OIDC_CLIENT_ID", ""),
	}, nil
}
