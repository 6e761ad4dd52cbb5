package config

import "time"

// StorageConfig describes the S3-compatible bucket holding listing images
// and avatars.  Endpoint may point at R2, MinIO or AWS; leave it empty to
// use the SDK's default AWS resolution.
type StorageConfig struct {
    Endpoint        string
    Region          string
    AccessKeyID     string
    SecretAccessKey string
    Bucket          string
    PublicURL       string        // base URL for public object links
    UploadTTL       time.Duration // lifetime of presigned upload URLs
    MaxUploadBytes  int64
}

// LoadStorageConfig reads S3_* variables.
func LoadStorageConfig() StorageConfig {
    return StorageConfig{
        Endpoint:        envStr("S3_ENDPOINT", ""),
        Region:          envStr("S3_REGION", "auto"),
        AccessKeyID:     envStr("S3_ACCESS_KEY_ID", ""),
        SecretAccessKey: envStr("S3_SECRET_ACCESS_KEY", ""),
        Bucket:          envStr("S3_BUCKET", "marketplace"),
        PublicURL:       envStr("S3_PUBLIC_URL", ""),
        UploadTTL:       envDur("S3_UPLOAD_TTL", 15*time.Minute),
        MaxUploadBytes:  int64(envInt("S3_MAX_UPLOAD_BYTES", 5<<20)),
    }
}

// Enabled reports whether credentials were supplied.
func (c StorageConfig) Enabled() bool {
    return c.AccessKeyID != "" && c.SecretAccessKey != ""
}
