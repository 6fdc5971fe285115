// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	runSweepNow       = pflag.Bool("sweep-now", false, "Runs one expiry sweep at startup")
	validLogLevels    = []string{"debug", "info", "warn", "error", "fatal"}
	validStorageTypes = []string{"s3", "local"}
	validDrivers      = []string{"sqlite", "postgres"}
	validMediaTypes   = []string{"image", "video", "audio", "pdf"}
)

// SweepNow reports whether --sweep-now was passed
func SweepNow() bool { return *runSweepNow }

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")

	v.BindEnv("database.driver", "database_driver")
	v.BindEnv("database.dsn", "database_dsn")

	v.BindEnv("storage.type", "storage_type")
	v.BindEnv("storage.local_path", "storage_local_path")

	v.BindEnv("aws.access_key_id", "aws_access_key_id")
	v.BindEnv("aws.secret_access_key", "aws_secret_access_key")
	v.BindEnv("aws.region", "aws_region")
	v.BindEnv("aws.bucket", "aws_bucket")
	v.BindEnv("aws.endpoint", "aws_endpoint")

	v.BindEnv("upload.max_size", "upload_max_size")
	v.BindEnv("upload.allowed_types", "upload_allowed_types")

	v.BindEnv("codec.ffmpeg_path", "codec_ffmpeg_path")
	v.BindEnv("codec.ghostscript_path", "codec_ghostscript_path")
	v.BindEnv("codec.workers", "codec_workers")

	v.BindEnv("lifecycle.ttl", "lifecycle_ttl")
	v.BindEnv("lifecycle.sweep_interval", "lifecycle_sweep_interval")

	v.BindEnv("access.auth_threshold", "access_auth_threshold")

	v.BindEnv("jwt.secret", "jwt_secret")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "database.db")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "blobs")

	v.SetDefault("upload.max_size", 50)
	v.SetDefault("upload.allowed_types", []string{"image", "video", "audio", "pdf"})

	v.SetDefault("codec.workers", 2)
	v.SetDefault("codec.max_queued", 64)
	v.SetDefault("codec.image_quality", 4)
	v.SetDefault("codec.video_crf", 28)
	v.SetDefault("codec.video_preset", "medium")
	v.SetDefault("codec.audio_bitrate", "128k")
	v.SetDefault("codec.enhance_images", true)
	v.SetDefault("codec.pdf_budget", "30s")

	v.SetDefault("lifecycle.ttl", "24h")
	v.SetDefault("lifecycle.sweep_interval", "1h")
	v.SetDefault("lifecycle.orphan_interval", "6h")
	v.SetDefault("lifecycle.orphan_grace", "15m")

	v.SetDefault("access.auth_threshold", 10)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); ok {
			return errors.New("config.toml file is missing")
		}

		return fmt.Errorf("failed to read config file, %w", err)
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if !slices.Contains(validDrivers, v.GetString("database.driver")) {
		return errors.New("invalid database driver provided")
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	for _, t := range v.GetStringSlice("upload.allowed_types") {
		if !slices.Contains(validMediaTypes, t) {
			return fmt.Errorf("invalid media type %q in upload.allowed_types", t)
		}
	}

	switch v.GetString("storage.type") {
	case "s3":
		{
			if v.GetString("aws.access_key_id") == "" {
				return errors.New("access key id can't be empty")
			}
			if v.GetString("aws.secret_access_key") == "" {
				return errors.New("secret access key can't be empty")
			}
			if v.GetString("aws.bucket") == "" {
				return errors.New("bucket can't be empty")
			}
		}
	case "local":
		{
			if v.GetString("storage.local_path") == "" {
				return errors.New("storage.local_path can't be empty")
			}
		}
	default:
		return errors.New("invalid storage type provided")
	}

	if !slices.Contains(validStorageTypes, v.GetString("storage.type")) {
		return errors.New("invalid storage type provided")
	}

	if v.GetString("jwt.secret") == "" {
		fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
		os.Exit(0)
	}

	if v.GetDuration("lifecycle.ttl") <= 0 {
		return errors.New("lifecycle.ttl must be bigger than 0")
	}

	if v.GetDuration("lifecycle.sweep_interval") <= 0 {
		return errors.New("lifecycle.sweep_interval must be bigger than 0")
	}

	if v.GetDuration("codec.pdf_budget") <= 0 {
		return errors.New("codec.pdf_budget must be bigger than 0")
	}

	// Sizes are configured in MB and used in bytes everywhere else
	v.Set("upload.max_size", v.GetInt64("upload.max_size")<<20)
	v.Set("access.auth_threshold", v.GetInt64("access.auth_threshold")<<20)

	return nil
}
