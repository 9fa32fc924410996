package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort     = 4000
	DefaultModelDir = "ModelInJSON"
	DefaultModelURL = "https://tumor-detection-model-api.vercel.app/model.json"

	BackendLayers = "layers"
	BackendONNX   = "onnx"
)

// ServerConfig configures the model asset server.
type ServerConfig struct {
	Port         int
	ModelDir     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
}

// ClientConfig configures the inference client.
type ClientConfig struct {
	ModelURL       string
	Backend        string
	ONNXLibrary    string
	ONNXInputName  string
	ONNXOutputName string
	Labels         []string
	HTTPTimeout    time.Duration
	Debug          bool
}

// LoadServer reads the server settings from the environment. A .env file in
// the working directory is loaded first when present.
func LoadServer() *ServerConfig {
	_ = godotenv.Load()

	return &ServerConfig{
		Port:         getEnvAsInt("PORT", DefaultPort),
		ModelDir:     getEnv("MODEL_DIR", DefaultModelDir),
		ReadTimeout:  time.Duration(getEnvAsInt("READ_TIMEOUT", 60)) * time.Second,
		WriteTimeout: time.Duration(getEnvAsInt("WRITE_TIMEOUT", 60)) * time.Second,
		Debug:        getEnvAsBool("DEBUG", false),
	}
}

// LoadClient reads the client settings from the environment.
func LoadClient() *ClientConfig {
	_ = godotenv.Load()

	return &ClientConfig{
		ModelURL:       getEnv("MODEL_URL", DefaultModelURL),
		Backend:        strings.ToLower(getEnv("MODEL_BACKEND", BackendLayers)),
		ONNXLibrary:    getEnv("ONNXRUNTIME_LIB", ""),
		ONNXInputName:  getEnv("ONNX_INPUT_NAME", "input"),
		ONNXOutputName: getEnv("ONNX_OUTPUT_NAME", "output"),
		Labels:         getEnvAsList("CLASS_LABELS"),
		HTTPTimeout:    time.Duration(getEnvAsInt("HTTP_TIMEOUT", 30)) * time.Second,
		Debug:          getEnvAsBool("DEBUG", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
