package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  metrics_port: "9090"
  health_port: "8081"

llm:
  provider: "anthropic"
  model: "claude-sonnet-4-20250514"
  vision_model: "claude-sonnet-4-20250514"
  timeout: "40s"
  retry_count: 3
  temperature: 0.0
  max_tokens: 8192

embedding:
  provider: "openai"
  model: "text-embedding-3-small"
  dim: 1536

object_store:
  endpoint: "http://localhost:9000"
  bucket: "orderflow"
  access_key: "minioadmin"
  secret_key: "minioadmin"

worker:
  concurrency: 8
  poll_interval: "2s"
  ack_poll_interval: "60s"

extraction:
  max_pages_for_llm: 20
  llm_trigger_confidence: 0.60
  default_currency: "EUR"

logging:
  level: "info"
  format: "json"
`
				err := os.WriteFile(configFile, []byte(validConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(config).NotTo(BeNil())

				Expect(config.Server.MetricsPort).To(Equal("9090"))
				Expect(config.Server.HealthPort).To(Equal("8081"))

				Expect(config.LLM.Provider).To(Equal("anthropic"))
				Expect(config.LLM.Model).To(Equal("claude-sonnet-4-20250514"))
				Expect(config.LLM.Timeout).To(Equal(40 * time.Second))
				Expect(config.LLM.RetryCount).To(Equal(3))
				Expect(config.LLM.Temperature).To(Equal(float32(0.0)))
				Expect(config.LLM.MaxTokens).To(Equal(8192))

				Expect(config.Embedding.Model).To(Equal("text-embedding-3-small"))
				Expect(config.Embedding.Dim).To(Equal(1536))

				Expect(config.ObjectStore.Endpoint).To(Equal("http://localhost:9000"))
				Expect(config.ObjectStore.Bucket).To(Equal("orderflow"))

				Expect(config.Worker.Concurrency).To(Equal(8))
				Expect(config.Worker.PollInterval).To(Equal(2 * time.Second))
				Expect(config.Worker.AckPollInterval).To(Equal(60 * time.Second))

				Expect(config.Extraction.MaxPagesForLLM).To(Equal(20))
				Expect(config.Extraction.TriggerThreshold).To(Equal(0.60))
				Expect(config.Extraction.DefaultCurrency).To(Equal("EUR"))

				Expect(config.Logging.Level).To(Equal("info"))
				Expect(config.Logging.Format).To(Equal("json"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimalConfig := `
llm:
  model: "claude-sonnet-4-20250514"

object_store:
  base_path: "/var/lib/orderflow/objects"
`
				err := os.WriteFile(configFile, []byte(minimalConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load with defaults for missing values", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.LLM.Model).To(Equal("claude-sonnet-4-20250514"))
				Expect(config.ObjectStore.BasePath).To(Equal("/var/lib/orderflow/objects"))

				// Defaults applied where the file is silent.
				Expect(config.Server.MetricsPort).To(Equal("9090"))
				Expect(config.LLM.Provider).To(Equal("anthropic"))
				Expect(config.LLM.VisionModel).To(Equal(config.LLM.Model))
				Expect(config.LLM.Timeout).To(Equal(40 * time.Second))
				Expect(config.Worker.Concurrency).To(Equal(4))
				Expect(config.Worker.AckPollInterval).To(Equal(60 * time.Second))
				Expect(config.Extraction.MaxPagesForLLM).To(Equal(20))
				Expect(config.Extraction.TriggerThreshold).To(Equal(0.60))
				Expect(config.Extraction.DefaultCurrency).To(Equal("EUR"))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load("/nonexistent/config.yaml")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to read config file"))
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				invalidConfig := `
server:
  metrics_port: "9090"
  invalid_yaml: [
llm:
  model: "test"
`
				err := os.WriteFile(configFile, []byte(invalidConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})

		Context("when config has invalid duration formats", func() {
			BeforeEach(func() {
				invalidDurationConfig := `
llm:
  model: "test"
  timeout: "invalid-duration"

object_store:
  base_path: "/tmp/objects"
`
				err := os.WriteFile(configFile, []byte(invalidDurationConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})
	})

	Describe("validate", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{
				Server: ServerConfig{MetricsPort: "9090"},
				LLM: LLMConfig{
					Provider:    "anthropic",
					Model:       "claude-sonnet-4-20250514",
					Timeout:     40 * time.Second,
					RetryCount:  3,
					Temperature: 0.0,
					MaxTokens:   8192,
				},
				ObjectStore: ObjectStoreConfig{Bucket: "orderflow"},
				Worker:      WorkerConfig{Concurrency: 4},
			}
		})

		Context("when config is valid", func() {
			It("should pass validation", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when LLM provider is invalid", func() {
			BeforeEach(func() {
				config.LLM.Provider = "invalid"
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("unsupported LLM provider"))
			})
		})

		Context("when LLM model is missing", func() {
			BeforeEach(func() {
				config.LLM.Model = ""
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("LLM model is required"))
			})
		})

		Context("when LLM temperature is out of range", func() {
			BeforeEach(func() {
				config.LLM.Temperature = 1.5
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("LLM temperature must be between 0.0 and 1.0"))
			})
		})

		Context("when object store has neither bucket nor base path", func() {
			BeforeEach(func() {
				config.ObjectStore = ObjectStoreConfig{}
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("object store requires a bucket or a base path"))
			})
		})

		Context("when worker concurrency is not positive", func() {
			BeforeEach(func() {
				config.Worker.Concurrency = -1
			})

			It("should fall back to the default", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(config.Worker.Concurrency).To(Equal(4))
			})
		})

		Context("when vision model is missing", func() {
			BeforeEach(func() {
				config.LLM.VisionModel = ""
			})

			It("should default to the text model", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(config.LLM.VisionModel).To(Equal(config.LLM.Model))
			})
		})
	})

	Describe("loadFromEnv", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{}
			os.Clearenv()
		})

		Context("when environment variables are set", func() {
			BeforeEach(func() {
				os.Setenv("LLM_PROVIDER", "bedrock")
				os.Setenv("LLM_MODEL", "anthropic.claude-sonnet-4-20250514-v1:0")
				os.Setenv("EMBEDDING_MODEL", "amazon.titan-embed-text-v2:0")
				os.Setenv("OBJECT_STORE_BUCKET", "orderflow-test")
				os.Setenv("METRICS_PORT", "9999")
				os.Setenv("WORKER_CONCURRENCY", "16")
				os.Setenv("DEFAULT_CURRENCY", "USD")
				os.Setenv("LOG_LEVEL", "debug")
			})

			AfterEach(func() {
				os.Clearenv()
			})

			It("should load values from environment", func() {
				err := loadFromEnv(config)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.LLM.Provider).To(Equal("bedrock"))
				Expect(config.LLM.Model).To(Equal("anthropic.claude-sonnet-4-20250514-v1:0"))
				Expect(config.Embedding.Model).To(Equal("amazon.titan-embed-text-v2:0"))
				Expect(config.ObjectStore.Bucket).To(Equal("orderflow-test"))
				Expect(config.Server.MetricsPort).To(Equal("9999"))
				Expect(config.Worker.Concurrency).To(Equal(16))
				Expect(config.Extraction.DefaultCurrency).To(Equal("USD"))
				Expect(config.Logging.Level).To(Equal("debug"))
			})
		})

		Context("when no environment variables are set", func() {
			It("should not modify config", func() {
				originalConfig := *config
				err := loadFromEnv(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(*config).To(Equal(originalConfig))
			})
		})
	})
})
